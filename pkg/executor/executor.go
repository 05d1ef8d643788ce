// Package executor maps decoded remote commands onto local process-control
// actions. Every path returns an ExecutionResult; nothing here can take
// down the polling loop.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bridgefleet/bridgefleet/pkg/bridgectl"
	"github.com/bridgefleet/bridgefleet/pkg/command"
)

// Executor acts on one envelope per poll cycle.
type Executor struct {
	logger *slog.Logger
	ctrl   bridgectl.Controller

	// timeout bounds each process-control action so a hung subprocess
	// cannot stall the loop past the poll interval.
	timeout time.Duration
}

func New(logger *slog.Logger, ctrl bridgectl.Controller, timeout time.Duration) *Executor {
	return &Executor{
		logger:  logger,
		ctrl:    ctrl,
		timeout: timeout,
	}
}

// Execute performs the action the envelope names. The result is always
// returned, never an error: a failed or unknown command is a reported
// outcome, and the scheduler must see the next cycle regardless.
func (e *Executor) Execute(ctx context.Context, env command.Envelope) command.ExecutionResult {
	if !env.Pending {
		return command.NewResult("", false, "", "no pending command")
	}
	if !env.Command.Known() {
		e.logger.With("command", env.Raw).Warn("unrecognized command, skipping")
		return command.NewResult(command.NameUnknown, false, "",
			fmt.Sprintf("unknown command: %s", env.Raw))
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var (
		output string
		err    error
	)
	switch env.Command {
	case command.NameStart:
		output, err = e.ctrl.Start(ctx)
	case command.NameStop:
		output, err = e.ctrl.Stop(ctx)
	case command.NameRestart:
		output, err = e.ctrl.Restart(ctx)
	case command.NameUpdate:
		output, err = e.ctrl.Update(ctx)
	}

	if err != nil {
		e.logger.With("command", env.Command).With("err", err).Error("command failed")
		return command.NewResult(env.Command, false, output, err.Error())
	}
	return command.NewResult(env.Command, true, output, "")
}
