// Package agent owns the poll loop: one immediate cycle on start, then one
// per interval, forever, with every per-cycle failure confined to its cycle.
package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bridgefleet/bridgefleet/pkg/command"
	"github.com/bridgefleet/bridgefleet/pkg/ident"
	"github.com/grafana/dskit/services"
)

// Fetcher asks the command endpoint for a pending command.
type Fetcher interface {
	FetchPendingCommand(ctx context.Context, id ident.DeviceID) (command.Envelope, error)
}

// CommandExecutor acts on a pending envelope and always returns a result.
type CommandExecutor interface {
	Execute(ctx context.Context, env command.Envelope) command.ExecutionResult
}

// State is the agent lifecycle state. There are no intermediate persisted
// states; transitions are driven only by Start/Stop or signals.
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
)

// Agent is the lifecycle controller wrapped around the poll scheduler.
// Multiple instances can coexist; all mutable state lives on the value.
type Agent struct {
	logger   *slog.Logger
	cfg      Config
	fetcher  Fetcher
	executor CommandExecutor

	mu    sync.Mutex
	state State
	svc   services.Service
}

func New(logger *slog.Logger, cfg Config, fetcher Fetcher, executor CommandExecutor) *Agent {
	return &Agent{
		logger:   logger,
		cfg:      cfg,
		fetcher:  fetcher,
		executor: executor,
		state:    StateStopped,
	}
}

// Start transitions Stopped -> Running and kicks off the scheduler. Calling
// it while already running is a no-op.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateRunning {
		return nil
	}

	svc := services.NewBasicService(nil, a.running, nil)
	if err := services.StartAndAwaitRunning(ctx, svc); err != nil {
		return err
	}
	a.svc = svc
	a.state = StateRunning
	a.logger.With("device", a.cfg.DeviceID).With("interval", a.cfg.PollInterval).Info("agent started")
	return nil
}

// Stop cancels the scheduler. A cycle already in flight is allowed to
// finish; no new cycle starts after Stop returns. Idempotent.
func (a *Agent) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateRunning {
		return nil
	}

	err := services.StopAndAwaitTerminated(ctx, a.svc)
	a.svc = nil
	a.state = StateStopped
	a.logger.Info("agent stopped")
	return err
}

// State reports the current lifecycle state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// running is the scheduler loop. The first cycle runs immediately; after
// that the ticker fires at the poll interval. Because the loop is a single
// goroutine, cycles are strictly sequential. The ticker channel buffers one
// tick, so a tick that fired while a cycle was in flight has to be discarded
// afterwards, otherwise the next cycle would start at cycle end instead of
// the next tick boundary.
func (a *Agent) running(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	for {
		a.runCycle(ctx)
		if ctx.Err() != nil {
			return nil
		}
		select {
		case <-ticker.C:
		default:
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// runCycle is one fetch-and-optionally-execute iteration. Errors are logged
// and swallowed here: a failure in cycle N must never prevent cycle N+1.
func (a *Agent) runCycle(ctx context.Context) {
	// Stop does not abort an in-flight cycle, so the cycle is bounded by
	// its own timeouts rather than the scheduler context.
	cycleCtx := context.WithoutCancel(ctx)

	fetchCtx, cancel := context.WithTimeout(cycleCtx, a.cfg.FetchTimeout)
	env, err := a.fetcher.FetchPendingCommand(fetchCtx, a.cfg.DeviceID)
	cancel()
	if err != nil {
		a.logger.With("err", err).Warn("poll failed")
		return
	}
	if !env.Pending {
		a.logger.Debug("no pending command")
		return
	}

	res := a.executor.Execute(cycleCtx, env)
	l := a.logger.With("command", res.Command).With("result-id", res.ID).With("success", res.Success)
	if res.Output != "" {
		l = l.With("output", res.Output)
	}
	if res.Success {
		l.Info("command executed")
	} else {
		l.With("err", res.Error).Warn("command execution failed")
	}
}
