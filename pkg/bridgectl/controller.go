// Package bridgectl drives the bridging service process on behalf of the
// agent: launching it detached, terminating running instances, and invoking
// the update routine. The exact invocation argv for stop/update is a
// deployment detail carried in Config.
package bridgectl

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Controller is the seam between the command executor and the OS. The
// production implementation spawns processes; tests substitute a mock.
type Controller interface {
	// Start launches the bridging service as a detached background
	// process. The returned output is whatever the spawn produced before
	// detaching (normally empty).
	Start(ctx context.Context) (string, error)

	// Stop terminates any running instance of the bridging service and
	// returns the captured output of the termination command.
	Stop(ctx context.Context) (string, error)

	// Restart is stop-then-start as a single logical action.
	Restart(ctx context.Context) (string, error)

	// Update invokes the external package/version update routine.
	Update(ctx context.Context) (string, error)
}

// Config holds the three argvs the controller needs. Defaults follow the
// conventional deployment layout; all of it is overridable from env.
type Config struct {
	// BridgeCommand launches the bridging service, argv[0] is the binary.
	BridgeCommand []string
	// StopCommand terminates running bridge instances by name/pattern.
	StopCommand []string
	// UpdateCommand runs the external update routine.
	UpdateCommand []string
}

func DefaultConfig() Config {
	return Config{
		BridgeCommand: []string{"/usr/local/bin/serialbridged"},
		StopCommand:   []string{"pkill", "-f", "serialbridged"},
		UpdateCommand: []string{"/usr/local/bin/serialbridge-update"},
	}
}

type procController struct {
	logger *slog.Logger
	cfg    Config

	runMu     sync.Mutex
	cmd       *exec.Cmd
	cmdExited chan struct{}
}

var _ Controller = (*procController)(nil)

func New(logger *slog.Logger, cfg Config) Controller {
	return &procController{
		logger: logger,
		cfg:    cfg,
	}
}

func (p *procController) Start(ctx context.Context) (string, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	return "", p.startLocked(ctx)
}

func (p *procController) startLocked(ctx context.Context) error {
	argv := p.cfg.BridgeCommand
	p.logger.With("binary", argv[0]).Info("launching bridge service")
	cmd := exec.Command(argv[0], argv[1:]...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	go p.pumpLogs(ctx, stderr)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	go p.pumpLogs(ctx, stdout)

	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		err := cmd.Wait()
		p.logger.With("exit-status", err).Info("bridge service exited")
	}()

	p.cmd = cmd
	p.cmdExited = exited
	return nil
}

func (p *procController) Stop(ctx context.Context) (string, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	return p.stopLocked(ctx)
}

func (p *procController) stopLocked(ctx context.Context) (string, error) {
	p.releaseOwnLocked()

	// The stop command catches instances we did not launch ourselves.
	out, err := runCaptured(ctx, p.cfg.StopCommand)
	if isNoMatch(err) {
		// pkill exits 1 when nothing matched; not a failure for stop.
		return out, nil
	}
	return out, err
}

func (p *procController) Restart(ctx context.Context) (string, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	stopOut, err := p.stopLocked(ctx)
	if err != nil {
		return stopOut, err
	}
	return stopOut, p.startLocked(ctx)
}

func (p *procController) Update(ctx context.Context) (string, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	return runCaptured(ctx, p.cfg.UpdateCommand)
}

// releaseOwnLocked signals a bridge process this controller launched and
// waits briefly for it to exit before the pattern-based stop runs.
func (p *procController) releaseOwnLocked() {
	if p.cmd == nil || p.cmd.Process == nil {
		return
	}
	_ = p.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-p.cmdExited:
	case <-time.After(5 * time.Second):
		if err := p.cmd.Process.Kill(); err != nil {
			p.logger.With("err", err).Error("failed to kill bridge process")
		} else {
			<-p.cmdExited
		}
	}
	p.cmd = nil
	p.cmdExited = nil
}

// isNoMatch reports whether err is a bare exit status 1, which pkill uses
// to mean "no processes matched".
func isNoMatch(err error) bool {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	return exitErr.ExitCode() == 1
}
