package bridgectl

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// runCaptured runs argv synchronously, bounded by ctx, and returns combined
// stdout/stderr text. A non-zero exit or spawn failure comes back as the
// error alongside whatever output was captured.
func runCaptured(ctx context.Context, argv []string) (string, error) {
	if len(argv) == 0 {
		return "", errors.New("empty command")
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return combineOutput(stdout.String(), stderr.String()), err
}

func combineOutput(stdout, stderr string) string {
	stdout = strings.TrimRight(stdout, "\n")
	stderr = strings.TrimRight(stderr, "\n")
	switch {
	case stdout == "":
		return stderr
	case stderr == "":
		return stdout
	default:
		return stdout + "\n" + stderr
	}
}

// pumpLogs forwards the detached bridge process's output lines into our
// logger, so operators can diagnose the bridge from the agent's log stream.
func (p *procController) pumpLogs(ctx context.Context, rc io.ReadCloser) {
	defer rc.Close()

	l := p.logger.With("service", "bridge")
	bo := backoff.NewExponentialBackOff()

	s := bufio.NewReader(rc)
	for {
		ln, err := s.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				break
			}
			l.With("err", err).Error("failed to read bridge output")
			select {
			case <-ctx.Done():
				return
			case <-time.After(bo.NextBackOff()):
			}
			continue
		}
		ln = strings.TrimRight(ln, "\r\n")
		bo.Reset()

		if ln == "" {
			continue
		}
		l.Info(ln)
	}
}
