package bridgectl

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunCaptured(t *testing.T) {
	out, err := runCaptured(context.Background(), []string{"sh", "-c", "echo hello; echo oops >&2"})
	require.NoError(t, err)
	assert.Equal(t, "hello\noops", out)
}

func TestRunCaptured_NonZeroExit(t *testing.T) {
	out, err := runCaptured(context.Background(), []string{"sh", "-c", "echo partial; exit 3"})
	require.Error(t, err)
	// Output captured before the failure still comes back.
	assert.Equal(t, "partial", out)
}

func TestRunCaptured_EmptyArgv(t *testing.T) {
	_, err := runCaptured(context.Background(), nil)
	assert.Error(t, err)
}

func TestRunCaptured_ContextCancels(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := runCaptured(ctx, []string{"sleep", "10"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestCombineOutput(t *testing.T) {
	assert.Equal(t, "a", combineOutput("a\n", ""))
	assert.Equal(t, "b", combineOutput("", "b\n"))
	assert.Equal(t, "a\nb", combineOutput("a", "b"))
	assert.Equal(t, "", combineOutput("", ""))
}

func TestIsNoMatch(t *testing.T) {
	_, err := runCaptured(context.Background(), []string{"sh", "-c", "exit 1"})
	assert.True(t, isNoMatch(err))

	_, err = runCaptured(context.Background(), []string{"sh", "-c", "exit 2"})
	assert.False(t, isNoMatch(err))

	assert.False(t, isNoMatch(nil))
}

func TestControllerStartStop(t *testing.T) {
	ctrl := New(discardLogger(), Config{
		BridgeCommand: []string{"sleep", "30"},
		StopCommand:   []string{"true"},
		UpdateCommand: []string{"true"},
	}).(*procController)

	_, err := ctrl.Start(context.Background())
	require.NoError(t, err)
	require.NotNil(t, ctrl.cmd)

	exited := ctrl.cmdExited
	_, err = ctrl.Stop(context.Background())
	require.NoError(t, err)
	assert.Nil(t, ctrl.cmd)

	select {
	case <-exited:
	case <-time.After(10 * time.Second):
		t.Fatal("bridge process did not exit")
	}
}

func TestControllerStop_NothingRunning(t *testing.T) {
	ctrl := New(discardLogger(), Config{
		BridgeCommand: []string{"sleep", "30"},
		// Simulates pkill finding no processes.
		StopCommand:   []string{"sh", "-c", "exit 1"},
		UpdateCommand: []string{"true"},
	})

	_, err := ctrl.Stop(context.Background())
	assert.NoError(t, err)
}

func TestControllerUpdate_CapturesOutput(t *testing.T) {
	ctrl := New(discardLogger(), Config{
		BridgeCommand: []string{"sleep", "30"},
		StopCommand:   []string{"true"},
		UpdateCommand: []string{"sh", "-c", "echo updated to 2.4.0"},
	})

	out, err := ctrl.Update(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "updated to 2.4.0", out)
}
