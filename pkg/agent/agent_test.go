package agent_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bridgefleet/bridgefleet/pkg/agent"
	"github.com/bridgefleet/bridgefleet/pkg/command"
	"github.com/bridgefleet/bridgefleet/pkg/ident"
)

// fakeFetcher scripts the poll responses cycle by cycle. Once the script
// is exhausted it keeps answering "nothing pending".
type fakeFetcher struct {
	mu      sync.Mutex
	script  []fetchStep
	fetches int
}

type fetchStep struct {
	env command.Envelope
	err error
}

func (f *fakeFetcher) FetchPendingCommand(_ context.Context, _ ident.DeviceID) (command.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if len(f.script) == 0 {
		return command.None(), nil
	}
	step := f.script[0]
	f.script = f.script[1:]
	return step.env, step.err
}

func (f *fakeFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

type fakeExecutor struct {
	mu       sync.Mutex
	executed []command.Envelope
}

func (f *fakeExecutor) Execute(_ context.Context, env command.Envelope) command.ExecutionResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, env)
	return command.NewResult(env.Command, true, "", "")
}

func (f *fakeExecutor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.executed)
}

func testConfig() agent.Config {
	return agent.Config{
		Endpoint:     "http://127.0.0.1:0/poll",
		DeviceID:     "bridge-test",
		PollInterval: 20 * time.Millisecond,
		FetchTimeout: time.Second,
		ExecTimeout:  time.Second,
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	assert.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestAgent_FirstCycleIsImmediate(t *testing.T) {
	fetcher := &fakeFetcher{}
	cfg := testConfig()
	cfg.PollInterval = time.Hour
	a := agent.New(slog.Default(), cfg, fetcher, &fakeExecutor{})

	require.NoError(t, a.Start(context.Background()))
	defer a.Stop(context.Background())

	// With an hour-long interval, any fetch we observe is the immediate one.
	eventually(t, func() bool { return fetcher.count() == 1 })
}

func TestAgent_PollsAtInterval(t *testing.T) {
	fetcher := &fakeFetcher{}
	a := agent.New(slog.Default(), testConfig(), fetcher, &fakeExecutor{})

	require.NoError(t, a.Start(context.Background()))
	defer a.Stop(context.Background())

	eventually(t, func() bool { return fetcher.count() >= 3 })
}

func TestAgent_FetchFailureDoesNotStopPolling(t *testing.T) {
	fetcher := &fakeFetcher{script: []fetchStep{
		{err: errors.New("connection refused")},
		{err: errors.New("connection refused")},
		{env: command.FromRaw("restart")},
	}}
	exec := &fakeExecutor{}
	a := agent.New(slog.Default(), testConfig(), fetcher, exec)

	require.NoError(t, a.Start(context.Background()))
	defer a.Stop(context.Background())

	eventually(t, func() bool { return exec.count() == 1 })
}

func TestAgent_NoCommandSkipsExecutor(t *testing.T) {
	fetcher := &fakeFetcher{}
	exec := &fakeExecutor{}
	a := agent.New(slog.Default(), testConfig(), fetcher, exec)

	require.NoError(t, a.Start(context.Background()))
	eventually(t, func() bool { return fetcher.count() >= 2 })
	require.NoError(t, a.Stop(context.Background()))

	assert.Zero(t, exec.count())
}

// slowFetcher blocks every poll for a fixed duration and records when each
// cycle started and how many were in flight at once.
type slowFetcher struct {
	block time.Duration

	mu          sync.Mutex
	starts      []time.Time
	inFlight    int
	maxInFlight int
}

func (f *slowFetcher) FetchPendingCommand(_ context.Context, _ ident.DeviceID) (command.Envelope, error) {
	f.mu.Lock()
	f.starts = append(f.starts, time.Now())
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	time.Sleep(f.block)

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
	return command.None(), nil
}

func (f *slowFetcher) snapshot() ([]time.Time, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.starts...), f.maxInFlight
}

func TestAgent_SlowCycleSkipsMissedTicks(t *testing.T) {
	// The first cycle outlasts two 60ms ticks. The tick buffered while it
	// ran must be discarded, so the second cycle starts at the 180ms tick,
	// not the moment the first cycle finishes (~150ms).
	fetcher := &slowFetcher{block: 150 * time.Millisecond}
	cfg := testConfig()
	cfg.PollInterval = 60 * time.Millisecond
	a := agent.New(slog.Default(), cfg, fetcher, &fakeExecutor{})

	require.NoError(t, a.Start(context.Background()))
	eventually(t, func() bool {
		starts, _ := fetcher.snapshot()
		return len(starts) >= 2
	})
	require.NoError(t, a.Stop(context.Background()))

	starts, maxInFlight := fetcher.snapshot()
	gap := starts[1].Sub(starts[0])
	assert.GreaterOrEqual(t, gap, 170*time.Millisecond, "cycle started before the next tick boundary")
	assert.Equal(t, 1, maxInFlight, "cycles overlapped")
}

func TestAgent_StopHaltsPolling(t *testing.T) {
	fetcher := &fakeFetcher{}
	a := agent.New(slog.Default(), testConfig(), fetcher, &fakeExecutor{})

	require.NoError(t, a.Start(context.Background()))
	eventually(t, func() bool { return fetcher.count() >= 1 })
	require.NoError(t, a.Stop(context.Background()))

	n := fetcher.count()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, n, fetcher.count())
}

func TestAgent_StartStopIdempotent(t *testing.T) {
	a := agent.New(slog.Default(), testConfig(), &fakeFetcher{}, &fakeExecutor{})

	assert.Equal(t, agent.StateStopped, a.State())
	require.NoError(t, a.Stop(context.Background()))

	require.NoError(t, a.Start(context.Background()))
	require.NoError(t, a.Start(context.Background()))
	assert.Equal(t, agent.StateRunning, a.State())

	require.NoError(t, a.Stop(context.Background()))
	require.NoError(t, a.Stop(context.Background()))
	assert.Equal(t, agent.StateStopped, a.State())
}

func TestAgent_Restartable(t *testing.T) {
	fetcher := &fakeFetcher{}
	a := agent.New(slog.Default(), testConfig(), fetcher, &fakeExecutor{})

	require.NoError(t, a.Start(context.Background()))
	require.NoError(t, a.Stop(context.Background()))

	n := fetcher.count()
	require.NoError(t, a.Start(context.Background()))
	defer a.Stop(context.Background())

	eventually(t, func() bool { return fetcher.count() > n })
}
