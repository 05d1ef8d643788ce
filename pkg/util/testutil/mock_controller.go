package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bridgefleet/bridgefleet/pkg/bridgectl"
)

// MockController simulates bridge process control without spawning
// processes. It implements bridgectl.Controller for use in tests.
type MockController struct {
	mu sync.Mutex

	// Calls records the operations invoked, in order.
	Calls []string

	// Output is returned by every successful operation.
	Output string

	// FailNext causes the next operation to return an error.
	FailNext bool

	// FailError is the error returned when FailNext is true.
	FailError error

	// Delay adds artificial latency to every operation.
	Delay time.Duration
}

// Ensure MockController implements Controller.
var _ bridgectl.Controller = (*MockController)(nil)

func NewMockController() *MockController {
	return &MockController{
		Output:    "ok",
		FailError: errors.New("mock controller failure"),
	}
}

func (m *MockController) Start(ctx context.Context) (string, error) {
	return m.record(ctx, "start")
}

func (m *MockController) Stop(ctx context.Context) (string, error) {
	return m.record(ctx, "stop")
}

func (m *MockController) Restart(ctx context.Context) (string, error) {
	return m.record(ctx, "restart")
}

func (m *MockController) Update(ctx context.Context) (string, error) {
	return m.record(ctx, "update")
}

func (m *MockController) record(ctx context.Context, op string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	m.Calls = append(m.Calls, op)
	if m.FailNext {
		m.FailNext = false
		return "", m.FailError
	}
	return m.Output, nil
}

// CallNames returns a copy of the recorded operations.
func (m *MockController) CallNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Calls))
	copy(out, m.Calls)
	return out
}

// Reset clears all recorded state.
func (m *MockController) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.FailNext = false
}
