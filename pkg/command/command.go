// Package command defines the closed set of remote commands the agent
// understands and the envelope/result types that flow through one poll cycle.
package command

import (
	"time"

	"github.com/bridgefleet/bridgefleet/pkg/util"
)

// Name is a remote command name. The set is closed; anything the server sends
// outside of it parses to NameUnknown rather than failing.
type Name string

const (
	NameStart   Name = "start"
	NameStop    Name = "stop"
	NameRestart Name = "restart"
	NameUpdate  Name = "update"

	// NameUnknown is the explicit arm for command strings outside the
	// closed set. It is a reported, recoverable outcome, not an error.
	NameUnknown Name = "unknown"
)

// ParseName maps a raw command string onto the closed set.
func ParseName(raw string) Name {
	switch Name(raw) {
	case NameStart, NameStop, NameRestart, NameUpdate:
		return Name(raw)
	default:
		return NameUnknown
	}
}

// Known reports whether n is one of the four executable commands.
func (n Name) Known() bool {
	return n != NameUnknown && n != ""
}

// Envelope is the decoded outcome of one fetch: either no command pending,
// or a single command plus the raw string it was parsed from.
type Envelope struct {
	Pending bool
	Command Name
	// Raw preserves the server-sent string so unknown commands can be
	// reported verbatim.
	Raw string
}

// None is the "no command pending" envelope.
func None() Envelope {
	return Envelope{}
}

// FromRaw builds a pending envelope from a server-sent command string.
func FromRaw(raw string) Envelope {
	return Envelope{
		Pending: true,
		Command: ParseName(raw),
		Raw:     raw,
	}
}

// ExecutionResult is the outcome of acting on one envelope. It is always
// returned by value to the scheduler and only ever reported through logs.
type ExecutionResult struct {
	ID        string    `json:"id"`
	Command   Name      `json:"command"`
	Success   bool      `json:"success"`
	Output    string    `json:"output,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewResult stamps a result with a fresh ID and the current time.
func NewResult(cmd Name, success bool, output, errMsg string) ExecutionResult {
	return ExecutionResult{
		ID:        util.NewUUID(),
		Command:   cmd,
		Success:   success,
		Output:    output,
		Error:     errMsg,
		Timestamp: time.Now(),
	}
}
