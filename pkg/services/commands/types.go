package commands

import "time"

// PendingCommand is the single queued command slot for a device. Enqueuing
// while a command is pending replaces it; delivery consumes it.
type PendingCommand struct {
	ID         string    `json:"id"`
	DeviceID   string    `json:"deviceId"`
	Command    string    `json:"command"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// DispatchStatus tracks a command through the server-side half of its life.
// The agent reports execution outcomes only through its own logs, so
// "delivered" is the terminal state here.
type DispatchStatus string

const (
	DispatchPending   DispatchStatus = "pending"
	DispatchReplaced  DispatchStatus = "replaced"
	DispatchDelivered DispatchStatus = "delivered"
)

// DispatchRecord is the history row kept for every enqueued command.
type DispatchRecord struct {
	ID          string         `json:"id"`
	DeviceID    string         `json:"deviceId"`
	Command     string         `json:"command"`
	Status      DispatchStatus `json:"status"`
	EnqueuedAt  time.Time      `json:"enqueuedAt"`
	DeliveredAt *time.Time     `json:"deliveredAt,omitempty"`
}

// Device is the registry entry maintained from poll traffic.
type Device struct {
	DeviceID  string    `json:"deviceId"`
	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`
	PollCount int64     `json:"pollCount"`
}

// DeviceStatus is the dashboard view of a device: the registry entry plus
// whatever command is currently waiting for it.
type DeviceStatus struct {
	Device
	Pending *PendingCommand `json:"pending,omitempty"`
}

// pollResponse is the wire shape the agent decodes.
type pollResponse struct {
	HasCommand bool   `json:"hasCommand"`
	Command    string `json:"command,omitempty"`
}

// enqueueRequest is the operator-facing enqueue payload.
type enqueueRequest struct {
	DeviceID string `json:"deviceId" binding:"required"`
	Command  string `json:"command" binding:"required"`
}
