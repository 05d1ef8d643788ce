package util

import "github.com/google/uuid"

// NewUUID generates a new v7 uuid. v7 keeps command and result IDs
// time-sortable, which makes dispatch history listings cheap.
func NewUUID() string {
	return uuid.Must(uuid.NewV7()).String()
}
