package interfaces

import (
	"context"

	"readingroom/pkg/types"
)

// ActivityLog records session lifecycle events for operators
// ARCHITECTURAL DISCOVERY: The log only ever sees codes, event kinds and counts.
// Credentials, names and text never cross this boundary.
type ActivityLog interface {
	// Record queues an event without blocking; a full queue drops the event
	Record(event types.ActivityEvent)

	// Recent returns the newest events first
	Recent(ctx context.Context, limit int) ([]types.ActivityEvent, error)

	// HealthCheck validates the backing store
	HealthCheck(ctx context.Context) error

	// Close flushes queued events and releases the store
	Close() error
}
