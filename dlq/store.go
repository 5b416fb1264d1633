package dlq

import (
	"context"
	"time"

	"github.com/signalpost/signalpost/id"
)

// Store defines the persistence contract for dead letter entries.
type Store interface {
	// PushDLQ persists a new entry.
	PushDLQ(ctx context.Context, entry *Entry) error

	// GetDLQ returns an entry by ID.
	GetDLQ(ctx context.Context, dlqID id.ID) (*Entry, error)

	// ListDLQ returns entries matching opts, newest failures first.
	ListDLQ(ctx context.Context, opts ListOpts) ([]*Entry, error)

	// MarkReplayed stamps an entry's ReplayedAt.
	MarkReplayed(ctx context.Context, dlqID id.ID, at time.Time) error

	// PurgeDLQ removes entries that failed before the given time and
	// returns the number removed.
	PurgeDLQ(ctx context.Context, before time.Time) (int64, error)

	// CountDLQ returns the total number of entries.
	CountDLQ(ctx context.Context) (int64, error)
}
