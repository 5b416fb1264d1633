// Package store composes the persistence contracts the engine depends on.
package store

import (
	"context"

	"github.com/signalpost/signalpost/dlq"
	"github.com/signalpost/signalpost/registry"
)

// Store is the full persistence contract: tenant configurations plus the
// dead letter queue. Backends live in the store/ subpackages
// (memory, redis, sqlite).
type Store interface {
	registry.Store
	dlq.Store

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
