package signalpost

import "errors"

// Sentinel errors returned by engine and store operations.
var (
	// ErrNoStore is returned when an Engine is created without a store.
	ErrNoStore = errors.New("signalpost: store is required")

	// ErrTenantNotFound is returned when a tenant has no configuration.
	// For Notify callers this is not an error condition: it signals
	// "nothing to deliver".
	ErrTenantNotFound = errors.New("signalpost: tenant config not found")

	// ErrDLQNotFound is returned when a DLQ entry cannot be found.
	ErrDLQNotFound = errors.New("signalpost: dlq entry not found")

	// ErrStoreClosed is returned when a store operation is attempted after
	// the store is closed.
	ErrStoreClosed = errors.New("signalpost: store is closed")
)
