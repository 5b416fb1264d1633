package envelope

import "time"

// Status is the terminal state of an envelope.
type Status string

const (
	// StatusDelivered indicates the envelope reached an endpoint (2xx).
	StatusDelivered Status = "delivered"

	// StatusDropped indicates the envelope was discarded: a non-retryable
	// client error, or retries and failover exhausted.
	StatusDropped Status = "dropped"
)

// Outcome reports the terminal result of one envelope. It is emitted at
// most once per envelope via the engine's outcome callback.
type Outcome struct {
	// Envelope is the completed unit of work.
	Envelope *Envelope

	// Status is the terminal state.
	Status Status

	// Attempts is the total number of delivery attempts made, including
	// the failover attempt when one occurred.
	Attempts int

	// Endpoint is the URL of the last attempted endpoint.
	Endpoint string

	// StatusCode is the HTTP status of the last attempt, 0 on network failure.
	StatusCode int

	// Error is the error message from the last attempt, empty on success.
	Error string

	// CompletedAt is when the terminal state was reached.
	CompletedAt time.Time
}

// OutcomeFunc receives terminal outcomes. Implementations must not block;
// they are invoked from delivery goroutines.
type OutcomeFunc func(Outcome)
