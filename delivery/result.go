// Package delivery performs single HTTP webhook delivery attempts and
// classifies their outcomes. The classification here is the single source
// of truth the rest of the engine uses to decide retry vs. drop.
package delivery

import (
	"strconv"
	"time"
)

// Classification buckets a delivery attempt's outcome.
type Classification int

const (
	// Success is any 2xx response.
	Success Classification = iota

	// RateLimited is a 429 response. Retryable; a server-supplied
	// Retry-After hint is honored when present.
	RateLimited

	// ServerError is any 5xx response. Retryable.
	ServerError

	// NetworkOrTimeout is a connection, DNS, or timeout failure. Retryable.
	NetworkOrTimeout

	// ClientError is a 4xx response other than 429. Permanent failure.
	ClientError
)

// Retryable reports whether the engine may attempt this delivery again.
func (c Classification) Retryable() bool {
	switch c {
	case RateLimited, ServerError, NetworkOrTimeout:
		return true
	default:
		return false
	}
}

// String returns the classification name.
func (c Classification) String() string {
	switch c {
	case Success:
		return "success"
	case RateLimited:
		return "rate_limited"
	case ServerError:
		return "server_error"
	case NetworkOrTimeout:
		return "network_or_timeout"
	case ClientError:
		return "client_error"
	default:
		return "classification(" + strconv.Itoa(int(c)) + ")"
	}
}

// Classify maps an HTTP status code (or transport failure) to exactly one
// Classification. failed is true when the request never produced a response.
func Classify(statusCode int, failed bool) Classification {
	switch {
	case failed:
		return NetworkOrTimeout
	case statusCode >= 200 && statusCode < 300:
		return Success
	case statusCode == 429:
		return RateLimited
	case statusCode >= 400 && statusCode < 500:
		return ClientError
	case statusCode >= 500:
		return ServerError
	default:
		// 1xx/3xx are not a delivery acknowledgement.
		return ClientError
	}
}

// Result is the outcome of a single delivery attempt.
type Result struct {
	// Classification is the five-way outcome bucket.
	Classification Classification

	// StatusCode is the HTTP status, 0 when the request failed in transit.
	StatusCode int

	// DeliveryID is the optional receiver-assigned id from the response.
	DeliveryID string

	// RetryAfter is the normalized server backoff hint from a 429. Zero
	// when absent.
	RetryAfter time.Duration

	// LatencyMs is the attempt latency in milliseconds.
	LatencyMs int

	// Error is the transport or read error message, empty otherwise.
	Error string
}

// retryAfterSecondsMax is the largest Retry-After value still read as
// seconds; larger numbers are treated as milliseconds. Endpoints disagree
// on the unit, so both are normalized on ingestion.
const retryAfterSecondsMax = 86400

// ParseRetryAfter normalizes a Retry-After header value to a duration.
// Numeric values up to 86400 are seconds, larger values milliseconds.
// HTTP-date and malformed values yield zero.
func ParseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	if n <= retryAfterSecondsMax {
		return time.Duration(n) * time.Second
	}
	return time.Duration(n) * time.Millisecond
}
