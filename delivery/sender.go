package delivery

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/signalpost/signalpost/envelope"
	"github.com/signalpost/signalpost/registry"
	"github.com/signalpost/signalpost/signature"
)

// DefaultTimeout bounds a single delivery attempt.
const DefaultTimeout = 10 * time.Second

// Response headers consumed from the endpoint.
const (
	headerDeliveryID = "X-Delivery-Id"
	headerRetryAfter = "Retry-After"
)

const maxResponseBody = 1024 // response bodies are drained but not retained

// Sender performs one HTTP webhook delivery attempt per Send call.
type Sender struct {
	client    *http.Client
	userAgent string
}

// NewSender creates a sender with the given per-attempt timeout.
// A zero timeout uses DefaultTimeout.
func NewSender(timeout time.Duration) *Sender {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Sender{
		client:    &http.Client{Timeout: timeout},
		userAgent: "Signalpost/1.0",
	}
}

// Send POSTs the envelope payload to the endpoint and classifies the
// outcome. The payload is signed with the endpoint's secret.
func (s *Sender) Send(ctx context.Context, ep registry.Endpoint, env *envelope.Envelope) Result {
	body := env.Payload
	if body == nil {
		body = []byte("null")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return Result{Classification: NetworkOrTimeout, Error: "create request: " + err.Error()}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("X-Signalpost-Envelope-Id", env.ID.String())
	req.Header.Set("X-Signalpost-Event-Type", env.EventType)
	req.Header.Set("X-Signalpost-Tenant-Id", env.TenantID)

	ts := time.Now().Unix()
	req.Header.Set("X-Signalpost-Signature", signature.Sign(body, ep.Secret, ts))
	req.Header.Set("X-Signalpost-Timestamp", strconv.FormatInt(ts, 10))

	for k, v := range ep.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := s.client.Do(req) //nolint:gosec // URL is a tenant-configured webhook destination.
	latency := int(time.Since(start).Milliseconds())

	if err != nil {
		return Result{
			Classification: NetworkOrTimeout,
			Error:          err.Error(),
			LatencyMs:      latency,
		}
	}
	defer resp.Body.Close()

	// Drain a bounded amount so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))

	res := Result{
		Classification: Classify(resp.StatusCode, false),
		StatusCode:     resp.StatusCode,
		LatencyMs:      latency,
	}
	switch res.Classification {
	case Success:
		res.DeliveryID = resp.Header.Get(headerDeliveryID)
	case RateLimited:
		res.RetryAfter = ParseRetryAfter(resp.Header.Get(headerRetryAfter))
		res.Error = "endpoint returned " + strconv.Itoa(resp.StatusCode)
	default:
		res.Error = "endpoint returned " + strconv.Itoa(resp.StatusCode)
	}
	return res
}
