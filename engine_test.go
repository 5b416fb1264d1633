package signalpost_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	signalpost "github.com/signalpost/signalpost"
	"github.com/signalpost/signalpost/batch"
	"github.com/signalpost/signalpost/dlq"
	"github.com/signalpost/signalpost/envelope"
	"github.com/signalpost/signalpost/registry"
	"github.com/signalpost/signalpost/store/memory"
)

func newTestEngine(t *testing.T, outcomes chan envelope.Outcome, extra ...signalpost.Option) *signalpost.Engine {
	t.Helper()
	opts := []signalpost.Option{
		signalpost.WithStore(memory.New()),
		signalpost.WithBackoff(time.Millisecond, 10*time.Millisecond, 0),
		signalpost.WithRequestTimeout(time.Second),
	}
	if outcomes != nil {
		opts = append(opts, signalpost.WithOutcomeFunc(func(o envelope.Outcome) {
			outcomes <- o
		}))
	}
	opts = append(opts, extra...)

	e, err := signalpost.New(opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.Start(context.Background())
	t.Cleanup(func() { e.Stop(context.Background()) })
	return e
}

func setTenant(t *testing.T, e *signalpost.Engine, tenantID, primaryURL string, mutate func(*registry.TenantConfig)) {
	t.Helper()
	cfg := &registry.TenantConfig{
		TenantID: tenantID,
		Primary:  registry.Endpoint{URL: primaryURL},
	}
	if mutate != nil {
		mutate(cfg)
	}
	if err := e.Registry().Set(context.Background(), cfg); err != nil {
		t.Fatalf("Registry().Set: %v", err)
	}
}

func waitOutcome(t *testing.T, ch chan envelope.Outcome) envelope.Outcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for outcome")
		return envelope.Outcome{}
	}
}

func TestNewRequiresStore(t *testing.T) {
	_, err := signalpost.New()
	if !errors.Is(err, signalpost.ErrNoStore) {
		t.Fatalf("New() = %v, want ErrNoStore", err)
	}
}

func TestNotifyDelivers(t *testing.T) {
	var body atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf [256]byte
		n, _ := r.Body.Read(buf[:])
		body.Store(string(buf[:n]))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	outcomes := make(chan envelope.Outcome, 1)
	e := newTestEngine(t, outcomes)
	setTenant(t, e, "t-1", srv.URL, nil)

	acc := e.Notify(context.Background(), "t-1", "user.created", []byte(`{"user_id":"u-1"}`))
	if !acc.Accepted {
		t.Fatalf("Notify rejected: %s", acc.Reason)
	}
	if acc.EnvelopeID.IsNil() {
		t.Fatal("accepted Notify should return an envelope id")
	}

	o := waitOutcome(t, outcomes)
	if o.Status != envelope.StatusDelivered {
		t.Fatalf("status = %v, want delivered", o.Status)
	}
	if o.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", o.Attempts)
	}
	if o.Envelope.ID != acc.EnvelopeID {
		t.Fatal("outcome should reference the accepted envelope")
	}
	if got := body.Load(); got != `{"user_id":"u-1"}` {
		t.Fatalf("delivered body = %v", got)
	}
}

func TestNotifyConcurrentWithStart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	outcomes := make(chan envelope.Outcome, 1)
	e, err := signalpost.New(
		signalpost.WithStore(memory.New()),
		signalpost.WithBackoff(time.Millisecond, 10*time.Millisecond, 0),
		signalpost.WithRequestTimeout(time.Second),
		signalpost.WithOutcomeFunc(func(o envelope.Outcome) { outcomes <- o }),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	setTenant(t, e, "t-1", srv.URL, nil)

	// Notify racing Start must neither panic nor lose the delivery.
	started := make(chan struct{})
	go func() {
		e.Start(context.Background())
		close(started)
	}()
	acc := e.Notify(context.Background(), "t-1", "user.created", []byte(`{"user_id":"u-1"}`))
	<-started
	defer e.Stop(context.Background())

	if !acc.Accepted {
		t.Fatalf("Notify rejected: %s", acc.Reason)
	}
	o := waitOutcome(t, outcomes)
	if o.Status != envelope.StatusDelivered {
		t.Fatalf("status = %v, want delivered", o.Status)
	}
}

func TestNotifyRejections(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := newTestEngine(t, nil)
	setTenant(t, e, "t-1", srv.URL, func(cfg *registry.TenantConfig) {
		cfg.Settings.EnabledEvents = map[string]bool{"user.created": true}
		cfg.Settings.PayloadSchemas = map[string]json.RawMessage{
			"user.created": json.RawMessage(`{"type":"object","required":["user_id"]}`),
		}
	})

	tests := []struct {
		name      string
		tenantID  string
		eventType string
		payload   string
		want      signalpost.Reason
	}{
		{"unknown tenant", "nope", "user.created", `{"user_id":"u"}`, signalpost.ReasonConfigMissing},
		{"disabled event", "t-1", "user.deleted", `{}`, signalpost.ReasonEventDisabled},
		{"schema violation", "t-1", "user.created", `{"name":"no id"}`, signalpost.ReasonInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := e.Notify(context.Background(), tt.tenantID, tt.eventType, []byte(tt.payload))
			if acc.Accepted {
				t.Fatal("Notify should have been rejected")
			}
			if acc.Reason != tt.want {
				t.Fatalf("reason = %q, want %q", acc.Reason, tt.want)
			}
		})
	}

	acc := e.Notify(context.Background(), "t-1", "user.created", []byte(`{"user_id":"u"}`))
	if !acc.Accepted {
		t.Fatalf("valid Notify rejected: %s", acc.Reason)
	}
}

func TestNotifyRetriesThenDelivers(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	outcomes := make(chan envelope.Outcome, 1)
	e := newTestEngine(t, outcomes)
	setTenant(t, e, "t-1", srv.URL, nil)

	e.Notify(context.Background(), "t-1", "order.shipped", []byte(`{"order_id":"o-1"}`))

	o := waitOutcome(t, outcomes)
	if o.Status != envelope.StatusDelivered {
		t.Fatalf("status = %v, want delivered (error: %s)", o.Status, o.Error)
	}
	if o.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", o.Attempts)
	}
}

func TestNotifyFailsOverToBackup(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer primary.Close()
	var backupHits atomic.Int32
	backupSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backupHits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer backupSrv.Close()

	outcomes := make(chan envelope.Outcome, 1)
	e := newTestEngine(t, outcomes, signalpost.WithMaxRetryAttempts(2))
	setTenant(t, e, "t-1", primary.URL, func(cfg *registry.TenantConfig) {
		cfg.Backup = &registry.Endpoint{URL: backupSrv.URL}
	})

	e.Notify(context.Background(), "t-1", "order.shipped", []byte(`{"order_id":"o-1"}`))

	o := waitOutcome(t, outcomes)
	if o.Status != envelope.StatusDelivered {
		t.Fatalf("status = %v, want delivered via backup", o.Status)
	}
	if got := backupHits.Load(); got != 1 {
		t.Fatalf("backup hits = %d, want 1", got)
	}
	if o.Endpoint != backupSrv.URL {
		t.Fatalf("outcome endpoint = %q, want backup", o.Endpoint)
	}
}

func TestPermanentFailureLandsInDLQ(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	outcomes := make(chan envelope.Outcome, 1)
	e := newTestEngine(t, outcomes)
	setTenant(t, e, "t-1", srv.URL, nil)

	e.Notify(context.Background(), "t-1", "user.created", []byte(`{"user_id":"u-1"}`))

	o := waitOutcome(t, outcomes)
	if o.Status != envelope.StatusDropped {
		t.Fatalf("status = %v, want dropped", o.Status)
	}
	if o.StatusCode != http.StatusGone {
		t.Fatalf("status code = %d, want 410", o.StatusCode)
	}

	entries, err := e.DLQ().List(context.Background(), dlq.ListOpts{TenantID: "t-1"})
	if err != nil {
		t.Fatalf("DLQ list: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("dlq entries = %d, want 1", len(entries))
	}
	if entries[0].LastStatusCode != http.StatusGone || entries[0].Attempts != 1 {
		t.Fatalf("dlq entry = %+v", entries[0])
	}
}

func TestReplayDLQ(t *testing.T) {
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if healthy.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	outcomes := make(chan envelope.Outcome, 2)
	e := newTestEngine(t, outcomes)
	setTenant(t, e, "t-1", srv.URL, nil)

	e.Notify(context.Background(), "t-1", "user.created", []byte(`{"user_id":"u-1"}`))
	if o := waitOutcome(t, outcomes); o.Status != envelope.StatusDropped {
		t.Fatalf("first delivery should be dropped, got %v", o.Status)
	}

	entries, err := e.DLQ().List(context.Background(), dlq.ListOpts{})
	if err != nil || len(entries) != 1 {
		t.Fatalf("dlq entries = %d, %v", len(entries), err)
	}

	healthy.Store(true)
	if err := e.ReplayDLQ(context.Background(), entries[0].ID); err != nil {
		t.Fatalf("ReplayDLQ: %v", err)
	}

	if o := waitOutcome(t, outcomes); o.Status != envelope.StatusDelivered {
		t.Fatalf("replay should deliver, got %v (%s)", o.Status, o.Error)
	}

	replayed, err := e.DLQ().Get(context.Background(), entries[0].ID)
	if err != nil {
		t.Fatalf("DLQ get: %v", err)
	}
	if replayed.ReplayedAt == nil {
		t.Fatal("entry should be stamped replayed")
	}
}

func TestBatchingCombinesDeliveries(t *testing.T) {
	type received struct {
		eventType string
		payload   []byte
	}
	got := make(chan received, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf [4096]byte
		n, _ := r.Body.Read(buf[:])
		got <- received{eventType: r.Header.Get("X-Signalpost-Event-Type"), payload: append([]byte(nil), buf[:n]...)}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := newTestEngine(t, nil)
	setTenant(t, e, "t-1", srv.URL, func(cfg *registry.TenantConfig) {
		cfg.Settings.BatchingEnabled = true
		cfg.Settings.BatchInterval = 30 * time.Millisecond
		cfg.Settings.MaxBatchSize = 10
	})

	for i := 0; i < 3; i++ {
		acc := e.Notify(context.Background(), "t-1", "feed.updated", []byte(`{"n":1}`))
		if !acc.Accepted {
			t.Fatalf("Notify rejected: %s", acc.Reason)
		}
	}

	select {
	case r := <-got:
		if r.eventType != batch.BatchEventType {
			t.Fatalf("event type = %q, want %q", r.eventType, batch.BatchEventType)
		}
		var payload struct {
			Batch bool `json:"batch"`
			Count int  `json:"count"`
		}
		if err := json.Unmarshal(r.payload, &payload); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if !payload.Batch || payload.Count != 3 {
			t.Fatalf("payload = %s", r.payload)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for batch delivery")
	}

	select {
	case r := <-got:
		t.Fatalf("unexpected extra delivery: %s", r.payload)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUrgentBypassesBatching(t *testing.T) {
	got := make(chan string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Get("X-Signalpost-Event-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := newTestEngine(t, nil)
	setTenant(t, e, "t-1", srv.URL, func(cfg *registry.TenantConfig) {
		cfg.Settings.BatchingEnabled = true
		cfg.Settings.BatchInterval = time.Hour
		cfg.Settings.MaxBatchSize = 10
	})

	acc := e.Notify(context.Background(), "t-1", "account.locked", []byte(`{"user_id":"u-1"}`),
		signalpost.WithPriority(envelope.PriorityUrgent))
	if !acc.Accepted {
		t.Fatalf("Notify rejected: %s", acc.Reason)
	}

	select {
	case eventType := <-got:
		if eventType != "account.locked" {
			t.Fatalf("event type = %q", eventType)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("urgent notification should not wait for the batch interval")
	}
}

func TestStopFlushesPendingBatches(t *testing.T) {
	got := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- struct{}{}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e, err := signalpost.New(
		signalpost.WithStore(memory.New()),
		signalpost.WithRequestTimeout(time.Second),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.Start(context.Background())
	setTenant(t, e, "t-1", srv.URL, func(cfg *registry.TenantConfig) {
		cfg.Settings.BatchingEnabled = true
		cfg.Settings.BatchInterval = time.Hour
	})

	e.Notify(context.Background(), "t-1", "feed.updated", []byte(`{"n":1}`))
	e.Stop(context.Background())

	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("Stop should flush the pending batch")
	}
}
