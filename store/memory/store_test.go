package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	signalpost "github.com/signalpost/signalpost"
	"github.com/signalpost/signalpost/dlq"
	"github.com/signalpost/signalpost/id"
	"github.com/signalpost/signalpost/registry"
)

func tenantConfig(tenantID string) *registry.TenantConfig {
	return &registry.TenantConfig{
		TenantID: tenantID,
		Primary:  registry.Endpoint{URL: "https://" + tenantID + ".test/hook", Secret: "whsec_x"},
	}
}

func dlqEntry(tenantID string, failedAt time.Time) *dlq.Entry {
	return &dlq.Entry{
		ID:         id.NewDLQID(),
		EnvelopeID: id.NewEnvelopeID(),
		TenantID:   tenantID,
		EventType:  "user.created",
		Priority:   "normal",
		URL:        "https://" + tenantID + ".test/hook",
		Error:      "endpoint returned 500",
		Attempts:   3,
		FailedAt:   failedAt,
	}
}

func TestTenantRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.GetTenant(ctx, "t-1"); !errors.Is(err, signalpost.ErrTenantNotFound) {
		t.Fatalf("empty GetTenant = %v", err)
	}

	if err := s.PutTenant(ctx, tenantConfig("t-1")); err != nil {
		t.Fatalf("PutTenant: %v", err)
	}
	got, err := s.GetTenant(ctx, "t-1")
	if err != nil {
		t.Fatalf("GetTenant: %v", err)
	}
	if got.Primary.URL != "https://t-1.test/hook" {
		t.Fatalf("url = %q", got.Primary.URL)
	}

	// Returned configs are copies; mutations must not leak back.
	got.Primary.URL = "https://mutated.test"
	again, _ := s.GetTenant(ctx, "t-1")
	if again.Primary.URL != "https://t-1.test/hook" {
		t.Fatal("store handed out a shared pointer")
	}

	if err := s.DeleteTenant(ctx, "t-1"); err != nil {
		t.Fatalf("DeleteTenant: %v", err)
	}
	if _, err := s.GetTenant(ctx, "t-1"); !errors.Is(err, signalpost.ErrTenantNotFound) {
		t.Fatalf("GetTenant after delete = %v", err)
	}
	if err := s.DeleteTenant(ctx, "t-1"); !errors.Is(err, signalpost.ErrTenantNotFound) {
		t.Fatalf("double delete = %v", err)
	}
}

func TestListTenantsOrderedAndPaginated(t *testing.T) {
	s := New()
	ctx := context.Background()

	for _, tid := range []string{"t-3", "t-1", "t-2"} {
		if err := s.PutTenant(ctx, tenantConfig(tid)); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.ListTenants(ctx, registry.ListOpts{})
	if err != nil {
		t.Fatalf("ListTenants: %v", err)
	}
	if len(all) != 3 || all[0].TenantID != "t-1" || all[2].TenantID != "t-3" {
		t.Fatalf("order = %v", all)
	}

	page, err := s.ListTenants(ctx, registry.ListOpts{Offset: 1, Limit: 1})
	if err != nil {
		t.Fatalf("ListTenants page: %v", err)
	}
	if len(page) != 1 || page[0].TenantID != "t-2" {
		t.Fatalf("page = %v", page)
	}

	empty, err := s.ListTenants(ctx, registry.ListOpts{Offset: 10})
	if err != nil {
		t.Fatalf("ListTenants past end: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("past-end page = %v", empty)
	}
}

func TestDLQRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	entry := dlqEntry("t-1", now)
	if err := s.PushDLQ(ctx, entry); err != nil {
		t.Fatalf("PushDLQ: %v", err)
	}

	got, err := s.GetDLQ(ctx, entry.ID)
	if err != nil {
		t.Fatalf("GetDLQ: %v", err)
	}
	if got.EnvelopeID != entry.EnvelopeID {
		t.Fatal("wrong entry")
	}

	if err := s.MarkReplayed(ctx, entry.ID, now.Add(time.Minute)); err != nil {
		t.Fatalf("MarkReplayed: %v", err)
	}
	got, _ = s.GetDLQ(ctx, entry.ID)
	if got.ReplayedAt == nil || !got.ReplayedAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("ReplayedAt = %v", got.ReplayedAt)
	}

	if _, err := s.GetDLQ(ctx, id.NewDLQID()); !errors.Is(err, signalpost.ErrDLQNotFound) {
		t.Fatalf("missing GetDLQ = %v", err)
	}
}

func TestListDLQNewestFirstAndFiltered(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Now().UTC()

	old := dlqEntry("t-1", base.Add(-2*time.Hour))
	mid := dlqEntry("t-2", base.Add(-time.Hour))
	recent := dlqEntry("t-1", base)
	for _, e := range []*dlq.Entry{old, mid, recent} {
		if err := s.PushDLQ(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.ListDLQ(ctx, dlq.ListOpts{})
	if err != nil {
		t.Fatalf("ListDLQ: %v", err)
	}
	if len(all) != 3 || all[0].ID != recent.ID || all[2].ID != old.ID {
		t.Fatal("entries should come back newest first")
	}

	from := base.Add(-90 * time.Minute)
	windowed, err := s.ListDLQ(ctx, dlq.ListOpts{From: &from})
	if err != nil {
		t.Fatalf("ListDLQ from: %v", err)
	}
	if len(windowed) != 2 {
		t.Fatalf("windowed = %d entries, want 2", len(windowed))
	}

	byTenant, err := s.ListDLQ(ctx, dlq.ListOpts{TenantID: "t-2"})
	if err != nil {
		t.Fatalf("ListDLQ tenant: %v", err)
	}
	if len(byTenant) != 1 || byTenant[0].ID != mid.ID {
		t.Fatalf("byTenant = %v", byTenant)
	}
}

func TestPurgeDLQ(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Now().UTC()

	s.PushDLQ(ctx, dlqEntry("t-1", base.Add(-2*time.Hour)))
	s.PushDLQ(ctx, dlqEntry("t-1", base))

	removed, err := s.PurgeDLQ(ctx, base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("PurgeDLQ: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if n, _ := s.CountDLQ(ctx); n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
}

func TestClose(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Ping(ctx); !errors.Is(err, signalpost.ErrStoreClosed) {
		t.Fatalf("Ping after close = %v", err)
	}
}
