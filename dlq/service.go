package dlq

import (
	"context"
	"log/slog"
	"time"

	"github.com/signalpost/signalpost/envelope"
	"github.com/signalpost/signalpost/id"
	"github.com/signalpost/signalpost/internal/entity"
)

// Service manages the dead letter queue.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a DLQ service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logger,
	}
}

// PushFailed records a permanently failed envelope.
func (svc *Service) PushFailed(ctx context.Context, env *envelope.Envelope, url, lastError string, lastStatusCode, attempts int) (*Entry, error) {
	entry := &Entry{
		Entity:         entity.New(),
		ID:             id.NewDLQID(),
		EnvelopeID:     env.ID,
		TenantID:       env.TenantID,
		EventType:      env.EventType,
		Priority:       env.Priority.String(),
		URL:            url,
		Payload:        env.Payload,
		Error:          lastError,
		Attempts:       attempts,
		LastStatusCode: lastStatusCode,
		FailedAt:       time.Now().UTC(),
	}

	if err := svc.store.PushDLQ(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Get returns an entry by ID.
func (svc *Service) Get(ctx context.Context, dlqID id.ID) (*Entry, error) {
	return svc.store.GetDLQ(ctx, dlqID)
}

// List returns entries matching the given options.
func (svc *Service) List(ctx context.Context, opts ListOpts) ([]*Entry, error) {
	return svc.store.ListDLQ(ctx, opts)
}

// MarkReplayed stamps an entry as re-injected.
func (svc *Service) MarkReplayed(ctx context.Context, dlqID id.ID) error {
	return svc.store.MarkReplayed(ctx, dlqID, time.Now().UTC())
}

// Purge removes entries that failed before the given time.
func (svc *Service) Purge(ctx context.Context, before time.Time) (int64, error) {
	return svc.store.PurgeDLQ(ctx, before)
}

// Count returns the total number of entries.
func (svc *Service) Count(ctx context.Context) (int64, error) {
	return svc.store.CountDLQ(ctx)
}
