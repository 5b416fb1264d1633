// Package memory provides an in-memory Store implementation for unit testing.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	signalpost "github.com/signalpost/signalpost"
	"github.com/signalpost/signalpost/dlq"
	"github.com/signalpost/signalpost/id"
	"github.com/signalpost/signalpost/registry"
	spstore "github.com/signalpost/signalpost/store"
)

// compile-time interface check.
var _ spstore.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store for testing.
type Store struct {
	mu sync.RWMutex

	tenants    map[string]*registry.TenantConfig // keyed by tenant ID
	dlqEntries map[string]*dlq.Entry             // keyed by ID string

	closed bool
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		tenants:    make(map[string]*registry.TenantConfig),
		dlqEntries: make(map[string]*dlq.Entry),
	}
}

// Ping reports whether the store is open.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return signalpost.ErrStoreClosed
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// GetTenant returns a copy of a tenant's configuration.
func (s *Store) GetTenant(_ context.Context, tenantID string) (*registry.TenantConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.tenants[tenantID]
	if !ok {
		return nil, signalpost.ErrTenantNotFound
	}
	return copyConfig(cfg), nil
}

// PutTenant creates or replaces a tenant's configuration.
func (s *Store) PutTenant(_ context.Context, cfg *registry.TenantConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tenants[cfg.TenantID] = copyConfig(cfg)
	return nil
}

// DeleteTenant removes a tenant's configuration.
func (s *Store) DeleteTenant(_ context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tenants[tenantID]; !ok {
		return signalpost.ErrTenantNotFound
	}
	delete(s.tenants, tenantID)
	return nil
}

// ListTenants returns tenant configurations ordered by tenant ID.
func (s *Store) ListTenants(_ context.Context, opts registry.ListOpts) ([]*registry.TenantConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*registry.TenantConfig, 0, len(s.tenants))
	for _, cfg := range s.tenants {
		result = append(result, copyConfig(cfg))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TenantID < result[j].TenantID
	})

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// PushDLQ persists a new dead letter entry.
func (s *Store) PushDLQ(_ context.Context, entry *dlq.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dlqEntries[entry.ID.String()] = entry
	return nil
}

// GetDLQ returns a dead letter entry by ID.
func (s *Store) GetDLQ(_ context.Context, dlqID id.ID) (*dlq.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.dlqEntries[dlqID.String()]
	if !ok {
		return nil, signalpost.ErrDLQNotFound
	}
	return entry, nil
}

// ListDLQ returns entries matching opts, newest failures first.
func (s *Store) ListDLQ(_ context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*dlq.Entry, 0, len(s.dlqEntries))
	for _, entry := range s.dlqEntries {
		if opts.TenantID != "" && entry.TenantID != opts.TenantID {
			continue
		}
		if opts.From != nil && entry.FailedAt.Before(*opts.From) {
			continue
		}
		if opts.To != nil && entry.FailedAt.After(*opts.To) {
			continue
		}
		result = append(result, entry)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].FailedAt.After(result[j].FailedAt)
	})

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// MarkReplayed stamps an entry's ReplayedAt.
func (s *Store) MarkReplayed(_ context.Context, dlqID id.ID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.dlqEntries[dlqID.String()]
	if !ok {
		return signalpost.ErrDLQNotFound
	}
	entry.ReplayedAt = &at
	entry.Touch()
	return nil
}

// PurgeDLQ removes entries that failed before the given time.
func (s *Store) PurgeDLQ(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for key, entry := range s.dlqEntries {
		if entry.FailedAt.Before(before) {
			delete(s.dlqEntries, key)
			removed++
		}
	}
	return removed, nil
}

// CountDLQ returns the total number of entries.
func (s *Store) CountDLQ(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.dlqEntries)), nil
}

func copyConfig(cfg *registry.TenantConfig) *registry.TenantConfig {
	cp := *cfg
	if cfg.Backup != nil {
		b := *cfg.Backup
		cp.Backup = &b
	}
	return &cp
}

func applyPagination[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
