// Package registry manages tenant delivery configurations behind a
// read-through TTL cache.
package registry

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/signalpost/signalpost/clock"
	"github.com/signalpost/signalpost/internal/entity"
	"github.com/signalpost/signalpost/signature"
)

// DefaultCacheTTL is how long a cached tenant config is served before the
// store is consulted again.
const DefaultCacheTTL = 5 * time.Minute

// Config configures the registry service.
type Config struct {
	// CacheTTL is the TTL for cached tenant configs. Zero disables expiry.
	CacheTTL time.Duration

	// Clock overrides the time source. Nil uses the system clock.
	Clock clock.Clock
}

// Service provides cached access to tenant configurations. Reads go
// through an in-memory cache; any write invalidates the tenant's cache
// entry immediately.
type Service struct {
	store    Store
	cacheTTL time.Duration
	clock    clock.Clock
	logger   *slog.Logger

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	cfg      *TenantConfig
	loadedAt time.Time
}

// NewService creates a registry service backed by the given store.
func NewService(store Store, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	return &Service{
		store:    store,
		cacheTTL: cfg.CacheTTL,
		clock:    cfg.Clock,
		logger:   logger,
		cache:    make(map[string]cacheEntry),
	}
}

// Get returns a tenant's configuration, serving from cache while fresh.
// A missing tenant propagates the store's not-found error; callers treat
// it as "nothing to deliver", not a failure.
func (svc *Service) Get(ctx context.Context, tenantID string) (*TenantConfig, error) {
	svc.mu.RLock()
	if ce, ok := svc.cache[tenantID]; ok && !svc.expired(ce) {
		svc.mu.RUnlock()
		return ce.cfg, nil
	}
	svc.mu.RUnlock()

	cfg, err := svc.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	svc.mu.Lock()
	svc.cache[tenantID] = cacheEntry{cfg: cfg, loadedAt: svc.clock.Now()}
	svc.mu.Unlock()

	return cfg, nil
}

// Set validates and persists a tenant configuration, generating endpoint
// secrets when absent, and invalidates the cache entry.
func (svc *Service) Set(ctx context.Context, cfg *TenantConfig) error {
	if cfg.TenantID == "" {
		return &ValidationError{Field: "tenant_id", Message: "required"}
	}
	if _, err := url.ParseRequestURI(cfg.Primary.URL); err != nil {
		return &ValidationError{Field: "primary.url", Message: "invalid URL"}
	}
	if cfg.Backup != nil {
		if _, err := url.ParseRequestURI(cfg.Backup.URL); err != nil {
			return &ValidationError{Field: "backup.url", Message: "invalid URL"}
		}
	}
	if cfg.Settings.MaxBatchSize < 0 {
		return &ValidationError{Field: "settings.max_batch_size", Message: "must be >= 0"}
	}

	if cfg.Primary.Secret == "" {
		cfg.Primary.Secret = signature.GenerateSecret()
	}
	if cfg.Backup != nil && cfg.Backup.Secret == "" {
		cfg.Backup.Secret = signature.GenerateSecret()
	}
	if cfg.CreatedAt.IsZero() {
		cfg.Entity = entity.New()
	} else {
		cfg.Touch()
	}

	if err := svc.store.PutTenant(ctx, cfg); err != nil {
		return err
	}

	svc.Invalidate(cfg.TenantID)
	return nil
}

// UpdateSettings replaces a tenant's delivery settings and invalidates
// the cache entry.
func (svc *Service) UpdateSettings(ctx context.Context, tenantID string, settings Settings) (*TenantConfig, error) {
	cfg, err := svc.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	cfg.Settings = settings
	cfg.Touch()
	if err := svc.store.PutTenant(ctx, cfg); err != nil {
		return nil, err
	}

	svc.Invalidate(tenantID)
	return cfg, nil
}

// Delete removes a tenant's configuration. Subsequent Notify calls for
// the tenant short-circuit; work already admitted into the pipeline
// drains to completion.
func (svc *Service) Delete(ctx context.Context, tenantID string) error {
	if err := svc.store.DeleteTenant(ctx, tenantID); err != nil {
		return err
	}
	svc.Invalidate(tenantID)
	return nil
}

// List returns tenant configurations directly from the store.
func (svc *Service) List(ctx context.Context, opts ListOpts) ([]*TenantConfig, error) {
	return svc.store.ListTenants(ctx, opts)
}

// Invalidate drops a tenant's cache entry, forcing the next read through
// to the store.
func (svc *Service) Invalidate(tenantID string) {
	svc.mu.Lock()
	delete(svc.cache, tenantID)
	svc.mu.Unlock()
}

func (svc *Service) expired(ce cacheEntry) bool {
	if svc.cacheTTL == 0 {
		return false
	}
	return svc.clock.Now().Sub(ce.loadedAt) > svc.cacheTTL
}

// ValidationError indicates invalid configuration input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "registry validation: " + e.Field + ": " + e.Message
}
