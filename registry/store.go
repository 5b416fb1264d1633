package registry

import "context"

// Store defines the persistence contract for tenant configurations.
// Implementations are assumed durable and externally owned; the Service
// layers a read-through cache on top.
type Store interface {
	// GetTenant returns a tenant's configuration.
	// Returns signalpost.ErrTenantNotFound when absent.
	GetTenant(ctx context.Context, tenantID string) (*TenantConfig, error)

	// PutTenant creates or replaces a tenant's configuration.
	PutTenant(ctx context.Context, cfg *TenantConfig) error

	// DeleteTenant removes a tenant's configuration. Deleting an unknown
	// tenant returns signalpost.ErrTenantNotFound.
	DeleteTenant(ctx context.Context, tenantID string) error

	// ListTenants returns tenant configurations ordered by tenant ID.
	ListTenants(ctx context.Context, opts ListOpts) ([]*TenantConfig, error)
}
