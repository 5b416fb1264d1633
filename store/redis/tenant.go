package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	signalpost "github.com/signalpost/signalpost"
	"github.com/signalpost/signalpost/registry"
)

func (s *Store) GetTenant(ctx context.Context, tenantID string) (*registry.TenantConfig, error) {
	var cfg registry.TenantConfig
	if err := s.getEntity(ctx, entityKey(prefixTenant, tenantID), &cfg); err != nil {
		if isRedisNil(err) {
			return nil, signalpost.ErrTenantNotFound
		}
		return nil, fmt.Errorf("signalpost/redis: get tenant: %w", err)
	}
	return &cfg, nil
}

func (s *Store) PutTenant(ctx context.Context, cfg *registry.TenantConfig) error {
	if err := s.setEntity(ctx, entityKey(prefixTenant, cfg.TenantID), cfg); err != nil {
		return fmt.Errorf("signalpost/redis: put tenant: %w", err)
	}
	// Score 0 keeps the set lexicographically ordered by member.
	err := s.rdb.ZAdd(ctx, zTenantAll, goredis.Z{Score: 0, Member: cfg.TenantID}).Err()
	if err != nil {
		return fmt.Errorf("signalpost/redis: index tenant: %w", err)
	}
	return nil
}

func (s *Store) DeleteTenant(ctx context.Context, tenantID string) error {
	pipe := s.rdb.Pipeline()
	deleted := pipe.Del(ctx, entityKey(prefixTenant, tenantID))
	pipe.ZRem(ctx, zTenantAll, tenantID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("signalpost/redis: delete tenant: %w", err)
	}
	if deleted.Val() == 0 {
		return signalpost.ErrTenantNotFound
	}
	return nil
}

func (s *Store) ListTenants(ctx context.Context, opts registry.ListOpts) ([]*registry.TenantConfig, error) {
	ids, err := s.rdb.ZRange(ctx, zTenantAll, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("signalpost/redis: list tenants: %w", err)
	}

	result := make([]*registry.TenantConfig, 0, len(ids))
	for _, tenantID := range ids {
		var cfg registry.TenantConfig
		if err := s.getEntity(ctx, entityKey(prefixTenant, tenantID), &cfg); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		result = append(result, &cfg)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}
