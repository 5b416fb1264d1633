package redis

import (
	"context"
	"fmt"
	"math"
	"time"

	goredis "github.com/redis/go-redis/v9"

	signalpost "github.com/signalpost/signalpost"
	"github.com/signalpost/signalpost/dlq"
	"github.com/signalpost/signalpost/id"
)

func (s *Store) PushDLQ(ctx context.Context, entry *dlq.Entry) error {
	key := entityKey(prefixDLQ, entry.ID.String())
	if err := s.setEntity(ctx, key, entry); err != nil {
		return fmt.Errorf("signalpost/redis: push dlq: %w", err)
	}

	score := scoreFromTime(entry.FailedAt)
	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, zDLQAll, goredis.Z{Score: score, Member: entry.ID.String()})
	if entry.TenantID != "" {
		pipe.ZAdd(ctx, zDLQTenant+entry.TenantID, goredis.Z{Score: score, Member: entry.ID.String()})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("signalpost/redis: push dlq indexes: %w", err)
	}
	return nil
}

func (s *Store) GetDLQ(ctx context.Context, dlqID id.ID) (*dlq.Entry, error) {
	var entry dlq.Entry
	if err := s.getEntity(ctx, entityKey(prefixDLQ, dlqID.String()), &entry); err != nil {
		if isRedisNil(err) {
			return nil, signalpost.ErrDLQNotFound
		}
		return nil, fmt.Errorf("signalpost/redis: get dlq: %w", err)
	}
	return &entry, nil
}

func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	zKey := zDLQAll
	if opts.TenantID != "" {
		zKey = zDLQTenant + opts.TenantID
	}

	minScore := math.Inf(-1)
	maxScore := math.Inf(1)
	if opts.From != nil {
		minScore = scoreFromTime(*opts.From)
	}
	if opts.To != nil {
		maxScore = scoreFromTime(*opts.To)
	}

	ids, err := s.zRangeByScoreIDs(ctx, zKey, minScore, maxScore)
	if err != nil {
		return nil, fmt.Errorf("signalpost/redis: list dlq: %w", err)
	}

	result := make([]*dlq.Entry, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- { // reverse for newest-first
		var entry dlq.Entry
		if err := s.getEntity(ctx, entityKey(prefixDLQ, ids[i]), &entry); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		result = append(result, &entry)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func (s *Store) MarkReplayed(ctx context.Context, dlqID id.ID, at time.Time) error {
	entry, err := s.GetDLQ(ctx, dlqID)
	if err != nil {
		return err
	}
	entry.ReplayedAt = &at
	entry.Touch()
	if err := s.setEntity(ctx, entityKey(prefixDLQ, dlqID.String()), entry); err != nil {
		return fmt.Errorf("signalpost/redis: mark replayed: %w", err)
	}
	return nil
}

func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	ids, err := s.zRangeByScoreIDs(ctx, zDLQAll, math.Inf(-1), scoreFromTime(before))
	if err != nil {
		return 0, fmt.Errorf("signalpost/redis: purge list: %w", err)
	}

	var count int64
	for _, entryID := range ids {
		var entry dlq.Entry
		if err := s.getEntity(ctx, entityKey(prefixDLQ, entryID), &entry); err != nil {
			if isRedisNil(err) {
				continue
			}
			return count, err
		}

		pipe := s.rdb.Pipeline()
		pipe.Del(ctx, entityKey(prefixDLQ, entryID))
		pipe.ZRem(ctx, zDLQAll, entryID)
		if entry.TenantID != "" {
			pipe.ZRem(ctx, zDLQTenant+entry.TenantID, entryID)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return count, fmt.Errorf("signalpost/redis: purge entry: %w", err)
		}
		count++
	}

	return count, nil
}

func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	count, err := s.rdb.ZCard(ctx, zDLQAll).Result()
	if err != nil {
		return 0, fmt.Errorf("signalpost/redis: count dlq: %w", err)
	}
	return count, nil
}
