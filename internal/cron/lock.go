package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultLeaseTTL = 4 * time.Minute

// Locker hands out one exclusive lease per job name across worker replicas.
type Locker interface {
	Acquire(ctx context.Context, job string) (Lease, bool, error)
}

// Lease is held for the duration of one job run.
type Lease interface {
	Release(ctx context.Context) error
}

type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DelIfValue(ctx context.Context, key, value string) (bool, error)
	LockKey(name string) string
}

// RedisLocker leases job locks with SET NX and a TTL so a crashed worker
// cannot hold a job forever.
type RedisLocker struct {
	store redisStore
	ttl   time.Duration
}

func NewRedisLocker(store redisStore, ttl time.Duration) (*RedisLocker, error) {
	if store == nil {
		return nil, errors.New("redis client required for cron locks")
	}
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	return &RedisLocker{store: store, ttl: ttl}, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, job string) (Lease, bool, error) {
	if job == "" {
		return nil, false, errors.New("job name required")
	}
	key := l.store.LockKey("cron:" + job)
	owner := uuid.NewString()
	ok, err := l.store.SetNX(ctx, key, owner, l.ttl)
	if err != nil {
		return nil, false, fmt.Errorf("setnx %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &redisLease{store: l.store, key: key, owner: owner}, true, nil
}

type redisLease struct {
	store redisStore
	key   string
	owner string
}

// Release deletes the key only while this lease still owns it; an expired
// lease that was re-acquired elsewhere is left alone.
func (l *redisLease) Release(ctx context.Context) error {
	if _, err := l.store.DelIfValue(ctx, l.key, l.owner); err != nil {
		return fmt.Errorf("release lease %s: %w", l.key, err)
	}
	return nil
}
