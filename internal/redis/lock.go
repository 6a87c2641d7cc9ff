package redis

import (
	"context"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/redis/go-redis/v9"
)

// Locker is a short-TTL distributed lock backed by SET NX EX. By default
// it fails open: when Redis is unreachable the operation is allowed,
// trading a possible duplicate print record during an outage for not
// blocking all printing. failClosed inverts that for deployments that
// need strict exclusivity.
type Locker struct {
	client     *redis.Client
	logger     apt.Logger
	failClosed bool
}

type LockerOptions struct {
	Addr       string
	Password   string
	DB         int
	FailClosed bool
}

// NewLocker connects eagerly but does not refuse to start when Redis is
// down: the runtime fail-open policy already covers an unreachable
// backend, and printing must stay available through a cache outage.
func NewLocker(opts LockerOptions, logger apt.Logger) *Locker {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Error("redis unreachable at startup", "error", err)
	}

	return &Locker{
		client:     client,
		logger:     logger,
		failClosed: opts.FailClosed,
	}
}

func (l *Locker) TryAcquire(ctx context.Context, key string, ttl time.Duration) bool {
	ok, err := l.client.SetNX(ctx, "lock:"+key, "1", ttl).Result()
	if err != nil {
		l.logger.Error("lock backend unreachable", "error", err, "key", key)
		return !l.failClosed
	}
	return ok
}

func (l *Locker) Release(ctx context.Context, key string) {
	if err := l.client.Del(ctx, "lock:"+key).Err(); err != nil {
		l.logger.Error("cannot release lock", "error", err, "key", key)
	}
}

func (l *Locker) Close() error {
	return l.client.Close()
}
