package redislock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultKey           = "contact:graph:lock"
	defaultTTL           = 10 * time.Second
	defaultRetryInterval = 25 * time.Millisecond
	releaseTimeout       = 2 * time.Second
)

// releaseScript deletes the key only while it still holds our token, so a
// holder whose TTL lapsed cannot release a lock someone else now owns.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Client is the subset of go-redis the lock needs.
type Client interface {
	redis.Cmdable
	redis.Scripter
}

// Locker serializes identify calls across processes sharing one store. The
// lock is a single Redis key set with NX and a TTL; the TTL bounds how long a
// crashed holder can block others.
type Locker struct {
	client Client
	key    string
	ttl    time.Duration
	retry  time.Duration
	logger *slog.Logger
}

type Option func(*Locker)

func WithKey(key string) Option {
	return func(l *Locker) {
		if key != "" {
			l.key = key
		}
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(l *Locker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

func WithRetryInterval(d time.Duration) Option {
	return func(l *Locker) {
		if d > 0 {
			l.retry = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Locker) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func New(client Client, opts ...Option) *Locker {
	l := &Locker{
		client: client,
		key:    DefaultKey,
		ttl:    defaultTTL,
		retry:  defaultRetryInterval,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Lock blocks until the lock is held or ctx is done. The returned func
// releases it and is safe to call once.
func (l *Locker) Lock(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		acquired, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", l.key, err)
		}
		if acquired {
			return func() { l.release(token) }, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire lock %s: %w", l.key, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *Locker) release(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
		l.logger.Warn("failed to release contact graph lock",
			"key", l.key,
			"error", err,
		)
	}
}
