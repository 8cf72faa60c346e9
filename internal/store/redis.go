package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"

	"keyforge/internal/keys"
	"keyforge/pkg/contracts/domain"
)

// DefaultRedisKey holds the document when no key is configured
const DefaultRedisKey = "keyforge:keys"

// RedisStore keeps the whole document under one Redis key. GET and SET are
// atomic, so readers never see a partial document.
type RedisStore struct {
	client redis.UniversalClient
	key    string
	codec  codec
}

// NewRedisStore returns a store over client. A nil sealer stores plain JSON.
func NewRedisStore(client redis.UniversalClient, key string, sealer *Sealer) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key, codec: codec{sealer: sealer}}
}

func (s *RedisStore) Load(ctx context.Context) (*domain.KeyCollection, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return &domain.KeyCollection{Keys: []domain.KeyRecord{}}, nil
	}
	if err != nil {
		return nil, keys.NewStorageError("load", err)
	}
	c, err := s.codec.decode(data)
	if err != nil {
		return nil, keys.NewStorageError("load", err)
	}
	return c, nil
}

func (s *RedisStore) Save(ctx context.Context, c *domain.KeyCollection) error {
	data, err := s.codec.encode(c)
	if err != nil {
		return keys.NewStorageError("save", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return keys.NewStorageError("save", err)
	}
	return nil
}

// Ping checks connectivity
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// RedisLocker serializes lifecycle operations across replicas with a
// redsync mutex. A new mutex is created per Lock call.
type RedisLocker struct {
	rs    *redsync.Redsync
	name  string
	ttl   time.Duration
	tries int
}

// NewRedisLocker returns a distributed lock named name
func NewRedisLocker(client redis.UniversalClient, name string, ttl time.Duration) *RedisLocker {
	if name == "" {
		name = DefaultRedisKey + ":lock"
	}
	if ttl <= 0 {
		ttl = 8 * time.Second
	}
	return &RedisLocker{
		rs:    redsync.New(goredis.NewPool(client)),
		name:  name,
		ttl:   ttl,
		tries: 64,
	}
}

func (l *RedisLocker) Lock(ctx context.Context) (func(), error) {
	mutex := l.rs.NewMutex(l.name, redsync.WithExpiry(l.ttl), redsync.WithTries(l.tries))
	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("acquire %s: %w", l.name, err)
	}
	return func() {
		// Release with a fresh context so a cancelled caller still unlocks.
		unlockCtx, cancel := context.WithTimeout(context.Background(), l.ttl)
		defer cancel()
		_, _ = mutex.UnlockContext(unlockCtx)
	}, nil
}

// NewRedisClient parses a comma separated list of redis:// URLs into a
// universal client. More than one address selects cluster mode.
func NewRedisClient(ctx context.Context, raw string) (redis.UniversalClient, error) {
	opts := &redis.UniversalOptions{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, "://") {
			opts.Addrs = append(opts.Addrs, part)
			continue
		}
		parsed, err := redis.ParseURL(part)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts.Addrs = append(opts.Addrs, parsed.Addr)
		if opts.Username == "" {
			opts.Username = parsed.Username
		}
		if opts.Password == "" {
			opts.Password = parsed.Password
		}
		if opts.DB == 0 {
			opts.DB = parsed.DB
		}
		if opts.TLSConfig == nil {
			opts.TLSConfig = parsed.TLSConfig
		}
	}
	if len(opts.Addrs) == 0 {
		return nil, errors.New("redis url is required")
	}
	if len(opts.Addrs) > 1 {
		opts.DB = 0
	}

	client := redis.NewUniversalClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}
