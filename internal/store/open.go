// Package store provides the persistence backends for the key collection:
// a JSON file, an in-memory document and Redis. Each backend replaces the
// whole document atomically on Save.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"keyforge/internal/config"
	"keyforge/internal/keys"
)

// Backend names
const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config selects and configures a backend
type Config struct {
	Backend    string
	Path       string
	RedisURL   string
	RedisKey   string
	LockTTL    time.Duration
	Passphrase string
	Sealer     SealerConfig
}

// ConfigFrom maps the store section of the service configuration
func ConfigFrom(cfg config.StoreConfig) Config {
	return Config{
		Backend:    cfg.Backend,
		Path:       cfg.Path,
		RedisURL:   cfg.RedisURL,
		RedisKey:   cfg.RedisKey,
		LockTTL:    cfg.LockTTL,
		Passphrase: cfg.Passphrase,
	}
}

// Backend bundles an opened store with the lock that must guard it
type Backend struct {
	Store  keys.Store
	Locker keys.Locker
	Name   string

	ping  func(ctx context.Context) error
	close func() error
}

// Ping checks the backend is reachable
func (b *Backend) Ping(ctx context.Context) error {
	if b.ping != nil {
		return b.ping(ctx)
	}
	_, err := b.Store.Load(ctx)
	return err
}

// Close releases backend connections
func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// Open creates the configured backend
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "store"), slog.String("backend", cfg.Backend))

	var sealer *Sealer
	if cfg.Passphrase != "" {
		scfg := cfg.Sealer
		if scfg.N == 0 {
			scfg = DefaultSealerConfig()
		}
		s, err := NewSealer(cfg.Passphrase, scfg)
		if err != nil {
			return nil, err
		}
		sealer = s
		logger.Info("key document sealing enabled")
	}

	switch cfg.Backend {
	case BackendFile, "":
		fs, err := NewFileStore(cfg.Path, WithSealer(sealer))
		if err != nil {
			return nil, err
		}
		locker, err := NewFileLocker(cfg.Path)
		if err != nil {
			return nil, err
		}
		logger.Info("opened file key store", slog.String("path", cfg.Path), slog.String("lock", locker.name))
		return &Backend{Store: fs, Locker: locker, Name: BackendFile}, nil

	case BackendMemory:
		logger.Warn("using in-memory key store, keys will not survive a restart")
		return &Backend{Store: NewMemoryStore(), Locker: keys.NewMutexLocker(), Name: BackendMemory}, nil

	case BackendRedis:
		client, err := NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		rs := NewRedisStore(client, cfg.RedisKey, sealer)
		logger.Info("opened redis key store", slog.String("key", rs.key))
		return &Backend{
			Store:  rs,
			Locker: NewRedisLocker(client, rs.key+":lock", cfg.LockTTL),
			Name:   BackendRedis,
			ping:   rs.Ping,
			close:  client.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}
