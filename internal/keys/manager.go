package keys

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"keyforge/pkg/contracts/domain"
)

// Batch and lifetime bounds applied when none are configured
const (
	DefaultMaxBatch = 10
	DefaultMinTTL   = time.Minute
	DefaultMaxTTL   = 24 * time.Hour

	maxIDAttempts = 8
)

// Limits bounds minting requests
type Limits struct {
	MaxBatch int
	MinTTL   time.Duration
	MaxTTL   time.Duration
}

// DefaultLimits returns the stock minting bounds
func DefaultLimits() Limits {
	return Limits{MaxBatch: DefaultMaxBatch, MinTTL: DefaultMinTTL, MaxTTL: DefaultMaxTTL}
}

// MintRequest describes a batch of keys to create
type MintRequest struct {
	Kind   domain.KeyKind
	Amount int
	TTL    time.Duration
}

// BindResult reports the bound record and whether this call bound it
type BindResult struct {
	Key        domain.KeyRecord
	NewlyBound bool
}

// Manager applies lifecycle transitions to the key collection
type Manager struct {
	store   Store
	locker  Locker
	ids     IDGenerator
	now     func() time.Time
	limits  Limits
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *Metrics
}

// Option configures a Manager
type Option func(*Manager)

// WithLocker replaces the in-process mutex, e.g. with a distributed lock
func WithLocker(l Locker) Option {
	return func(m *Manager) { m.locker = l }
}

func WithIDGenerator(g IDGenerator) Option {
	return func(m *Manager) { m.ids = g }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithLimits(l Limits) Option {
	return func(m *Manager) { m.limits = l }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

func WithMetrics(mt *Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

func WithTracer(t trace.Tracer) Option {
	return func(m *Manager) { m.tracer = t }
}

// NewManager creates a Manager over store
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		locker: NewMutexLocker(),
		ids:    UUIDGenerator{Length: DefaultIDLength},
		now:    func() time.Time { return time.Now().UTC() },
		limits: DefaultLimits(),
		logger: slog.Default(),
		tracer: defaultTracer(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(slog.String("component", "key_manager"))
	return m
}

// Mint creates one permanent, unbound, active key and returns its id.
func (m *Manager) Mint(ctx context.Context) (string, error) {
	recs, err := m.MintBatch(ctx, MintRequest{Kind: domain.KeyKindPermanent, Amount: 1})
	if err != nil {
		return "", err
	}
	return recs[0].ID, nil
}

// MintTemporary creates one temporary key expiring after ttl.
func (m *Manager) MintTemporary(ctx context.Context, ttl time.Duration) (domain.KeyRecord, error) {
	recs, err := m.MintBatch(ctx, MintRequest{Kind: domain.KeyKindTemporary, Amount: 1, TTL: ttl})
	if err != nil {
		return domain.KeyRecord{}, err
	}
	return recs[0], nil
}

// MintBatch creates req.Amount keys with a single load and save.
func (m *Manager) MintBatch(ctx context.Context, req MintRequest) (minted []domain.KeyRecord, err error) {
	ctx, span, start := m.startOp(ctx, "mint")
	defer func() { m.endOp(ctx, span, "mint", start, err) }()

	if err := m.checkMint(&req); err != nil {
		return nil, err
	}

	err = m.mutate(ctx, func(c *domain.KeyCollection) (bool, error) {
		now := m.now()
		taken := make(map[string]struct{}, len(c.Keys)+req.Amount)
		for i := range c.Keys {
			taken[c.Keys[i].ID] = struct{}{}
		}

		minted = make([]domain.KeyRecord, 0, req.Amount)
		for i := 0; i < req.Amount; i++ {
			id, err := m.freshID(taken)
			if err != nil {
				return false, err
			}
			taken[id] = struct{}{}

			rec := domain.KeyRecord{
				ID:        id,
				CreatedAt: now,
				Kind:      req.Kind,
				Active:    true,
			}
			if req.Kind == domain.KeyKindTemporary {
				exp := now.Add(req.TTL)
				mins := int(req.TTL / time.Minute)
				rec.ExpiresAt = &exp
				rec.ExpiresInMinutes = &mins
			}
			c.Keys = append(c.Keys, rec)
			minted = append(minted, rec.Clone())
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if m.metrics != nil {
		m.metrics.KeysMinted.Add(ctx, int64(len(minted)))
	}
	return minted, nil
}

func (m *Manager) checkMint(req *MintRequest) error {
	if req.Kind == "" {
		req.Kind = domain.KeyKindPermanent
	}
	if !req.Kind.Valid() {
		return invalidf("unknown key type %q", req.Kind)
	}
	if req.Amount < 1 || req.Amount > m.limits.MaxBatch {
		return invalidf("amount must be between 1 and %d", m.limits.MaxBatch)
	}
	switch req.Kind {
	case domain.KeyKindTemporary:
		if req.TTL < m.limits.MinTTL || req.TTL > m.limits.MaxTTL {
			return invalidf("lifetime must be between %s and %s", m.limits.MinTTL, m.limits.MaxTTL)
		}
	case domain.KeyKindPermanent:
		if req.TTL != 0 {
			return invalidf("permanent keys cannot have a lifetime")
		}
	}
	return nil
}

func (m *Manager) freshID(taken map[string]struct{}) (string, error) {
	for attempt := 1; attempt <= maxIDAttempts; attempt++ {
		id, err := m.ids.NewID()
		if err != nil {
			return "", err
		}
		if id == "" {
			return "", errors.New("generate key id: empty id")
		}
		if _, dup := taken[id]; !dup {
			return id, nil
		}
		m.logger.Warn("generated key id collided, drawing again", slog.Int("attempt", attempt))
	}
	return "", fmt.Errorf("generate key id: %d consecutive collisions", maxIDAttempts)
}

// Delete removes the key. A miss returns ErrNotFound and leaves the store untouched.
func (m *Manager) Delete(ctx context.Context, id string) (err error) {
	ctx, span, start := m.startOp(ctx, "delete")
	defer func() { m.endOp(ctx, span, "delete", start, err) }()

	if id == "" {
		return invalidf("key is required")
	}
	return m.mutate(ctx, func(c *domain.KeyCollection) (bool, error) {
		i := indexOf(c, id)
		if i < 0 {
			return false, notFound(id)
		}
		c.Keys = slices.Delete(c.Keys, i, i+1)
		return true, nil
	})
}

// ResetHWID clears the binding and increments the reset counter, whether or
// not the key was bound.
func (m *Manager) ResetHWID(ctx context.Context, id string) (rec domain.KeyRecord, err error) {
	ctx, span, start := m.startOp(ctx, "reset_hwid")
	defer func() { m.endOp(ctx, span, "reset_hwid", start, err) }()

	if id == "" {
		return rec, invalidf("key is required")
	}
	err = m.mutate(ctx, func(c *domain.KeyCollection) (bool, error) {
		i := indexOf(c, id)
		if i < 0 {
			return false, notFound(id)
		}
		now := m.now()
		k := &c.Keys[i]
		k.HWID = nil
		k.HWIDResets++
		k.LastHWIDReset = &now
		rec = k.Clone()
		return true, nil
	})
	return rec, err
}

// Bind attaches hwid to an unbound key. Binding the same hwid again succeeds
// without writing; a different hwid fails with ErrAlreadyBound. Revoked or
// expired keys fail with ErrInactive.
func (m *Manager) Bind(ctx context.Context, id, hwid string) (res BindResult, err error) {
	ctx, span, start := m.startOp(ctx, "bind")
	defer func() { m.endOp(ctx, span, "bind", start, err) }()

	hwid = strings.TrimSpace(hwid)
	if id == "" {
		return res, invalidf("key is required")
	}
	if hwid == "" {
		return res, invalidf("hwid is required")
	}

	err = m.mutate(ctx, func(c *domain.KeyCollection) (bool, error) {
		i := indexOf(c, id)
		if i < 0 {
			return false, notFound(id)
		}
		k := &c.Keys[i]
		if !k.Active || k.ExpiredAt(m.now()) {
			return false, fmt.Errorf("%w: %s", ErrInactive, id)
		}
		if k.Bound() {
			if k.BoundTo() != hwid {
				return false, fmt.Errorf("%w: %s", ErrAlreadyBound, id)
			}
			res = BindResult{Key: k.Clone()}
			return false, nil
		}
		h := hwid
		k.HWID = &h
		res = BindResult{Key: k.Clone(), NewlyBound: true}
		return true, nil
	})
	return res, err
}

// Revoke deactivates the key and keeps its record. Revoking an inactive key
// is a successful no-op.
func (m *Manager) Revoke(ctx context.Context, id string) (rec domain.KeyRecord, err error) {
	ctx, span, start := m.startOp(ctx, "revoke")
	defer func() { m.endOp(ctx, span, "revoke", start, err) }()

	if id == "" {
		return rec, invalidf("key is required")
	}
	err = m.mutate(ctx, func(c *domain.KeyCollection) (bool, error) {
		i := indexOf(c, id)
		if i < 0 {
			return false, notFound(id)
		}
		k := &c.Keys[i]
		if !k.Active {
			rec = k.Clone()
			return false, nil
		}
		now := m.now()
		k.Active = false
		k.RevokedAt = &now
		rec = k.Clone()
		return true, nil
	})
	return rec, err
}

// mutate runs fn inside the critical section and saves only when fn reports a change.
func (m *Manager) mutate(ctx context.Context, fn func(c *domain.KeyCollection) (bool, error)) error {
	unlock, err := m.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	c, err := m.store.Load(ctx)
	if err != nil {
		return NewStorageError("load", err)
	}
	changed, err := fn(c)
	if err != nil || !changed {
		return err
	}
	if err := m.store.Save(ctx, c); err != nil {
		m.logger.ErrorContext(ctx, "failed to save key collection", slog.String("error", err.Error()))
		return NewStorageError("save", err)
	}
	if m.metrics != nil {
		m.metrics.StoreSaves.Add(ctx, 1)
	}
	return nil
}

// read loads the collection under the lock for a pure query.
func (m *Manager) read(ctx context.Context, fn func(c *domain.KeyCollection) error) error {
	unlock, err := m.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	c, err := m.store.Load(ctx)
	if err != nil {
		return NewStorageError("load", err)
	}
	return fn(c)
}

func (m *Manager) lock(ctx context.Context) (func(), error) {
	start := time.Now()
	unlock, err := m.locker.Lock(ctx)
	if m.metrics != nil {
		m.metrics.LockWait.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("acquire key lock: %w", ctxErr)
		}
		return nil, NewStorageError("lock", err)
	}
	return unlock, nil
}
