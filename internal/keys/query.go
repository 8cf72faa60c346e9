package keys

import (
	"context"
	"time"

	"keyforge/pkg/contracts/domain"
)

// Get returns a copy of the record for id.
func (m *Manager) Get(ctx context.Context, id string) (rec domain.KeyRecord, err error) {
	ctx, span, start := m.startOp(ctx, "get")
	defer func() { m.endOp(ctx, span, "get", start, err) }()

	if id == "" {
		return rec, invalidf("key is required")
	}
	err = m.read(ctx, func(c *domain.KeyCollection) error {
		i := indexOf(c, id)
		if i < 0 {
			return notFound(id)
		}
		rec = c.Keys[i].Clone()
		return nil
	})
	return rec, err
}

// List returns the records passing filter, in insertion order.
func (m *Manager) List(ctx context.Context, filter domain.KeyFilter) (out []domain.KeyRecord, err error) {
	ctx, span, start := m.startOp(ctx, "list")
	defer func() { m.endOp(ctx, span, "list", start, err) }()

	if !filter.Valid() {
		return nil, invalidf("unknown filter %q", filter)
	}
	err = m.read(ctx, func(c *domain.KeyCollection) error {
		out = make([]domain.KeyRecord, 0, len(c.Keys))
		for i := range c.Keys {
			if filter.Match(&c.Keys[i]) {
				out = append(out, c.Keys[i].Clone())
			}
		}
		return nil
	})
	return out, err
}

// CheckTime reports remaining lifetime. With an empty id it covers every
// temporary key; otherwise the single key named, permanent or not.
func (m *Manager) CheckTime(ctx context.Context, id string) (out []domain.TimeInfo, err error) {
	ctx, span, start := m.startOp(ctx, "check_time")
	defer func() { m.endOp(ctx, span, "check_time", start, err) }()

	err = m.read(ctx, func(c *domain.KeyCollection) error {
		now := m.now()
		if id != "" {
			i := indexOf(c, id)
			if i < 0 {
				return notFound(id)
			}
			out = []domain.TimeInfo{TimeLeft(&c.Keys[i], now)}
			return nil
		}
		out = []domain.TimeInfo{}
		for i := range c.Keys {
			if c.Keys[i].Kind == domain.KeyKindTemporary {
				out = append(out, TimeLeft(&c.Keys[i], now))
			}
		}
		return nil
	})
	return out, err
}

// TimeLeft computes the lifetime report of rec at now. Minutes are floored
// and never negative.
func TimeLeft(rec *domain.KeyRecord, now time.Time) domain.TimeInfo {
	info := domain.TimeInfo{Key: rec.ID, Kind: rec.Kind, Active: rec.Active}
	if rec.Kind != domain.KeyKindTemporary || rec.ExpiresAt == nil {
		info.Never = true
		return info
	}
	exp := *rec.ExpiresAt
	info.ExpiresAt = &exp
	info.Expired = rec.ExpiredAt(now)
	if left := exp.Sub(now); left > 0 {
		info.TimeLeftMinutes = int(left / time.Minute)
	}
	return info
}

// Stats aggregates the collection without writing.
func (m *Manager) Stats(ctx context.Context) (st domain.KeyStats, err error) {
	ctx, span, start := m.startOp(ctx, "stats")
	defer func() { m.endOp(ctx, span, "stats", start, err) }()

	err = m.read(ctx, func(c *domain.KeyCollection) error {
		st = ComputeStats(c)
		return nil
	})
	return st, err
}

// ComputeStats aggregates c. Expired is every key that is not active.
func ComputeStats(c *domain.KeyCollection) domain.KeyStats {
	var st domain.KeyStats
	for i := range c.Keys {
		rec := &c.Keys[i]
		st.TotalKeys++
		switch rec.Kind {
		case domain.KeyKindTemporary:
			st.Temporary++
		default:
			st.Permanent++
		}
		if rec.Active {
			st.Active++
		}
		if rec.Bound() {
			st.Bound++
		}
		st.HWIDResets += rec.HWIDResets
	}
	st.Expired = st.TotalKeys - st.Active
	st.Unbound = st.TotalKeys - st.Bound
	return st
}

// ExpireDue deactivates every active temporary key whose expiry has passed
// and returns their ids. It saves once, and only when something changed.
func (m *Manager) ExpireDue(ctx context.Context) (ids []string, err error) {
	ctx, span, start := m.startOp(ctx, "expire")
	defer func() { m.endOp(ctx, span, "expire", start, err) }()

	err = m.mutate(ctx, func(c *domain.KeyCollection) (bool, error) {
		now := m.now()
		for i := range c.Keys {
			k := &c.Keys[i]
			if k.Active && k.ExpiredAt(now) {
				k.Active = false
				ids = append(ids, k.ID)
			}
		}
		return len(ids) > 0, nil
	})
	return ids, err
}

// Cleanup removes temporary keys whose expiry has passed and returns their ids.
func (m *Manager) Cleanup(ctx context.Context) (ids []string, err error) {
	ctx, span, start := m.startOp(ctx, "cleanup")
	defer func() { m.endOp(ctx, span, "cleanup", start, err) }()

	err = m.mutate(ctx, func(c *domain.KeyCollection) (bool, error) {
		now := m.now()
		kept := c.Keys[:0]
		for _, rec := range c.Keys {
			if rec.ExpiredAt(now) {
				ids = append(ids, rec.ID)
				continue
			}
			kept = append(kept, rec)
		}
		if len(ids) == 0 {
			return false, nil
		}
		c.Keys = kept
		return true, nil
	})
	return ids, err
}
