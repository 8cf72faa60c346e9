// Package domain contains the core domain models for keyforge.
// These types serve as the Single Source of Truth (SSOT) for all layers of the application.
package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// KeyKind is the lifetime class of a license key
type KeyKind string

const (
	KeyKindPermanent KeyKind = "permanent"
	KeyKindTemporary KeyKind = "temporary"
)

// Valid reports whether k is a known kind
func (k KeyKind) Valid() bool {
	return k == KeyKindPermanent || k == KeyKindTemporary
}

// KeyRecord is one issued license key and its binding state
type KeyRecord struct {
	ID               string     `json:"key"`
	CreatedAt        time.Time  `json:"created"`
	Kind             KeyKind    `json:"type"`
	HWID             *string    `json:"hwid"`
	Active           bool       `json:"active"`
	HWIDResets       int        `json:"hwid_resets"`
	ExpiresAt        *time.Time `json:"expiresAt,omitempty"`
	ExpiresInMinutes *int       `json:"expiresInMinutes,omitempty"`
	RevokedAt        *time.Time `json:"revoked_at,omitempty"`
	LastHWIDReset    *time.Time `json:"hwidReset,omitempty"`
}

// Bound reports whether the key is attached to a hardware id
func (r *KeyRecord) Bound() bool {
	return r.HWID != nil && *r.HWID != ""
}

// BoundTo returns the bound hardware id or "".
func (r *KeyRecord) BoundTo() string {
	if r.HWID == nil {
		return ""
	}
	return *r.HWID
}

// ExpiredAt reports whether a temporary key has reached its expiry at now.
// Permanent keys never expire.
func (r *KeyRecord) ExpiredAt(now time.Time) bool {
	if r.Kind != KeyKindTemporary || r.ExpiresAt == nil {
		return false
	}
	return !now.Before(*r.ExpiresAt)
}

// Clone returns a deep copy so callers cannot alias stored pointers
func (r KeyRecord) Clone() KeyRecord {
	out := r
	if r.HWID != nil {
		h := *r.HWID
		out.HWID = &h
	}
	out.ExpiresAt = cloneTime(r.ExpiresAt)
	out.RevokedAt = cloneTime(r.RevokedAt)
	out.LastHWIDReset = cloneTime(r.LastHWIDReset)
	if r.ExpiresInMinutes != nil {
		m := *r.ExpiresInMinutes
		out.ExpiresInMinutes = &m
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// legacyTimeLayouts are accepted when reading documents written without a zone offset.
var legacyTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseKeyTime parses a stored timestamp, including zone-less legacy values
func ParseKeyTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range legacyTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// UnmarshalJSON applies the document defaults: type permanent, active true,
// hwid_resets 0. Timestamps without an offset are read as UTC.
func (r *KeyRecord) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID               string  `json:"key"`
		CreatedAt        string  `json:"created"`
		Kind             KeyKind `json:"type"`
		HWID             *string `json:"hwid"`
		Active           *bool   `json:"active"`
		HWIDResets       int     `json:"hwid_resets"`
		ExpiresAt        *string `json:"expiresAt"`
		ExpiresInMinutes *int    `json:"expiresInMinutes"`
		RevokedAt        *string `json:"revoked_at"`
		LastHWIDReset    *string `json:"hwidReset"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	rec := KeyRecord{
		ID:               raw.ID,
		Kind:             raw.Kind,
		HWID:             raw.HWID,
		Active:           true,
		HWIDResets:       raw.HWIDResets,
		ExpiresInMinutes: raw.ExpiresInMinutes,
	}
	if rec.Kind == "" {
		rec.Kind = KeyKindPermanent
	}
	if !rec.Kind.Valid() {
		return fmt.Errorf("key %s: unknown type %q", raw.ID, raw.Kind)
	}
	if raw.Active != nil {
		rec.Active = *raw.Active
	}
	if rec.HWIDResets < 0 {
		return fmt.Errorf("key %s: negative hwid_resets %d", raw.ID, raw.HWIDResets)
	}
	if raw.CreatedAt != "" {
		t, err := ParseKeyTime(raw.CreatedAt)
		if err != nil {
			return fmt.Errorf("key %s: created: %w", raw.ID, err)
		}
		rec.CreatedAt = t
	}

	var err error
	if rec.ExpiresAt, err = parseOptionalTime(raw.ExpiresAt); err != nil {
		return fmt.Errorf("key %s: expiresAt: %w", raw.ID, err)
	}
	if rec.RevokedAt, err = parseOptionalTime(raw.RevokedAt); err != nil {
		return fmt.Errorf("key %s: revoked_at: %w", raw.ID, err)
	}
	if rec.LastHWIDReset, err = parseOptionalTime(raw.LastHWIDReset); err != nil {
		return fmt.Errorf("key %s: hwidReset: %w", raw.ID, err)
	}

	*r = rec
	return nil
}

func parseOptionalTime(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := ParseKeyTime(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// KeyCollection is the persisted document: every key in insertion order
type KeyCollection struct {
	Keys []KeyRecord `json:"keys"`
}

// KeyFilter selects records for listing
type KeyFilter string

const (
	KeyFilterAll       KeyFilter = "all"
	KeyFilterPermanent KeyFilter = "permanent"
	KeyFilterTemporary KeyFilter = "temporary"
	KeyFilterActive    KeyFilter = "active"
	KeyFilterExpired   KeyFilter = "expired"
	KeyFilterBound     KeyFilter = "bound"
	KeyFilterUnbound   KeyFilter = "unbound"
)

// Match reports whether rec passes the filter. An empty filter matches everything.
func (f KeyFilter) Match(rec *KeyRecord) bool {
	switch f {
	case "", KeyFilterAll:
		return true
	case KeyFilterPermanent:
		return rec.Kind == KeyKindPermanent
	case KeyFilterTemporary:
		return rec.Kind == KeyKindTemporary
	case KeyFilterActive:
		return rec.Active
	case KeyFilterExpired:
		return !rec.Active
	case KeyFilterBound:
		return rec.Bound()
	case KeyFilterUnbound:
		return !rec.Bound()
	}
	return false
}

// Valid reports whether f is a known filter
func (f KeyFilter) Valid() bool {
	switch f {
	case "", KeyFilterAll, KeyFilterPermanent, KeyFilterTemporary,
		KeyFilterActive, KeyFilterExpired, KeyFilterBound, KeyFilterUnbound:
		return true
	}
	return false
}

// KeyStats aggregates the collection
type KeyStats struct {
	TotalKeys  int `json:"totalKeys"`
	Permanent  int `json:"permanent"`
	Temporary  int `json:"temporary"`
	Active     int `json:"active"`
	Expired    int `json:"expired"`
	HWIDResets int `json:"hwidResets"`
	Bound      int `json:"bound"`
	Unbound    int `json:"unbound"`
}

// TimeInfo reports the remaining lifetime of a key
type TimeInfo struct {
	Key             string     `json:"key"`
	Kind            KeyKind    `json:"type"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
	Expired         bool       `json:"expired"`
	Never           bool       `json:"never,omitempty"`
	TimeLeftMinutes int        `json:"timeLeftMinutes"`
	Active          bool       `json:"active"`
}

// ValidationResult is the outcome of a client validation request
type ValidationResult struct {
	Valid      bool       `json:"valid"`
	Reason     string     `json:"reason,omitempty"`
	Key        string     `json:"key"`
	Kind       KeyKind    `json:"type,omitempty"`
	NewlyBound bool       `json:"newly_bound"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	CheckedAt  time.Time  `json:"checked_at"`
}

// Validation failure reasons
const (
	ReasonNotFound     = "KEY_NOT_FOUND"
	ReasonInactive     = "KEY_INACTIVE"
	ReasonAlreadyBound = "HWID_MISMATCH"
)
