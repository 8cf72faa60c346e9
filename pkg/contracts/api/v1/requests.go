// Package api contains the HTTP contract of the keyforge service.
// Version v1 represents the current stable API version.
package api

import (
	"keyforge/pkg/contracts/domain"
)

// GenerateRequest mints permanent keys. Amount defaults to 1; the upper
// bound is the configured keys.max_batch and is checked by the key manager.
type GenerateRequest struct {
	Amount int `json:"amount" validate:"omitempty,min=1"`
}

// TempKeyRequest mints temporary keys living Time minutes, at most
// keys.max_ttl_minutes.
type TempKeyRequest struct {
	Time   int `json:"time" validate:"required,min=1"`
	Amount int `json:"amount" validate:"omitempty,min=1"`
}

// KeyRequest names one key for delete, reset and revoke
type KeyRequest struct {
	Key string `json:"key" validate:"required,keyid"`
}

// BindRequest attaches a key to a hardware id
type BindRequest struct {
	Key  string `json:"key" validate:"required,keyid"`
	HWID string `json:"hwid" validate:"required,hwid"`
}

// ValidateRequest is sent by client software on start-up
type ValidateRequest struct {
	Key  string `json:"key" validate:"required,keyid"`
	HWID string `json:"hwid" validate:"required,hwid"`
}

// ListKeysRequest filters the key listing
type ListKeysRequest struct {
	Type domain.KeyFilter `query:"type" validate:"omitempty,oneof=all permanent temporary active expired bound unbound"`
}

// CheckTimeRequest selects one key, or every temporary key when Key is empty
type CheckTimeRequest struct {
	Key string `query:"key" validate:"omitempty,keyid"`
}

// ExportRequest selects the export format and an optional filter
type ExportRequest struct {
	Format string           `query:"format" validate:"omitempty,oneof=csv xlsx"`
	Type   domain.KeyFilter `query:"type" validate:"omitempty,oneof=all permanent temporary active expired bound unbound"`
}
