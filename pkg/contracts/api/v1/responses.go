package api

import (
	"time"

	"keyforge/pkg/contracts/domain"
)

// GenerateResponse lists freshly minted keys
type GenerateResponse struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message"`
	Keys      []string   `json:"keys"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// MessageResponse acknowledges a lifecycle action on one key
type MessageResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Key     *domain.KeyRecord `json:"record,omitempty"`
}

// BindResponse reports the bound record
type BindResponse struct {
	Success    bool             `json:"success"`
	NewlyBound bool             `json:"newly_bound"`
	Key        domain.KeyRecord `json:"record"`
}

// ListKeysResponse is the filtered listing
type ListKeysResponse struct {
	Keys    []domain.KeyRecord `json:"keys"`
	Count   int                `json:"count"`
	Filter  string             `json:"filter"`
	Message string             `json:"message,omitempty"`
}

// CheckTimeResponse carries one key's info or every temporary key
type CheckTimeResponse struct {
	KeyInfo       *domain.TimeInfo  `json:"keyInfo,omitempty"`
	TemporaryKeys []domain.TimeInfo `json:"temporaryKeys,omitempty"`
	Count         int               `json:"count"`
}

// CleanupResponse lists removed keys
type CleanupResponse struct {
	Message      string   `json:"message"`
	RemovedCount int      `json:"removedCount"`
	Removed      []string `json:"removed"`
}

// HealthResponse is the liveness payload
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
	Store     string    `json:"store,omitempty"`
}
