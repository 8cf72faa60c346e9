// Package events contains the event contracts published on the key event
// stream and to webhook notifiers.
package events

import (
	"time"

	"keyforge/pkg/contracts/domain"
)

// MessageType defines the type of an event message
type MessageType string

const (
	// Key lifecycle events
	MessageTypeKeyGenerated MessageType = "key:generated"
	MessageTypeKeyDeleted   MessageType = "key:deleted"
	MessageTypeKeyHWIDReset MessageType = "key:hwid_reset"
	MessageTypeKeyRevoked   MessageType = "key:revoked"
	MessageTypeKeyBound     MessageType = "key:bound"
	MessageTypeKeyExpired   MessageType = "key:expired"
	MessageTypeKeysCleaned  MessageType = "keys:cleanup"

	// Reports
	MessageTypeStatsReport MessageType = "stats:report"

	// Connection messages
	MessageTypeConnect MessageType = "connect"
)

// BaseMessage represents the base structure for all event messages
type BaseMessage struct {
	ID        string      `json:"id,omitempty"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// KeyEvent reports a lifecycle change of one or more keys
type KeyEvent struct {
	BaseMessage
	Keys             []string         `json:"keys,omitempty"`
	Kind             domain.KeyKind   `json:"key_type,omitempty"`
	ExpiresAt        *time.Time       `json:"expiresAt,omitempty"`
	ExpiresInMinutes int              `json:"expiresInMinutes,omitempty"`
	HWID             string           `json:"hwid,omitempty"`
	HWIDResets       int              `json:"hwid_resets,omitempty"`
	Stats            *domain.KeyStats `json:"stats,omitempty"`
}

// ConnectMessage greets a new stream subscriber
type ConnectMessage struct {
	BaseMessage
	ClientID string `json:"client_id"`
	Version  string `json:"version"`
}
