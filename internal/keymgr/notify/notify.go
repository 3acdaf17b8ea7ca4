// Package notify defines the NotificationGateway collaborator. Delivery
// beyond the gateway boundary is out of scope; the manager only needs
// acknowledgement that an event was accepted.
package notify

import (
	"context"
	"time"
)

// Kind classifies lifecycle events the gateway can emit.
type Kind string

const (
	KindExpiring    Kind = "expiring"
	KindRotated     Kind = "rotated"
	KindRevoked     Kind = "revoked"
	KindCompromised Kind = "compromised"
)

// Event is one lifecycle alert. Payload carries event-specific detail
// (never secret material).
type Event struct {
	KeyID      string         `json:"key_id"`
	Exchange   string         `json:"exchange"`
	Kind       Kind           `json:"kind"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Gateway accepts lifecycle events. All calls except the synchronous
// compromise alert are fire-and-forget from the caller's perspective;
// an error means the gateway did not accept the event.
type Gateway interface {
	Notify(ctx context.Context, event Event) error
}
