// Package events carries mail status changes to subscribers outside the
// request that caused them.
package events

import (
	"context"
	"time"
)

// TypeStatusChanged is the event type pushed for every committed transition.
const TypeStatusChanged = "mail.status_changed"

// StatusChanged is the payload published after a transition commits.
type StatusChanged struct {
	Type       string                 `json:"type"`
	MailID     uint                   `json:"mail_id"`
	RefCode    string                 `json:"ref_code"`
	Subject    string                 `json:"subject"`
	NewStatus  string                 `json:"new_status"`
	Service    string                 `json:"assigned_service,omitempty"`
	Recipients []uint                 `json:"recipients,omitempty"`
	Extra      map[string]interface{} `json:"extra,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// Publisher delivers status change events. Implementations must not block
// the caller for longer than the context allows.
type Publisher interface {
	Publish(ctx context.Context, event StatusChanged) error
}
