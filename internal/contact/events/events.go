// Package events describes the change notifications emitted after an identify
// call mutates the contact graph, and the sinks that carry them.
package events

import (
	"context"
	"log/slog"
	"time"
)

// Type names the kind of change applied to a cluster.
type Type string

const (
	// TypeCreated: a new primary was inserted for an unseen hint.
	TypeCreated Type = "contact.created"
	// TypeLinked: a secondary carrying new information joined a cluster.
	TypeLinked Type = "contact.linked"
	// TypeMerged: one or more primaries were demoted into an older cluster.
	TypeMerged Type = "contact.merged"
)

// Event is published after the transaction that produced it commits. It holds
// ids only; email and phone values stay in the store.
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	PrimaryID  int64     `json:"primary_id"`
	ContactIDs []int64   `json:"contact_ids"`
	RequestID  string    `json:"request_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// LogPublisher writes events to a structured logger. It is the sink used when
// no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event Event) error {
	p.logger.InfoContext(ctx, "contact event",
		"event_id", event.ID,
		"type", string(event.Type),
		"primary_id", event.PrimaryID,
		"contact_ids", event.ContactIDs,
		"request_id", event.RequestID,
	)
	return nil
}

func (p *LogPublisher) Close() error {
	return nil
}
