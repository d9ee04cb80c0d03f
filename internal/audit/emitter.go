package audit

import (
	"context"
	"log"

	"github.com/google/uuid"
)

// Event is one append-only audit entry emitted by the engines.
type Event struct {
	TenantID   uuid.UUID
	ActorID    uuid.UUID
	Action     string
	EntityType string
	EntityID   uuid.UUID
	Metadata   map[string]any
}

// Emitter receives audit events. Implementations are fire-and-forget: they
// must never block or fail the primary operation.
type Emitter interface {
	Record(ctx context.Context, event Event)
}

// LogEmitter writes audit events to the process log.
type LogEmitter struct{}

// NewLogEmitter creates a log-backed audit emitter.
func NewLogEmitter() *LogEmitter {
	return &LogEmitter{}
}

// Record implements Emitter.
func (e *LogEmitter) Record(_ context.Context, event Event) {
	log.Printf("[AUDIT] tenant=%s actor=%s action=%s entity=%s/%s metadata=%v",
		event.TenantID, event.ActorID, event.Action, event.EntityType, event.EntityID, event.Metadata)
}

// NopEmitter discards audit events.
type NopEmitter struct{}

// Record implements Emitter.
func (NopEmitter) Record(context.Context, Event) {}
