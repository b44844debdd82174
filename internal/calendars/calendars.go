package calendars

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// EventDeleter removes an external artifact that was created for a booking.
// Implementations treat an already-deleted artifact as success so that
// cancellation cleanup can be retried.
type EventDeleter interface {
	DeleteEvent(ctx context.Context, userID uuid.UUID, externalID string) error
}

// Registry maps booking reference types to their deleter.
type Registry struct {
	deleters map[string]EventDeleter
}

func NewRegistry() *Registry {
	return &Registry{deleters: make(map[string]EventDeleter)}
}

func (r *Registry) Register(refType string, d EventDeleter) {
	r.deleters[refType] = d
}

func (r *Registry) DeleterFor(refType string) (EventDeleter, bool) {
	d, ok := r.deleters[refType]
	return d, ok
}

// Noop logs instead of calling an external API. Registered for reference
// types with no configured integration so cleanup never hard-fails.
type Noop struct {
	logger *slog.Logger
}

func NewNoop(logger *slog.Logger) *Noop {
	return &Noop{logger: logger}
}

func (n *Noop) DeleteEvent(ctx context.Context, userID uuid.UUID, externalID string) error {
	n.logger.Info("skipping external event deletion, no integration configured",
		"user_id", userID,
		"external_id", externalID,
	)
	return nil
}
