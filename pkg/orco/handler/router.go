package handler

import (
	"context"
	"log/slog"

	"github.com/flowcore/orco/pkg/orco/event"
	"github.com/flowcore/orco/pkg/orco/violation"
)

// Registration binds one event type to the handler that accepts it.
type Registration struct {
	EventType string
	Handler   *Handler
}

// RouterOption configures a Router at construction time.
type RouterOption func(*Router)

func WithExecutionUnits(units float64) RouterOption {
	return func(r *Router) { r.executionUnits = units }
}

// WithPoisonDetection enables the poison-event guard: events whose id fails
// at least threshold times are routed to poisonHandler instead of the
// normally registered handler.
func WithPoisonDetection(threshold, maxTracked int, poisonHandler *Handler) RouterOption {
	return func(r *Router) {
		r.poison = NewDetector(threshold, maxTracked)
		r.poisonHandler = poisonHandler
	}
}

func WithRouterLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) { r.logger = logger }
}

// Router is a fan-in router: maps event type to handler, validates the
// event's `to` against its own source identity, and adds its own
// executionunits to those of every emitted event.
type Router struct {
	source         string
	executionUnits float64
	handlers       map[string]*Handler

	poison        *Detector
	poisonHandler *Handler

	logger *slog.Logger
}

// NewRouter constructs a Router. Two registrations for the same event type
// is a Config error.
func NewRouter(source string, registrations []Registration, opts ...RouterOption) (*Router, error) {
	if source == "" {
		return nil, violation.NewConfig("router source is required", nil)
	}
	handlers := make(map[string]*Handler, len(registrations))
	for _, reg := range registrations {
		if reg.Handler == nil {
			return nil, violation.NewConfig("registration for event type "+reg.EventType+" has a nil handler", nil)
		}
		if _, exists := handlers[reg.EventType]; exists {
			return nil, violation.NewConfig("duplicate handler registration for event type "+reg.EventType, nil)
		}
		handlers[reg.EventType] = reg.Handler
	}

	r := &Router{
		source:         source,
		executionUnits: 0,
		handlers:       handlers,
		logger:         discardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Source returns the router's own consumer identity, satisfying Executor.
func (r *Router) Source() string {
	return r.source
}

// SystemErrorSchema always returns nil: a router fans in to many handlers,
// each with its own contract and error schema, so it owns none itself.
func (r *Router) SystemErrorSchema() event.Schema {
	return nil
}

// Dispatch routes evt to its registered handler by type, after checking
// evt.To against the router's own source identity.
func (r *Router) Dispatch(ctx context.Context, evt event.Event) (Result, error) {
	if evt.To != r.source {
		return Result{}, violation.NewConfig("event.to "+evt.To+" does not match router source "+r.source, nil)
	}

	if r.poison != nil && r.poisonHandler != nil && r.poison.IsPoison(evt.ID) {
		r.logger.Warn("event routed to poison handler", slog.String("event_id", evt.ID), slog.String("event_type", evt.Type))
		return r.dispatchTo(ctx, r.poisonHandler, evt)
	}

	h, ok := r.handlers[evt.Type]
	if !ok {
		return Result{}, violation.NewConfig("no handler registered for event type "+evt.Type, nil)
	}
	return r.dispatchTo(ctx, h, evt)
}

func (r *Router) dispatchTo(ctx context.Context, h *Handler, evt event.Event) (Result, error) {
	result, err := h.Execute(ctx, evt)
	if err != nil {
		if r.poison != nil {
			r.poison.RecordFailure(evt.ID)
		}
		return Result{}, err
	}
	if r.poison != nil {
		r.poison.Reset(evt.ID)
	}

	for i := range result.Events {
		result.Events[i].ExecutionUnits += r.executionUnits
	}
	return result, nil
}
