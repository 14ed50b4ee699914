package handler

import (
	"context"

	"github.com/flowcore/orco/pkg/orco/event"
	"github.com/flowcore/orco/pkg/orco/observability"
	"github.com/flowcore/orco/pkg/orco/orchestrator"
	"github.com/flowcore/orco/pkg/orco/resumable"
)

// ExecuteOption carries the otel trace-inheritance choice for one Execute
// call: inherit from the triggering event's trace headers, or from the
// context already ambient on ctx.
type ExecuteOption func(*executeOptions)

type executeOptions struct {
	inheritFromContext bool
}

// WithInheritFromEvent parents the execute span on the triggering event's
// own traceparent/tracestate fields. This is the default.
func WithInheritFromEvent() ExecuteOption {
	return func(o *executeOptions) { o.inheritFromContext = false }
}

// WithInheritFromContext parents the execute span on whatever span is
// already ambient on ctx, ignoring the triggering event's trace headers.
func WithInheritFromContext() ExecuteOption {
	return func(o *executeOptions) { o.inheritFromContext = true }
}

func resolveExecuteOptions(opts []ExecuteOption) executeOptions {
	var o executeOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func inheritContext(ctx context.Context, evt *event.Event, opts []ExecuteOption) context.Context {
	o := resolveExecuteOptions(opts)
	if o.inheritFromContext {
		return ctx
	}
	return observability.InheritHeaders(ctx, evt.Traceparent, evt.Tracestate)
}

// Executor is the single handler capability set common to every handler
// shape. orchestrator.Orchestrator, resumable.Handler, Handler, and Router
// keep their own native Execute signatures and do not implement it
// directly; each is exposed as an Executor through the adapters below
// (AsExecutor, AsResumableExecutor) rather than through a shared base —
// variants of one interface, not subclasses of one type.
type Executor interface {
	Execute(ctx context.Context, evt *event.Event, opts ...ExecuteOption) ([]event.Event, error)
	Source() string
	SystemErrorSchema() event.Schema
}

// AsExecutor adapts h to Executor.
func (h *Handler) AsExecutor() Executor {
	return statelessAdapter{h}
}

type statelessAdapter struct{ h *Handler }

func (a statelessAdapter) Execute(ctx context.Context, evt *event.Event, opts ...ExecuteOption) ([]event.Event, error) {
	result, err := a.h.Execute(inheritContext(ctx, evt, opts), *evt)
	return result.Events, err
}
func (a statelessAdapter) Source() string                  { return a.h.Source() }
func (a statelessAdapter) SystemErrorSchema() event.Schema { return a.h.SystemErrorSchema() }

// AsExecutor adapts r to Executor.
func (r *Router) AsExecutor() Executor {
	return routerAdapter{r}
}

type routerAdapter struct{ r *Router }

func (a routerAdapter) Execute(ctx context.Context, evt *event.Event, opts ...ExecuteOption) ([]event.Event, error) {
	result, err := a.r.Dispatch(inheritContext(ctx, evt, opts), *evt)
	return result.Events, err
}
func (a routerAdapter) Source() string                  { return a.r.Source() }
func (a routerAdapter) SystemErrorSchema() event.Schema { return a.r.SystemErrorSchema() }

// AsExecutor adapts an Orchestrator to Executor.
func AsExecutor(o *orchestrator.Orchestrator) Executor {
	return orchestratorAdapter{o}
}

type orchestratorAdapter struct{ o *orchestrator.Orchestrator }

func (a orchestratorAdapter) Execute(ctx context.Context, evt *event.Event, opts ...ExecuteOption) ([]event.Event, error) {
	result, err := a.o.Execute(inheritContext(ctx, evt, opts), *evt)
	return result.Events, err
}
func (a orchestratorAdapter) Source() string                  { return a.o.Source() }
func (a orchestratorAdapter) SystemErrorSchema() event.Schema { return a.o.SystemErrorSchema() }

// AsResumableExecutor adapts a resumable.Handler to Executor. Named
// distinctly from AsExecutor since both take a differently-packaged
// *Handler and Go forbids overloading by parameter type.
func AsResumableExecutor(h *resumable.Handler) Executor {
	return resumableAdapter{h}
}

type resumableAdapter struct{ h *resumable.Handler }

func (a resumableAdapter) Execute(ctx context.Context, evt *event.Event, opts ...ExecuteOption) ([]event.Event, error) {
	result, err := a.h.Execute(inheritContext(ctx, evt, opts), *evt)
	return result.Events, err
}
func (a resumableAdapter) Source() string                  { return a.h.Source() }
func (a resumableAdapter) SystemErrorSchema() event.Schema { return a.h.SystemErrorSchema() }
