// Package handler implements the stateless single-contract handler and the
// fan-in router by event type: the no-state, no-lock counterpart to the
// orchestrator and resumable handler, for pure request/response event
// processing.
package handler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowcore/orco/pkg/orco/domain"
	"github.com/flowcore/orco/pkg/orco/event"
	"github.com/flowcore/orco/pkg/orco/machine"
	"github.com/flowcore/orco/pkg/orco/observability"
	"github.com/flowcore/orco/pkg/orco/schema"
	"github.com/flowcore/orco/pkg/orco/validate"
	"github.com/flowcore/orco/pkg/orco/violation"
)

// Func is the user-supplied per-version async function a stateless handler
// runs: given the validated input payload, it returns the raw events to
// emit (validated and assembled by this package, not pkg/orco/emit, since
// a stateless handler's emits are declared on its own contract rather than
// classified against self/service contracts like an orchestrator's).
type Func func(ctx context.Context, input any) ([]machine.RawEmit, error)

// Result is what Execute/Dispatch return: the built, validated events.
type Result struct {
	Events []event.Event
}

// Option configures a Handler at construction time.
type Option func(*Handler)

func WithSystemErrorDomain(tokens ...domain.Token) Option {
	return func(h *Handler) { h.systemErrorDomain = tokens }
}

func WithDefaultExecutionUnits(units float64) Option {
	return func(h *Handler) { h.defaultExecutionUnits = units }
}

func WithSpanManager(spans observability.SpanManager) Option {
	return func(h *Handler) { h.spans = spans }
}

func WithMetricsRecorder(metrics observability.MetricsRecorder) Option {
	return func(h *Handler) { h.metrics = metrics }
}

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// Handler binds one contract to a per-version Func.
type Handler struct {
	contract *event.Contract
	versions map[string]Func
	schemas  *schema.Cache

	systemErrorDomain     []domain.Token
	defaultExecutionUnits float64

	spans   observability.SpanManager
	metrics observability.MetricsRecorder
	logger  *slog.Logger
}

// New constructs a Handler. versions must cover at least one of contract's
// declared versions.
func New(contract *event.Contract, versions map[string]Func, schemas *schema.Cache, opts ...Option) (*Handler, error) {
	if contract == nil {
		return nil, violation.NewConfig("contract is required", nil)
	}
	if len(versions) == 0 {
		return nil, violation.NewConfig("stateless handler requires at least one version function", nil)
	}
	for v := range versions {
		if _, ok := contract.Versions[v]; !ok {
			return nil, violation.NewConfig("handler declares version "+v+" not present on contract "+contract.Uri, nil)
		}
	}

	h := &Handler{
		contract:              contract,
		versions:              versions,
		schemas:               schemas,
		defaultExecutionUnits: 1,
		spans:                 observability.NewSpanManager(),
		metrics:               observability.NewMetricsRecorder(),
		logger:                discardLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Source returns the event type this handler accepts.
func (h *Handler) Source() string {
	return h.contract.Type
}

// SystemErrorSchema returns the contract's system-error payload schema,
// satisfying Executor.
func (h *Handler) SystemErrorSchema() event.Schema {
	if ver, ok := h.contract.Version(event.WildcardVersion); ok {
		return ver.SystemError
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// Execute validates evt against the bound contract, runs the matching
// version's Func, and returns the resulting validated events. Contract
// violations are thrown; any other error is converted into a
// sys.<type>.error event and returned rather than thrown.
func (h *Handler) Execute(ctx context.Context, evt event.Event) (result Result, execErr error) {
	started := time.Now()
	logger := observability.EnrichLogger(h.logger, evt.Subject, evt.Type, evt.ID)
	execCtx, span := h.spans.StartExecuteSpan(ctx, h.contract.Type, evt.Subject)
	outcome := "valid"

	defer func() {
		if r := recover(); r != nil {
			v := violation.FromPanic(r)
			observability.LogExecuteViolation(logger, evt.Subject, v)
			outcome = "violation"
			result, execErr = Result{}, v
		}
		h.spans.EndSpanWithError(span, execErr)
		h.metrics.RecordExecute(execCtx, outcome, time.Since(started))
	}()

	vr := validate.Validate(evt, h.contract, nil, h.schemas)
	if !vr.Ok() {
		outcome = "violation"
		return Result{}, classifyValidationFailure(vr)
	}

	fn, ok := h.versions[vr.Version]
	if !ok {
		outcome = "violation"
		return Result{}, violation.NewConfig("no handler registered for version "+vr.Version, nil)
	}

	fnCtx, fnSpan := h.spans.StartStepSpan(execCtx, h.contract.Type, vr.Version)
	fnStart := time.Now()
	raw, fnErr := fn(fnCtx, evt.Data)
	h.spans.EndSpanWithError(fnSpan, fnErr)
	h.metrics.RecordStep(fnCtx, h.contract.Type, time.Since(fnStart), fnErr)

	if fnErr != nil {
		if v, ok := violation.As(fnErr); ok {
			outcome = "violation"
			return Result{}, v
		}
		outcome = "system_error"
		observability.LogSystemError(logger, evt.Subject, fnErr)
		return Result{Events: h.buildSystemErrorEvents(evt, fnErr)}, nil
	}

	built, berr := h.buildEmits(raw, evt)
	if berr != nil {
		outcome = "violation"
		return Result{}, berr
	}

	observability.LogExecuteComplete(logger, evt.Subject, float64(time.Since(started).Microseconds())/1000.0, len(built))
	for _, e := range built {
		h.metrics.RecordEmit(execCtx, e.Type, int64(0))
	}
	return Result{Events: built}, nil
}

// buildEmits validates and assembles each raw emit against the handler's
// own contract version, the stateless analogue of pkg/orco/emit's classify+
// assemble pipeline, simplified since a stateless handler never classifies
// a completion or a child-orchestration service call.
func (h *Handler) buildEmits(raw []machine.RawEmit, sourceEvt event.Event) ([]event.Event, error) {
	version := sourceEvtVersion(sourceEvt, h.contract)
	ver, ok := h.contract.Version(version)
	if !ok {
		return nil, violation.NewConfig("handler contract has no resolvable version", nil)
	}

	built := make([]event.Event, 0, len(raw))
	for _, r := range raw {
		schemaDoc, declared := ver.Emits[r.Type]
		if !declared {
			return nil, violation.NewConfig("handler emitted undeclared event type "+r.Type, nil)
		}

		domainCtx := domain.Context{HandlerSelfContract: h.contract, TriggeringEvent: &sourceEvt}
		resolvedDomains := domain.ResolveAll(r.Domain, domainCtx)

		for _, d := range resolvedDomains {
			if err := h.schemas.Validate(schemaDoc, r.Data); err != nil {
				return nil, violation.NewContract("payload failed schema validation for "+r.Type, err)
			}

			to := r.Type
			if r.To != nil {
				to = *r.To
			}
			units := h.defaultExecutionUnits
			if r.ExecutionUnits != nil {
				units = *r.ExecutionUnits
			}
			redirectTo := h.contract.Type
			if r.RedirectTo != nil {
				redirectTo = *r.RedirectTo
			}

			opts := []event.Option{
				event.WithTo(to),
				event.WithDataschema(event.FormatDataschema(h.contract.Uri, version)),
				event.WithParentID(sourceEvt.ID),
				event.WithTrace(sourceEvt.Traceparent, sourceEvt.Tracestate),
				event.WithDomain(d),
				event.WithExecutionUnits(units),
				event.WithRedirectTo(redirectTo),
			}
			if r.ID != nil {
				opts = append(opts, event.WithID(*r.ID))
			}
			built = append(built, event.New(r.Type, h.contract.Type, sourceEvt.Subject, r.Data, opts...))
		}
	}
	return built, nil
}

// sourceEvtVersion resolves the contract version the triggering event
// claims, falling back to the wildcard match for contracts with one
// version, mirroring the input validator's own resolution rule.
func sourceEvtVersion(evt event.Event, contract *event.Contract) string {
	if ds, ok := event.ParseDataschema(evt.Dataschema); ok && ds.Uri == contract.Uri {
		if key, _, ok := contract.ResolveVersionKey(ds.Version); ok {
			return key
		}
	}
	if key, _, ok := contract.ResolveVersionKey(event.WildcardVersion); ok {
		return key
	}
	return ""
}

func classifyValidationFailure(vr validate.Result) error {
	if vr.Outcome == validate.ContractUnresolved {
		return violation.NewConfig(vr.Message, nil)
	}
	return violation.NewContract(vr.Message, nil)
}

func (h *Handler) buildSystemErrorEvents(evt event.Event, fnErr error) []event.Event {
	errorType := "sys." + h.contract.Type + ".error"
	payload := map[string]any{
		"message": fnErr.Error(),
		"name":    fmt.Sprintf("%T", fnErr),
		"stack":   "",
	}

	tokens := h.systemErrorDomain
	if tokens == nil {
		tokens = []domain.Token{domain.FromTriggeringEvent}
	}
	domainCtx := domain.Context{HandlerSelfContract: h.contract, TriggeringEvent: &evt}
	resolvedDomains := domain.ResolveAll(tokens, domainCtx)

	events := make([]event.Event, 0, len(resolvedDomains))
	for _, d := range resolvedDomains {
		events = append(events, event.New(errorType, h.contract.Type, evt.Subject, payload,
			event.WithParentID(evt.ID),
			event.WithTrace(evt.Traceparent, evt.Tracestate),
			event.WithDomain(d),
			event.WithExecutionUnits(h.defaultExecutionUnits),
		))
	}
	return events
}
