// Package resumable implements the imperative resumable handler: an
// alternative to the orchestrator that drives a workflow instance with a
// plain user function instead of a state-machine Logic/Actor, correlating
// service responses against the events it is still awaiting.
package resumable

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flowcore/orco/pkg/orco/domain"
	"github.com/flowcore/orco/pkg/orco/emit"
	"github.com/flowcore/orco/pkg/orco/event"
	"github.com/flowcore/orco/pkg/orco/machine"
	"github.com/flowcore/orco/pkg/orco/observability"
	"github.com/flowcore/orco/pkg/orco/resource"
	"github.com/flowcore/orco/pkg/orco/schema"
	"github.com/flowcore/orco/pkg/orco/validate"
	"github.com/flowcore/orco/pkg/orco/violation"
)

// Input is what a HandlerFunc receives for one invocation:
// {context, collectedEvents, input|service, contracts, domain}. Exactly one
// of Input/Service is populated, per the initialization-call / response-call
// distinction; span and request metadata travel on ctx instead of as
// separate fields, the idiomatic Go equivalent.
type Input struct {
	Context         json.RawMessage
	Input           any
	Service         *event.Event
	CollectedEvents map[string][]event.Event
	Self            *event.Contract
	Services        []*event.Contract
	Domain          *string
}

// Output is what a HandlerFunc returns. Context carries the new user
// context forward unchanged if nil. Done marks terminal status; Output is
// only meaningful when Done is true. Services are raw emits built exactly
// like a machine step's emits.
type Output struct {
	Context  json.RawMessage
	Done     bool
	Output   any
	Services []machine.RawEmit
}

// HandlerFunc is the user-supplied per-version imperative handler.
type HandlerFunc func(ctx context.Context, in Input) (Output, error)

// Result is what Execute returns: the fully built, validated events ready
// for transport.
type Result struct {
	Events []event.Event
}

// Source returns the event type this handler accepts, satisfying
// handler.Executor.
func (h *Handler) Source() string {
	return h.selfSource
}

// SystemErrorSchema returns the self contract's system-error payload
// schema, satisfying handler.Executor.
func (h *Handler) SystemErrorSchema() event.Schema {
	if ver, ok := h.selfContract.Version(event.WildcardVersion); ok {
		return ver.SystemError
	}
	return nil
}

// Option configures a Handler at construction time.
type Option func(*Handler)

func WithServiceContracts(contracts ...*event.Contract) Option {
	return func(h *Handler) { h.serviceContracts = contracts }
}

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

// Handler binds one orchestrator-shaped self contract to a per-version
// imperative function.
type Handler struct {
	selfSource       string
	selfContract     *event.Contract
	serviceContracts []*event.Contract
	versions         map[string]HandlerFunc

	resource *resource.Resource
	schemas  *schema.Cache

	systemErrorDomain     []domain.Token
	defaultExecutionUnits float64

	spans   observability.SpanManager
	metrics observability.MetricsRecorder
	logger  *slog.Logger

	instanceToken string
}

// New constructs a Handler. selfContract must be an orchestrator contract
// (declares a completeEventType), since a resumable handler's "done" output
// is built into a completion event exactly like the orchestrator's
// machine-done branch. versions must cover at least one of selfContract's
// declared versions.
func New(selfContract *event.Contract, versions map[string]HandlerFunc, res *resource.Resource, schemas *schema.Cache, opts ...Option) (*Handler, error) {
	if selfContract == nil {
		return nil, violation.NewConfig("self contract is required", nil)
	}
	if !selfContract.IsOrchestrator() {
		return nil, violation.NewConfig("self contract "+selfContract.Uri+" declares no completeEventType", nil)
	}
	if len(versions) == 0 {
		return nil, violation.NewConfig("resumable handler requires at least one version function", nil)
	}
	for v := range versions {
		if _, ok := selfContract.Versions[v]; !ok {
			return nil, violation.NewConfig("handler declares version "+v+" not present on self contract "+selfContract.Uri, nil)
		}
	}

	h := &Handler{
		selfSource:            selfContract.Type,
		selfContract:          selfContract,
		versions:              versions,
		resource:               res,
		schemas:                schemas,
		defaultExecutionUnits: 1,
		spans:                 observability.NewSpanManager(),
		metrics:               observability.NewMetricsRecorder(),
		logger:                discardLogger(),
		instanceToken:         uuid.New().String(),
	}
	for _, opt := range opts {
		opt(h)
	}

	if err := event.ValidateContractSet(selfContract, h.serviceContracts); err != nil {
		return nil, violation.NewConfig(err.Error(), nil)
	}

	return h, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// Execute runs one event through the handler, following the same
// lock/load/validate/persist shape as the orchestrator, but driving a
// user function instead of a state-machine step.
func (h *Handler) Execute(ctx context.Context, evt event.Event) (result Result, execErr error) {
	started := time.Now()
	logger := observability.EnrichLogger(h.logger, evt.Subject, evt.Type, evt.ID)
	execCtx, span := h.spans.StartExecuteSpan(ctx, h.selfSource, evt.Subject)
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

	subj, ok := decodeSubject(evt.Subject)
	if !ok || subj.Orchestrator.Name != h.selfSource {
		observability.LogBenignMisroute(logger, evt.Subject, "subject does not resolve to this handler")
		outcome = "benign"
		return Result{}, nil
	}

	defer h.resource.Unlock(execCtx, evt.Subject, h.instanceToken)
	if err := h.resource.Lock(execCtx, evt.Subject, h.instanceToken); err != nil {
		outcome = "violation"
		return Result{}, err
	}

	prevRaw, err := h.resource.Read(execCtx, evt.Subject)
	if err != nil {
		outcome = "violation"
		return Result{}, err
	}

	var rec *Record
	if prevRaw != nil {
		r, uerr := unmarshalRecord(prevRaw)
		if uerr != nil {
			outcome = "violation"
			return Result{}, violation.NewTransaction(violation.ReadFailure, "stored resumable record for subject "+evt.Subject+" does not decode", uerr)
		}
		rec = &r
	}

	if rec != nil && (rec.Status == StatusFailure || rec.Status == StatusDone) {
		observability.LogAbsorbedFailure(logger, evt.Subject)
		outcome = "absorbed"
		return Result{}, nil
	}

	if rec == nil && evt.Type != h.selfSource {
		observability.LogBenignMisroute(logger, evt.Subject, "no existing record and event is not an init event")
		outcome = "benign"
		return Result{}, nil
	}

	version := subj.Orchestrator.Version
	fn, ok := h.versions[version]
	if !ok {
		outcome = "violation"
		return Result{}, violation.NewConfig("no handler registered for version "+version, nil)
	}
	selfVer, ok := h.selfContract.Version(version)
	if !ok {
		outcome = "violation"
		return Result{}, violation.NewConfig("self contract has no version "+version, nil)
	}

	vr := validate.Validate(evt, h.selfContract, h.serviceContracts, h.schemas)
	if !vr.Ok() {
		outcome = "violation"
		return Result{}, classifyValidationFailure(vr)
	}

	var parentSubject *string
	initEventID := evt.ID
	var consumed, produced []string
	expected := map[string][]event.Event{}
	var userContext json.RawMessage
	if rec != nil {
		parentSubject = rec.ParentSubject
		initEventID = rec.InitEventID
		consumed = rec.Events.Consumed
		produced = rec.Events.Produced
		userContext = rec.Context
		for k, v := range rec.Events.Expected {
			expected[k] = v
		}
	} else if ps, ok := extractParentSubject(evt.Data); ok {
		parentSubject = &ps
	}

	in := Input{
		Context:  userContext,
		Self:     h.selfContract,
		Services: h.serviceContracts,
		Domain:   evt.Domain,
	}
	if vr.IsSelf {
		in.Input = evt.Data
	} else {
		in.Service = &evt
		if _, ok := expected[evt.ParentID]; ok {
			expected[evt.ParentID] = append(expected[evt.ParentID], evt)
		}
	}
	in.CollectedEvents = reshapeCollected(expected)

	handlerCtx, handlerSpan := h.spans.StartStepSpan(execCtx, h.selfSource, version)
	handlerStart := time.Now()
	out, handlerErr := fn(handlerCtx, in)
	h.spans.EndSpanWithError(handlerSpan, handlerErr)
	h.metrics.RecordStep(handlerCtx, h.selfSource, time.Since(handlerStart), handlerErr)

	if handlerErr != nil {
		if v, ok := violation.As(handlerErr); ok {
			outcome = "violation"
			return Result{}, v
		}
		outcome = "system_error"
		return h.handleWorkflowError(execCtx, logger, evt, prevRaw, parentSubject, initEventID, handlerErr)
	}

	var rawEmits []machine.RawEmit
	rawEmits = append(rawEmits, out.Services...)
	if out.Done {
		rawEmits = append(rawEmits, finalOutputEmit(selfVer, parentSubject, out.Output))
	}

	emitCtx := emit.Context{
		SourceEvent:           evt,
		SelfSource:            h.selfSource,
		SelfContract:          h.selfContract,
		SelfVersion:           version,
		ServiceContracts:      h.serviceContracts,
		ParentSubject:         parentSubject,
		InitEventID:           initEventID,
		DefaultExecutionUnits: h.defaultExecutionUnits,
		Schemas:               h.schemas,
	}

	built := make([]event.Event, 0, len(rawEmits))
	for _, raw := range rawEmits {
		evts, berr := emit.Build(raw, emitCtx)
		if berr != nil {
			if v, ok := violation.As(berr); ok {
				outcome = "violation"
				return Result{}, v
			}
			outcome = "system_error"
			return h.handleWorkflowError(execCtx, logger, evt, prevRaw, parentSubject, initEventID, berr)
		}
		built = append(built, evts...)
	}

	consumed = append(consumed, evt.ID)
	newExpected := expected
	if len(out.Services) > 0 {
		newExpected = make(map[string][]event.Event, len(built))
		for _, e := range built {
			newExpected[e.ID] = []event.Event{}
		}
	}
	for _, e := range built {
		produced = append(produced, e.ID)
	}

	newContext := userContext
	if out.Context != nil {
		newContext = out.Context
	}

	status := StatusActive
	if out.Done {
		status = StatusDone
	}

	newRec := Record{
		Status:        status,
		Subject:       evt.Subject,
		ParentSubject: parentSubject,
		InitEventID:   initEventID,
		Context:       newContext,
		Events:        EventLog{Consumed: consumed, Produced: produced, Expected: newExpected},
	}
	newBytes, merr := marshalRecord(newRec)
	if merr != nil {
		outcome = "violation"
		return Result{}, violation.NewExecution("failed to marshal resumable record for subject "+evt.Subject, merr)
	}
	if werr := h.resource.Write(execCtx, evt.Subject, newBytes, prevRaw); werr != nil {
		outcome = "violation"
		return Result{}, werr
	}

	observability.LogExecuteComplete(logger, evt.Subject, float64(time.Since(started).Microseconds())/1000.0, len(built))
	for _, e := range built {
		h.metrics.RecordEmit(execCtx, e.Type, int64(len(newBytes)))
	}
	return Result{Events: built}, nil
}

func decodeSubject(s string) (event.Subject, bool) {
	subj, err := event.Decode(s)
	if err != nil {
		return event.Subject{}, false
	}
	return subj, true
}

func extractParentSubject(data any) (string, bool) {
	m, ok := data.(map[string]any)
	if !ok {
		return "", false
	}
	ps, ok := m["parentSubject$$"]
	if !ok || ps == nil {
		return "", false
	}
	s, ok := ps.(string)
	return s, ok && s != ""
}

func classifyValidationFailure(vr validate.Result) error {
	if vr.Outcome == validate.ContractUnresolved {
		return violation.NewConfig(vr.Message, nil)
	}
	return violation.NewContract(vr.Message, nil)
}

// finalOutputEmit synthesizes the completion emit for a Done output, the
// resumable analogue of the orchestrator's machine.Done branch.
func finalOutputEmit(selfVer *event.Version, parentSubject *string, output any) machine.RawEmit {
	tokens := []domain.Token{domain.Local}
	if parentSubject != nil {
		if parsed, err := event.Decode(*parentSubject); err == nil && parsed.Domain != nil {
			tokens = []domain.Token{domain.Literal(*parsed.Domain)}
		}
	}
	return machine.RawEmit{
		Type:   selfVer.CompleteEventType,
		Data:   output,
		Domain: tokens,
	}
}
