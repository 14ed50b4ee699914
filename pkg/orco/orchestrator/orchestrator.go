// Package orchestrator implements the end-to-end execution wrapper: lock →
// load → validate → step → emit → persist, driving a machine.Registry
// across many event exchanges for one workflow instance.
package orchestrator

import (
	"context"
	"fmt"
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

// Source returns the event type this orchestrator accepts, satisfying
// handler.Executor.
func (o *Orchestrator) Source() string {
	return o.selfSource
}

// SystemErrorSchema returns the self contract's system-error payload
// schema, satisfying handler.Executor.
func (o *Orchestrator) SystemErrorSchema() event.Schema {
	if ver, ok := o.selfContract.Version(event.WildcardVersion); ok {
		return ver.SystemError
	}
	return nil
}

// Result is what one Execute call returns: the events produced, ready for
// the surrounding transport to dispatch.
type Result struct {
	Events []event.Event
}

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

// WithServiceContracts registers the collaborator contracts this
// orchestrator may call out to or be called by.
func WithServiceContracts(contracts ...*event.Contract) Option {
	return func(o *Orchestrator) { o.serviceContracts = contracts }
}

// WithSystemErrorDomain overrides the default system-error broadcast list
// (`[event.domain, self.domain, null]` unless overridden).
func WithSystemErrorDomain(tokens ...domain.Token) Option {
	return func(o *Orchestrator) { o.systemErrorDomain = tokens }
}

// WithDefaultExecutionUnits sets the cost metric stamped on emits that omit
// their own.
func WithDefaultExecutionUnits(units float64) Option {
	return func(o *Orchestrator) { o.defaultExecutionUnits = units }
}

// WithSpanManager overrides the default no-op SpanManager.
func WithSpanManager(m observability.SpanManager) Option {
	return func(o *Orchestrator) { o.spans = m }
}

// WithMetricsRecorder overrides the default no-op MetricsRecorder.
func WithMetricsRecorder(m observability.MetricsRecorder) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger overrides the default discard logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// Orchestrator drives one machine.Registry across repeated Execute calls
// for every subject belonging to its self contract.
type Orchestrator struct {
	selfSource       string
	selfContract     *event.Contract
	serviceContracts []*event.Contract
	registry         *machine.Registry
	resource         *resource.Resource
	schemas          *schema.Cache

	systemErrorDomain     []domain.Token
	defaultExecutionUnits float64

	spans   observability.SpanManager
	metrics observability.MetricsRecorder
	logger  *slog.Logger

	instanceToken string
}

// New builds an Orchestrator. selfContract must declare orchestrator
// metadata (a completeEventType) whose type matches registry's shared
// source; construction fails with a Config error otherwise.
func New(selfContract *event.Contract, registry *machine.Registry, res *resource.Resource, schemas *schema.Cache, opts ...Option) (*Orchestrator, error) {
	if selfContract == nil {
		return nil, fmt.Errorf("orchestrator: self contract is required")
	}
	if !selfContract.IsOrchestrator() {
		return nil, violation.NewConfig(fmt.Sprintf("orchestrator: self contract %s declares no completeEventType", selfContract.Uri), nil)
	}
	if registry == nil {
		return nil, fmt.Errorf("orchestrator: machine registry is required")
	}
	if registry.Source() != selfContract.Type {
		return nil, violation.NewConfig(fmt.Sprintf("orchestrator: registry source %q does not match self contract type %q", registry.Source(), selfContract.Type), nil)
	}
	if res == nil {
		return nil, fmt.Errorf("orchestrator: resource is required")
	}
	if schemas == nil {
		return nil, fmt.Errorf("orchestrator: schema cache is required")
	}

	o := &Orchestrator{
		selfSource:    selfContract.Type,
		selfContract:  selfContract,
		registry:      registry,
		resource:      res,
		schemas:       schemas,
		spans:         observability.NoopSpanManager{},
		metrics:       observability.NoopMetrics{},
		logger:        discardLogger(),
		instanceToken: uuid.New().String(),
	}
	for _, opt := range opts {
		opt(o)
	}

	if err := event.ValidateContractSet(o.selfContract, o.serviceContracts); err != nil {
		return nil, violation.NewConfig(err.Error(), nil)
	}

	return o, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// Execute runs the full state sequence for one incoming event. It never
// returns a non-nil Result alongside a non-nil error: a
// non-nil error always means a violation was thrown and the caller owns the
// retry/compensation decision; a nil error with empty Events means a
// benign no-op (misroute, stale event, absorbed failure).
func (o *Orchestrator) Execute(ctx context.Context, evt event.Event) (result Result, execErr error) {
	started := time.Now()
	logger := observability.EnrichLogger(o.logger, evt.Subject, evt.Type, evt.ID)
	execCtx, span := o.spans.StartExecuteSpan(ctx, o.selfSource, evt.Subject)
	outcome := "valid"

	defer func() {
		if r := recover(); r != nil {
			v := violation.FromPanic(r)
			observability.LogExecuteViolation(logger, evt.Subject, v)
			outcome = "violation"
			result, execErr = Result{}, v
		}
		o.spans.EndSpanWithError(span, execErr)
		o.metrics.RecordExecute(execCtx, outcome, time.Since(started))
	}()

	subj, ok := decodeSubject(evt.Subject)
	if !ok || subj.Orchestrator.Name != o.selfSource {
		observability.LogBenignMisroute(logger, evt.Subject, "subject does not resolve to this orchestrator")
		outcome = "benign"
		return Result{}, nil
	}

	defer o.resource.Unlock(execCtx, evt.Subject, o.instanceToken)
	if err := o.resource.Lock(execCtx, evt.Subject, o.instanceToken); err != nil {
		outcome = "violation"
		return Result{}, err
	}

	prevRaw, err := o.resource.Read(execCtx, evt.Subject)
	if err != nil {
		outcome = "violation"
		return Result{}, err
	}

	var rec *Record
	if prevRaw != nil {
		r, uerr := unmarshalRecord(prevRaw)
		if uerr != nil {
			outcome = "violation"
			return Result{}, violation.NewTransaction(violation.ReadFailure, "stored record for subject "+evt.Subject+" does not decode", uerr)
		}
		rec = &r
	}

	if rec != nil && rec.ExecutionStatus == StatusFailure {
		observability.LogAbsorbedFailure(logger, evt.Subject)
		outcome = "absorbed"
		return Result{}, nil
	}

	if rec == nil && evt.Type != o.selfSource {
		observability.LogBenignMisroute(logger, evt.Subject, "no existing state and event is not an init event")
		outcome = "benign"
		return Result{}, nil
	}

	version := subj.Orchestrator.Version
	m, ok := o.registry.Resolve(version)
	if !ok {
		outcome = "violation"
		return Result{}, violation.NewConfig("no machine registered for version "+version, nil)
	}
	selfVer, ok := o.selfContract.Version(version)
	if !ok {
		outcome = "violation"
		return Result{}, violation.NewConfig("self contract has no version "+version, nil)
	}

	vr := validate.Validate(evt, o.selfContract, o.serviceContracts, o.schemas)
	if !vr.Ok() {
		outcome = "violation"
		return Result{}, classifyValidationFailure(vr)
	}

	var snapshot []byte
	var parentSubject *string
	initEventID := evt.ID
	var consumed, produced []string
	if rec != nil {
		snapshot = rec.State
		parentSubject = rec.ParentSubject
		initEventID = rec.InitEventID
		consumed = rec.Events.Consumed
		produced = rec.Events.Produced
	} else if ps, ok := extractParentSubject(evt.Data); ok {
		parentSubject = &ps
	}

	stepCtx, stepSpan := o.spans.StartStepSpan(execCtx, m.Source, m.Version)
	stepStart := time.Now()
	stepResult, stepErr := machine.Step(snapshot, evt.Type, evt.Data, evt.Data, m)
	o.spans.EndSpanWithError(stepSpan, stepErr)
	o.metrics.RecordStep(stepCtx, m.Source, time.Since(stepStart), stepErr)

	if stepErr != nil {
		if v, ok := violation.As(stepErr); ok {
			outcome = "violation"
			return Result{}, v
		}
		outcome = "system_error"
		return o.handleWorkflowError(execCtx, logger, evt, prevRaw, parentSubject, initEventID, stepErr)
	}

	emits := stepResult.Emits
	if stepResult.Status == machine.Done {
		emits = append(emits, finalOutputEmit(selfVer, parentSubject, stepResult.FinalOutput))
	}

	emitCtx := emit.Context{
		SourceEvent:           evt,
		SelfSource:            o.selfSource,
		SelfContract:          o.selfContract,
		SelfVersion:           version,
		ServiceContracts:      o.serviceContracts,
		ParentSubject:         parentSubject,
		InitEventID:           initEventID,
		DefaultExecutionUnits: o.defaultExecutionUnits,
		Schemas:               o.schemas,
	}

	built := make([]event.Event, 0, len(emits))
	for _, raw := range emits {
		evts, berr := emit.Build(raw, emitCtx)
		if berr != nil {
			if v, ok := violation.As(berr); ok {
				outcome = "violation"
				return Result{}, v
			}
			outcome = "system_error"
			return o.handleWorkflowError(execCtx, logger, evt, prevRaw, parentSubject, initEventID, berr)
		}
		built = append(built, evts...)
	}

	consumed = append(consumed, evt.ID)
	for _, e := range built {
		produced = append(produced, e.ID)
	}

	newRec := Record{
		ExecutionStatus: StatusNormal,
		Subject:         evt.Subject,
		ParentSubject:   parentSubject,
		InitEventID:     initEventID,
		MachineStatus:   stepResult.Status,
		Value:           valueLabel(stepResult.Status),
		State:           stepResult.Snapshot,
		Events:          EventLog{Consumed: consumed, Produced: produced},
		MachineSource:   m.Source,
		MachineVersion:  m.Version,
	}
	newBytes, merr := marshalRecord(newRec)
	if merr != nil {
		outcome = "violation"
		return Result{}, violation.NewExecution("failed to marshal orchestration record for subject "+evt.Subject, merr)
	}
	if werr := o.resource.Write(execCtx, evt.Subject, newBytes, prevRaw); werr != nil {
		outcome = "violation"
		return Result{}, werr
	}

	observability.LogExecuteComplete(logger, evt.Subject, float64(time.Since(started).Microseconds())/1000.0, len(built))
	for _, e := range built {
		o.metrics.RecordEmit(execCtx, e.Type, int64(len(newBytes)))
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
	v, ok := m["parentSubject$$"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func classifyValidationFailure(vr validate.Result) error {
	if vr.Outcome == validate.ContractUnresolved {
		return violation.NewConfig(vr.Message, nil)
	}
	return violation.NewContract(vr.Message, nil)
}

// finalOutputEmit synthesizes the completion raw emit: the engine appends a
// synthetic raw event of type completeEventType once the machine reports
// Done.
func finalOutputEmit(selfVer *event.Version, parentSubject *string, finalOutput any) machine.RawEmit {
	tokens := []domain.Token{domain.Local}
	if parentSubject != nil {
		if parsed, err := event.Decode(*parentSubject); err == nil && parsed.Domain != nil {
			tokens = []domain.Token{domain.Literal(*parsed.Domain)}
		}
	}
	return machine.RawEmit{
		Type:   selfVer.CompleteEventType,
		Data:   finalOutput,
		Domain: tokens,
	}
}
