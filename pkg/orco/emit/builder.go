// Package emit implements the emittable event builder: it turns one raw
// machine emit into N fully-validated event.Event values, one per resolved
// broadcast domain.
package emit

import (
	"github.com/google/uuid"

	"github.com/flowcore/orco/pkg/orco/domain"
	"github.com/flowcore/orco/pkg/orco/event"
	"github.com/flowcore/orco/pkg/orco/machine"
	"github.com/flowcore/orco/pkg/orco/schema"
	"github.com/flowcore/orco/pkg/orco/violation"
)

// Context supplies everything the builder needs beyond the raw emit itself.
type Context struct {
	// SourceEvent is the event that triggered this machine step.
	SourceEvent event.Event

	// SelfSource is the orchestrator's own source event type, used as every
	// assembled event's `source` field.
	SelfSource string

	// SelfContract is the orchestrator's own (self) contract.
	SelfContract *event.Contract

	// SelfVersion is the contract version this orchestrator instance runs,
	// used to resolve the self contract's completion schema.
	SelfVersion string

	// ServiceContracts are the contracts of collaborators this orchestrator
	// may call out to.
	ServiceContracts []*event.Contract

	// ParentSubject is the current record's parent subject, non-nil only
	// for nested (child) orchestrations.
	ParentSubject *string

	// InitEventID is the id of the event that initiated this workflow
	// instance, used as the completion event's parentid.
	InitEventID string

	// DefaultExecutionUnits is applied to emits that don't set their own.
	DefaultExecutionUnits float64

	Schemas *schema.Cache
}

// Build transforms one raw emit into its validated events, one per
// deduplicated resolved domain.
func Build(raw machine.RawEmit, ctx Context) ([]event.Event, error) {
	plan, err := classify(raw, ctx)
	if err != nil {
		return nil, err
	}

	domainCtx := domain.Context{
		HandlerSelfContract: ctx.SelfContract,
		EventContract:       plan.domainContract,
		TriggeringEvent:     &ctx.SourceEvent,
	}
	resolvedDomains := domain.ResolveAll(raw.Domain, domainCtx)

	events := make([]event.Event, 0, len(resolvedDomains))
	for _, d := range resolvedDomains {
		evt, err := assemble(raw, ctx, plan, d)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	return events, nil
}

func assemble(raw machine.RawEmit, ctx Context, plan emitPlan, resolvedDomain *string) (event.Event, error) {
	if plan.schemaDoc != nil {
		if err := ctx.Schemas.Validate(plan.schemaDoc, raw.Data); err != nil {
			return event.Event{}, violation.NewContract("payload failed schema validation for "+raw.Type, err)
		}
	}

	id := uuid.New().String()
	if raw.ID != nil {
		id = *raw.ID
	}

	to := raw.Type
	if plan.to != "" {
		to = plan.to
	}
	if raw.To != nil {
		to = *raw.To
	}

	units := ctx.DefaultExecutionUnits
	if raw.ExecutionUnits != nil {
		units = *raw.ExecutionUnits
	}

	accessControl := ""
	if raw.AccessControl != nil {
		accessControl = *raw.AccessControl
	}

	redirectTo := ctx.SelfSource
	if raw.RedirectTo != nil {
		redirectTo = *raw.RedirectTo
	}

	dataschema := raw.Dataschema
	if plan.dataschemaUri != "" {
		dataschema = event.FormatDataschema(plan.dataschemaUri, plan.dataschemaVersion)
	}

	evt := event.New(raw.Type, ctx.SelfSource, plan.subject, raw.Data,
		event.WithID(id),
		event.WithTo(to),
		event.WithDataschema(dataschema),
		event.WithParentID(plan.parentID),
		event.WithTrace(ctx.SourceEvent.Traceparent, ctx.SourceEvent.Tracestate),
		event.WithDomain(resolvedDomain),
		event.WithExecutionUnits(units),
		event.WithAccessControl(accessControl),
		event.WithRedirectTo(redirectTo),
	)
	return evt, nil
}
