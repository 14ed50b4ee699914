package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowcore/orco/pkg/orco/domain"
	"github.com/flowcore/orco/pkg/orco/event"
	"github.com/flowcore/orco/pkg/orco/observability"
	"github.com/flowcore/orco/pkg/orco/violation"
)

// handleWorkflowError handles any error the workflow function itself
// returns that isn't a thrown violation: mark the record as failure,
// persist it, emit one system-error event per resolved systemErrorDomain,
// and return those events rather than throwing.
func (o *Orchestrator) handleWorkflowError(ctx context.Context, logger *slog.Logger, evt event.Event, prevRaw []byte, parentSubject *string, initEventID string, workflowErr error) (Result, error) {
	observability.LogSystemError(logger, evt.Subject, workflowErr)

	now := time.Now()
	failRec := Record{
		ExecutionStatus: StatusFailure,
		Subject:         evt.Subject,
		ParentSubject:   parentSubject,
		Error:           workflowErr.Error(),
		FailureReason:   workflowErr.Error(),
		FinishedAt:      &now,
	}
	newBytes, merr := marshalRecord(failRec)
	if merr != nil {
		return Result{}, violation.NewExecution("failed to marshal failure record for subject "+evt.Subject, merr)
	}
	if werr := o.resource.Write(ctx, evt.Subject, newBytes, prevRaw); werr != nil {
		return Result{}, werr
	}

	events := o.buildSystemErrorEvents(evt, initEventID, workflowErr)
	return Result{Events: events}, nil
}

// buildSystemErrorEvents constructs the sys.<selfType>.error events: routed
// to the subject's initiator, parentid := initEventId ?? event.id, tracing
// headers preserved, multi-domain per systemErrorDomain (default
// [event.domain, self.domain, null] deduped).
func (o *Orchestrator) buildSystemErrorEvents(evt event.Event, initEventID string, workflowErr error) []event.Event {
	subj, err := event.Decode(evt.Subject)
	if err != nil {
		return []event.Event{o.deadLetterEvent(evt, workflowErr)}
	}

	parentID := initEventID
	if parentID == "" {
		parentID = evt.ID
	}
	errorType := "sys." + o.selfContract.Type + ".error"
	payload := errorPayload(workflowErr)

	tokens := o.systemErrorDomain
	if tokens == nil {
		tokens = defaultSystemErrorDomain(evt.Domain, o.selfContract.Domain)
	}
	domainCtx := domain.Context{HandlerSelfContract: o.selfContract, TriggeringEvent: &evt}
	resolvedDomains := domain.ResolveAll(tokens, domainCtx)

	schemaDoc := systemErrorSchema(o.selfContract, subj.Orchestrator.Version)

	events := make([]event.Event, 0, len(resolvedDomains))
	for _, d := range resolvedDomains {
		if err := o.schemas.Validate(schemaDoc, payload); err != nil {
			events = append(events, o.deadLetterEvent(evt, workflowErr))
			continue
		}
		built := event.New(errorType, o.selfSource, evt.Subject, payload,
			event.WithTo(subj.Initiator),
			event.WithParentID(parentID),
			event.WithTrace(evt.Traceparent, evt.Tracestate),
			event.WithDomain(d),
			event.WithExecutionUnits(o.defaultExecutionUnits),
			event.WithRedirectTo(subj.Initiator),
		)
		events = append(events, built)
	}
	if len(events) == 0 {
		events = append(events, o.deadLetterEvent(evt, workflowErr))
	}
	return events
}

// deadLetterEvent is a minimal degenerate error event used when constructing
// or validating the proper system-error event itself fails.
func (o *Orchestrator) deadLetterEvent(evt event.Event, workflowErr error) event.Event {
	return event.New("sys."+o.selfSource+".error", o.selfSource, evt.Subject, map[string]any{
		"message": workflowErr.Error(),
		"name":    "DeadLetterError",
		"stack":   "",
	}, event.WithParentID(evt.ID))
}

func defaultSystemErrorDomain(eventDomain, selfDomain *string) []domain.Token {
	tokens := make([]domain.Token, 0, 3)
	if eventDomain != nil {
		tokens = append(tokens, domain.Literal(*eventDomain))
	} else {
		tokens = append(tokens, domain.Local)
	}
	if selfDomain != nil {
		tokens = append(tokens, domain.Literal(*selfDomain))
	} else {
		tokens = append(tokens, domain.Local)
	}
	tokens = append(tokens, domain.Local)
	return tokens
}

func errorPayload(err error) map[string]any {
	return map[string]any{
		"message": err.Error(),
		"name":    errorName(err),
		"stack":   "",
	}
}

func errorName(err error) string {
	if v, ok := violation.As(err); ok {
		return v.Kind.String()
	}
	return fmt.Sprintf("%T", err)
}

func systemErrorSchema(self *event.Contract, version string) any {
	_, ver, ok := self.ResolveVersionKey(version)
	if !ok {
		return nil
	}
	return ver.SystemError
}
