package resumable

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

// handleWorkflowError mirrors the orchestrator's handling of any error the
// handler function itself returns: mark the record failure, persist it,
// and return one system-error event per resolved systemErrorDomain instead
// of throwing.
func (h *Handler) handleWorkflowError(ctx context.Context, logger *slog.Logger, evt event.Event, prevRaw []byte, parentSubject *string, initEventID string, workflowErr error) (Result, error) {
	observability.LogSystemError(logger, evt.Subject, workflowErr)

	now := time.Now()
	failRec := Record{
		Status:        StatusFailure,
		Subject:       evt.Subject,
		ParentSubject: parentSubject,
		Error:         workflowErr.Error(),
		FailureReason: workflowErr.Error(),
		FinishedAt:    &now,
	}
	newBytes, merr := marshalRecord(failRec)
	if merr != nil {
		return Result{}, violation.NewExecution("failed to marshal resumable failure record for subject "+evt.Subject, merr)
	}
	if werr := h.resource.Write(ctx, evt.Subject, newBytes, prevRaw); werr != nil {
		return Result{}, werr
	}

	events := h.buildSystemErrorEvents(evt, initEventID, workflowErr)
	return Result{Events: events}, nil
}

func (h *Handler) buildSystemErrorEvents(evt event.Event, initEventID string, workflowErr error) []event.Event {
	subj, err := event.Decode(evt.Subject)
	if err != nil {
		return []event.Event{h.deadLetterEvent(evt, workflowErr)}
	}

	parentID := initEventID
	if parentID == "" {
		parentID = evt.ID
	}
	errorType := "sys." + h.selfContract.Type + ".error"
	payload := errorPayload(workflowErr)

	tokens := h.systemErrorDomain
	if tokens == nil {
		tokens = defaultSystemErrorDomain(evt.Domain, h.selfContract.Domain)
	}
	domainCtx := domain.Context{HandlerSelfContract: h.selfContract, TriggeringEvent: &evt}
	resolvedDomains := domain.ResolveAll(tokens, domainCtx)

	schemaDoc := systemErrorSchema(h.selfContract, subj.Orchestrator.Version)

	events := make([]event.Event, 0, len(resolvedDomains))
	for _, d := range resolvedDomains {
		if err := h.schemas.Validate(schemaDoc, payload); err != nil {
			events = append(events, h.deadLetterEvent(evt, workflowErr))
			continue
		}
		built := event.New(errorType, h.selfSource, evt.Subject, payload,
			event.WithTo(subj.Initiator),
			event.WithParentID(parentID),
			event.WithTrace(evt.Traceparent, evt.Tracestate),
			event.WithDomain(d),
			event.WithExecutionUnits(h.defaultExecutionUnits),
			event.WithRedirectTo(subj.Initiator),
		)
		events = append(events, built)
	}
	if len(events) == 0 {
		events = append(events, h.deadLetterEvent(evt, workflowErr))
	}
	return events
}

func (h *Handler) deadLetterEvent(evt event.Event, workflowErr error) event.Event {
	return event.New("sys."+h.selfSource+".error", h.selfSource, evt.Subject, map[string]any{
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
