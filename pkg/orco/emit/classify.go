package emit

import (
	"github.com/flowcore/orco/pkg/orco/event"
	"github.com/flowcore/orco/pkg/orco/machine"
	"github.com/flowcore/orco/pkg/orco/violation"
)

// emitPlan is the outcome of classifying one raw emit: everything assemble
// needs beyond the raw fields themselves.
type emitPlan struct {
	subject           string
	parentID          string
	to                string // empty means "use raw.Type", assemble fills in the actual default
	domainContract    *event.Contract
	schemaDoc         any
	dataschemaUri     string
	dataschemaVersion string
}

// classify determines whether raw is a workflow completion, an outgoing
// service call (possibly initiating a child orchestration), or an
// unrecognized pass-through event.
func classify(raw machine.RawEmit, ctx Context) (emitPlan, error) {
	if ctx.SelfContract != nil {
		if selfVer, ok := ctx.SelfContract.Version(ctx.SelfVersion); ok && isCompletionType(selfVer, raw.Type) {
			return classifyCompletion(raw, ctx, selfVer)
		}
	}

	for _, svc := range ctx.ServiceContracts {
		if svc.Type == raw.Type {
			return classifyServiceCall(raw, ctx, svc)
		}
	}

	return classifyPassThrough(raw, ctx), nil
}

// isCompletionType reports whether v declares rawType as its completion event.
func isCompletionType(v *event.Version, rawType string) bool {
	return v.CompleteEventType != "" && v.CompleteEventType == rawType
}

func classifyCompletion(raw machine.RawEmit, ctx Context, selfVer *event.Version) (emitPlan, error) {
	subject := ctx.SourceEvent.Subject
	if ctx.ParentSubject != nil {
		subject = *ctx.ParentSubject
	}

	parsed, err := event.Decode(subject)
	if err != nil {
		return emitPlan{}, violation.NewExecution("completion event's subject does not decode", err)
	}

	to := parsed.RedirectTo()
	if to == "" {
		to = parsed.Initiator
	}

	return emitPlan{
		subject:           subject,
		parentID:          ctx.InitEventID,
		to:                to,
		domainContract:    nil, // FROM_EVENT_CONTRACT on completion resolves to null; see SPEC_FULL.md §11
		schemaDoc:         selfVer.Emits[raw.Type],
		dataschemaUri:     ctx.SelfContract.Uri,
		dataschemaVersion: ctx.SelfVersion,
	}, nil
}

func classifyServiceCall(raw machine.RawEmit, ctx Context, svc *event.Contract) (emitPlan, error) {
	versionKey, ver, ok := resolveServiceVersion(raw, svc)
	if !ok {
		return emitPlan{}, violation.NewConfig("no resolvable version for service contract "+svc.Uri, nil)
	}

	subject := ctx.SourceEvent.Subject
	if svc.IsOrchestrator() {
		childSubject, err := buildChildSubject(raw, ctx, svc, versionKey)
		if err != nil {
			return emitPlan{}, err
		}
		subject = childSubject
	}

	var schemaDoc any
	if ver != nil {
		schemaDoc = ver.Accepts
	}

	return emitPlan{
		subject:           subject,
		parentID:          ctx.SourceEvent.ID,
		domainContract:    svc,
		schemaDoc:         schemaDoc,
		dataschemaUri:     svc.Uri,
		dataschemaVersion: versionKey,
	}, nil
}

func classifyPassThrough(raw machine.RawEmit, ctx Context) emitPlan {
	return emitPlan{
		subject:        ctx.SourceEvent.Subject,
		parentID:       ctx.SourceEvent.ID,
		domainContract: nil,
		// schemaDoc left nil: pass-through events are never validated.
		dataschemaUri: "",
	}
}

func resolveServiceVersion(raw machine.RawEmit, svc *event.Contract) (string, *event.Version, bool) {
	if ds, ok := event.ParseDataschema(raw.Dataschema); ok && ds.Uri == svc.Uri {
		key, ver, ok := svc.ResolveVersionKey(ds.Version)
		return key, ver, ok
	}
	key, ver, ok := svc.ResolveVersionKey(event.WildcardVersion)
	return key, ver, ok
}

func buildChildSubject(raw machine.RawEmit, ctx Context, svc *event.Contract, versionKey string) (string, error) {
	child := event.Subject{
		Orchestrator: event.Coordinates{Name: svc.Type, Version: versionKey},
		Initiator:    ctx.SelfSource,
	}
	child = child.WithRedirectTo(ctx.SelfSource)

	if raw.ParentSubject != nil {
		parent, err := event.Decode(*raw.ParentSubject)
		if err != nil {
			return "", violation.NewExecution("child orchestration's parentSubject$$ does not decode", err)
		}
		child.Domain = parent.Domain
	}

	return event.Encode(child), nil
}
