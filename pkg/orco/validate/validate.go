// Package validate implements the input validator: matching an event to
// the contract it claims to speak, and checking its dataschema tag and
// payload against that contract's schema.
package validate

import (
	"github.com/flowcore/orco/pkg/orco/event"
	"github.com/flowcore/orco/pkg/orco/schema"
)

// Outcome is the tagged-union validation result, in place of duck typing:
// {VALID | CONTRACT_UNRESOLVED | INVALID | INVALID_DATA}.
type Outcome int

const (
	Valid Outcome = iota
	ContractUnresolved
	Invalid
	InvalidData
)

// Result is the full outcome of validating one event.
type Result struct {
	Outcome     Outcome
	Message     string
	Contract    *event.Contract
	Version     string
	IsSelf      bool // true if the event matched the self contract
	EmittedType string
}

// Ok reports whether the event validated cleanly.
func (r Result) Ok() bool {
	return r.Outcome == Valid
}

// Validate checks evt against self (the orchestrator's own contract) and
// services (its collaborators): resolve the claimed contract, then check
// dataschema uri/version and payload schema against it.
func Validate(evt event.Event, self *event.Contract, services []*event.Contract, schemas *schema.Cache) Result {
	ds, ok := event.ParseDataschema(evt.Dataschema)
	if !ok {
		return Result{Outcome: Invalid, Message: "dataschema missing or unparsable"}
	}

	var resolved *event.Contract
	isSelf := false
	emittedType := ""

	if self != nil && evt.Type == self.Type {
		resolved = self
		isSelf = true
	} else {
		for _, svc := range services {
			if contractEmitsOrErrors(svc, evt.Type) {
				resolved = svc
				emittedType = evt.Type
				break
			}
		}
	}

	if resolved == nil {
		return Result{Outcome: ContractUnresolved, Message: "event type " + evt.Type + " matches neither self nor any service contract"}
	}

	if ds.Uri != resolved.Uri {
		return Result{Outcome: Invalid, Message: "dataschema uri " + ds.Uri + " does not match resolved contract " + resolved.Uri}
	}

	versionKey, ver, ok := resolved.ResolveVersionKey(ds.Version)
	if !ok {
		return Result{Outcome: Invalid, Message: "dataschema version " + ds.Version + " is not registered on contract " + resolved.Uri}
	}

	var schemaDoc any
	switch {
	case isSelf:
		schemaDoc = ver.Accepts
	case emittedType != "":
		if s, ok := ver.Emits[emittedType]; ok {
			schemaDoc = s
		} else {
			schemaDoc = ver.SystemError
		}
	}

	if err := schemas.Validate(schemaDoc, evt.Data); err != nil {
		return Result{Outcome: InvalidData, Message: err.Error(), Contract: resolved, Version: versionKey, IsSelf: isSelf, EmittedType: emittedType}
	}

	return Result{Outcome: Valid, Contract: resolved, Version: versionKey, IsSelf: isSelf, EmittedType: emittedType}
}

// contractEmitsOrErrors reports whether any version of svc declares
// eventType among its emits, or eventType is svc's system-error event type.
func contractEmitsOrErrors(svc *event.Contract, eventType string) bool {
	if eventType == "sys."+svc.Type+".error" {
		return true
	}
	for _, ver := range svc.Versions {
		if _, ok := ver.Emits[eventType]; ok {
			return true
		}
	}
	return false
}
