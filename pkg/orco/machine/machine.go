// Package machine holds the opaque state-machine actor contract: a registry
// of versioned machines and a synchronous step engine. The state-machine
// library itself is treated as an external collaborator referenced only
// through the Logic/Actor interfaces; this package never implements
// state-machine semantics itself.
package machine

import (
	"fmt"

	"github.com/flowcore/orco/pkg/orco/domain"
)

// Status is the machine's run status after a step.
type Status int

const (
	// Active means the machine may accept further events.
	Active Status = iota
	// Done means the machine reached a terminal state and produced a
	// final output.
	Done
)

// RawEmit is the pre-validation shape of one event emitted by a machine
// step. It is transformed into N validated event.Event values by
// pkg/orco/emit.
type RawEmit struct {
	Type           string
	Data           any
	To             *string
	Domain         []domain.Token
	Dataschema     string
	RedirectTo     *string
	AccessControl  *string
	ExecutionUnits *float64
	Extensions     map[string]any
	ID             *string
	ParentSubject  *string // data.parentSubject$$ for child-orchestration initiation
}

// StepResult is what running one step of the machine produces.
type StepResult struct {
	Snapshot    []byte
	Status      Status
	Emits       []RawEmit
	FinalOutput any // only meaningful when Status == Done
}

// Actor is one hydrated instance of a machine's logic, capable of accepting
// exactly one event per Step call. Implementations must not retain state
// across Step calls beyond what Snapshot can reproduce via Hydrate.
type Actor interface {
	// Step sends one event to the actor and returns the resulting snapshot,
	// any raw emits enqueued during the transition, and the final output
	// if the actor reached a terminal state. Step must perform no I/O and
	// never block: the engine is synchronous.
	Step(eventType string, eventData any) (StepResult, error)
}

// Logic is the opaque per-version actor contract a machine wraps. An
// implementation is typically backed by a real state-machine library, kept
// entirely behind this narrow interface.
type Logic interface {
	// Create builds a fresh Actor from the init event's payload.
	Create(initInput any) (Actor, error)

	// Hydrate rebuilds an Actor from a previously produced snapshot.
	Hydrate(snapshot []byte) (Actor, error)

	// Validate performs compile-time rejection of asynchronous constructs:
	// the underlying definition must declare no actors, delays, invoke, or
	// after transitions. Implementations backed by a synchronous-only
	// library may return nil unconditionally.
	Validate() error
}

// Machine binds one version of a Logic implementation to a machine
// registry entry.
type Machine struct {
	Source  string
	Version string
	Logic   Logic
}

// New constructs a Machine, running the Logic's compile-time validation
// immediately so construction-time Config violations surface at setup
// rather than at first use.
func New(source, version string, logic Logic) (*Machine, error) {
	if source == "" {
		return nil, fmt.Errorf("machine: source is required")
	}
	if version == "" {
		return nil, fmt.Errorf("machine: version is required")
	}
	if logic == nil {
		return nil, fmt.Errorf("machine: logic is required")
	}
	if err := logic.Validate(); err != nil {
		return nil, fmt.Errorf("machine %s@%s: %w", source, version, err)
	}
	return &Machine{Source: source, Version: version, Logic: logic}, nil
}
