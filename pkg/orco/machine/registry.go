package machine

import "fmt"

// Registry holds machines sharing one source event type, keyed by version. Construction enforces identical source across all machines, unique
// versions, and at least one machine.
type Registry struct {
	source    string
	byVersion map[string]*Machine
}

// NewRegistry builds a Registry from machines, validating the shared-source
// and unique-version invariants. Construction with zero machines is rejected.
func NewRegistry(machines ...*Machine) (*Registry, error) {
	if len(machines) == 0 {
		return nil, fmt.Errorf("machine: registry requires at least one machine")
	}

	source := machines[0].Source
	byVersion := make(map[string]*Machine, len(machines))
	for _, m := range machines {
		if m.Source != source {
			return nil, fmt.Errorf("machine: all machines in a registry must share one source, got %q and %q", source, m.Source)
		}
		if _, dup := byVersion[m.Version]; dup {
			return nil, fmt.Errorf("machine: duplicate version %q for source %q", m.Version, source)
		}
		byVersion[m.Version] = m
	}

	return &Registry{source: source, byVersion: byVersion}, nil
}

// Source returns the event type every machine in this registry accepts.
func (r *Registry) Source() string {
	return r.source
}

// Resolve returns the machine matching the given orchestrator version, or
// false if no such version is registered.
func (r *Registry) Resolve(version string) (*Machine, bool) {
	m, ok := r.byVersion[version]
	return m, ok
}

// Versions lists every registered version, for operational introspection.
func (r *Registry) Versions() []string {
	versions := make([]string, 0, len(r.byVersion))
	for v := range r.byVersion {
		versions = append(versions, v)
	}
	return versions
}
