package event

import "fmt"

// Schema is an opaque JSON Schema document, validated via pkg/orco/schema.
// Kept as `any` (the decoded JSON Schema document) rather than a compiled
// form, since the schema package owns compilation and caching.
type Schema = any

// Version is a single versioned view of a Contract: its accepted payload
// schema, the schemas for every event type it may emit, and its system
// error schema.
type Version struct {
	Accepts     Schema
	Emits       map[string]Schema
	SystemError Schema

	// CompleteEventType and Init are set only for orchestrator contracts.
	CompleteEventType string
	Init              Schema
}

// Contract is a named, versioned description of one event interface.
// Uri is the contract's stable identity; Type is the single reverse-DNS
// event type it accepts.
type Contract struct {
	Uri      string
	Type     string
	Domain   *string
	Versions map[string]*Version
}

// IsOrchestrator reports whether any version of this contract declares a
// completeEventType, the distinguishing mark of an orchestrator contract.
func (c *Contract) IsOrchestrator() bool {
	for _, v := range c.Versions {
		if v.CompleteEventType != "" {
			return true
		}
	}
	return false
}

// WildcardVersion matches any version of a contract.
const WildcardVersion = "*"

// Version looks up a versioned view of the contract. WildcardVersion
// returns the version with the lexicographically smallest key, so the pick
// is stable for a given construction when more than one exists; used by the
// input validator's wildcard match.
func (c *Contract) Version(v string) (*Version, bool) {
	if v == WildcardVersion {
		_, ver, ok := c.ResolveVersionKey(v)
		return ver, ok
	}
	ver, ok := c.Versions[v]
	return ver, ok
}

// ResolveVersionKey behaves like Version but also returns the concrete
// version key matched, needed whenever a wildcard match must still produce
// a canonical "<uri>/<version>" dataschema tag or a subject's version field.
func (c *Contract) ResolveVersionKey(v string) (key string, ver *Version, ok bool) {
	if v == WildcardVersion {
		for k := range c.Versions {
			if !ok || k < key {
				key, ok = k, true
			}
		}
		if !ok {
			return "", nil, false
		}
		return key, c.Versions[key], true
	}
	ver, ok = c.Versions[v]
	return v, ver, ok
}

// NewContract builds a Contract from its versions, keyed by version string.
func NewContract(uri, eventType string, domain *string, versions map[string]*Version) (*Contract, error) {
	if uri == "" {
		return nil, fmt.Errorf("contract uri is required")
	}
	if eventType == "" {
		return nil, fmt.Errorf("contract type is required")
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("contract %s: at least one version is required", uri)
	}
	return &Contract{Uri: uri, Type: eventType, Domain: domain, Versions: versions}, nil
}

// ValidateContractSet checks the anti-recursion and uniqueness invariant: no
// two service contracts share a uri, and no service contract's uri equals
// the self contract's uri.
func ValidateContractSet(self *Contract, services []*Contract) error {
	seen := make(map[string]bool, len(services))
	for _, svc := range services {
		if svc.Uri == self.Uri {
			return fmt.Errorf("service contract %s duplicates self contract uri", svc.Uri)
		}
		if seen[svc.Uri] {
			return fmt.Errorf("duplicate service contract uri %s", svc.Uri)
		}
		seen[svc.Uri] = true
	}
	return nil
}
