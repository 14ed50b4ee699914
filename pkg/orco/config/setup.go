package config

import (
	"fmt"

	"github.com/flowcore/orco/pkg/orco/domain"
)

// MemoryBackend names which memory.Memory implementation an orchestrator
// setup config selects.
type MemoryBackend string

const (
	MemoryBackendInMemory MemoryBackend = "memory"
	MemoryBackendSQLite   MemoryBackend = "sqlite"
)

// Setup is the default wiring an orchestrator reads from its config file:
// the execution units stamped on emits that don't specify their own, the
// domain token resolved for workflow-level system-error events, and which
// memory backend to construct.
type Setup struct {
	DefaultExecutionUnits []string
	SystemErrorDomain     domain.Token
	MemoryBackend         MemoryBackend
	SQLitePath            string
}

// ParseSetup builds a Setup from a loaded Config, applying these defaults
// for omitted keys: no default execution units, a local (null) system-error
// domain, and the in-memory backend. The system-error default differs from
// an orchestrator built without WithSystemErrorDomain, which broadcasts to
// [event.domain, self.domain, null].
func ParseSetup(c Config) (Setup, error) {
	backend := MemoryBackend(c.String("memoryBackend", string(MemoryBackendInMemory)))
	switch backend {
	case MemoryBackendInMemory, MemoryBackendSQLite:
	default:
		return Setup{}, fmt.Errorf("config: unknown memoryBackend %q", backend)
	}

	tok, err := parseDomainToken(c.String("systemErrorDomain", "local"))
	if err != nil {
		return Setup{}, err
	}

	return Setup{
		DefaultExecutionUnits: c.StringSlice("defaultExecutionUnits", nil),
		SystemErrorDomain:     tok,
		MemoryBackend:         backend,
		SQLitePath:            c.String("sqlitePath", ""),
	}, nil
}

// parseDomainToken maps a config string to the domain.Token it names. The
// symbolic keywords mirror the raw-emit domain token vocabulary; any other
// value is taken as a domain literal.
func parseDomainToken(s string) (domain.Token, error) {
	switch s {
	case "local", "":
		return domain.Local, nil
	case "self":
		return domain.FromSelfContract, nil
	case "event":
		return domain.FromEventContract, nil
	case "triggering":
		return domain.FromTriggeringEvent, nil
	default:
		return domain.Literal(s), nil
	}
}
