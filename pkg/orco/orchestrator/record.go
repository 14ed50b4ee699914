package orchestrator

import (
	"encoding/json"
	"time"

	"github.com/flowcore/orco/pkg/orco/machine"
)

// ExecutionStatus discriminates the two branches of a persisted
// orchestration record.
type ExecutionStatus string

const (
	StatusNormal  ExecutionStatus = "normal"
	StatusFailure ExecutionStatus = "failure"
)

// EventLog tracks the ids an instance has consumed and produced, for
// operational introspection; it plays no role in at-most-one enforcement
// (that is the lock's job).
type EventLog struct {
	Consumed []string `json:"consumed,omitempty"`
	Produced []string `json:"produced,omitempty"`
}

// Record is the discriminated union persisted per subject. ExecutionStatus
// selects which branch's fields are meaningful: Normal uses everything
// through MachineVersion; Failure uses only Error/FailureReason/FinishedAt.
type Record struct {
	ExecutionStatus ExecutionStatus `json:"executionStatus"`
	Subject         string          `json:"subject"`
	ParentSubject   *string         `json:"parentSubject,omitempty"`

	// normal branch
	InitEventID    string         `json:"initEventId,omitempty"`
	MachineStatus  machine.Status `json:"status,omitempty"`
	Value          string         `json:"value,omitempty"`
	State          []byte         `json:"state,omitempty"`
	Events         EventLog       `json:"events,omitempty"`
	MachineSource  string         `json:"machineSource,omitempty"`
	MachineVersion string         `json:"machineVersion,omitempty"`

	// failure branch
	Error         string     `json:"error,omitempty"`
	FailureReason string     `json:"failureReason,omitempty"`
	FinishedAt    *time.Time `json:"finishedAt,omitempty"`
}

func marshalRecord(r Record) ([]byte, error) {
	return json.Marshal(r)
}

func unmarshalRecord(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, err
	}
	return r, nil
}

// valueLabel approximates a human-readable "current state" label from the
// status the narrow Logic/Actor interface actually exposes. The opaque
// actor contract never surfaces a state-node name, so the closest faithful
// label is the run status itself.
func valueLabel(status machine.Status) string {
	if status == machine.Done {
		return "done"
	}
	return "active"
}
