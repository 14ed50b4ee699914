package resumable

import (
	"encoding/json"
	"time"

	"github.com/flowcore/orco/pkg/orco/event"
)

// Status discriminates a resumable record's lifecycle, collapsing the
// orchestrator's two-level executionStatus/machine-status split into a
// single three-way enum.
type Status string

const (
	StatusActive  Status = "active"
	StatusDone    Status = "done"
	StatusFailure Status = "failure"
)

// EventLog tracks consumed/produced ids for introspection, plus the
// expected map used for response correlation: producedEventId -> the
// response events received against it so far.
type EventLog struct {
	Consumed []string                  `json:"consumed,omitempty"`
	Produced []string                  `json:"produced,omitempty"`
	Expected map[string][]event.Event `json:"expected,omitempty"`
}

// Record is the persisted resumable record: the orchestrator's
// discriminated-union skeleton with state replaced by a user-typed context
// and events.expected added for correlation.
type Record struct {
	Status        Status          `json:"status"`
	Subject       string          `json:"subject"`
	ParentSubject *string         `json:"parentSubject,omitempty"`
	InitEventID   string          `json:"initEventId,omitempty"`
	Context       json.RawMessage `json:"context,omitempty"`
	Events        EventLog        `json:"events,omitempty"`

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

// reshapeCollected flattens the expected correlation map into the
// collectedEvents shape: { eventType -> [events...] }, gathered across
// every awaited producedEventId.
func reshapeCollected(expected map[string][]event.Event) map[string][]event.Event {
	out := make(map[string][]event.Event)
	for _, events := range expected {
		for _, e := range events {
			out[e.Type] = append(out[e.Type], e)
		}
	}
	return out
}
