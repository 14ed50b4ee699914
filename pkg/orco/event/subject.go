package event

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Subject identifies one workflow instance. It is opaque to callers outside
// this package but follows a bijective codec: Encode/Decode round-trip
// losslessly for every legal field combination.
type Subject struct {
	Orchestrator Coordinates
	Initiator    string
	Domain       *string
	Meta         map[string]string
}

// Coordinates names a machine definition and the version resolved against it.
type Coordinates struct {
	Name    string
	Version string
}

// canonical is the JSON-serializable shape used for encoding. json.Marshal
// writes its fields in declaration order and sorts Meta's map keys, which
// is what makes Encode deterministic.
type canonical struct {
	OrchestratorName    string            `json:"n"`
	OrchestratorVersion string            `json:"v"`
	Initiator           string            `json:"i"`
	Domain              *string           `json:"d,omitempty"`
	Meta                map[string]string `json:"m,omitempty"`
}

// Encode renders the subject as a URL-safe base64 string. Encoding is
// deterministic: the same field values always produce the same string.
func Encode(s Subject) string {
	c := canonical{
		OrchestratorName:    s.Orchestrator.Name,
		OrchestratorVersion: s.Orchestrator.Version,
		Initiator:           s.Initiator,
		Domain:              s.Domain,
		Meta:                s.Meta,
	}
	// json.Marshal sorts map keys, giving deterministic output for Meta.
	raw, err := json.Marshal(c)
	if err != nil {
		// Meta is map[string]string and every other field is a concrete
		// type; Marshal cannot fail for this shape.
		panic(fmt.Sprintf("subject: unexpected marshal failure: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

// Decode parses a string produced by Encode back into a Subject. It returns
// an error for malformed input rather than panicking, since decode input
// may originate from an untrusted event's subject field.
func Decode(s string) (Subject, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Subject{}, fmt.Errorf("subject: invalid encoding: %w", err)
	}
	var c canonical
	if err := json.Unmarshal(raw, &c); err != nil {
		return Subject{}, fmt.Errorf("subject: invalid payload: %w", err)
	}
	return Subject{
		Orchestrator: Coordinates{Name: c.OrchestratorName, Version: c.OrchestratorVersion},
		Initiator:    c.Initiator,
		Domain:       c.Domain,
		Meta:         c.Meta,
	}, nil
}

// RedirectTo reads the conventional "redirectto" meta key, used by the
// completion routing rule `parsedSubject.meta.redirectto ?? parsedSubject.initiator`.
func (s Subject) RedirectTo() string {
	if s.Meta == nil {
		return ""
	}
	return s.Meta["redirectto"]
}

// WithRedirectTo returns a copy of s with its redirectto meta key set.
func (s Subject) WithRedirectTo(to string) Subject {
	meta := make(map[string]string, len(s.Meta)+1)
	for k, v := range s.Meta {
		meta[k] = v
	}
	meta["redirectto"] = to
	s.Meta = meta
	return s
}
