// Package event provides the contract-validated event model: the immutable
// Event value, versioned Contracts, the dataschema URI+version codec, and
// the Subject codec identifying a workflow instance.
package event

import "github.com/google/uuid"

// Event is an immutable record flowing between handlers. Callers must treat
// every field as read-only once an Event is constructed; New and the builder
// options are the only sanctioned construction path.
type Event struct {
	ID             string
	Type           string
	Source         string
	To             string
	Subject        string
	Data           any
	Dataschema     string
	ParentID       string
	Traceparent    string
	Tracestate     string
	Domain         *string
	ExecutionUnits float64
	AccessControl  string
	RedirectTo     string
}

// Option configures a new Event at construction time.
type Option func(*Event)

// WithID overrides the auto-generated id.
func WithID(id string) Option {
	return func(e *Event) { e.ID = id }
}

// WithTo sets an explicit consumer identity, overriding the type default.
func WithTo(to string) Option {
	return func(e *Event) { e.To = to }
}

// WithDataschema tags the payload's contract URI+version.
func WithDataschema(ds string) Option {
	return func(e *Event) { e.Dataschema = ds }
}

// WithParentID records the id of the event that caused this one.
func WithParentID(id string) Option {
	return func(e *Event) { e.ParentID = id }
}

// WithTrace carries distributed-trace context forward.
func WithTrace(traceparent, tracestate string) Option {
	return func(e *Event) {
		e.Traceparent = traceparent
		e.Tracestate = tracestate
	}
}

// WithDomain sets the routing domain. A nil pointer means no domain.
func WithDomain(domain *string) Option {
	return func(e *Event) { e.Domain = domain }
}

// WithExecutionUnits overrides the default cost metric.
func WithExecutionUnits(units float64) Option {
	return func(e *Event) { e.ExecutionUnits = units }
}

// WithAccessControl sets the opaque access-control string.
func WithAccessControl(ac string) Option {
	return func(e *Event) { e.AccessControl = ac }
}

// WithRedirectTo sets an alternate destination, overriding the source default.
func WithRedirectTo(to string) Option {
	return func(e *Event) { e.RedirectTo = to }
}

// New constructs an Event. Type and source are required; to defaults to
// type, redirectto defaults to source, and id defaults to a fresh uuid.
func New(eventType, source, subject string, data any, opts ...Option) Event {
	e := Event{
		ID:      uuid.New().String(),
		Type:    eventType,
		Source:  source,
		To:      eventType,
		Subject: subject,
		Data:    data,
	}
	for _, opt := range opts {
		opt(&e)
	}
	if e.RedirectTo == "" {
		e.RedirectTo = source
	}
	return e
}

// DomainValue returns the event's domain as a pointer, nil meaning unset.
func (e Event) DomainValue() *string {
	return e.Domain
}
