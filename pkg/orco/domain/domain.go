// Package domain resolves symbolic domain tokens to concrete strings and
// expands a multi-domain broadcast list into its deduplicated, order-
// preserving set of resolved values.
package domain

import "github.com/flowcore/orco/pkg/orco/event"

// Token is a domain directive as declared on a raw emitted event: either a
// symbolic keyword or a literal domain string, modeled as a tagged union.
type Token struct {
	kind    tokenKind
	literal string
}

type tokenKind int

const (
	kindLocal tokenKind = iota
	kindFromSelfContract
	kindFromEventContract
	kindFromTriggeringEvent
	kindLiteral
)

// Local resolves to null regardless of context.
var Local = Token{kind: kindLocal}

// FromSelfContract resolves to the handler's own contract domain.
var FromSelfContract = Token{kind: kindFromSelfContract}

// FromEventContract resolves to the resolved event contract's domain, or
// null if none is set or none applies.
var FromEventContract = Token{kind: kindFromEventContract}

// FromTriggeringEvent resolves to the triggering event's own domain.
var FromTriggeringEvent = Token{kind: kindFromTriggeringEvent}

// Literal wraps any other string, which resolves to itself.
func Literal(s string) Token {
	return Token{kind: kindLiteral, literal: s}
}

// Context supplies the values a Token may resolve against.
type Context struct {
	HandlerSelfContract *event.Contract
	EventContract       *event.Contract // nil when not applicable
	TriggeringEvent     *event.Event
}

// Resolve maps a single token to a concrete domain string, nil meaning null.
func Resolve(tok Token, ctx Context) *string {
	switch tok.kind {
	case kindLocal:
		return nil
	case kindFromSelfContract:
		if ctx.HandlerSelfContract == nil {
			return nil
		}
		return ctx.HandlerSelfContract.Domain
	case kindFromEventContract:
		if ctx.EventContract == nil {
			return nil
		}
		return ctx.EventContract.Domain
	case kindFromTriggeringEvent:
		if ctx.TriggeringEvent == nil {
			return nil
		}
		return ctx.TriggeringEvent.Domain
	default:
		s := tok.literal
		return &s
	}
}

// ResolveAll expands a multi-domain broadcast list into its deduplicated,
// first-occurrence-order-preserving set of resolved domains. An empty or
// nil list resolves to a single null domain.
func ResolveAll(tokens []Token, ctx Context) []*string {
	if len(tokens) == 0 {
		return []*string{nil}
	}

	resolved := make([]*string, 0, len(tokens))
	seen := map[string]bool{}
	sawNull := false

	for _, tok := range tokens {
		val := Resolve(tok, ctx)
		if val == nil {
			if sawNull {
				continue
			}
			sawNull = true
			resolved = append(resolved, nil)
			continue
		}
		if seen[*val] {
			continue
		}
		seen[*val] = true
		resolved = append(resolved, val)
	}
	return resolved
}
