// Package advisor implements the opaque, cancelable LLM-advisor call: a
// compact per-agent context in, a schema-validated Decision out, gated by
// the circuit breaker so a misbehaving or slow advisor never sits on the
// tick's critical path.
package advisor

import (
	"errors"

	"intersection-sim/server/internal/v2x"
)

// Action mirrors the decision function's action vocabulary.
type Action string

const (
	ActionGo    Action = "go"
	ActionYield Action = "yield"
	ActionBrake Action = "brake"
	ActionStop  Action = "stop"
)

var (
	ErrMalformedResponse = errors.New("advisor: malformed response")
	ErrUnparseableAction = errors.New("advisor: unparseable action")
	ErrSpeedOutOfRange   = errors.New("advisor: speed out of range")
)

// PeerSummary is the compact description of a nearby vehicle included in
// the advisor context.
type PeerSummary struct {
	ID       v2x.AgentId
	X        float64
	Y        float64
	V        float64
	Heading  float64
	Distance float64
}

// Context is the compact per-tick prompt built for one agent: its own
// state, its nearest peers, its priority advisory, and a short digest of
// recent memory.
type Context struct {
	SelfID       v2x.AgentId
	X            float64
	Y            float64
	V            float64
	Heading      float64
	Intent       v2x.Intent
	Advisory     string // "must_yield" | "may_go"
	Peers        []PeerSummary
	MemoryDigest []string
}

// Decision is the advisor's proposed action for this tick. It is subject
// to the same hard safety overrides the decision function applies to
// every other source of action.
type Decision struct {
	Action Action  `json:"action" jsonschema:"enum=go,enum=yield,enum=brake,enum=stop"`
	Speed  float64 `json:"speed" jsonschema:"minimum=0"`
	Reason string  `json:"reason"`
}
