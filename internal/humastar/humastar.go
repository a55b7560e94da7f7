// Package humastar bridges Huma operations with Datastar SSE responses.
//
// JSON clients and Datastar pages share the same operations: handlers read
// request values through [SignalsInput], which accepts either a plain JSON
// object or the flat signal object Datastar posts, and stream updates with
// [Stream] and [SSE].
package humastar

import (
	"encoding/json"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/starfederation/datastar-go/datastar"
)

// Stream returns a Huma StreamResponse that calls fn with a ready SSE helper.
func Stream(fn func(sse SSE)) *huma.StreamResponse {
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			fn(NewSSE(humaCtx))
		},
	}
}

// SSE wraps a Datastar SSE generator.
type SSE struct {
	*datastar.ServerSentEventGenerator
}

// NewSSE creates a Datastar SSE helper from a Huma streaming context.
func NewSSE(ctx huma.Context) SSE {
	r, w := humago.Unwrap(ctx)
	return SSE{datastar.NewSSE(w, r)}
}

// Patch replaces the inner HTML at selector.
func (s SSE) Patch(html, selector string) error {
	return s.PatchElements(html,
		datastar.WithSelector(selector),
		datastar.WithModeInner(),
	)
}

// Replace replaces the outer HTML at selector.
func (s SSE) Replace(html, selector string) error {
	return s.PatchElements(html,
		datastar.WithSelector(selector),
		datastar.WithModeOuter(),
	)
}

// Signals patches signals on the page.
func (s SSE) Signals(signals map[string]any) error {
	return s.MarshalAndPatchSignals(signals)
}

// Error sets the page's error signal.
func (s SSE) Error(msg string) error {
	return s.MarshalAndPatchSignals(map[string]any{"error": msg})
}

// Signals provides typed access to a flat JSON object of request values.
type Signals map[string]any

// ParseSignals parses a raw request body. An empty body yields no signals.
func ParseSignals(body []byte) (Signals, error) {
	signals := Signals{}
	if len(body) == 0 {
		return signals, nil
	}
	if err := json.Unmarshal(body, &signals); err != nil {
		return nil, err
	}
	return signals, nil
}

// String returns a string signal value, or "" if absent.
func (s Signals) String(key string) string {
	if v, ok := s[key].(string); ok {
		return v
	}
	return ""
}

// Float returns a numeric signal value, or 0 if absent.
func (s Signals) Float(key string) float64 {
	if v, ok := s[key].(float64); ok {
		return v
	}
	return 0
}

// Has reports whether key is present, even if zero-valued.
func (s Signals) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Value returns a signal as text: strings as-is, numbers and booleans in
// JSON form, absent or null as "".
func (s Signals) Value(key string) string {
	switch v := s[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// SignalsInput is an input struct for operations that accept signals.
type SignalsInput struct {
	RawBody []byte
}

// Parse parses the signals or returns a Huma 400 error.
func (i *SignalsInput) Parse() (Signals, error) {
	signals, err := ParseSignals(i.RawBody)
	if err != nil {
		return nil, huma.Error400BadRequest("Invalid request data: " + err.Error())
	}
	return signals, nil
}
