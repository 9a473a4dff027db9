// Package agent is the boundary to the external conversational runtime.
// It launches the runtime, adapts its stream-JSON output to a pull-based
// event stream, and maps launch failures to the service error taxonomy.
// It performs no schema or message translation.
package agent

import (
	"context"
	"encoding/json"

	"github.com/user/agentgate/pkg/oai"
)

// EventType discriminates runtime events.
type EventType string

const (
	EventInit     EventType = "init"
	EventDelta    EventType = "delta"
	EventToolCall EventType = "tool_call"
	EventResult   EventType = "result"
	EventError    EventType = "error"
)

// Event is one unit of runtime output. Exactly one of the payload field
// groups is populated depending on Type. EventResult and EventError are
// terminal.
type Event struct {
	Type EventType

	// EventInit
	Model string

	// EventDelta
	Text string

	// EventToolCall
	ToolName string
	ToolArgs json.RawMessage

	// EventResult
	Usage   *oai.Usage
	CostUSD float64

	// EventError
	Message string
}

// Terminal reports whether no further events follow this one.
func (e *Event) Terminal() bool {
	return e.Type == EventResult || e.Type == EventError
}

// EventStream is a pull-based iterator over runtime events. Next returns
// io.EOF after the stream ends; abandoning the stream early requires only
// Close. The consumer controls the pace, so a disconnected caller stops
// the pull immediately.
type EventStream interface {
	Next(ctx context.Context) (*Event, error)
	Close() error
}
