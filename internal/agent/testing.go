package agent

import (
	"context"
	"io"
	"sync"

	"github.com/user/agentgate/pkg/oai"
)

// ScriptStream replays a fixed sequence of events. It backs tests across
// packages that need a runtime without spawning one.
type ScriptStream struct {
	mu     sync.Mutex
	events []*Event
	pos    int
	closed bool

	// Err, when set, is returned after the scripted events instead of
	// io.EOF.
	Err error
}

func (s *ScriptStream) Next(ctx context.Context) (*Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.events) {
		if s.Err != nil {
			return nil, s.Err
		}
		return nil, io.EOF
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, nil
}

func (s *ScriptStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether the consumer released the stream.
func (s *ScriptStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ScriptInvoker hands out one scripted stream per invocation and records
// the descriptors it saw.
type ScriptInvoker struct {
	mu      sync.Mutex
	scripts [][]*Event
	calls   int

	// InvokeErr, when set, fails every invocation.
	InvokeErr error

	// Descriptors holds a copy of each descriptor passed to Invoke.
	Descriptors []*Descriptor
}

// NewScriptInvoker builds an invoker that replays one event script per
// call, repeating the last script once they run out.
func NewScriptInvoker(scripts ...[]*Event) *ScriptInvoker {
	return &ScriptInvoker{scripts: scripts}
}

func (f *ScriptInvoker) Invoke(ctx context.Context, desc *Descriptor) (EventStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.InvokeErr != nil {
		return nil, f.InvokeErr
	}
	copied := *desc
	f.Descriptors = append(f.Descriptors, &copied)

	idx := f.calls
	if idx >= len(f.scripts) {
		idx = len(f.scripts) - 1
	}
	f.calls++
	if idx < 0 {
		return &ScriptStream{}, nil
	}
	return &ScriptStream{events: f.scripts[idx]}, nil
}

// TextScript builds the common happy-path script: init, one delta per
// text argument, then a successful result event carrying the usage.
func TextScript(usage *oai.Usage, texts ...string) []*Event {
	events := []*Event{{Type: EventInit, Model: "test-model"}}
	for _, text := range texts {
		events = append(events, &Event{Type: EventDelta, Text: text})
	}
	events = append(events, &Event{Type: EventResult, Usage: usage})
	return events
}
