// Package assemble turns runtime event streams into OpenAI responses,
// either a single completion object or a chunk sequence, and produces
// the completed exchange the session store persists afterward.
package assemble

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/user/agentgate/internal/agent"
	"github.com/user/agentgate/internal/translate"
	"github.com/user/agentgate/internal/types"
	"github.com/user/agentgate/pkg/oai"
)

// fallbackContent is sent when the runtime terminated cleanly but
// produced no assistant output at all.
const fallbackContent = "I'm unable to provide a response at the moment."

// Completed is the assembled outcome of one invocation, ready to be
// shaped into a response and persisted as a turn.
type Completed struct {
	Content      string
	ToolCalls    []oai.ToolCall
	ToolResults  []types.ToolResult
	Usage        oai.Usage
	CostUSD      float64
	FinishReason string
}

// Message returns the assistant message recorded on the turn.
func (c *Completed) Message() oai.Message {
	return oai.Message{Role: "assistant", Content: c.Content, ToolCalls: c.ToolCalls}
}

// Assembler drains event streams into responses. One Assembler serves
// all requests.
type Assembler struct {
	estimator *Estimator
	logger    *slog.Logger
}

// New creates an Assembler using the given token estimator for usage
// fallback.
func New(estimator *Estimator, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{estimator: estimator, logger: logger}
}

// collectState accumulates events until the terminal one.
type collectState struct {
	content     strings.Builder
	toolCalls   []oai.ToolCall
	toolResults []types.ToolResult
	usage       *oai.Usage
	costUSD     float64
	terminal    bool
}

// apply folds one event into the state. A tool call naming an undeclared
// tool becomes a synthesized error result; it is never forwarded to the
// caller and never dropped silently. The returned call, when non-nil, is
// the caller-visible record of a forwarded tool call.
func (a *Assembler) apply(st *collectState, tr *translate.Translator, ev *agent.Event) (*oai.ToolCall, error) {
	switch ev.Type {
	case agent.EventInit:
		// Informational only.
	case agent.EventDelta:
		st.content.WriteString(ev.Text)
	case agent.EventToolCall:
		call, err := tr.TranslateCall(ev.ToolName, ev.ToolArgs)
		if err != nil {
			if types.KindOf(err) != types.KindUnknownTool {
				return nil, err
			}
			a.logger.Warn("runtime called undeclared tool", "tool", ev.ToolName)
			st.toolResults = append(st.toolResults, translate.UnknownToolResult(ev.ToolName))
			return nil, nil
		}
		st.toolCalls = append(st.toolCalls, call)
		return &call, nil
	case agent.EventResult:
		st.usage = ev.Usage
		st.costUSD = ev.CostUSD
		st.terminal = true
	case agent.EventError:
		return nil, types.NewError(types.KindRuntimeProtocol, "runtime execution failed: %s", ev.Message)
	}
	return nil, nil
}

// finish converts the accumulated state into a Completed, estimating
// usage when the runtime reported none.
func (a *Assembler) finish(st *collectState, desc *agent.Descriptor) *Completed {
	out := &Completed{
		Content:      st.content.String(),
		ToolCalls:    st.toolCalls,
		ToolResults:  st.toolResults,
		CostUSD:      st.costUSD,
		FinishReason: "stop",
	}
	if len(out.ToolCalls) > 0 {
		out.FinishReason = "tool_calls"
	} else if out.Content == "" {
		out.Content = fallbackContent
	}

	if st.usage != nil && st.usage.TotalTokens > 0 {
		out.Usage = *st.usage
	} else {
		prompt := a.estimator.Messages(desc.Messages) + a.estimator.Count(desc.System)
		completion := a.estimator.Count(out.Content)
		out.Usage = oai.Usage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		}
	}
	return out
}

// Collect drains the stream to its terminal event and returns the
// assembled result. A stream that ends without a terminal event is a
// protocol failure; nothing gets persisted from it.
func (a *Assembler) Collect(ctx context.Context, stream agent.EventStream, tr *translate.Translator, desc *agent.Descriptor) (*Completed, error) {
	defer stream.Close()

	var st collectState
	for {
		ev, err := stream.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if _, err := a.apply(&st, tr, ev); err != nil {
			return nil, err
		}
		if st.terminal {
			break
		}
	}
	if !st.terminal {
		return nil, types.NewError(types.KindRuntimeProtocol, "runtime ended without a result event")
	}
	return a.finish(&st, desc), nil
}

// Completion shapes a Completed into the non-streaming response object.
func (c *Completed) Completion(id types.RequestID, model string, created time.Time) *oai.ChatCompletion {
	return &oai.ChatCompletion{
		ID:      string(id),
		Object:  oai.ObjectChatCompletion,
		Created: created.Unix(),
		Model:   model,
		Choices: []oai.Choice{{
			Index:        0,
			Message:      c.Message(),
			FinishReason: c.FinishReason,
		}},
		Usage: c.Usage,
	}
}

// Stream drains the event stream while emitting one chunk per event
// through emit. All chunks share id; the first chunk carries the
// assistant role, the last real chunk carries the finish reason, and a
// usage-only chunk follows when the descriptor asks for it. An emit
// failure means the caller is gone: the pull stops and nothing is
// returned for persistence. On an abnormal stream end the stop chunk is
// still attempted so well-behaved clients can terminate cleanly.
func (a *Assembler) Stream(ctx context.Context, stream agent.EventStream, tr *translate.Translator, desc *agent.Descriptor, id types.RequestID, emit func(*oai.ChatCompletionChunk) error) (*Completed, error) {
	defer stream.Close()

	created := time.Now()
	chunk := func() *oai.ChatCompletionChunk {
		return &oai.ChatCompletionChunk{
			ID:      string(id),
			Object:  oai.ObjectChunk,
			Created: created.Unix(),
			Model:   desc.Model,
			Choices: []oai.StreamChoice{{Index: 0}},
		}
	}

	role := chunk()
	role.Choices[0].Delta = oai.Delta{Role: "assistant", Content: oai.String("")}
	if err := emit(role); err != nil {
		return nil, err
	}

	stop := func(reason string) {
		final := chunk()
		final.Choices[0].FinishReason = oai.String(reason)
		if err := emit(final); err != nil {
			a.logger.Debug("stop chunk not delivered", "error", err)
		}
	}

	var st collectState
	for {
		ev, err := stream.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			stop("stop")
			return nil, err
		}
		call, err := a.apply(&st, tr, ev)
		if err != nil {
			stop("stop")
			return nil, err
		}
		if st.terminal {
			break
		}

		switch {
		case ev.Type == agent.EventDelta:
			c := chunk()
			c.Choices[0].Delta = oai.Delta{Content: oai.String(ev.Text)}
			if err := emit(c); err != nil {
				return nil, err
			}
		case call != nil:
			c := chunk()
			c.Choices[0].Delta = oai.Delta{ToolCalls: []oai.ToolCallDelta{{
				Index:    len(st.toolCalls) - 1,
				ID:       call.ID,
				Type:     call.Type,
				Function: call.Function,
			}}}
			if err := emit(c); err != nil {
				return nil, err
			}
		}
	}
	if !st.terminal {
		stop("stop")
		return nil, types.NewError(types.KindRuntimeProtocol, "runtime ended without a result event")
	}

	out := a.finish(&st, desc)

	// No assistant output at all still yields a visible response.
	if len(out.ToolCalls) == 0 && st.content.Len() == 0 {
		c := chunk()
		c.Choices[0].Delta = oai.Delta{Content: oai.String(out.Content)}
		if err := emit(c); err != nil {
			return nil, err
		}
	}

	stop(out.FinishReason)

	if desc.IncludeUsage {
		usage := chunk()
		usage.Choices = []oai.StreamChoice{}
		usage.Usage = &out.Usage
		if err := emit(usage); err != nil {
			return nil, err
		}
	}
	return out, nil
}
