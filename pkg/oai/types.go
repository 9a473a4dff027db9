// Package oai defines the OpenAI-compatible wire contract served by the
// gateway: the chat completions request in both the current and legacy
// tool-declaration shapes, the non-streaming response object, the streaming
// chunk objects, and the error envelope.
package oai

import "encoding/json"

// Object type discriminators used on outbound payloads.
const (
	ObjectChatCompletion = "chat.completion"
	ObjectChunk          = "chat.completion.chunk"
	ObjectList           = "list"
	ObjectModel          = "model"
)

// Done is the SSE sentinel written after the final chunk of a stream.
const Done = "[DONE]"

// Message is one role-tagged entry in a conversation.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a tool invocation emitted by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the tool name and its serialized argument blob.
type FunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// Tool is the current caller-side tool declaration shape.
type Tool struct {
	Type     string   `json:"type"`
	Function Function `json:"function"`
}

// Function describes a callable function including its parameter schema.
// It is also the legacy flat declaration shape accepted under "functions".
type Function struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// StreamOptions holds per-request streaming knobs.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// ChatCompletionRequest is the inbound request body.
//
// Tools may arrive either as nested Tool objects ("tools") or the legacy
// flat Function list ("functions"); both normalize to the same internal
// declarations. ToolChoice and FunctionCall are raw JSON since OpenAI
// allows either a string or an object there; they are accepted for wire
// compatibility only and never forwarded to the runtime, which decides
// tool use on its own.
type ChatCompletionRequest struct {
	Model         string          `json:"model"`
	Messages      []Message       `json:"messages"`
	Stream        bool            `json:"stream,omitempty"`
	StreamOptions *StreamOptions  `json:"stream_options,omitempty"`
	Tools         []Tool          `json:"tools,omitempty"`
	Functions     []Function      `json:"functions,omitempty"`
	ToolChoice    json.RawMessage `json:"tool_choice,omitempty"`
	FunctionCall  json.RawMessage `json:"function_call,omitempty"`
	SessionID     string          `json:"session_id,omitempty"`
	SessionKey    string          `json:"session_key,omitempty"`
	EnableTools   bool            `json:"enable_tools,omitempty"`
	MaxTokens     int             `json:"max_tokens,omitempty"`
	Temperature   *float32        `json:"temperature,omitempty"`
	User          string          `json:"user,omitempty"`
}

// Session returns the caller-supplied session key, accepting both field
// spellings. Empty means stateless.
func (r *ChatCompletionRequest) Session() string {
	if r.SessionID != "" {
		return r.SessionID
	}
	return r.SessionKey
}

// IncludeUsage reports whether the caller asked for a trailing usage chunk.
func (r *ChatCompletionRequest) IncludeUsage() bool {
	return r.StreamOptions != nil && r.StreamOptions.IncludeUsage
}

// Usage is the token accounting record attached to responses.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Choice is a single completion choice in a non-streaming response.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// ChatCompletion is the non-streaming response body.
type ChatCompletion struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Delta is the incremental payload of a streaming chunk. Content is a
// pointer so the initial role chunk can carry an explicit empty string.
type Delta struct {
	Role      string          `json:"role,omitempty"`
	Content   *string         `json:"content,omitempty"`
	ToolCalls []ToolCallDelta `json:"tool_calls,omitempty"`
}

// ToolCallDelta is one element of a streamed tool_calls delta.
type ToolCallDelta struct {
	Index    int          `json:"index"`
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
}

// StreamChoice is a single choice inside a streaming chunk. FinishReason
// is a pointer so intermediate chunks serialize it as null.
type StreamChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// ChatCompletionChunk is one streamed response chunk. All chunks of one
// response share the same ID. Usage is present only on the trailing
// usage-only chunk when the caller requested it.
type ChatCompletionChunk struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []StreamChoice `json:"choices"`
	Usage   *Usage         `json:"usage,omitempty"`
}

// Model is one entry of the model listing.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

// ModelList is the /v1/models response body.
type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

// ErrorDetail is the inner error object of the OpenAI error envelope.
// Code carries the stable machine-readable kind.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

// ErrorResponse is the OpenAI-style error envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// String returns a pointer to s, for Delta.Content and finish reasons.
func String(s string) *string { return &s }
