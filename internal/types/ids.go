// internal/types/ids.go
package types

import (
	"strings"

	"github.com/google/uuid"
)

type SessionKey string
type RequestID string
type ToolCallID string

// NewRequestID returns a response identifier in the chatcmpl-prefixed
// form callers expect; every chunk of one response reuses it.
func NewRequestID() RequestID {
	return RequestID("chatcmpl-" + strings.ReplaceAll(uuid.New().String(), "-", ""))
}

// NewToolCallID returns a caller-visible tool call identifier.
func NewToolCallID() ToolCallID {
	return ToolCallID("call_" + strings.ReplaceAll(uuid.New().String(), "-", ""))
}

func NewSessionKey(parts ...string) SessionKey {
	return SessionKey(strings.Join(parts, ":"))
}
