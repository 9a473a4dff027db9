// internal/types/models.go
package types

import (
	"encoding/json"
	"time"

	"github.com/user/agentgate/pkg/oai"
)

// Turn is one completed exchange persisted to a session: the caller's new
// messages, the assistant response, and any tool results synthesized while
// assembling it. Partial exchanges are never stored as turns.
type Turn struct {
	Messages    []oai.Message `json:"messages"`
	Response    oai.Message   `json:"response"`
	ToolResults []ToolResult  `json:"tool_results,omitempty"`
	Usage       oai.Usage     `json:"usage"`
	CostUSD     float64       `json:"cost_usd,omitempty"`
	At          time.Time     `json:"at"`
}

// ToolResult records the outcome of a runtime tool call, including the
// synthesized error result for a call naming an undeclared tool.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	Content string `json:"content"`
	Error   bool   `json:"error,omitempty"`
}

type SessionSummary struct {
	Key        SessionKey `json:"session_id"`
	CreatedAt  time.Time  `json:"created_at"`
	LastAccess time.Time  `json:"last_accessed"`
	Turns      int        `json:"turn_count"`
	ExpiresAt  time.Time  `json:"expires_at"`
}

// SessionStats aggregates live-session counts. OldestAge crosses the
// wire as whole seconds, not Duration nanoseconds.
type SessionStats struct {
	ActiveSessions int
	TotalTurns     int
	OldestAge      time.Duration
}

type sessionStatsWire struct {
	ActiveSessions int   `json:"active_sessions"`
	TotalTurns     int   `json:"total_turns"`
	OldestAgeSecs  int64 `json:"oldest_age_seconds"`
}

func (s SessionStats) MarshalJSON() ([]byte, error) {
	return json.Marshal(sessionStatsWire{
		ActiveSessions: s.ActiveSessions,
		TotalTurns:     s.TotalTurns,
		OldestAgeSecs:  int64(s.OldestAge / time.Second),
	})
}

func (s *SessionStats) UnmarshalJSON(data []byte) error {
	var w sessionStatsWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	s.ActiveSessions = w.ActiveSessions
	s.TotalTurns = w.TotalTurns
	s.OldestAge = time.Duration(w.OldestAgeSecs) * time.Second
	return nil
}
