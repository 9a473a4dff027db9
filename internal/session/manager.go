// internal/session/manager.go
package session

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/user/agentgate/internal/types"
)

// DefaultTTL is how long an idle session survives before expiry.
const DefaultTTL = time.Hour

// Session is one conversation: an ordered list of completed turns plus
// access bookkeeping. Each session carries its own mutex so concurrent
// requests for the same key serialize without blocking the registry.
type Session struct {
	mu         sync.Mutex
	key        types.SessionKey
	createdAt  time.Time
	lastAccess time.Time
	turns      []types.Turn
}

// Manager is the in-memory conversation store. The registry lock is held
// only for map lookup, insert, and remove; per-session work happens under
// the session's own lock.
type Manager struct {
	mu       sync.RWMutex
	sessions map[types.SessionKey]*Session
	ttl      time.Duration
	clock    func() time.Time
	logger   *slog.Logger
}

// NewManager creates a Manager with the given TTL. A non-positive TTL
// falls back to DefaultTTL.
func NewManager(ttl time.Duration, logger *slog.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions: make(map[types.SessionKey]*Session),
		ttl:      ttl,
		clock:    time.Now,
		logger:   logger,
	}
}

// expired reports whether the session is past its TTL. Caller must hold
// the session lock.
func (m *Manager) expired(s *Session, now time.Time) bool {
	return now.Sub(s.lastAccess) > m.ttl
}

// lookup returns the live session for key, removing it if expired.
func (m *Manager) lookup(key types.SessionKey) *Session {
	now := m.clock()

	m.mu.RLock()
	s, ok := m.sessions[key]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	s.mu.Lock()
	stale := m.expired(s, now)
	s.mu.Unlock()
	if !stale {
		return s
	}

	m.mu.Lock()
	// Re-check under the write lock; another goroutine may have replaced
	// the entry with a fresh session for the same key.
	if cur, ok := m.sessions[key]; ok && cur == s {
		delete(m.sessions, key)
		m.logger.Debug("session expired on access", "session", string(key))
	}
	m.mu.Unlock()
	return nil
}

// GetOrCreate returns the session for key, creating a fresh one when none
// exists or the previous one expired. It never fails.
func (m *Manager) GetOrCreate(key types.SessionKey) *Session {
	if s := m.lookup(key); s != nil {
		return s
	}

	now := m.clock()
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		return s
	}
	s := &Session{key: key, createdAt: now, lastAccess: now}
	m.sessions[key] = s
	m.logger.Debug("session created", "session", string(key))
	return s
}

// History returns a copy of the session's turns in order and refreshes
// its last-access time. A missing or expired key yields no history.
func (m *Manager) History(key types.SessionKey) []types.Turn {
	s := m.lookup(key)
	if s == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAccess = m.clock()
	out := make([]types.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// AppendTurn records a completed exchange on the session. If the session
// was evicted between the caller's read and this write, it reports
// SessionNotFound so the caller can recreate and retry.
func (m *Manager) AppendTurn(key types.SessionKey, turn types.Turn) error {
	m.mu.RLock()
	s, ok := m.sessions[key]
	m.mu.RUnlock()
	if !ok {
		return types.NewError(types.KindSessionNotFound, "session %s no longer exists", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if m.expired(s, m.clock()) {
		return types.NewError(types.KindSessionNotFound, "session %s expired", key)
	}
	s.turns = append(s.turns, turn)
	s.lastAccess = m.clock()
	return nil
}

// Touch refreshes the session's last-access time if it is still live.
func (m *Manager) Touch(key types.SessionKey) {
	if s := m.lookup(key); s != nil {
		s.mu.Lock()
		s.lastAccess = m.clock()
		s.mu.Unlock()
	}
}

// Delete removes the session and reports whether it existed.
func (m *Manager) Delete(key types.SessionKey) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[key]; !ok {
		return false
	}
	delete(m.sessions, key)
	m.logger.Debug("session deleted", "session", string(key))
	return true
}

// Get returns a summary of the session, or nil if missing or expired.
func (m *Manager) Get(key types.SessionKey) *types.SessionSummary {
	s := m.lookup(key)
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := m.summarize(s)
	return &sum
}

// summarize builds a summary. Caller must hold the session lock.
func (m *Manager) summarize(s *Session) types.SessionSummary {
	return types.SessionSummary{
		Key:        s.key,
		CreatedAt:  s.createdAt,
		LastAccess: s.lastAccess,
		Turns:      len(s.turns),
		ExpiresAt:  s.lastAccess.Add(m.ttl),
	}
}

// List returns summaries of all live sessions, oldest first.
func (m *Manager) List() []types.SessionSummary {
	now := m.clock()

	m.mu.RLock()
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.RUnlock()

	out := make([]types.SessionSummary, 0, len(live))
	for _, s := range live {
		s.mu.Lock()
		if !m.expired(s, now) {
			out = append(out, m.summarize(s))
		}
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Stats aggregates live-session counts for the stats endpoint.
func (m *Manager) Stats() types.SessionStats {
	now := m.clock()
	var stats types.SessionStats
	for _, sum := range m.List() {
		stats.ActiveSessions++
		stats.TotalTurns += sum.Turns
		if age := now.Sub(sum.CreatedAt); age > stats.OldestAge {
			stats.OldestAge = age
		}
	}
	return stats
}

// ExpireSweep removes every session past its TTL as of now and returns
// how many were dropped. Lazy expiry on access makes this a hygiene pass,
// not a correctness requirement.
func (m *Manager) ExpireSweep(now time.Time) int {
	m.mu.RLock()
	keys := make([]types.SessionKey, 0, len(m.sessions))
	for key := range m.sessions {
		keys = append(keys, key)
	}
	m.mu.RUnlock()

	removed := 0
	for _, key := range keys {
		m.mu.RLock()
		s, ok := m.sessions[key]
		m.mu.RUnlock()
		if !ok {
			continue
		}

		s.mu.Lock()
		stale := m.expired(s, now)
		s.mu.Unlock()
		if !stale {
			continue
		}

		m.mu.Lock()
		if cur, ok := m.sessions[key]; ok && cur == s {
			delete(m.sessions, key)
			removed++
		}
		m.mu.Unlock()
	}
	if removed > 0 {
		m.logger.Info("expired sessions swept", "count", removed)
	}
	return removed
}
