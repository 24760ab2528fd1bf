package session

import (
	"sync"
	"time"

	"github.com/provisor-ai/deskbot/internal/registry"
)

// Session tracks which identity is handling a user and when they were last
// active. Only the store mutates sessions.
type Session struct {
	UserID       string            `json:"user_id"`
	CurrentAgent registry.Identity `json:"current_agent"`
	LastActivity time.Time         `json:"last_activity"`
	TurnCount    int               `json:"turn_count"`
}

// Stats is the aggregate snapshot exposed for monitoring.
type Stats struct {
	TotalSessions int                       `json:"total_sessions"`
	PerAgent      map[registry.Identity]int `json:"agent_distribution"`
	Oldest        time.Time                 `json:"oldest_session,omitzero"`
	Newest        time.Time                 `json:"newest_session,omitzero"`
}

type Store struct {
	defaultID registry.Identity

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewStore(defaultID registry.Identity) *Store {
	return &Store{
		defaultID: defaultID,
		sessions:  map[string]*Session{},
	}
}

// CurrentAgent returns the session's identity, or the default when no session
// exists. Reading refreshes last_activity and bumps the turn count; that side
// effect is how idle tracking works without a separate touch call.
func (s *Store) CurrentAgent(userID string) registry.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[userID]; ok {
		sess.LastActivity = time.Now().UTC()
		sess.TurnCount++
		return sess.CurrentAgent
	}
	return s.defaultID
}

// SetCurrentAgent upserts the session for userID.
func (s *Store) SetCurrentAgent(userID string, id registry.Identity) {
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[userID]; ok {
		sess.CurrentAgent = id
		sess.LastActivity = now
		return
	}
	s.sessions[userID] = &Session{
		UserID:       userID,
		CurrentAgent: id,
		LastActivity: now,
		TurnCount:    1,
	}
}

// Clear removes the session; the next lookup returns the default identity.
func (s *Store) Clear(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}

// Get returns a copy of the session, if any, without touching activity.
func (s *Store) Get(userID string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// Sweep drops sessions idle longer than maxIdle and reports how many were
// removed. The store never schedules this itself; the caller does.
func (s *Store) Sweep(maxIdle time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxIdle)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for userID, sess := range s.sessions {
		if sess.LastActivity.Before(cutoff) {
			delete(s.sessions, userID)
			removed++
		}
	}
	return removed
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := Stats{
		TotalSessions: len(s.sessions),
		PerAgent:      map[registry.Identity]int{},
	}
	for _, sess := range s.sessions {
		stats.PerAgent[sess.CurrentAgent]++
		if stats.Oldest.IsZero() || sess.LastActivity.Before(stats.Oldest) {
			stats.Oldest = sess.LastActivity
		}
		if sess.LastActivity.After(stats.Newest) {
			stats.Newest = sess.LastActivity
		}
	}
	return stats
}

// All returns a user→identity snapshot, for the sessions listing endpoint.
func (s *Store) All() map[string]registry.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]registry.Identity, len(s.sessions))
	for userID, sess := range s.sessions {
		out[userID] = sess.CurrentAgent
	}
	return out
}
