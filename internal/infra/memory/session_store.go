package memory

import (
	"context"
	"sync"
	"time"

	"iq-quiz-client/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionStore. Entries
// expire ttl after their last write.
type SessionStore struct {
	ttl   time.Duration
	clock func() time.Time

	mu       sync.RWMutex
	sessions map[string]*sessionEntry
}

type sessionEntry struct {
	nickname  string
	handoff   *domain.Handoff
	history   []domain.HistoryEntry
	expiresAt time.Time
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	return newSessionStoreWithClock(ttl, time.Now)
}

// newSessionStoreWithClock allows deterministic expiry in tests.
func newSessionStoreWithClock(ttl time.Duration, clock func() time.Time) *SessionStore {
	return &SessionStore{
		ttl:      ttl,
		clock:    clock,
		sessions: make(map[string]*sessionEntry),
	}
}

func (s *SessionStore) SetNickname(_ context.Context, sessionID, nickname string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.touchLocked(sessionID)
	entry.nickname = nickname
	return nil
}

func (s *SessionStore) Nickname(_ context.Context, sessionID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if entry, ok := s.liveLocked(sessionID); ok {
		return entry.nickname, nil
	}
	return "", nil
}

func (s *SessionStore) SaveHandoff(_ context.Context, sessionID string, h domain.Handoff) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.touchLocked(sessionID)
	entry.handoff = &h
	return nil
}

func (s *SessionStore) Handoff(_ context.Context, sessionID string) (domain.Handoff, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.liveLocked(sessionID)
	if !ok || entry.handoff == nil {
		return domain.Handoff{}, false, nil
	}
	return *entry.handoff, true, nil
}

func (s *SessionStore) History(_ context.Context, sessionID string) ([]domain.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.liveLocked(sessionID)
	if !ok {
		return nil, nil
	}
	out := make([]domain.HistoryEntry, len(entry.history))
	copy(out, entry.history)
	return out, nil
}

func (s *SessionStore) SaveHistory(_ context.Context, sessionID string, history []domain.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.touchLocked(sessionID)
	entry.history = append([]domain.HistoryEntry(nil), history...)
	return nil
}

func (s *SessionStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.liveLocked(sessionID)
	if !ok {
		return nil
	}
	entry.nickname = ""
	entry.handoff = nil
	if len(entry.history) == 0 {
		delete(s.sessions, sessionID)
	}
	return nil
}

// Sweep drops expired sessions.
func (s *SessionStore) Sweep() int {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, entry := range s.sessions {
		if !entry.expiresAt.After(now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

func (s *SessionStore) touchLocked(sessionID string) *sessionEntry {
	entry, ok := s.liveLocked(sessionID)
	if !ok {
		entry = &sessionEntry{}
		s.sessions[sessionID] = entry
	}
	if s.ttl > 0 {
		entry.expiresAt = s.clock().Add(s.ttl)
	}
	return entry
}

func (s *SessionStore) liveLocked(sessionID string) (*sessionEntry, bool) {
	entry, ok := s.sessions[sessionID]
	if !ok {
		return nil, false
	}
	if s.ttl > 0 && !entry.expiresAt.After(s.clock()) {
		return nil, false
	}
	return entry, true
}
