package memory

import (
	"sync"

	"zetaduel-service/internal/app"
)

// SessionStore is an in-memory implementation of app.SessionStore.
type SessionStore struct {
	mu            sync.RWMutex
	sessions      map[string]*app.DuelSession
	byParticipant map[string]string
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions:      make(map[string]*app.DuelSession),
		byParticipant: make(map[string]string),
	}
}

func (s *SessionStore) Add(session *app.DuelSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID()] = session
	for _, id := range session.ParticipantIDs() {
		s.byParticipant[id] = session.ID()
	}
}

func (s *SessionStore) Get(sessionID string) (*app.DuelSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	return session, ok
}

func (s *SessionStore) ForParticipant(participantID string) (*app.DuelSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessionID, ok := s.byParticipant[participantID]
	if !ok {
		return nil, false
	}
	session, ok := s.sessions[sessionID]
	return session, ok
}

// Remove drops the session and every participant route pointing at it.
func (s *SessionStore) Remove(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return false
	}
	delete(s.sessions, sessionID)
	for _, id := range session.ParticipantIDs() {
		// only drop routes that still point at this session
		if s.byParticipant[id] == sessionID {
			delete(s.byParticipant, id)
		}
	}
	return true
}

func (s *SessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
