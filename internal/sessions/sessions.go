// Package sessions holds the in-memory transcripts of test
// conversations users run against a freshly persisted agent.
package sessions

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shirisha-ilura/UL/pkg/models"
)

// MemorySessionStore is a thread-safe in-memory chat session store.
// Test chats are ephemeral: they live for the gateway's lifetime and
// are never mirrored to disk.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.ChatSession // key: session ID
}

// NewMemorySessionStore creates an empty session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*models.ChatSession)}
}

// CreateSession registers a session, minting an ID when none is set so
// the first chat turn can open a session implicitly.
func (s *MemorySessionStore) CreateSession(_ context.Context, session *models.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if _, exists := s.sessions[session.ID]; exists {
		return fmt.Errorf("chat session %s already exists", session.ID)
	}
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now
	s.sessions[session.ID] = session
	return nil
}

// GetSession returns a copy of the session; the transcript slice is
// cloned so callers can range over it without holding the lock.
func (s *MemorySessionStore) GetSession(_ context.Context, sessionID string) (*models.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("chat session %s not found", sessionID)
	}
	return snapshotOf(session), nil
}

// AppendMessage adds one turn to a session's transcript.
func (s *MemorySessionStore) AppendMessage(_ context.Context, sessionID string, msg models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("chat session %s not found", sessionID)
	}
	session.Messages = append(session.Messages, msg)
	session.UpdatedAt = time.Now().UTC()
	return nil
}

// ListSessions returns the sessions held with an agent, most recently
// active first.
func (s *MemorySessionStore) ListSessions(_ context.Context, agentID string) ([]models.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.ChatSession
	for _, sess := range s.sessions {
		if sess.AgentID == agentID {
			out = append(out, *snapshotOf(sess))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// DeleteSession removes a session.
func (s *MemorySessionStore) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sessionID]; !exists {
		return fmt.Errorf("chat session %s not found", sessionID)
	}
	delete(s.sessions, sessionID)
	return nil
}

// snapshotOf copies a session along with its transcript.
func snapshotOf(session *models.ChatSession) *models.ChatSession {
	copy := *session
	copy.Messages = append([]models.ChatMessage(nil), session.Messages...)
	return &copy
}
