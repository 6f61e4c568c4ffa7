package session

import (
	"context"
	"sort"
	"sync"

	"chat-client/internal/transport"
)

// Manager tracks the open room sessions of one client process.
type Manager struct {
	wsBase   string
	userID   string
	userName string
	history  HistoryClient
	archive  Archiver
	policy   *transport.ReconnectPolicy

	mu       sync.Mutex
	sessions map[string]*RoomSession
}

// NewManager builds an empty Manager.
func NewManager(wsBase, userID, userName string, history HistoryClient, archive Archiver) *Manager {
	return &Manager{
		wsBase:   wsBase,
		userID:   userID,
		userName: userName,
		history:  history,
		archive:  archive,
		sessions: map[string]*RoomSession{},
	}
}

// Open starts a session for roomID, returning the existing one when the
// room is already subscribed.
func (m *Manager) Open(ctx context.Context, roomID string) (*RoomSession, error) {
	m.mu.Lock()
	if existing, ok := m.sessions[roomID]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	s := New(Config{
		WSBase:   m.wsBase,
		RoomID:   roomID,
		UserID:   m.userID,
		UserName: m.userName,
		History:  m.history,
		Archive:  m.archive,
		Policy:   m.policy,
	})
	m.sessions[roomID] = s
	m.mu.Unlock()

	return s, s.Start(ctx)
}

// Get returns the session for roomID if one is open.
func (m *Manager) Get(roomID string) (*RoomSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[roomID]
	return s, ok
}

// CloseRoom closes and forgets the session for roomID.
func (m *Manager) CloseRoom(roomID string) {
	m.mu.Lock()
	s, ok := m.sessions[roomID]
	delete(m.sessions, roomID)
	m.mu.Unlock()
	if ok {
		s.Close()
	}
}

// Snapshot reports the status of every open session, ordered by room id.
func (m *Manager) Snapshot() []Status {
	m.mu.Lock()
	sessions := make([]*RoomSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	statuses := make([]Status, 0, len(sessions))
	for _, s := range sessions {
		statuses = append(statuses, s.Status())
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].RoomID < statuses[j].RoomID })
	return statuses
}

// CloseAll tears down every open session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*RoomSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = map[string]*RoomSession{}
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
