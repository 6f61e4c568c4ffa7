// Package session reconciles the two message streams of a room — REST
// history and the live websocket feed — into one deduplicated view, and
// tracks who is online.
package session

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"chat-client/internal/transport"
	"chat-client/internal/wire"
)

const archiveTimeout = 5 * time.Second

// HistoryClient is the request/response surface a session needs.
type HistoryClient interface {
	Messages(ctx context.Context, roomID string) ([]wire.Raw, error)
	SendMessage(ctx context.Context, roomID, userID, userFullName, text string) (wire.Raw, error)
}

// Archiver receives every confirmed message. Optional.
type Archiver interface {
	Store(ctx context.Context, roomID string, msg wire.Message) error
}

// Config assembles a room session.
type Config struct {
	WSBase   string
	RoomID   string
	UserID   string
	UserName string
	History  HistoryClient
	Archive  Archiver
	Policy   *transport.ReconnectPolicy
}

// Status is the control-surface view of one session.
type Status struct {
	RoomID            string `json:"room_id"`
	State             string `json:"state"`
	ReconnectAttempts int    `json:"reconnect_attempts"`
	Online            int    `json:"online"`
	Messages          int    `json:"messages"`
}

// RoomSession owns one live room subscription plus the message list and
// presence set derived from it.
type RoomSession struct {
	cfg  Config
	conn *transport.Conn

	mu       sync.Mutex
	messages []wire.Message
	presence map[string]struct{}
	online   int
}

// New builds a session. The websocket is not dialed until Start.
func New(cfg Config) *RoomSession {
	s := &RoomSession{cfg: cfg, presence: map[string]struct{}{}}

	var userID any
	if cfg.UserID != "" {
		userID = cfg.UserID
	}
	s.conn = transport.New(transport.Options{
		BaseURL:    cfg.WSBase,
		RoomID:     cfg.RoomID,
		OnMessage:  s.handleFrame,
		OnPresence: s.handlePresence,
		UserID:     userID,
		UserName:   cfg.UserName,
		Policy:     cfg.Policy,
	})
	return s
}

// Start loads the room history and then opens the live subscription.
// The history load is best-effort: a failed load still starts the live
// feed, it just begins from an empty list.
func (s *RoomSession) Start(ctx context.Context) error {
	raws, err := s.cfg.History.Messages(ctx, s.cfg.RoomID)
	if err != nil {
		log.Printf("session room=%s history load failed: %v", s.cfg.RoomID, err)
	}

	s.mu.Lock()
	for _, raw := range raws {
		s.messages = wire.AppendUnique(s.messages, wire.Normalize(raw, s.cfg.UserID))
	}
	s.mu.Unlock()

	s.conn.Connect()
	return err
}

// handleFrame ingests one live message frame.
func (s *RoomSession) handleFrame(data json.RawMessage) {
	raw, err := wire.DecodeFrame(data)
	if err != nil {
		log.Printf("session room=%s dropping undecodable frame: %v", s.cfg.RoomID, err)
		return
	}
	msg := wire.Normalize(raw, s.cfg.UserID)
	if msg.ID == "" && msg.Text == "" {
		// Control frames (user_connected echoes and the like) carry
		// neither id nor content; they are not display messages.
		return
	}

	s.mu.Lock()
	before := len(s.messages)
	s.messages = wire.AppendUnique(s.messages, msg)
	appended := len(s.messages) > before
	s.mu.Unlock()

	if appended {
		s.archiveMessage(msg)
	}
}

// handlePresence replaces the last-known online set wholesale.
func (s *RoomSession) handlePresence(data json.RawMessage) {
	update, err := wire.DecodePresence(data)
	if err != nil {
		log.Printf("session room=%s dropping undecodable presence frame: %v", s.cfg.RoomID, err)
		return
	}
	ids := update.UserIDs()

	s.mu.Lock()
	s.presence = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s.presence[id] = struct{}{}
	}
	s.online = len(ids)
	if len(ids) == 0 && update.Count > 0 {
		s.online = update.Count
	}
	s.mu.Unlock()
}

// Send posts text through the REST API, tracking a pending local echo
// until the backend confirms it with an id.
func (s *RoomSession) Send(ctx context.Context, text string) (wire.Message, error) {
	mine := true
	pending := wire.Message{
		Sender:    wire.Sender{ID: s.cfg.UserID, FirstName: s.cfg.UserName},
		Text:      text,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Mine:      &mine,
		Status:    wire.StatusPending,
	}
	s.mu.Lock()
	s.messages = append(s.messages, pending)
	s.mu.Unlock()

	raw, err := s.cfg.History.SendMessage(ctx, s.cfg.RoomID, s.cfg.UserID, s.cfg.UserName, text)
	if err != nil {
		s.dropPending(text)
		return wire.Message{}, err
	}

	confirmed := wire.Normalize(raw, s.cfg.UserID)
	s.confirmPending(text, confirmed)
	s.archiveMessage(confirmed)
	return confirmed, nil
}

// confirmPending promotes the oldest matching pending entry, or removes
// it when the live feed already delivered the confirmed message.
func (s *RoomSession) confirmPending(text string, confirmed wire.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	duplicate := false
	if confirmed.ID != "" {
		for _, m := range s.messages {
			if m.ID == confirmed.ID {
				duplicate = true
				break
			}
		}
	}

	for i, m := range s.messages {
		if m.Status == wire.StatusPending && m.ID == "" && m.Text == text {
			if duplicate {
				s.messages = append(s.messages[:i], s.messages[i+1:]...)
			} else {
				s.messages[i] = confirmed
			}
			return
		}
	}
	// Pending entry already gone; keep the confirmed record if new.
	if !duplicate {
		s.messages = wire.AppendUnique(s.messages, confirmed)
	}
}

func (s *RoomSession) dropPending(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.messages {
		if m.Status == wire.StatusPending && m.ID == "" && m.Text == text {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return
		}
	}
}

func (s *RoomSession) archiveMessage(msg wire.Message) {
	if s.cfg.Archive == nil || msg.ID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := s.cfg.Archive.Store(ctx, s.cfg.RoomID, msg); err != nil {
		log.Printf("session room=%s archive failed: %v", s.cfg.RoomID, err)
	}
}

// Messages returns a copy of the current ordered message list.
func (s *RoomSession) Messages() []wire.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wire.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Presence returns the last-known online user ids, sorted.
func (s *RoomSession) Presence() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.presence))
	for id := range s.presence {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// OnlineCount returns the last-reported number of online users.
func (s *RoomSession) OnlineCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// Status snapshots the session for the control surface.
func (s *RoomSession) Status() Status {
	s.mu.Lock()
	messages := len(s.messages)
	online := s.online
	s.mu.Unlock()
	return Status{
		RoomID:            s.cfg.RoomID,
		State:             s.conn.State().String(),
		ReconnectAttempts: s.conn.Attempts(),
		Online:            online,
		Messages:          messages,
	}
}

// Reconnect forces an immediate fresh connection attempt, clearing any
// exhausted backoff budget.
func (s *RoomSession) Reconnect() {
	s.conn.Reconnect()
}

// Close tears down the live subscription.
func (s *RoomSession) Close() {
	s.conn.Close()
}
