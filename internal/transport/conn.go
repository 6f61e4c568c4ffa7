// Package transport maintains resilient websocket subscriptions to room
// event streams: connection lifecycle, exponential-backoff reconnects,
// heartbeat keep-alive and presence announcement.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chat-client/internal/observability"
)

// State describes where a room subscription is in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosedRecoverable
	StateClosedFinal
)

// String returns the lowercase state name used in logs and stats.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosedRecoverable:
		return "closed_recoverable"
	case StateClosedFinal:
		return "closed_final"
	}
	return "unknown"
}

const defaultHeartbeatInterval = 25 * time.Second

// socket is the subset of *websocket.Conn the connection drives. Each
// reconnect replaces the socket wholesale; old ones are never reused.
type socket interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type dialFunc func(url string) (socket, error)

func gorillaDial(rawURL string) (socket, error) {
	ws, _, err := websocket.DefaultDialer.Dial(rawURL, nil)
	if err != nil {
		return nil, err
	}
	return ws, nil
}

// Options configure one room subscription.
type Options struct {
	// BaseURL is the configured http(s) backend address; its scheme is
	// rewritten to ws(s) when building the stream URL.
	BaseURL string
	RoomID  string

	// OnMessage receives every decoded inbound frame that is neither a
	// heartbeat acknowledgement nor a presence update. Shape validation
	// beyond JSON parsing is the callback's job.
	OnMessage func(data json.RawMessage)
	// OnPresence, when set, receives presence_update frames.
	OnPresence func(data json.RawMessage)

	// UserID and UserName, when UserID is non-nil, are announced with a
	// user_connected frame each time the connection opens. UserID stays
	// loosely typed because the backend accepts both numeric and string
	// identities on the wire.
	UserID   any
	UserName string

	// Policy overrides DefaultPolicy when set.
	Policy *ReconnectPolicy
}

type presenceAnnounce struct {
	Type     string `json:"type"`
	UserID   any    `json:"user_id"`
	UserName string `json:"user_name"`
}

// Conn owns exactly one underlying websocket for a room subscription and
// replaces it across reconnects. All faults are handled locally: they
// are logged and surface only as state changes, never as panics or
// errors thrown into callbacks.
type Conn struct {
	opts      Options
	wsURL     string
	policy    ReconnectPolicy
	dial      dialFunc
	heartbeat time.Duration

	// writeMu serializes frame writes: the underlying websocket allows
	// only one concurrent writer, and heartbeats, presence announces and
	// Send all race for it.
	writeMu sync.Mutex

	mu             sync.Mutex
	sock           socket
	state          State
	attempts       int
	manualClose    bool
	reconnectTimer *time.Timer
	stopHeartbeat  chan struct{}
	// gen increments whenever the current socket is replaced or
	// invalidated, so events from stale sockets are ignored.
	gen uint64
}

// New builds a Conn without connecting. Callers normally use Dial.
func New(opts Options) *Conn {
	policy := DefaultPolicy
	if opts.Policy != nil {
		policy = *opts.Policy
	}
	return &Conn{
		opts:      opts,
		wsURL:     BuildURL(opts.BaseURL, opts.RoomID),
		policy:    policy,
		dial:      gorillaDial,
		heartbeat: defaultHeartbeatInterval,
		state:     StateIdle,
	}
}

// Dial builds a Conn and starts the first connection attempt.
func Dial(opts Options) *Conn {
	c := New(opts)
	c.Connect()
	return c
}

// BuildURL rewrites an http(s) base address to its ws(s) equivalent and
// appends the room stream path.
func BuildURL(base, roomID string) string {
	b := strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(b, "https://"):
		b = "wss://" + strings.TrimPrefix(b, "https://")
	case strings.HasPrefix(b, "http://"):
		b = "ws://" + strings.TrimPrefix(b, "http://")
	}
	return b + "/ws/chat/" + roomID + "/"
}

// Connect opens a new socket unless one is already connecting or open.
// Dial failures never propagate; they feed the reconnect scheduler.
func (c *Conn) Connect() {
	c.mu.Lock()
	if c.manualClose || c.state == StateConnecting || c.state == StateOpen {
		c.mu.Unlock()
		return
	}
	c.clearReconnectTimerLocked()
	c.state = StateConnecting
	c.gen++
	gen := c.gen
	attempt := c.attempts
	c.mu.Unlock()

	log.Printf("ws connecting room=%s url=%s attempt=%d", c.opts.RoomID, c.wsURL, attempt+1)
	go c.establish(gen)
}

func (c *Conn) establish(gen uint64) {
	sock, err := c.dial(c.wsURL)

	c.mu.Lock()
	if gen != c.gen || c.manualClose {
		c.mu.Unlock()
		if err == nil {
			_ = sock.Close()
		}
		return
	}
	if err != nil {
		log.Printf("ws dial failed room=%s: %v", c.opts.RoomID, err)
		c.state = StateClosedRecoverable
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		return
	}

	c.sock = sock
	c.state = StateOpen
	c.attempts = 0
	stop := make(chan struct{})
	c.stopHeartbeat = stop
	c.mu.Unlock()

	log.Printf("ws connected room=%s", c.opts.RoomID)
	observability.IncWSActive("room")
	observability.IncWSEvent("room", "connect")
	c.publishLifecycle("connected")

	c.announcePresence(sock)
	go c.heartbeatLoop(sock, stop)
	go c.readLoop(sock, gen)
}

// announcePresence sends the user_connected frame once per open. Send
// failures are logged and ignored; only socket close events drive state.
func (c *Conn) announcePresence(sock socket) {
	if c.opts.UserID == nil {
		return
	}
	name := c.opts.UserName
	if name == "" {
		name = fmt.Sprintf("User %v", c.opts.UserID)
	}
	frame, err := json.Marshal(presenceAnnounce{Type: "user_connected", UserID: c.opts.UserID, UserName: name})
	if err != nil {
		log.Printf("ws presence announce marshal failed room=%s: %v", c.opts.RoomID, err)
		return
	}
	if err := c.writeFrame(sock, frame); err != nil {
		log.Printf("ws presence announce failed room=%s: %v", c.opts.RoomID, err)
	}
}

func (c *Conn) heartbeatLoop(sock socket, stop chan struct{}) {
	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.writeFrame(sock, []byte(`{"type":"ping"}`)); err != nil {
				log.Printf("ws ping failed room=%s: %v", c.opts.RoomID, err)
			}
		case <-stop:
			return
		}
	}
}

func (c *Conn) readLoop(sock socket, gen uint64) {
	for {
		_, payload, err := sock.ReadMessage()
		if err != nil {
			clean := websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
			c.handleClose(gen, clean, err)
			return
		}
		c.dispatch(payload)
	}
}

// dispatch routes one inbound frame by its type tag. Malformed frames
// are dropped without touching connection state.
func (c *Conn) dispatch(payload []byte) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		log.Printf("ws dropping malformed frame room=%s: %v", c.opts.RoomID, err)
		observability.IncWSEvent("room", "malformed_frame")
		return
	}
	switch probe.Type {
	case "pong":
	case "presence_update":
		if c.opts.OnPresence != nil {
			c.opts.OnPresence(json.RawMessage(payload))
		}
	default:
		if c.opts.OnMessage != nil {
			c.opts.OnMessage(json.RawMessage(payload))
		}
	}
}

func (c *Conn) handleClose(gen uint64, clean bool, cause error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.gen++
	c.stopHeartbeatLocked()
	if c.sock != nil {
		_ = c.sock.Close()
		c.sock = nil
	}
	wasOpen := c.state == StateOpen
	if c.manualClose || clean {
		c.state = StateClosedFinal
		c.mu.Unlock()
		if wasOpen {
			observability.DecWSActive("room")
		}
		log.Printf("ws closed room=%s clean=%t: %v", c.opts.RoomID, clean, cause)
		return
	}
	c.state = StateClosedRecoverable
	c.scheduleReconnectLocked()
	c.mu.Unlock()

	if wasOpen {
		observability.DecWSActive("room")
	}
	observability.IncWSEvent("room", "disconnect")
	c.publishLifecycle("disconnected")
	log.Printf("ws closed room=%s clean=false: %v", c.opts.RoomID, cause)
}

// scheduleReconnectLocked arms a single-shot retry timer. At most one
// timer is pending at a time; an exhausted attempt budget leaves the
// connection final until Reconnect is called.
func (c *Conn) scheduleReconnectLocked() {
	if c.manualClose {
		return
	}
	if c.attempts >= c.policy.MaxAttempts {
		c.state = StateClosedFinal
		log.Printf("ws reconnect budget exhausted room=%s after %d attempts", c.opts.RoomID, c.attempts)
		observability.IncWSEvent("room", "exhausted")
		c.publishLifecycle("reconnect_exhausted")
		return
	}
	delay := c.policy.Delay(c.attempts)
	c.attempts++
	c.clearReconnectTimerLocked()
	log.Printf("ws reconnecting room=%s in %s (attempt %d/%d)", c.opts.RoomID, delay, c.attempts, c.policy.MaxAttempts)
	observability.IncWSEvent("room", "reconnect_scheduled")
	c.reconnectTimer = time.AfterFunc(delay, c.Connect)
}

// Close tears the subscription down: cancels both timers, closes the
// socket and suppresses any further reconnection. Safe to call twice.
func (c *Conn) Close() {
	c.mu.Lock()
	c.manualClose = true
	c.gen++
	c.clearReconnectTimerLocked()
	c.stopHeartbeatLocked()
	if c.sock != nil {
		_ = c.sock.Close()
		c.sock = nil
	}
	wasOpen := c.state == StateOpen
	c.state = StateClosedFinal
	c.mu.Unlock()
	if wasOpen {
		observability.DecWSActive("room")
	}
}

// Reconnect is the caller-driven reset: it clears the manual-close flag,
// zeroes the attempt counter, drops any existing socket and connects
// immediately. The path out of an exhausted budget.
func (c *Conn) Reconnect() {
	c.mu.Lock()
	c.manualClose = false
	c.attempts = 0
	c.gen++
	c.clearReconnectTimerLocked()
	c.stopHeartbeatLocked()
	if c.sock != nil {
		_ = c.sock.Close()
		c.sock = nil
	}
	wasOpen := c.state == StateOpen
	c.state = StateIdle
	c.mu.Unlock()
	if wasOpen {
		observability.DecWSActive("room")
	}
	c.Connect()
}

// Send marshals v and forwards it to the underlying socket. Without an
// open socket the call is a silent no-op; callers that need delivery
// guarantees gate on State first.
func (c *Conn) Send(v any) error {
	c.mu.Lock()
	sock := c.sock
	open := c.state == StateOpen
	c.mu.Unlock()
	if sock == nil || !open {
		return nil
	}
	frame, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.writeFrame(sock, frame)
}

// writeFrame is the single funnel for outbound frames.
func (c *Conn) writeFrame(sock socket, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return sock.WriteMessage(websocket.TextMessage, data)
}

// State reports the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts reports the current reconnect attempt counter.
func (c *Conn) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

func (c *Conn) pendingReconnect() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnectTimer != nil
}

// publishLifecycle fans a lifecycle event onto the telemetry bus.
// Asynchronous so it is safe to call with c.mu held.
func (c *Conn) publishLifecycle(event string) {
	envelope := observability.EventEnvelope{
		EventType: "ws_lifecycle",
		EventName: event,
		Payload:   map[string]string{"room_id": c.opts.RoomID},
	}
	go func() {
		if err := observability.PublishEvent(context.Background(), "ws_lifecycle."+event, envelope); err != nil {
			log.Printf("ws lifecycle publish failed room=%s event=%s: %v", c.opts.RoomID, event, err)
		}
	}()
}

func (c *Conn) clearReconnectTimerLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

func (c *Conn) stopHeartbeatLocked() {
	if c.stopHeartbeat != nil {
		close(c.stopHeartbeat)
		c.stopHeartbeat = nil
	}
}
