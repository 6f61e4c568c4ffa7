package transport

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSocket is a scriptable socket: tests feed inbound frames through
// incoming and force close events with failRead.
type fakeSocket struct {
	mu       sync.Mutex
	writes   [][]byte
	incoming chan []byte
	done     chan struct{}
	once     sync.Once
	readErr  error
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{incoming: make(chan []byte, 16), done: make(chan struct{})}
}

func (f *fakeSocket) ReadMessage() (int, []byte, error) {
	select {
	case data := <-f.incoming:
		return websocket.TextMessage, data, nil
	case <-f.done:
		f.mu.Lock()
		err := f.readErr
		f.mu.Unlock()
		if err == nil {
			err = errors.New("use of closed socket")
		}
		return 0, nil, err
	}
}

func (f *fakeSocket) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	f.writes = append(f.writes, cp)
	return nil
}

func (f *fakeSocket) Close() error {
	f.once.Do(func() { close(f.done) })
	return nil
}

func (f *fakeSocket) failRead(err error) {
	f.mu.Lock()
	f.readErr = err
	f.mu.Unlock()
	f.Close()
}

func (f *fakeSocket) written() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.writes))
	copy(out, f.writes)
	return out
}

// seqDialer fails the first fails dials, then hands out fake sockets.
type seqDialer struct {
	mu    sync.Mutex
	fails int
	calls int
	socks []*fakeSocket
}

func (d *seqDialer) dial(string) (socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.calls <= d.fails {
		return nil, errors.New("dial refused")
	}
	s := newFakeSocket()
	d.socks = append(d.socks, s)
	return s, nil
}

func (d *seqDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *seqDialer) lastSocket() *fakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.socks) == 0 {
		return nil
	}
	return d.socks[len(d.socks)-1]
}

var fastPolicy = ReconnectPolicy{InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, MaxAttempts: 10}

func newTestConn(opts Options, dial dialFunc) *Conn {
	if opts.BaseURL == "" {
		opts.BaseURL = "http://chat.test"
	}
	if opts.RoomID == "" {
		opts.RoomID = "7"
	}
	c := New(opts)
	c.dial = dial
	c.heartbeat = time.Hour
	return c
}

func waitForState(t *testing.T, c *Conn, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == want }, 2*time.Second, 2*time.Millisecond,
		"want state %s, have %s", want, c.State())
}

func TestBuildURL(t *testing.T) {
	assert.Equal(t, "ws://chat.test/ws/chat/12/", BuildURL("http://chat.test", "12"))
	assert.Equal(t, "wss://chat.test/ws/chat/12/", BuildURL("https://chat.test/", "12"))
	assert.Equal(t, "ws://chat.test/ws/chat/12/", BuildURL("ws://chat.test", "12"))
}

func TestPresenceAnnouncedOnOpen(t *testing.T) {
	dialer := &seqDialer{}
	c := newTestConn(Options{UserID: 42, UserName: "Ann"}, dialer.dial)
	defer c.Close()

	c.Connect()
	waitForState(t, c, StateOpen)

	sock := dialer.lastSocket()
	require.Eventually(t, func() bool { return len(sock.written()) == 1 }, time.Second, 2*time.Millisecond)
	assert.JSONEq(t, `{"type":"user_connected","user_id":42,"user_name":"Ann"}`, string(sock.written()[0]))
}

func TestNoPresenceAnnounceWithoutIdentity(t *testing.T) {
	dialer := &seqDialer{}
	c := newTestConn(Options{}, dialer.dial)
	defer c.Close()

	c.Connect()
	waitForState(t, c, StateOpen)

	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, dialer.lastSocket().written())
}

func TestHeartbeatFrames(t *testing.T) {
	dialer := &seqDialer{}
	c := newTestConn(Options{}, dialer.dial)
	c.heartbeat = 5 * time.Millisecond
	defer c.Close()

	c.Connect()
	waitForState(t, c, StateOpen)

	sock := dialer.lastSocket()
	require.Eventually(t, func() bool { return len(sock.written()) >= 2 }, time.Second, 2*time.Millisecond)
	assert.JSONEq(t, `{"type":"ping"}`, string(sock.written()[0]))
}

func TestAttemptCounterResetsOnOpen(t *testing.T) {
	dialer := &seqDialer{fails: 3}
	c := newTestConn(Options{Policy: &fastPolicy}, dialer.dial)
	defer c.Close()

	c.Connect()
	waitForState(t, c, StateOpen)

	assert.Equal(t, 0, c.Attempts())
	assert.Equal(t, 4, dialer.callCount())
}

func TestUncleanCloseSchedulesReconnect(t *testing.T) {
	frozen := ReconnectPolicy{InitialDelay: time.Hour, MaxDelay: time.Hour, MaxAttempts: 10}
	dialer := &seqDialer{}
	c := newTestConn(Options{Policy: &frozen}, dialer.dial)
	defer c.Close()

	c.Connect()
	waitForState(t, c, StateOpen)

	dialer.lastSocket().failRead(errors.New("connection reset"))
	waitForState(t, c, StateClosedRecoverable)

	assert.Equal(t, 1, c.Attempts())
	assert.True(t, c.pendingReconnect())
	// First retry is scheduled after the initial delay.
	assert.Equal(t, time.Second, DefaultPolicy.Delay(0))
}

func TestCleanCloseIsFinal(t *testing.T) {
	dialer := &seqDialer{}
	c := newTestConn(Options{Policy: &fastPolicy}, dialer.dial)
	defer c.Close()

	c.Connect()
	waitForState(t, c, StateOpen)

	dialer.lastSocket().failRead(&websocket.CloseError{Code: websocket.CloseNormalClosure, Text: "bye"})
	waitForState(t, c, StateClosedFinal)

	assert.False(t, c.pendingReconnect())
	assert.Equal(t, 0, c.Attempts())
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, dialer.callCount())
}

func TestReconnectBudgetExhaustion(t *testing.T) {
	dialer := &seqDialer{fails: 1 << 30}
	c := newTestConn(Options{Policy: &fastPolicy}, dialer.dial)
	defer c.Close()

	c.Connect()
	waitForState(t, c, StateClosedFinal)

	// Initial attempt plus ten scheduled retries, then nothing more.
	assert.Equal(t, 11, dialer.callCount())
	assert.False(t, c.pendingReconnect())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 11, dialer.callCount())

	// Explicit caller reset resumes and forgives prior failures.
	dialer.mu.Lock()
	dialer.fails = 0
	dialer.mu.Unlock()
	c.Reconnect()
	waitForState(t, c, StateOpen)
	assert.Equal(t, 0, c.Attempts())
}

func TestCloseIsIdempotent(t *testing.T) {
	dialer := &seqDialer{}
	c := newTestConn(Options{}, dialer.dial)

	c.Connect()
	waitForState(t, c, StateOpen)
	sock := dialer.lastSocket()

	c.Close()
	c.Close()

	assert.Equal(t, StateClosedFinal, c.State())
	assert.False(t, c.pendingReconnect())
	c.mu.Lock()
	assert.Nil(t, c.stopHeartbeat)
	assert.Nil(t, c.sock)
	c.mu.Unlock()

	// A late close event from the dropped socket must not revive it.
	sock.failRead(errors.New("connection reset"))
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, StateClosedFinal, c.State())
	assert.Equal(t, 1, dialer.callCount())
}

func TestCloseCancelsPendingReconnect(t *testing.T) {
	frozen := ReconnectPolicy{InitialDelay: time.Hour, MaxDelay: time.Hour, MaxAttempts: 10}
	dialer := &seqDialer{}
	c := newTestConn(Options{Policy: &frozen}, dialer.dial)

	c.Connect()
	waitForState(t, c, StateOpen)
	dialer.lastSocket().failRead(errors.New("connection reset"))
	waitForState(t, c, StateClosedRecoverable)
	require.True(t, c.pendingReconnect())

	c.Close()
	assert.False(t, c.pendingReconnect())
	assert.Equal(t, StateClosedFinal, c.State())
}

func TestDispatchMalformedFrameInvokesNothing(t *testing.T) {
	var messages, presences int
	c := newTestConn(Options{
		OnMessage:  func(json.RawMessage) { messages++ },
		OnPresence: func(json.RawMessage) { presences++ },
	}, (&seqDialer{}).dial)

	c.dispatch([]byte("not json at all"))

	assert.Zero(t, messages)
	assert.Zero(t, presences)
	assert.Equal(t, StateIdle, c.State())
}

func TestDispatchRoutesByType(t *testing.T) {
	var messages, presences []string
	c := newTestConn(Options{
		OnMessage:  func(data json.RawMessage) { messages = append(messages, string(data)) },
		OnPresence: func(data json.RawMessage) { presences = append(presences, string(data)) },
	}, (&seqDialer{}).dial)

	c.dispatch([]byte(`{"type":"pong"}`))
	c.dispatch([]byte(`{"type":"presence_update","users":[1,2]}`))
	c.dispatch([]byte(`{"type":"message","content":"hi"}`))
	c.dispatch([]byte(`{"content":"untagged"}`))

	assert.Len(t, presences, 1)
	require.Len(t, messages, 2)
	assert.JSONEq(t, `{"type":"message","content":"hi"}`, messages[0])
}

func TestInboundFramesReachCallback(t *testing.T) {
	got := make(chan string, 1)
	dialer := &seqDialer{}
	c := newTestConn(Options{
		OnMessage: func(data json.RawMessage) { got <- string(data) },
	}, dialer.dial)
	defer c.Close()

	c.Connect()
	waitForState(t, c, StateOpen)

	dialer.lastSocket().incoming <- []byte(`{"type":"message","content":"hello"}`)
	select {
	case data := <-got:
		assert.JSONEq(t, `{"type":"message","content":"hello"}`, data)
	case <-time.After(time.Second):
		t.Fatal("message callback never invoked")
	}
}

func TestSendIsNoopWithoutOpenSocket(t *testing.T) {
	c := newTestConn(Options{}, (&seqDialer{}).dial)

	require.NoError(t, c.Send(map[string]string{"type": "ping"}))
	assert.Equal(t, StateIdle, c.State())
}

// Uses a real gorilla socket: its connection permits only one writer at
// a time and panics on violation, a contract the fake socket above does
// not enforce.
func TestConcurrentSendsAndHeartbeatsShareOneWriter(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, RoomID: "7", UserID: 1, UserName: "Ann"})
	c.heartbeat = 100 * time.Microsecond
	defer c.Close()

	c.Connect()
	waitForState(t, c, StateOpen)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				assert.NoError(t, c.Send(map[string]string{"type": "hello"}))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, StateOpen, c.State())
}

func TestSendForwardsWhileOpen(t *testing.T) {
	dialer := &seqDialer{}
	c := newTestConn(Options{}, dialer.dial)
	defer c.Close()

	c.Connect()
	waitForState(t, c, StateOpen)

	require.NoError(t, c.Send(map[string]string{"type": "hello"}))
	sock := dialer.lastSocket()
	require.Eventually(t, func() bool { return len(sock.written()) == 1 }, time.Second, 2*time.Millisecond)
	assert.JSONEq(t, `{"type":"hello"}`, string(sock.written()[0]))
}
