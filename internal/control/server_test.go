package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-client/internal/archive"
	"chat-client/internal/session"
)

type stubReporter struct {
	statuses []session.Status
}

func (s *stubReporter) Snapshot() []session.Status { return s.statuses }

type stubRooms struct {
	sessions map[string]*session.RoomSession
}

func (s *stubRooms) Get(roomID string) (*session.RoomSession, bool) {
	sess, ok := s.sessions[roomID]
	return sess, ok
}

type stubArchive struct {
	rows []archive.Row
	err  error
}

func (s *stubArchive) Recent(_ context.Context, roomID string, limit int) ([]archive.Row, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.rows) > limit {
		return s.rows[:limit], nil
	}
	return s.rows, nil
}

func newTestRouter(t *testing.T, reporter StatusReporter, rooms RoomControl, token string) *gin.Engine {
	t.Helper()
	return newTestRouterWithArchive(t, reporter, rooms, nil, token)
}

func newTestRouterWithArchive(t *testing.T, reporter StatusReporter, rooms RoomControl, recent RecentArchive, token string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return NewRouter(reporter, rooms, recent, token)
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t, &stubReporter{}, &stubRooms{}, "")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestStatsReportsSessions(t *testing.T) {
	reporter := &stubReporter{statuses: []session.Status{
		{RoomID: "7", State: "open", Online: 3, Messages: 12},
	}}
	router := newTestRouter(t, reporter, &stubRooms{}, "")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/stats", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"rooms":[{"room_id":"7","state":"open","reconnect_attempts":0,"online":3,"messages":12}]}`, w.Body.String())
}

func TestStatsRequiresTokenWhenConfigured(t *testing.T) {
	router := newTestRouter(t, &stubReporter{}, &stubRooms{}, "sekrit")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/stats", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/stats", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/stats", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthzSkipsTokenCheck(t *testing.T) {
	router := newTestRouter(t, &stubReporter{}, &stubRooms{}, "sekrit")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReconnectUnknownRoom(t *testing.T) {
	router := newTestRouter(t, &stubReporter{}, &stubRooms{}, "")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/rooms/9/reconnect", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReconnectKnownRoom(t *testing.T) {
	sess := session.New(session.Config{WSBase: "http://127.0.0.1:0", RoomID: "7"})
	t.Cleanup(sess.Close)
	router := newTestRouter(t, &stubReporter{}, &stubRooms{sessions: map[string]*session.RoomSession{"7": sess}}, "")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/rooms/7/reconnect", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"room_id":"7","state":"reconnecting"}`, w.Body.String())
}

func TestRecentWithoutArchiveConfigured(t *testing.T) {
	router := newTestRouter(t, &stubReporter{}, &stubRooms{}, "")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/rooms/7/recent", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecentServesArchivedRows(t *testing.T) {
	recent := &stubArchive{rows: []archive.Row{
		{RoomID: "7", MessageID: "99", SenderID: "42", SenderName: "Ann Lee", Content: "hello"},
		{RoomID: "7", MessageID: "100", SenderID: "9", SenderName: "Bob", Content: "hi"},
	}}
	router := newTestRouterWithArchive(t, &stubReporter{}, &stubRooms{}, recent, "")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/rooms/7/recent?limit=1", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		RoomID   string        `json:"room_id"`
		Messages []archive.Row `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "7", body.RoomID)
	require.Len(t, body.Messages, 1)
	assert.Equal(t, "99", body.Messages[0].MessageID)
}

func TestRecentRejectsBadLimit(t *testing.T) {
	router := newTestRouterWithArchive(t, &stubReporter{}, &stubRooms{}, &stubArchive{}, "")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/rooms/7/recent?limit=zero", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecentSurfacesArchiveFailure(t *testing.T) {
	recent := &stubArchive{err: errors.New("db down")}
	router := newTestRouterWithArchive(t, &stubReporter{}, &stubRooms{}, recent, "")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/rooms/7/recent", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestMetricsEndpointServesPrometheusText(t *testing.T) {
	router := newTestRouter(t, &stubReporter{}, &stubRooms{}, "")

	// Drive one instrumented request so the counter has a sample.
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/healthz", nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "chatclient_http_requests_total")
}
