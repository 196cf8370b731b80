package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/ExamShell/backend/internal/enforcer"
	"github.com/GriffinCanCode/ExamShell/backend/internal/monitoring"
)

func setupHub(t *testing.T) (*Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewHub(nil, monitoring.NewMetrics())
	router := gin.New()
	router.GET("/events", hub.HandleConnection)
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/events"
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var hello Event
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "hello", hello.Type)
	assert.NotEmpty(t, hello.Data["subscriber_id"])
	return conn
}

func read(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	var ev Event
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestHubBroadcastsHostEvents(t *testing.T) {
	hub, url := setupHub(t)
	a := dial(t, url, nil)
	b := dial(t, url, nil)
	require.Eventually(t, func() bool { return hub.Subscribers() == 2 }, time.Second, 10*time.Millisecond)

	hub.AddressChanged("win_1", "https://example.org/exam")
	for _, conn := range []*websocket.Conn{a, b} {
		ev := read(t, conn)
		assert.Equal(t, "address_changed", ev.Type)
		assert.Equal(t, "win_1", ev.WindowID)
		assert.Equal(t, "https://example.org/exam", ev.Data["url"])
		assert.NotZero(t, ev.Timestamp)
	}

	hub.PolicyViolation(enforcer.Violation{
		WindowID: "win_1",
		Class:    "main",
		Kind:     enforcer.ViolationPrint,
		Detail:   "printing is not allowed",
		At:       time.Now(),
	})
	ev := read(t, a)
	assert.Equal(t, "policy_violation", ev.Type)
	assert.Equal(t, "print", ev.Data["kind"])
	assert.Equal(t, "main", ev.Data["class"])

	hub.LoadingStateChanged("win_1", false)
	ev = read(t, a)
	assert.Equal(t, "loading_state", ev.Type)
	assert.Equal(t, false, ev.Data["loading"])

	hub.LoadFailed("win_1", -105, "name not resolved", true, "https://nowhere.invalid")
	ev = read(t, a)
	assert.Equal(t, "load_failed", ev.Type)
	assert.Equal(t, float64(-105), ev.Data["code"])
	assert.Equal(t, true, ev.Data["main_frame"])
}

func TestHubPingAndUnknownMessages(t *testing.T) {
	_, url := setupHub(t)
	conn := dial(t, url, nil)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, "pong", read(t, conn).Type)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "navigate"}))
	ev := read(t, conn)
	assert.Equal(t, "error", ev.Type)
	assert.Equal(t, "unknown message type", ev.Data["message"])
}

func TestHubRejectsForeignOrigins(t *testing.T) {
	hub, url := setupHub(t)

	header := http.Header{}
	header.Set("Origin", "https://example.org")
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Zero(t, hub.Subscribers())

	header.Set("Origin", "http://localhost:3000")
	dial(t, url, header)
}

func TestHubUnregistersOnDisconnect(t *testing.T) {
	hub, url := setupHub(t)
	conn := dial(t, url, nil)
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubDropsForSlowSubscribers(t *testing.T) {
	hub := NewHub(nil, nil)
	cl := &client{send: make(chan Event, 1)}
	hub.clients[cl.id] = cl

	hub.TitleChanged("win_1", "one")
	hub.TitleChanged("win_1", "two")
	assert.Equal(t, uint64(1), hub.Dropped())
	assert.Equal(t, "one", (<-cl.send).Data["title"])

	hub.Close()
	assert.Zero(t, hub.Subscribers())
}
