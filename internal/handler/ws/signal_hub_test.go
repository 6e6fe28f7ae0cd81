package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSignalServer(t *testing.T, hub *SignalHub) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/v1/signal", func(c *gin.Context) {
		c.Set("user_id", uuid.New())
		hub.ServeWS(c)
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func dialSignal(srv *httptest.Server) (*websocket.Conn, *http.Response, error) {
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/signal"
	header := http.Header{"Origin": []string{"http://localhost:3000"}}
	return websocket.DefaultDialer.Dial(url, header)
}

func TestConnectionCapBoundsConcurrentSockets(t *testing.T) {
	t.Setenv("WS_MAX_SIGNALING_CONNECTIONS", "1")
	hub := NewSignalHub(nil, nil, nil, nil)
	srv := newSignalServer(t, hub)

	first, _, err := dialSignal(srv)
	require.NoError(t, err)
	defer first.Close()

	// With the single slot held by a live socket, the next handshake is
	// turned away.
	_, resp, err := dialSignal(srv)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	// Closing the held socket frees its slot for a new connection.
	require.NoError(t, first.Close())
	assert.Eventually(t, func() bool {
		conn, _, err := dialSignal(srv)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 2*time.Second, 20*time.Millisecond)
}

func TestConnectionSlotReleasedWhenUpgradeFails(t *testing.T) {
	t.Setenv("WS_MAX_SIGNALING_CONNECTIONS", "1")
	hub := NewSignalHub(nil, nil, nil, nil)
	srv := newSignalServer(t, hub)

	// A plain HTTP request never completes the upgrade; its slot must not
	// stay consumed.
	resp, err := http.Get(srv.URL + "/v1/signal")
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEqual(t, http.StatusServiceUnavailable, resp.StatusCode)

	conn, _, err := dialSignal(srv)
	require.NoError(t, err)
	conn.Close()
}
