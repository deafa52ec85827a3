package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMonitor(t *testing.T, origin string) (*Monitor, *httptest.Server) {
	t.Helper()

	board := newBoard()
	board.Set(88876, "000000")
	m := newMonitor(board, 88876, "production", origin, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go m.manager.Run(ctx)

	srv := httptest.NewServer(m.Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return m, srv
}

func dialMonitor(t *testing.T, srv *httptest.Server, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	return websocket.DefaultDialer.Dial(url, header)
}

func TestMonitorGetPixel(t *testing.T) {
	_, srv := newTestMonitor(t, "")

	resp, err := http.Get(srv.URL + "/pixels/88876")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		PixelID int    `json:"pixelId"`
		Color   string `json:"color"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 88876, body.PixelID)
	assert.Equal(t, "000000", body.Color)
}

func TestMonitorGetPixelErrors(t *testing.T) {
	_, srv := newTestMonitor(t, "")

	tests := map[string]int{
		"/pixels/1":   http.StatusNotFound,
		"/pixels/abc": http.StatusBadRequest,
		"/pixels/-3":  http.StatusBadRequest,
	}
	for path, status := range tests {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, status, resp.StatusCode, path)
	}
}

func TestMonitorMetrics(t *testing.T) {
	_, srv := newTestMonitor(t, "")

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMonitorWebsocketFeed(t *testing.T) {
	m, srv := newTestMonitor(t, "")

	conn, _, err := dialMonitor(t, srv, nil)
	require.NoError(t, err)
	defer conn.Close()

	var initial InitialMessage
	require.NoError(t, conn.ReadJSON(&initial))
	assert.Equal(t, "initial", initial.Type)
	assert.Equal(t, PixelColor{Index: 88876, Color: "000000"}, initial.Data)
	assert.Equal(t, 1, initial.ClientCount)

	m.NotifyRepaint(PixelColor{Index: 88876, Color: "#00CCC0"})

	var repaint OutgoingMessage
	require.NoError(t, conn.ReadJSON(&repaint))
	assert.Equal(t, "repaint", repaint.Type)
	assert.Equal(t, PixelColor{Index: 88876, Color: "#00CCC0"}, repaint.Data)

	require.NoError(t, conn.WriteJSON(IncomingMessage{Type: "get", Data: PixelColor{Index: 88876}}))

	var reply OutgoingMessage
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "pixel", reply.Type)
	assert.Equal(t, "000000", reply.Data.Color)
}

func TestMonitorRejectsInvalidQuery(t *testing.T) {
	_, srv := newTestMonitor(t, "")

	conn, _, err := dialMonitor(t, srv, nil)
	require.NoError(t, err)
	defer conn.Close()

	var initial InitialMessage
	require.NoError(t, conn.ReadJSON(&initial))

	require.NoError(t, conn.WriteJSON(IncomingMessage{Type: "update", Data: PixelColor{Index: 1}}))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "Error: invalid message type: update", string(msg))
}

func TestMonitorClientLimit(t *testing.T) {
	_, srv := newTestMonitor(t, "")

	for i := 0; i < maxClientsPerAddr; i++ {
		conn, _, err := dialMonitor(t, srv, nil)
		require.NoError(t, err)
		defer conn.Close()

		var initial InitialMessage
		require.NoError(t, conn.ReadJSON(&initial))
	}

	conn, _, err := dialMonitor(t, srv, nil)
	require.NoError(t, err)
	defer conn.Close()

	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "client limit exceeded", string(msg))
}

func TestMonitorQueryRateLimit(t *testing.T) {
	_, srv := newTestMonitor(t, "")

	conn, _, err := dialMonitor(t, srv, nil)
	require.NoError(t, err)
	defer conn.Close()

	var initial InitialMessage
	require.NoError(t, conn.ReadJSON(&initial))

	query := IncomingMessage{Type: "get", Data: PixelColor{Index: 88876}}
	for i := 0; i < 5; i++ {
		require.NoError(t, conn.WriteJSON(query))

		var reply OutgoingMessage
		require.NoError(t, conn.ReadJSON(&reply))
		assert.Equal(t, "pixel", reply.Type, "query %d", i)
	}

	require.NoError(t, conn.WriteJSON(query))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "rate limit exceeded", string(msg))
}

func TestMonitorStalledObserverDoesNotBlockWatcher(t *testing.T) {
	m, srv := newTestMonitor(t, "")

	// Connected but never reads, so its socket buffers fill up.
	conn, _, err := dialMonitor(t, srv, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return m.manager.Num() == 1
	}, time.Second, time.Millisecond)

	m.board.Set(88876, "000000")
	w := newWatcher(testWatcherConfig(FireEveryTick), m.board, nopRepainter{}, discardLogger())
	w.OnRepaint(m.NotifyRepaint)

	ticked := make(chan struct{})
	go func() {
		defer close(ticked)
		for i := 0; i < 300000; i++ {
			if _, err := w.Tick(context.Background()); err != nil {
				return
			}
		}
	}()

	select {
	case <-ticked:
	case <-time.After(10 * time.Second):
		t.Fatal("watcher blocked on a stalled observer")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop after cancel")
	}
}

func TestMonitorOrigin(t *testing.T) {
	_, srv := newTestMonitor(t, "https://dash.example")

	_, resp, err := dialMonitor(t, srv, http.Header{"Origin": {"https://evil.example"}})
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := dialMonitor(t, srv, http.Header{"Origin": {"https://dash.example"}})
	require.NoError(t, err)
	conn.Close()
}

func TestGetAllowedOrigin(t *testing.T) {
	assert.Equal(t, "*", getAllowedOrigin("development", "https://dash.example"))
	assert.Equal(t, "https://dash.example", getAllowedOrigin("production", "https://dash.example"))
}
