package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor serves the watched board to local observers: a JSON lookup per
// pixel, a websocket feed of repaints, and Prometheus metrics.
type Monitor struct {
	board         *Board
	pixelID       int
	allowedOrigin string
	manager       *clientManager
	upgrader      websocket.Upgrader
	logger        *log.Logger
}

func newMonitor(board *Board, pixelID int, environment, origin string, logger *log.Logger) *Monitor {
	m := &Monitor{
		board:         board,
		pixelID:       pixelID,
		allowedOrigin: getAllowedOrigin(environment, origin),
		logger:        logger.With("component", "monitor"),
	}
	m.manager = newClientManager(m.logger)
	m.upgrader = websocket.Upgrader{
		ReadBufferSize:  64,
		WriteBufferSize: 1024,
		CheckOrigin:     m.checkOrigin,
	}
	return m
}

func getAllowedOrigin(environment, origin string) string {
	if environment == "development" {
		return "*"
	}
	return origin
}

// Requests without an Origin header come from non-browser tools and are
// always accepted.
func (m *Monitor) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || m.allowedOrigin == "*" {
		return true
	}
	return origin == m.allowedOrigin
}

func (m *Monitor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", m.handleConnections)
	mux.HandleFunc("GET /pixels/{id}", m.corsMiddleware(m.handleGetPixel))
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Run serves on addr until ctx is done.
func (m *Monitor) Run(ctx context.Context, addr string) error {
	go m.manager.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		m.logger.Info("monitor listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("error serving monitor: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// NotifyRepaint forwards a repaint to every connected observer.
func (m *Monitor) NotifyRepaint(p PixelColor) {
	m.manager.Broadcast(p)
}

func (m *Monitor) handleConnections(rw http.ResponseWriter, req *http.Request) {
	addr, ok := getIP(req)
	if !ok {
		m.logger.Warn("could not determine IP address", "remote", req.RemoteAddr)
		http.Error(rw, "could not determine necessary information", http.StatusBadRequest)
		return
	}

	conn, err := m.upgrader.Upgrade(rw, req, nil)
	if err != nil {
		m.logger.Warn("error upgrading connection", "err", err)
		return
	}
	client := &Client{
		Conn: conn,
		ID:   uuid.NewString(),
		Addr: addr,
	}

	if err := m.manager.Register(client); err != nil {
		client.WriteMessage(websocket.TextMessage, []byte("client limit exceeded"))
		client.Close()
		return
	}
	defer m.manager.Unregister(client)

	color, _ := m.board.Get(m.pixelID)
	initialMsg := InitialMessage{
		Type:        "initial",
		Data:        PixelColor{Index: m.pixelID, Color: color},
		ClientCount: m.manager.Num(),
	}
	if err := m.writeJSON(client, initialMsg); err != nil {
		m.logger.Warn("error sending initial message", "observer", client.ID, "err", err)
		return
	}

	for {
		_, msgBytes, err := client.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.logger.Warn("error reading message", "observer", client.ID, "err", err)
			}
			break
		}

		var query IncomingMessage
		if err := json.Unmarshal(msgBytes, &query); err != nil {
			client.WriteMessage(websocket.TextMessage, []byte("Invalid input type"))
			continue
		}
		if err := validateIncomingMessage(query); err != nil {
			client.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf("Error: %v", err)))
			continue
		}
		if !m.manager.Allow(client.Addr) {
			client.WriteMessage(websocket.TextMessage, []byte("rate limit exceeded"))
			continue
		}

		color, _ := m.board.Get(query.Data.Index)
		reply := OutgoingMessage{
			Type:        "pixel",
			Data:        PixelColor{Index: query.Data.Index, Color: color},
			ClientCount: m.manager.Num(),
		}
		if err := m.writeJSON(client, reply); err != nil {
			m.logger.Warn("error sending reply", "observer", client.ID, "err", err)
			break
		}
	}
}

func (m *Monitor) writeJSON(client *Client, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return client.WriteMessage(websocket.TextMessage, data)
}

func (m *Monitor) handleGetPixel(rw http.ResponseWriter, req *http.Request) {
	id, err := strconv.Atoi(req.PathValue("id"))
	if err != nil || id < 0 {
		http.Error(rw, "invalid pixel id", http.StatusBadRequest)
		return
	}

	color, ok := m.board.Get(id)
	if !ok {
		http.Error(rw, "pixel not seen yet", http.StatusNotFound)
		return
	}

	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusOK)
	json.NewEncoder(rw).Encode(struct {
		PixelID int    `json:"pixelId"`
		Color   string `json:"color"`
	}{id, color})
}

func (m *Monitor) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", m.allowedOrigin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		next(w, r)
	}
}
