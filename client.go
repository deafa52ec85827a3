package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/netip"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	maxClientsPerAddr = 5

	// Time allowed to write a message to an observer.
	writeWait = 10 * time.Second

	broadcastBuffer = 64
)

// Client wraps a [websocket.Conn] to add thread safety to
// WriteMessage.
type Client struct {
	*websocket.Conn
	ID   string
	Addr netip.Addr

	m sync.Mutex
}

func (c *Client) WriteMessage(messageType int, data []byte) error {
	c.m.Lock()
	defer c.m.Unlock()

	if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.Conn.WriteMessage(messageType, data)
}

type registration struct {
	client *Client
	rsp    chan error
}

type allowance struct {
	addr netip.Addr
	rsp  chan bool
}

// clientManager owns the set of monitor observers. All state lives in the
// Run goroutine; the exported methods talk to it over channels.
type clientManager struct {
	done       chan struct{}
	broadcast  chan PixelColor
	register   chan registration
	unregister chan *Client
	allow      chan allowance
	numclients chan int

	logger *log.Logger
}

func newClientManager(logger *log.Logger) *clientManager {
	return &clientManager{
		done:       make(chan struct{}),
		broadcast:  make(chan PixelColor, broadcastBuffer),
		register:   make(chan registration),
		unregister: make(chan *Client),
		allow:      make(chan allowance),
		numclients: make(chan int),

		logger: logger,
	}
}

func (cm *clientManager) Run(ctx context.Context) {
	select {
	case <-cm.done:
		panic("manager has already been run")
	default:
	}
	defer close(cm.done)

	clients := make(map[*Client]struct{})

	type rateLimitData struct {
		clients int
		limiter *rate.Limiter
	}
	rateLimits := make(map[netip.Addr]*rateLimitData)

	defer func() {
		for client := range clients {
			client.Close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case update := <-cm.broadcast:
			msg := OutgoingMessage{Type: "repaint", Data: update, ClientCount: len(clients)}
			jsonMsg, err := json.Marshal(msg)
			if err != nil {
				cm.logger.Error("error marshaling json", "err", err)
				continue
			}

			for client := range clients {
				err := client.WriteMessage(websocket.TextMessage, jsonMsg)
				if err != nil {
					cm.logger.Warn("error sending message to observer", "observer", client.ID, "err", err)
					client.Close()
					delete(clients, client)
					if limit := rateLimits[client.Addr]; limit != nil {
						limit.clients--
						if limit.clients <= 0 {
							delete(rateLimits, client.Addr)
						}
					}
				}
			}

		case r := <-cm.register:
			client := r.client
			limit := rateLimits[client.Addr]
			if limit == nil {
				limit = &rateLimitData{
					limiter: rate.NewLimiter(rate.Every(time.Second), 5),
				}
				rateLimits[client.Addr] = limit
			}
			if limit.clients >= maxClientsPerAddr {
				r.rsp <- errors.New("too many clients with IP")
				continue
			}
			limit.clients++
			clients[client] = struct{}{}

			r.rsp <- nil

		case client := <-cm.unregister:
			if _, ok := clients[client]; !ok {
				continue
			}

			delete(clients, client)
			client.Close()

			limit := rateLimits[client.Addr]
			limit.clients--
			if limit.clients <= 0 {
				delete(rateLimits, client.Addr)
			}

		case a := <-cm.allow:
			limit := rateLimits[a.addr]
			a.rsp <- limit != nil && limit.limiter.Allow()

		case cm.numclients <- len(clients):
		}
	}
}

func (cm *clientManager) Register(client *Client) error {
	rsp := make(chan error, 1)
	select {
	case <-cm.done:
		return errors.New("client manager has exited")
	case cm.register <- registration{client: client, rsp: rsp}:
	}
	return <-rsp
}

func (cm *clientManager) Unregister(client *Client) {
	select {
	case <-cm.done:
	case cm.unregister <- client:
	}
}

// Broadcast queues update for every observer. It never blocks: when the
// manager is behind, the update is dropped.
func (cm *clientManager) Broadcast(update PixelColor) {
	select {
	case <-cm.done:
	case cm.broadcast <- update:
	default:
		cm.logger.Debug("observers are behind, dropping repaint update", "pixel", update.Index)
	}
}

// Allow reports whether addr may send another query right now.
func (cm *clientManager) Allow(addr netip.Addr) bool {
	rsp := make(chan bool, 1)
	select {
	case <-cm.done:
		return false
	case cm.allow <- allowance{addr: addr, rsp: rsp}:
	}
	return <-rsp
}

func (cm *clientManager) Num() int {
	select {
	case <-cm.done:
		return 0
	case num := <-cm.numclients:
		return num
	}
}
