package main

import (
	"context"

	"github.com/charmbracelet/log"
)

// PublicationSink receives every publication delivered on a subscribed
// channel, in transport order.
type PublicationSink interface {
	HandlePublication(channel string, data []byte)
}

// ConnectionObserver is notified about connection and subscription state.
type ConnectionObserver interface {
	OnConnecting(code uint32, reason string)
	OnConnected(clientID string)
	OnDisconnected(code uint32, reason string)
	OnSubscribed(channel string)
	OnUnsubscribed(channel string, code uint32, reason string)
	OnError(err error)
}

// Transport is the realtime connection the session runs on. Reconnects and
// framing are the transport's business.
type Transport interface {
	Connect() error
	Subscribe(channel string) error
	RPC(ctx context.Context, method string, data []byte) ([]byte, error)
	Close()
}

// ConnectionError wraps an error reported by the transport.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return "connection: " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

type logObserver struct {
	logger *log.Logger
}

func (o logObserver) OnConnecting(code uint32, reason string) {
	o.logger.Info("connecting", "code", code, "reason", reason)
}

func (o logObserver) OnConnected(clientID string) {
	o.logger.Info("connected", "client", clientID)
}

func (o logObserver) OnDisconnected(code uint32, reason string) {
	o.logger.Info("disconnected", "code", code, "reason", reason)
}

func (o logObserver) OnSubscribed(channel string) {
	o.logger.Info("subscribed", "channel", channel)
}

func (o logObserver) OnUnsubscribed(channel string, code uint32, reason string) {
	o.logger.Info("unsubscribed", "channel", channel, "code", code, "reason", reason)
}

func (o logObserver) OnError(err error) {
	o.logger.Error("client error", "err", &ConnectionError{Err: err})
}
