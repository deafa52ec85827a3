package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/centrifugal/centrifuge-go"
)

type centrifugeConfig struct {
	Endpoint string
	Name     string
	Header   http.Header

	// Token is used for the first connect. GetToken, if set, is asked for
	// a fresh one whenever the server reports the token expired.
	Token    string
	GetToken func() (string, error)
}

// tokenRefresher answers the client's token refresh requests from src. A
// static token cannot be renewed, so the client is told to stop instead of
// reconnecting with the expired one.
func tokenRefresher(ctx context.Context, src TokenSource) func() (string, error) {
	return func() (string, error) {
		if _, ok := src.(staticToken); ok {
			return "", centrifuge.ErrUnauthorized
		}
		return refreshToken(ctx, src)
	}
}

// centrifugeTransport adapts a protobuf centrifuge client to Transport.
type centrifugeTransport struct {
	client   *centrifuge.Client
	sink     PublicationSink
	observer ConnectionObserver
}

func newCentrifugeTransport(cfg centrifugeConfig, sink PublicationSink, observer ConnectionObserver) *centrifugeTransport {
	conf := centrifuge.Config{
		Token:  cfg.Token,
		Name:   cfg.Name,
		Header: cfg.Header,
	}
	if cfg.GetToken != nil {
		conf.GetToken = func(centrifuge.ConnectionTokenEvent) (string, error) {
			return cfg.GetToken()
		}
	}

	t := &centrifugeTransport{
		client:   centrifuge.NewProtobufClient(cfg.Endpoint, conf),
		sink:     sink,
		observer: observer,
	}

	t.client.OnConnecting(func(e centrifuge.ConnectingEvent) {
		observer.OnConnecting(e.Code, e.Reason)
	})
	t.client.OnConnected(func(e centrifuge.ConnectedEvent) {
		observer.OnConnected(e.ClientID)
	})
	t.client.OnDisconnected(func(e centrifuge.DisconnectedEvent) {
		observer.OnDisconnected(e.Code, e.Reason)
	})
	t.client.OnError(func(e centrifuge.ErrorEvent) {
		observer.OnError(e.Error)
	})

	// Server-side subscriptions deliver through the client itself.
	t.client.OnSubscribed(func(e centrifuge.ServerSubscribedEvent) {
		observer.OnSubscribed(e.Channel)
	})
	t.client.OnUnsubscribed(func(e centrifuge.ServerUnsubscribedEvent) {
		observer.OnUnsubscribed(e.Channel, 0, "server-side")
	})
	t.client.OnPublication(func(e centrifuge.ServerPublicationEvent) {
		sink.HandlePublication(e.Channel, e.Data)
	})

	return t
}

func (t *centrifugeTransport) Connect() error {
	if err := t.client.Connect(); err != nil {
		return &ConnectionError{Err: err}
	}
	return nil
}

func (t *centrifugeTransport) Subscribe(channel string) error {
	sub, err := t.client.NewSubscription(channel)
	if err != nil {
		return fmt.Errorf("error creating subscription to %s: %w", channel, err)
	}

	sub.OnSubscribed(func(centrifuge.SubscribedEvent) {
		t.observer.OnSubscribed(channel)
	})
	sub.OnUnsubscribed(func(e centrifuge.UnsubscribedEvent) {
		t.observer.OnUnsubscribed(channel, e.Code, e.Reason)
	})
	sub.OnError(func(e centrifuge.SubscriptionErrorEvent) {
		t.observer.OnError(fmt.Errorf("subscription %s: %w", channel, e.Error))
	})
	sub.OnPublication(func(e centrifuge.PublicationEvent) {
		t.sink.HandlePublication(channel, e.Data)
	})

	if err := sub.Subscribe(); err != nil {
		return fmt.Errorf("error subscribing to %s: %w", channel, err)
	}
	return nil
}

func (t *centrifugeTransport) RPC(ctx context.Context, method string, data []byte) ([]byte, error) {
	res, err := t.client.RPC(ctx, method, data)
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

func (t *centrifugeTransport) Close() {
	t.client.Close()
}
