package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/flate"
)

const (
	kindState = "state"
	kindEvent = "event"
)

// DecodeError reports a publication payload that could not be decoded.
type DecodeError struct {
	Stage string // "inflate" or "json"
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// decodeSnapshot inflates a headerless deflate stream and parses the
// resulting color -> ids object.
func decodeSnapshot(payload []byte) (Snapshot, error) {
	r := flate.NewReader(bytes.NewReader(payload))
	defer r.Close()

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, &DecodeError{Stage: "inflate", Err: err}
	}

	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, &DecodeError{Stage: "json", Err: err}
	}
	return s, nil
}

func decodeEvent(payload []byte) (any, error) {
	var ev any
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, &DecodeError{Stage: "json", Err: err}
	}
	return ev, nil
}

// publicationRouter dispatches publications by channel name.
type publicationRouter struct {
	board        *Board
	stateChannel string
	eventChannel string
	logger       *log.Logger
}

func newPublicationRouter(board *Board, stateChannel, eventChannel string, logger *log.Logger) *publicationRouter {
	return &publicationRouter{
		board:        board,
		stateChannel: stateChannel,
		eventChannel: eventChannel,
		logger:       logger,
	}
}

func (r *publicationRouter) HandlePublication(channel string, data []byte) {
	switch channel {
	case r.stateChannel:
		r.handleState(data)
	case r.eventChannel:
		r.handleEvent(data)
	default:
		r.logger.Warn("ignoring publication on unknown channel", "channel", channel, "bytes", len(data))
	}
}

func (r *publicationRouter) handleState(data []byte) {
	publicationsTotal.WithLabelValues(kindState).Inc()

	snapshot, err := decodeSnapshot(data)
	if err != nil {
		decodeErrorsTotal.WithLabelValues(kindState).Inc()
		r.logger.Error("dropping snapshot", "channel", r.stateChannel, "err", err)
		return
	}

	n := r.board.Apply(snapshot)
	boardPixels.Set(float64(r.board.Len()))
	r.logger.Debug("snapshot applied", "colors", len(snapshot), "pixels", n)
}

// Event payloads are decoded and logged but not applied to any state.
func (r *publicationRouter) handleEvent(data []byte) {
	publicationsTotal.WithLabelValues(kindEvent).Inc()

	ev, err := decodeEvent(data)
	if err != nil {
		decodeErrorsTotal.WithLabelValues(kindEvent).Inc()
		r.logger.Error("dropping event", "channel", r.eventChannel, "err", err)
		return
	}
	r.logger.Debug("event received", "channel", r.eventChannel, "event", ev)
}
