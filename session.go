package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

type SessionConfig struct {
	StateChannel   string
	EventChannel   string
	Watcher        WatcherConfig
	RepaintRetries int
	RepaintBackoff time.Duration
}

// dialFunc builds the transport for a session, wiring its publications
// and connection events to the given sink and observer.
type dialFunc func(sink PublicationSink, observer ConnectionObserver) Transport

// Session owns the board for the lifetime of one realtime connection.
type Session struct {
	ID string

	cfg       SessionConfig
	board     *Board
	transport Transport
	watcher   *Watcher
	logger    *log.Logger
}

func newSession(cfg SessionConfig, dial dialFunc, logger *log.Logger) *Session {
	id := uuid.NewString()
	logger = logger.With("session", id)

	board := newBoard()
	router := newPublicationRouter(board, cfg.StateChannel, cfg.EventChannel, logger)
	transport := dial(router, logObserver{logger: logger})
	rp := newRepainter(transport, cfg.RepaintRetries, cfg.RepaintBackoff, logger)

	return &Session{
		ID:        id,
		cfg:       cfg,
		board:     board,
		transport: transport,
		watcher:   newWatcher(cfg.Watcher, board, rp, logger),
		logger:    logger,
	}
}

func (s *Session) Board() *Board {
	return s.board
}

func (s *Session) Watcher() *Watcher {
	return s.watcher
}

// Run connects, subscribes and watches until ctx is cancelled or the
// watcher fails. The connection is closed on every return path.
func (s *Session) Run(ctx context.Context) error {
	if err := s.transport.Connect(); err != nil {
		return fmt.Errorf("error connecting: %w", err)
	}
	defer func() {
		s.transport.Close()
		s.logger.Info("connection closed")
	}()

	for _, channel := range []string{s.cfg.StateChannel, s.cfg.EventChannel} {
		if channel == "" {
			continue
		}
		if err := s.transport.Subscribe(channel); err != nil {
			return err
		}
	}

	if err := s.watcher.Run(ctx); err != nil {
		s.logger.Error("watcher stopped", "err", err)
		return err
	}
	return nil
}
