package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

// FirePolicy decides whether a tick that observes the trigger color
// actually sends a repaint.
type FirePolicy string

const (
	// FireEveryTick repaints on every tick while the trigger color holds.
	FireEveryTick FirePolicy = "every-tick"
	// FireOnTransition repaints only when the trigger color appears after
	// a tick that did not observe it.
	FireOnTransition FirePolicy = "on-transition"
	// FireCooldown repaints at most once per cooldown.
	FireCooldown FirePolicy = "cooldown"
)

func parseFirePolicy(s string) (FirePolicy, error) {
	switch p := FirePolicy(s); p {
	case FireEveryTick, FireOnTransition, FireCooldown:
		return p, nil
	default:
		return "", fmt.Errorf("invalid fire policy: %q", s)
	}
}

// Repainter sends a repaint request for one pixel.
type Repainter interface {
	Repaint(ctx context.Context, req RepaintRequest) error
}

type WatcherConfig struct {
	PixelID      int
	TriggerColor string
	ActionColor  string
	PollInterval time.Duration
	Policy       FirePolicy
	Cooldown     time.Duration
}

// Watcher polls the board for one pixel and repaints it once it shows the
// trigger color.
type Watcher struct {
	cfg       WatcherConfig
	board     *Board
	repainter Repainter
	logger    *log.Logger
	limiter   *rate.Limiter
	onRepaint func(PixelColor)

	matched bool
}

func newWatcher(cfg WatcherConfig, board *Board, repainter Repainter, logger *log.Logger) *Watcher {
	w := &Watcher{
		cfg:       cfg,
		board:     board,
		repainter: repainter,
		logger:    logger,
	}
	if cfg.Policy == FireCooldown {
		w.limiter = rate.NewLimiter(rate.Every(cfg.Cooldown), 1)
	}
	return w
}

// OnRepaint registers fn to be called after every successful repaint.
func (w *Watcher) OnRepaint(fn func(PixelColor)) {
	w.onRepaint = fn
}

// Tick runs a single evaluation and reports whether a repaint was sent.
func (w *Watcher) Tick(ctx context.Context) (bool, error) {
	color, ok := w.board.Get(w.cfg.PixelID)
	match := ok && sameColor(color, w.cfg.TriggerColor)

	prev := w.matched
	w.matched = match
	if !match {
		return false, nil
	}

	switch w.cfg.Policy {
	case FireOnTransition:
		if prev {
			return false, nil
		}
	case FireCooldown:
		if !w.limiter.Allow() {
			return false, nil
		}
	}

	req := RepaintRequest{Type: 0, PixelID: w.cfg.PixelID, Color: w.cfg.ActionColor}
	if err := w.repainter.Repaint(ctx, req); err != nil {
		return false, err
	}

	w.logger.Info("pixel repainted", "pixel", w.cfg.PixelID, "from", color, "to", w.cfg.ActionColor)
	if w.onRepaint != nil {
		w.onRepaint(PixelColor{Index: w.cfg.PixelID, Color: w.cfg.ActionColor})
	}
	return true, nil
}

// Run ticks every PollInterval until ctx is done or a repaint fails.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	w.logger.Info("watching pixel",
		"pixel", w.cfg.PixelID,
		"trigger", w.cfg.TriggerColor,
		"action", w.cfg.ActionColor,
		"interval", w.cfg.PollInterval,
		"policy", w.cfg.Policy,
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := w.Tick(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}
