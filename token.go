package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tidwall/gjson"
)

var ErrTokenNotFound = errors.New("websocketToken not found in response")

// TokenSource produces the credential used to open the realtime connection.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type staticToken string

func (t staticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// BrowserAutomationError reports a failure while driving the browser.
type BrowserAutomationError struct {
	Engine string
	Stage  string
	Err    error
}

func (e *BrowserAutomationError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Engine, e.Stage, e.Err)
}

func (e *BrowserAutomationError) Unwrap() error {
	return e.Err
}

type BrowserConfig struct {
	Engine string // "chromedp" or "rod"

	// AppURL opens the game inside the messaging web client. MeURL is the
	// API response carrying the websocket token.
	AppURL         string
	MeURL          string
	LaunchSelector string

	ProfileDir string
	ExecPath   string
	UserAgent  string
	Headless   bool
	Timeout    time.Duration
}

func newBrowserTokenSource(cfg BrowserConfig, logger *log.Logger) (TokenSource, error) {
	switch cfg.Engine {
	case "chromedp":
		return &chromedpTokenSource{cfg: cfg, logger: logger.With("engine", cfg.Engine)}, nil
	case "rod":
		return &rodTokenSource{cfg: cfg, logger: logger.With("engine", cfg.Engine)}, nil
	default:
		return nil, fmt.Errorf("unknown browser engine: %q", cfg.Engine)
	}
}

// extractWebsocketToken pulls websocketToken out of a users/me body.
func extractWebsocketToken(body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("error parsing users/me response: invalid JSON")
	}
	v := gjson.GetBytes(body, "websocketToken")
	if v.Type != gjson.String || v.Str == "" {
		return "", ErrTokenNotFound
	}
	return v.Str, nil
}

func isTokenResponse(url, meURL string) bool {
	return strings.HasPrefix(url, meURL)
}

type invalidator interface {
	Invalidate(ctx context.Context) error
}

// refreshToken drops any cached token before asking src for a new one.
func refreshToken(ctx context.Context, src TokenSource) (string, error) {
	if inv, ok := src.(invalidator); ok {
		if err := inv.Invalidate(ctx); err != nil {
			return "", fmt.Errorf("error invalidating cached token: %w", err)
		}
	}
	return src.Token(ctx)
}
