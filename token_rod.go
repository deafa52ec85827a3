package main

import (
	"context"
	"encoding/base64"

	"github.com/charmbracelet/log"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

type rodTokenSource struct {
	cfg    BrowserConfig
	logger *log.Logger
}

func (s *rodTokenSource) Token(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	l := launcher.New().
		Context(ctx).
		Headless(s.cfg.Headless).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-features", "IsolateOrigins,site-per-process").
		Set("disable-dev-shm-usage")
	if s.cfg.ProfileDir != "" {
		l = l.UserDataDir(s.cfg.ProfileDir)
	}
	if s.cfg.ExecPath != "" {
		l = l.Bin(s.cfg.ExecPath)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return "", &BrowserAutomationError{Engine: "rod", Stage: "launch browser", Err: err}
	}
	defer l.Kill()

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return "", &BrowserAutomationError{Engine: "rod", Stage: "connect", Err: err}
	}
	defer browser.Close()

	page, err := stealth.Page(browser)
	if err != nil {
		return "", &BrowserAutomationError{Engine: "rod", Stage: "open page", Err: err}
	}
	if s.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: s.cfg.UserAgent}); err != nil {
			return "", &BrowserAutomationError{Engine: "rod", Stage: "set user agent", Err: err}
		}
	}
	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		return "", &BrowserAutomationError{Engine: "rod", Stage: "enable network", Err: err}
	}

	tokens := make(chan string, 1)
	pending := make(map[proto.NetworkRequestID]bool)
	wait := page.EachEvent(func(e *proto.NetworkResponseReceived) {
		if e.Response != nil && e.Response.Status == 200 && isTokenResponse(e.Response.URL, s.cfg.MeURL) {
			pending[e.RequestID] = true
		}
	}, func(e *proto.NetworkLoadingFinished) {
		if !pending[e.RequestID] {
			return
		}
		delete(pending, e.RequestID)

		go func(id proto.NetworkRequestID) {
			token, err := s.readToken(page, id)
			if err != nil {
				s.logger.Warn("users/me response without token", "err", err)
				return
			}
			select {
			case tokens <- token:
			default:
			}
		}(e.RequestID)
	})
	go wait()

	s.logger.Info("opening app", "url", s.cfg.AppURL, "headless", s.cfg.Headless)
	if err := page.Navigate(s.cfg.AppURL); err != nil {
		return "", &BrowserAutomationError{Engine: "rod", Stage: "navigate", Err: err}
	}

	if s.cfg.LaunchSelector != "" {
		el, err := page.Element(s.cfg.LaunchSelector)
		if err != nil {
			return "", &BrowserAutomationError{Engine: "rod", Stage: "launch", Err: err}
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return "", &BrowserAutomationError{Engine: "rod", Stage: "launch", Err: err}
		}
	}

	select {
	case <-ctx.Done():
		return "", &BrowserAutomationError{Engine: "rod", Stage: "wait for token", Err: ctx.Err()}
	case token := <-tokens:
		return token, nil
	}
}

func (s *rodTokenSource) readToken(page *rod.Page, id proto.NetworkRequestID) (string, error) {
	res, err := proto.NetworkGetResponseBody{RequestID: id}.Call(page)
	if err != nil {
		return "", err
	}

	body := []byte(res.Body)
	if res.Base64Encoded {
		body, err = base64.StdEncoding.DecodeString(res.Body)
		if err != nil {
			return "", err
		}
	}
	return extractWebsocketToken(body)
}
