package main

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

type chromedpTokenSource struct {
	cfg    BrowserConfig
	logger *log.Logger
}

func (s *chromedpTokenSource) Token(ctx context.Context) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		// keep the game iframe in the page target so its network events reach us
		chromedp.Flag("disable-features", "IsolateOrigins,site-per-process"),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if s.cfg.ProfileDir != "" {
		opts = append(opts, chromedp.UserDataDir(s.cfg.ProfileDir))
	}
	if s.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(s.cfg.ExecPath))
	}
	if s.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(s.cfg.UserAgent))
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	bodies := make(chan []byte, 1)
	pending := make(map[network.RequestID]bool)

	// Events for a target are delivered one at a time, so pending needs no lock.
	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventResponseReceived:
			if e.Response != nil && e.Response.Status == 200 && isTokenResponse(e.Response.URL, s.cfg.MeURL) {
				pending[e.RequestID] = true
			}
		case *network.EventLoadingFinished:
			if !pending[e.RequestID] {
				return
			}
			delete(pending, e.RequestID)
			go s.fetchBody(browserCtx, e.RequestID, bodies)
		}
	})

	s.logger.Info("opening app", "url", s.cfg.AppURL, "headless", s.cfg.Headless)
	if err := chromedp.Run(browserCtx, network.Enable(), chromedp.Navigate(s.cfg.AppURL)); err != nil {
		return "", &BrowserAutomationError{Engine: "chromedp", Stage: "navigate", Err: err}
	}

	if s.cfg.LaunchSelector != "" {
		err := chromedp.Run(browserCtx,
			chromedp.WaitVisible(s.cfg.LaunchSelector),
			chromedp.Click(s.cfg.LaunchSelector),
		)
		if err != nil {
			return "", &BrowserAutomationError{Engine: "chromedp", Stage: "launch", Err: err}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return "", &BrowserAutomationError{Engine: "chromedp", Stage: "wait for token", Err: ctx.Err()}
		case body := <-bodies:
			token, err := extractWebsocketToken(body)
			if err != nil {
				s.logger.Warn("users/me response without token", "err", err)
				continue
			}
			return token, nil
		}
	}
}

func (s *chromedpTokenSource) fetchBody(ctx context.Context, id network.RequestID, out chan<- []byte) {
	var body []byte
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		body, err = network.GetResponseBody(id).Do(ctx)
		return err
	}))
	if err != nil {
		s.logger.Warn("error reading users/me body", "err", err)
		return
	}
	select {
	case out <- body:
	default:
	}
}
