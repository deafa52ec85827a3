package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	defaultEndpoint  = "wss://notpx.app/connection/websocket"
	defaultOrigin    = "https://app.notpx.app"
	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36"
	defaultAppURL    = "https://web.telegram.org/k/#?tgaddr=tg%3A%2F%2Fresolve%3Fdomain%3Dnotpixel%26appname%3Dapp"
	defaultMeURL     = "https://notpx.app/api/v1/users/me"
)

type Config struct {
	Environment string
	LogLevel    string

	Endpoint       string
	Origin         string
	UserAgent      string
	AcceptLanguage string
	ClientName     string
	StateChannel   string
	EventChannel   string
	Token          string

	PixelID        int
	TriggerColor   string
	ActionColor    string
	PollInterval   time.Duration
	FirePolicy     string
	Cooldown       time.Duration
	RepaintRetries int
	RepaintBackoff time.Duration

	Browser BrowserConfig

	RedisAddress  string
	RedisPassword string
	RedisDB       int
	TokenKey      string
	TokenTTL      time.Duration

	MonitorAddr   string
	MonitorOrigin string
}

// loadConfig reads the configuration from the environment, falling back to
// defaults for anything unset.
func loadConfig() (*Config, error) {
	cfg := &Config{
		Environment:    envString("ENVIRONMENT", "production"),
		LogLevel:       envString("LOG_LEVEL", "info"),
		Endpoint:       envString("NOTPX_WS_URL", defaultEndpoint),
		Origin:         envString("NOTPX_ORIGIN", defaultOrigin),
		UserAgent:      envString("NOTPX_USER_AGENT", defaultUserAgent),
		AcceptLanguage: envString("NOTPX_ACCEPT_LANGUAGE", "en-GB,en-US;q=0.9,en;q=0.8"),
		ClientName:     envString("NOTPX_CLIENT_NAME", "js"),
		StateChannel:   envString("NOTPX_STATE_CHANNEL", "pixel:message"),
		EventChannel:   envString("NOTPX_EVENT_CHANNEL", "event:message"),
		Token:          envString("NOTPX_TOKEN", ""),
		TriggerColor:   envString("PIXEL_TRIGGER_COLOR", "000000"),
		ActionColor:    envString("PIXEL_ACTION_COLOR", "#00CCC0"),
		FirePolicy:     envString("FIRE_POLICY", string(FireEveryTick)),
		Browser: BrowserConfig{
			Engine:         envString("BROWSER_ENGINE", "chromedp"),
			AppURL:         envString("BROWSER_APP_URL", defaultAppURL),
			MeURL:          envString("BROWSER_ME_URL", defaultMeURL),
			LaunchSelector: envString("BROWSER_LAUNCH_SELECTOR", ""),
			ProfileDir:     envString("BROWSER_PROFILE_DIR", ""),
			ExecPath:       envString("BROWSER_EXEC_PATH", ""),
			UserAgent:      envString("NOTPX_USER_AGENT", defaultUserAgent),
		},
		RedisAddress:  envString("REDIS_ADDRESS", ""),
		RedisPassword: envString("REDIS_PASSWORD", ""),
		TokenKey:      envString("TOKEN_CACHE_KEY", "notpixel:token"),
		MonitorAddr:   envString("MONITOR_ADDR", ""),
		MonitorOrigin: envString("MONITOR_ORIGIN", ""),
	}

	var errs []error
	var err error
	if cfg.PixelID, err = envInt("PIXEL_ID", 88876); err != nil {
		errs = append(errs, err)
	}
	if cfg.PollInterval, err = envDuration("POLL_INTERVAL", 200*time.Millisecond); err != nil {
		errs = append(errs, err)
	}
	if cfg.Cooldown, err = envDuration("FIRE_COOLDOWN", time.Second); err != nil {
		errs = append(errs, err)
	}
	if cfg.RepaintRetries, err = envInt("REPAINT_RETRIES", 3); err != nil {
		errs = append(errs, err)
	}
	if cfg.RepaintBackoff, err = envDuration("REPAINT_BACKOFF", 100*time.Millisecond); err != nil {
		errs = append(errs, err)
	}
	if cfg.Browser.Headless, err = envBool("BROWSER_HEADLESS", true); err != nil {
		errs = append(errs, err)
	}
	if cfg.Browser.Timeout, err = envDuration("BROWSER_TIMEOUT", 90*time.Second); err != nil {
		errs = append(errs, err)
	}
	if cfg.RedisDB, err = envInt("REDIS_DB", 0); err != nil {
		errs = append(errs, err)
	}
	if cfg.TokenTTL, err = envDuration("TOKEN_TTL", 30*time.Minute); err != nil {
		errs = append(errs, err)
	}

	return cfg, errors.Join(errs...)
}

func (c *Config) validate() error {
	var errs []error

	if c.Endpoint == "" {
		errs = append(errs, errors.New("endpoint is required"))
	}
	if c.StateChannel == "" {
		errs = append(errs, errors.New("state channel is required"))
	}
	if c.PixelID < 0 {
		errs = append(errs, fmt.Errorf("invalid pixel id: %d", c.PixelID))
	}
	if err := validateColor(c.TriggerColor); err != nil {
		errs = append(errs, fmt.Errorf("trigger color: %w", err))
	}
	if err := validateColor(c.ActionColor); err != nil {
		errs = append(errs, fmt.Errorf("action color: %w", err))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval must be positive, got %s", c.PollInterval))
	}
	policy, err := parseFirePolicy(c.FirePolicy)
	if err != nil {
		errs = append(errs, err)
	}
	if policy == FireCooldown && c.Cooldown <= 0 {
		errs = append(errs, fmt.Errorf("cooldown must be positive, got %s", c.Cooldown))
	}
	if c.RepaintRetries < 0 {
		errs = append(errs, fmt.Errorf("repaint retries must not be negative, got %d", c.RepaintRetries))
	}
	if c.RepaintBackoff <= 0 {
		errs = append(errs, fmt.Errorf("repaint backoff must be positive, got %s", c.RepaintBackoff))
	}
	if c.Token == "" {
		if c.Browser.Engine != "chromedp" && c.Browser.Engine != "rod" {
			errs = append(errs, fmt.Errorf("unknown browser engine: %q", c.Browser.Engine))
		}
		if c.Browser.Timeout <= 0 {
			errs = append(errs, fmt.Errorf("browser timeout must be positive, got %s", c.Browser.Timeout))
		}
	}

	return errors.Join(errs...)
}

func (c *Config) header() http.Header {
	h := http.Header{}
	h.Set("Origin", c.Origin)
	h.Set("User-Agent", c.UserAgent)
	h.Set("Accept-Language", c.AcceptLanguage)
	h.Set("Cache-Control", "no-cache")
	h.Set("Pragma", "no-cache")
	return h
}

func (c *Config) sessionConfig() SessionConfig {
	return SessionConfig{
		StateChannel: c.StateChannel,
		EventChannel: c.EventChannel,
		Watcher: WatcherConfig{
			PixelID:      c.PixelID,
			TriggerColor: c.TriggerColor,
			ActionColor:  c.ActionColor,
			PollInterval: c.PollInterval,
			Policy:       FirePolicy(c.FirePolicy),
			Cooldown:     c.Cooldown,
		},
		RepaintRetries: c.RepaintRetries,
		RepaintBackoff: c.RepaintBackoff,
	}
}
