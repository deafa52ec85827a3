package main

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Endpoint:       defaultEndpoint,
		StateChannel:   "pixel:message",
		EventChannel:   "event:message",
		PixelID:        88876,
		TriggerColor:   "000000",
		ActionColor:    "#00CCC0",
		PollInterval:   200 * time.Millisecond,
		FirePolicy:     string(FireEveryTick),
		Cooldown:       time.Second,
		RepaintRetries: 3,
		RepaintBackoff: 100 * time.Millisecond,
		Browser: BrowserConfig{
			Engine:  "chromedp",
			Timeout: time.Minute,
		},
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PIXEL_ID", "")
	t.Setenv("POLL_INTERVAL", "")
	t.Setenv("FIRE_POLICY", "")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 88876, cfg.PixelID)
	assert.Equal(t, 200*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, string(FireEveryTick), cfg.FirePolicy)
	assert.Equal(t, defaultEndpoint, cfg.Endpoint)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("PIXEL_ID", "42")
	t.Setenv("PIXEL_TRIGGER_COLOR", "#ABCDEF")
	t.Setenv("POLL_INTERVAL", "1s")
	t.Setenv("FIRE_POLICY", "cooldown")
	t.Setenv("BROWSER_ENGINE", "rod")
	t.Setenv("BROWSER_HEADLESS", "false")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.PixelID)
	assert.Equal(t, "#ABCDEF", cfg.TriggerColor)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, "cooldown", cfg.FirePolicy)
	assert.Equal(t, "rod", cfg.Browser.Engine)
	assert.False(t, cfg.Browser.Headless)
}

func TestLoadConfigInvalidEnv(t *testing.T) {
	t.Setenv("PIXEL_ID", "pixel")
	t.Setenv("POLL_INTERVAL", "fast")

	_, err := loadConfig()
	require.Error(t, err)
	assert.ErrorContains(t, err, "PIXEL_ID")
	assert.ErrorContains(t, err, "POLL_INTERVAL")
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, validConfig().validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad trigger", func(c *Config) { c.TriggerColor = "black" }},
		{"bad action", func(c *Config) { c.ActionColor = "#12345" }},
		{"negative pixel", func(c *Config) { c.PixelID = -1 }},
		{"zero interval", func(c *Config) { c.PollInterval = 0 }},
		{"unknown policy", func(c *Config) { c.FirePolicy = "often" }},
		{"zero cooldown", func(c *Config) { c.FirePolicy = "cooldown"; c.Cooldown = 0 }},
		{"unknown engine", func(c *Config) { c.Browser.Engine = "lynx" }},
		{"no state channel", func(c *Config) { c.StateChannel = "" }},
		{"zero backoff", func(c *Config) { c.RepaintBackoff = 0 }},
		{"negative backoff", func(c *Config) { c.RepaintBackoff = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.validate())
		})
	}
}

func TestConfigValidateColorError(t *testing.T) {
	cfg := validConfig()
	cfg.TriggerColor = "zzzzzz"
	assert.True(t, errors.Is(cfg.validate(), ErrInvalidColor))
}

func TestConfigValidateStaticTokenSkipsBrowser(t *testing.T) {
	cfg := validConfig()
	cfg.Token = "abc"
	cfg.Browser.Engine = ""
	assert.NoError(t, cfg.validate())
}

func TestConfigHeader(t *testing.T) {
	cfg := validConfig()
	cfg.Origin = defaultOrigin
	cfg.UserAgent = defaultUserAgent

	h := cfg.header()
	assert.Equal(t, defaultOrigin, h.Get("Origin"))
	assert.Equal(t, defaultUserAgent, h.Get("User-Agent"))
	assert.Equal(t, "no-cache", h.Get("Cache-Control"))
}

func TestTokenCommandWithStaticToken(t *testing.T) {
	cfg := validConfig()
	cfg.LogLevel = "error"

	var out bytes.Buffer
	cmd := newRootCmd(cfg, nil)
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"token", "--token", "eyJ.abc"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "eyJ.abc\n", out.String())
}

func TestRunCommandFlags(t *testing.T) {
	cfg := validConfig()
	cfg.LogLevel = "error"

	cmd := newRootCmd(cfg, nil)
	cmd.SetArgs([]string{"run", "--pixel", "7", "--trigger", "FFFFFF", "--policy", "nope"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, 7, cfg.PixelID)
	assert.Equal(t, "FFFFFF", cfg.TriggerColor)
}

func TestRootCommandConfigError(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "fast")
	cfg, loadErr := loadConfig()
	require.Error(t, loadErr)
	cfg.LogLevel = "error"

	var out bytes.Buffer
	cmd := newRootCmd(cfg, loadErr)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--help"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "notpixel")

	cmd = newRootCmd(cfg, loadErr)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"token", "--token", "eyJ.abc"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.ErrorContains(t, err, "POLL_INTERVAL")
}

func TestValidateColor(t *testing.T) {
	for _, c := range []string{"000000", "#00CCC0", "#be0039"} {
		assert.NoError(t, validateColor(c), c)
	}
	for _, c := range []string{"", "#", "0000000", "#GGGGGG", "red"} {
		assert.ErrorIs(t, validateColor(c), ErrInvalidColor, c)
	}
}

func TestSameColor(t *testing.T) {
	assert.True(t, sameColor("000000", "#000000"))
	assert.True(t, sameColor("#be0039", "#BE0039"))
	assert.False(t, sameColor("000000", "000001"))
}
