package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	loadEnv()

	// Env parse errors are reported by the commands, so --help still works.
	cfg, loadErr := loadConfig()
	if err := newRootCmd(cfg, loadErr).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(cfg *Config, loadErr error) *cobra.Command {
	root := &cobra.Command{
		Use:          "notpixel",
		Short:        "Watch a NotPixel pixel and repaint it when it turns a given color",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if loadErr != nil {
				return fmt.Errorf("error loading config: %w", loadErr)
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	flags.StringVar(&cfg.Token, "token", cfg.Token, "websocket token; skips the browser when set")
	flags.StringVar(&cfg.Browser.Engine, "browser", cfg.Browser.Engine, "browser engine used to obtain the token (chromedp, rod)")
	flags.BoolVar(&cfg.Browser.Headless, "headless", cfg.Browser.Headless, "run the browser headless")
	flags.StringVar(&cfg.Browser.ProfileDir, "profile-dir", cfg.Browser.ProfileDir, "browser user data directory holding a logged-in session")
	flags.DurationVar(&cfg.Browser.Timeout, "browser-timeout", cfg.Browser.Timeout, "time allowed to obtain the token")

	root.AddCommand(newRunCmd(cfg))
	root.AddCommand(newTokenCmd(cfg))
	return root
}

func newRunCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Obtain a token, connect and watch the target pixel",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			logger, err := newLogger(os.Stdout, cfg.LogLevel)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runBot(ctx, cfg, logger)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&cfg.PixelID, "pixel", cfg.PixelID, "pixel id to watch")
	flags.StringVar(&cfg.TriggerColor, "trigger", cfg.TriggerColor, "color that triggers a repaint")
	flags.StringVar(&cfg.ActionColor, "color", cfg.ActionColor, "color to repaint with")
	flags.DurationVar(&cfg.PollInterval, "interval", cfg.PollInterval, "poll interval")
	flags.StringVar(&cfg.FirePolicy, "policy", cfg.FirePolicy, "fire policy (every-tick, on-transition, cooldown)")
	flags.DurationVar(&cfg.Cooldown, "cooldown", cfg.Cooldown, "minimum time between repaints for the cooldown policy")
	flags.StringVar(&cfg.MonitorAddr, "monitor", cfg.MonitorAddr, "address for the monitor server, empty to disable")
	return cmd
}

func newTokenCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Obtain a websocket token and print it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			logger, err := newLogger(os.Stderr, cfg.LogLevel)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			source, closeSource, err := buildTokenSource(cfg, logger)
			if err != nil {
				return err
			}
			defer closeSource()

			token, err := source.Token(ctx)
			if err != nil {
				logger.Error("token acquisition failed", "err", err)
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}

// buildTokenSource picks a static token or a browser engine, optionally
// behind the redis cache. The returned func releases the cache client.
func buildTokenSource(cfg *Config, logger *log.Logger) (TokenSource, func(), error) {
	if cfg.Token != "" {
		return staticToken(cfg.Token), func() {}, nil
	}

	source, err := newBrowserTokenSource(cfg.Browser, logger)
	if err != nil {
		return nil, nil, err
	}
	if cfg.RedisAddress == "" {
		return source, func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	cache := newRedisTokenCache(rdb, source, cfg.TokenKey, cfg.TokenTTL, logger)
	return cache, func() { rdb.Close() }, nil
}

func runBot(ctx context.Context, cfg *Config, logger *log.Logger) error {
	source, closeSource, err := buildTokenSource(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSource()

	token, err := source.Token(ctx)
	if err != nil {
		logger.Error("token acquisition failed", "err", err)
		return err
	}
	logger.Info("token acquired")

	session := newSession(cfg.sessionConfig(), func(sink PublicationSink, observer ConnectionObserver) Transport {
		return newCentrifugeTransport(centrifugeConfig{
			Endpoint: cfg.Endpoint,
			Name:     cfg.ClientName,
			Header:   cfg.header(),
			Token:    token,
			GetToken: tokenRefresher(ctx, source),
		}, sink, observer)
	}, logger)

	g, gctx := errgroup.WithContext(ctx)
	if cfg.MonitorAddr != "" {
		monitor := newMonitor(session.Board(), cfg.PixelID, cfg.Environment, cfg.MonitorOrigin, logger)
		session.Watcher().OnRepaint(monitor.NotifyRepaint)
		g.Go(func() error {
			return monitor.Run(gctx, cfg.MonitorAddr)
		})
	}
	g.Go(func() error {
		return session.Run(gctx)
	})
	return g.Wait()
}
