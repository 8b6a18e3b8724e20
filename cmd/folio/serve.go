package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cafebazaar/folio/analytics"
	"github.com/cafebazaar/folio/cache"
	"github.com/cafebazaar/folio/config"
	"github.com/cafebazaar/folio/ghstats"
	"github.com/cafebazaar/folio/server"
)

func newServeCmd(a *app) *cobra.Command {
	var address string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("address") {
				a.config.Set("server.address", address)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a.config)
		},
	}
	cmd.Flags().StringVar(&address, "address", ":5000", "listen address, overrides server.address")
	return cmd
}

func serve(ctx context.Context, cfg *viper.Viper) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}

	timer := cache.NewLogTimer(nil, cfg.GetDuration("cache.slow-threshold"))
	c, err := cache.NewFromConfig(ctx, cfg, "cache", timer, cache.WithCounter(cache.NewLogCounter(nil)))
	if err != nil {
		return fmt.Errorf("building cache: %w", err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			logrus.WithError(err).Warn("closing cache layers")
		}
	}()

	tracker, closeTracker := newTracker(ctx, cfg)
	defer closeTracker()

	source := ghstats.NewClient(config.GitHub(cfg))
	logrus.WithFields(logrus.Fields{
		"user":    source.User(),
		"layers":  len(c.Layers()),
		"tracker": tracker != nil,
	}).Info("starting folio")

	var visits server.VisitTracker
	if tracker != nil {
		visits = tracker
	}
	return server.New(c, source, visits, config.Server(cfg)).Run(ctx, cfg.GetString("server.address"))
}

// newTracker connects the visit tracker when analytics.address is set. Analytics is
// optional: an unreachable redis is logged and the server runs without it.
func newTracker(ctx context.Context, cfg *viper.Viper) (*analytics.Tracker, func()) {
	addr := cfg.GetString("analytics.address")
	if addr == "" {
		return nil, func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   cfg.GetInt("analytics.db"),
	})
	if err := client.Ping(ctx).Err(); err != nil {
		logrus.WithError(err).WithField("address", addr).Warn("analytics redis unreachable, continuing without it")
	}
	tracker := analytics.NewTracker(client, analytics.Options{
		Prefix:      cfg.GetString("analytics.prefix"),
		DedupWindow: cfg.GetDuration("analytics.dedup-window"),
	})
	return tracker, func() {
		tracker.Close()
		_ = client.Close()
	}
}
