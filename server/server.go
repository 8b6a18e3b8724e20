// Package server is the HTTP front door of the portfolio backend.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cafebazaar/folio/analytics"
	"github.com/cafebazaar/folio/cache"
	"github.com/cafebazaar/folio/ghstats"
)

const (
	DefaultStatsTTL    = 15 * time.Minute
	DefaultActivityTTL = 15 * time.Minute

	shutdownTimeout = 10 * time.Second
)

// StatsSource is the upstream behind the GitHub endpoints.
type StatsSource interface {
	User() string
	Stats(ctx context.Context) (*ghstats.Stats, error)
	Activity(ctx context.Context) ([]ghstats.Event, error)
}

// VisitTracker records and reports page visits.
type VisitTracker interface {
	RecordVisit(ctx context.Context, visit analytics.Visit) (bool, error)
	Summary(ctx context.Context) (*analytics.Summary, error)
}

type Config struct {
	StatsTTL       time.Duration
	ActivityTTL    time.Duration
	ActivityWindow time.Duration
	// SecureCookies marks the visitor cookie Secure, for deployments behind TLS.
	SecureCookies bool
}

type Server struct {
	cache   *cache.Cache
	source  StatsSource
	tracker VisitTracker
	config  Config
}

// New wires the handlers. tracker may be nil, which leaves the analytics routes out.
func New(c *cache.Cache, source StatsSource, tracker VisitTracker, config Config) *Server {
	if config.StatsTTL <= 0 {
		config.StatsTTL = DefaultStatsTTL
	}
	if config.ActivityTTL <= 0 {
		config.ActivityTTL = DefaultActivityTTL
	}
	return &Server{
		cache:   c,
		source:  source,
		tracker: tracker,
		config:  config,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/github/stats", s.handleStats)
	mux.HandleFunc("GET /api/github/activity", s.handleActivity)
	if s.tracker != nil {
		mux.HandleFunc("POST /api/analytics/visit", s.handleVisit)
		mux.HandleFunc("GET /api/analytics/summary", s.handleSummary)
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return logRequests(recoverer(mux))
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("address", addr).Info("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logrus.Info("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	}
}
