package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/cafebazaar/folio/analytics"
	"github.com/cafebazaar/folio/cache"
	"github.com/cafebazaar/folio/ghstats"
)

const (
	visitorCookie    = "folio_vid"
	visitorCookieAge = 365 * 24 * time.Hour
	maxVisitBody     = 4 << 10
)

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	user := s.source.User()
	s.serveCached(w, r, cache.MakeKey("github", user, "stats"), s.config.StatsTTL,
		cache.JSON(s.source.Stats), ghstats.DefaultStats(user, s.config.ActivityWindow))
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	user := s.source.User()
	s.serveCached(w, r, cache.MakeKey("github", user, "activity"), s.config.ActivityTTL,
		cache.JSON(s.source.Activity), ghstats.DefaultActivity())
}

func (s *Server) serveCached(w http.ResponseWriter, r *http.Request, key string, ttl time.Duration, fetch cache.RawFetchFn, fallback any) {
	rawFallback, err := json.Marshal(fallback)
	if err != nil {
		logrus.WithError(err).WithField("key", key).Error("failed to encode fallback")
		rawFallback = json.RawMessage("null")
	}
	writeCached(w, s.cache.GetOrFetch(r.Context(), key, ttl, fetch, rawFallback))
}

// writeCached sends the cached payload as is. It is always a 200: upstream trouble only
// shows in X-Cache.
func writeCached(w http.ResponseWriter, resp *cache.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", string(resp.Source))
	if !resp.FetchedAt.IsZero() {
		w.Header().Set("Last-Modified", resp.FetchedAt.UTC().Format(http.TimeFormat))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(resp.Payload); err != nil {
		logrus.WithError(err).Debug("failed to write response")
	}
}

func (s *Server) handleVisit(w http.ResponseWriter, r *http.Request) {
	var visit analytics.Visit
	r.Body = http.MaxBytesReader(w, r.Body, maxVisitBody)
	if err := json.NewDecoder(r.Body).Decode(&visit); err != nil {
		writeError(w, http.StatusBadRequest, "invalid visit body")
		return
	}
	visit.VisitorID = s.visitorID(w, r)

	counted, err := s.tracker.RecordVisit(r.Context(), visit)
	if err != nil {
		if errors.Is(err, analytics.ErrMissingVisitor) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logrus.WithError(err).WithField("page", visit.Page).Error("failed to record visit")
		writeError(w, http.StatusServiceUnavailable, "analytics unavailable")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"counted": counted})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.tracker.Summary(r.Context())
	if err != nil {
		logrus.WithError(err).Error("failed to read analytics summary")
		writeError(w, http.StatusServiceUnavailable, "analytics unavailable")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// visitorID returns the visitor cookie, issuing a new one when the request has none.
func (s *Server) visitorID(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(visitorCookie); err == nil {
		if _, parseErr := ulid.ParseStrict(cookie.Value); parseErr == nil {
			return cookie.Value
		}
	}
	id := ulid.Make().String()
	http.SetCookie(w, &http.Cookie{
		Name:     visitorCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(visitorCookieAge / time.Second),
		HttpOnly: true,
		Secure:   s.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logrus.WithError(err).Debug("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
