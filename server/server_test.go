package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cafebazaar/folio/analytics"
	"github.com/cafebazaar/folio/cache"
	"github.com/cafebazaar/folio/ghstats"
)

var errRateLimited = errors.New("rate limited")

type fakeSource struct {
	mu       sync.Mutex
	stats    *ghstats.Stats
	activity []ghstats.Event
	err      error
	panics   bool
	calls    int
}

func (f *fakeSource) User() string { return "octocat" }

func (f *fakeSource) Stats(ctx context.Context) (*ghstats.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.panics {
		panic("nil map")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.stats, f.err
}

func (f *fakeSource) Activity(context.Context) ([]ghstats.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.activity, f.err
}

func (f *fakeSource) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeSource) setActivity(events []ghstats.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activity = events
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestServer(t *testing.T, source *fakeSource, tracker VisitTracker) (*httptest.Server, *cache.TestClock) {
	t.Helper()
	clock := cache.NewTestClock(time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC))
	c, err := cache.New("test", []cache.Layer{cache.NewTinyLayer(&cache.LayerOpts{Name: "local"})}, cache.WithClock(clock))
	require.NoError(t, err)
	srv := httptest.NewServer(New(c, source, tracker, Config{}).Handler())
	t.Cleanup(srv.Close)
	return srv, clock
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func sampleStats() *ghstats.Stats {
	stats := ghstats.DefaultStats("octocat", 0)
	stats.Totals.Repos = 12
	stats.Languages = []ghstats.Language{{Name: "Go", Bytes: 4096, Percentage: 100}}
	return stats
}

func TestStatsEndpoint(t *testing.T) {
	source := &fakeSource{stats: sampleStats()}
	srv, clock := newTestServer(t, source, nil)

	resp, body := get(t, srv.URL+"/api/github/stats")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "fresh", resp.Header.Get("X-Cache"))
	assert.NotEmpty(t, resp.Header.Get("Last-Modified"))
	want, err := json.Marshal(sampleStats())
	require.NoError(t, err)
	assert.JSONEq(t, string(want), body)

	resp, cachedBody := get(t, srv.URL+"/api/github/stats")
	assert.Equal(t, "hit", resp.Header.Get("X-Cache"))
	assert.Equal(t, body, cachedBody)
	assert.Equal(t, 1, source.Calls())

	source.fail(errRateLimited)
	clock.Add(DefaultStatsTTL)
	resp, staleBody := get(t, srv.URL+"/api/github/stats")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "stale", resp.Header.Get("X-Cache"))
	assert.Equal(t, body, staleBody)
	assert.Equal(t, 2, source.Calls())
}

func TestStatsEndpointFallback(t *testing.T) {
	source := &fakeSource{err: errRateLimited}
	srv, _ := newTestServer(t, source, nil)

	resp, body := get(t, srv.URL+"/api/github/stats")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "fallback", resp.Header.Get("X-Cache"))
	assert.Empty(t, resp.Header.Get("Last-Modified"))
	want, err := json.Marshal(ghstats.DefaultStats("octocat", 0))
	require.NoError(t, err)
	assert.Equal(t, string(want), body)
}

func TestActivityEndpoint(t *testing.T) {
	source := &fakeSource{err: errRateLimited}
	srv, clock := newTestServer(t, source, nil)

	resp, body := get(t, srv.URL+"/api/github/activity")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "fallback", resp.Header.Get("X-Cache"))
	assert.Equal(t, "[]", body)

	events := []ghstats.Event{{ID: "1", Type: "PushEvent", Repo: "octocat/alpha", Action: "pushed 1 commit"}}
	source.fail(nil)
	source.setActivity(events)
	clock.Add(time.Second)
	resp, body = get(t, srv.URL+"/api/github/activity")
	assert.Equal(t, "fresh", resp.Header.Get("X-Cache"))
	var feed []ghstats.Event
	require.NoError(t, json.Unmarshal([]byte(body), &feed))
	assert.Equal(t, events, feed)
}

func TestStatsAndActivityAreSeparateEntries(t *testing.T) {
	source := &fakeSource{stats: sampleStats(), activity: []ghstats.Event{}}
	srv, _ := newTestServer(t, source, nil)

	resp, _ := get(t, srv.URL+"/api/github/stats")
	assert.Equal(t, "fresh", resp.Header.Get("X-Cache"))
	resp, _ = get(t, srv.URL+"/api/github/activity")
	assert.Equal(t, "fresh", resp.Header.Get("X-Cache"))
	assert.Equal(t, 2, source.Calls())
}

func TestPanicBecomes500(t *testing.T) {
	source := &fakeSource{panics: true}
	srv, _ := newTestServer(t, source, nil)

	resp, body := get(t, srv.URL+"/api/github/stats")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"error":"internal error"}`, body)
}

func TestPanicIsLogged(t *testing.T) {
	hook := test.NewGlobal()
	t.Cleanup(hook.Reset)
	srv, _ := newTestServer(t, &fakeSource{panics: true}, nil)

	resp, _ := get(t, srv.URL+"/api/github/stats")
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var request *logrus.Entry
	for _, entry := range hook.AllEntries() {
		if entry.Message == "request" {
			request = entry
		}
	}
	require.NotNil(t, request)
	assert.Equal(t, http.StatusInternalServerError, request.Data["status"])
	assert.Equal(t, "/api/github/stats", request.Data["path"])
}

func TestStatsSurvivesClientDisconnect(t *testing.T) {
	source := &fakeSource{stats: sampleStats()}
	c, err := cache.New("test", []cache.Layer{cache.NewTinyLayer(&cache.LayerOpts{Name: "local"})})
	require.NoError(t, err)
	handler := New(c, source, nil, Config{}).Handler()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/github/stats", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "fresh", rec.Header().Get("X-Cache"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/github/stats", nil))
	assert.Equal(t, "hit", rec.Header().Get("X-Cache"))
	want, err := json.Marshal(sampleStats())
	require.NoError(t, err)
	assert.JSONEq(t, string(want), rec.Body.String())
	assert.Equal(t, 1, source.Calls())
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSource{}, nil)
	resp, body := get(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, body)
}

func TestAnalyticsDisabled(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSource{}, nil)
	resp, err := http.Post(srv.URL+"/api/analytics/visit", "application/json", strings.NewReader(`{"page":"/"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestVisitAndSummary(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	tracker := analytics.NewTracker(client, analytics.Options{DedupWindow: time.Minute})
	t.Cleanup(tracker.Close)
	srv, _ := newTestServer(t, &fakeSource{}, tracker)

	post := func(cookie *http.Cookie, body string) (*http.Response, map[string]bool) {
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/analytics/visit", strings.NewReader(body))
		require.NoError(t, err)
		if cookie != nil {
			req.AddCookie(cookie)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		var out map[string]bool
		_ = json.NewDecoder(resp.Body).Decode(&out)
		return resp, out
	}

	resp, out := post(nil, `{"page":"/projects"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.True(t, out["counted"])
	var visitor *http.Cookie
	for _, cookie := range resp.Cookies() {
		if cookie.Name == visitorCookie {
			visitor = cookie
		}
	}
	require.NotNil(t, visitor)
	assert.True(t, visitor.HttpOnly)

	resp, out = post(visitor, `{"page":"/projects"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.False(t, out["counted"])
	assert.Empty(t, resp.Cookies())

	resp, _ = post(visitor, `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := get(t, srv.URL+"/api/analytics/summary")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var summary analytics.Summary
	require.NoError(t, json.Unmarshal([]byte(body), &summary))
	assert.Equal(t, int64(1), summary.TotalVisits)
	assert.Equal(t, int64(1), summary.UniqueVisitors)
	assert.Equal(t, map[string]int64{"/projects": 1}, summary.Pages)

	mr.Close()
	resp, body = get(t, srv.URL+"/api/analytics/summary")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.JSONEq(t, `{"error":"analytics unavailable"}`, body)
}
