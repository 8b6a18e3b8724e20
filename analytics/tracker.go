// Package analytics counts portfolio page visits in Redis.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	DefaultPrefix      = "folio"
	DefaultDedupWindow = 30 * time.Minute

	dailyRetention = 90 * 24 * time.Hour
	summaryDays    = 7
	maxPageLength  = 200
	dayLayout      = "2006-01-02"
)

var (
	ErrMissingVisitor = errors.New("analytics: visitor id is required")
)

// Visit is one page view.
type Visit struct {
	Page      string `json:"page"`
	VisitorID string `json:"-"`
	Referrer  string `json:"referrer,omitempty"`
}

// Daily is the visit count of one UTC day.
type Daily struct {
	Date   string `json:"date"`
	Visits int64  `json:"visits"`
}

// Summary is the aggregate view returned by the summary endpoint.
type Summary struct {
	TotalVisits    int64            `json:"totalVisits"`
	UniqueVisitors int64            `json:"uniqueVisitors"`
	Pages          map[string]int64 `json:"pages"`
	LastDays       []Daily          `json:"lastDays"`
}

type Options struct {
	Prefix      string
	DedupWindow time.Duration
}

// Tracker records visits. Repeated views of a page by the same visitor inside the dedup
// window are counted once; that window is kept in process memory.
type Tracker struct {
	client redis.UniversalClient
	prefix string
	seen   *ttlcache.Cache[string, struct{}]
	now    func() time.Time
}

func NewTracker(client redis.UniversalClient, opts Options) *Tracker {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.DedupWindow <= 0 {
		opts.DedupWindow = DefaultDedupWindow
	}
	seen := ttlcache.New[string, struct{}](
		ttlcache.WithTTL[string, struct{}](opts.DedupWindow),
		ttlcache.WithDisableTouchOnHit[string, struct{}](),
	)
	go seen.Start()
	return &Tracker{
		client: client,
		prefix: opts.Prefix,
		seen:   seen,
		now:    time.Now,
	}
}

// Close stops the dedup window janitor. The Redis client is owned by the caller.
func (t *Tracker) Close() {
	t.seen.Stop()
}

func (t *Tracker) key(parts ...string) string {
	return t.prefix + ":" + strings.Join(parts, ":")
}

// NormalizePage turns a raw page path into the form used as a counter field.
func NormalizePage(page string) string {
	page = strings.TrimSpace(page)
	if i := strings.IndexAny(page, "?#"); i >= 0 {
		page = page[:i]
	}
	if page == "" {
		return "/"
	}
	if !strings.HasPrefix(page, "/") {
		page = "/" + page
	}
	if len(page) > maxPageLength {
		page = page[:maxPageLength]
	}
	return page
}

// RecordVisit counts a visit and reports whether it was counted or deduplicated.
func (t *Tracker) RecordVisit(ctx context.Context, visit Visit) (bool, error) {
	if visit.VisitorID == "" {
		return false, ErrMissingVisitor
	}
	page := NormalizePage(visit.Page)
	if _, found := t.seen.GetOrSet(visit.VisitorID+"|"+page, struct{}{}); found {
		return false, nil
	}

	day := t.now().UTC().Format(dayLayout)
	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, t.key("visits", "total"))
		pipe.HIncrBy(ctx, t.key("visits", "pages"), page, 1)
		pipe.Incr(ctx, t.key("visits", "day", day))
		pipe.Expire(ctx, t.key("visits", "day", day), dailyRetention)
		pipe.PFAdd(ctx, t.key("visitors", "all"), visit.VisitorID)
		pipe.PFAdd(ctx, t.key("visitors", "page", page), visit.VisitorID)
		if visit.Referrer != "" {
			pipe.HIncrBy(ctx, t.key("referrers"), visit.Referrer, 1)
		}
		return nil
	})
	if err != nil {
		t.seen.Delete(visit.VisitorID + "|" + page)
		return false, fmt.Errorf("recording visit to %s: %w", page, err)
	}
	logrus.WithFields(logrus.Fields{"page": page, "day": day}).Debug("visit recorded")
	return true, nil
}

// Summary reads the counters back.
func (t *Tracker) Summary(ctx context.Context) (*Summary, error) {
	summary := &Summary{Pages: map[string]int64{}}

	total, err := t.client.Get(ctx, t.key("visits", "total")).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("reading total visits: %w", err)
	}
	summary.TotalVisits = total

	if summary.UniqueVisitors, err = t.client.PFCount(ctx, t.key("visitors", "all")).Result(); err != nil {
		return nil, fmt.Errorf("reading unique visitors: %w", err)
	}

	pages, err := t.client.HGetAll(ctx, t.key("visits", "pages")).Result()
	if err != nil {
		return nil, fmt.Errorf("reading page visits: %w", err)
	}
	for page, raw := range pages {
		if n, parseErr := strconv.ParseInt(raw, 10, 64); parseErr == nil {
			summary.Pages[page] = n
		}
	}

	today := t.now().UTC()
	keys := make([]string, summaryDays)
	summary.LastDays = make([]Daily, summaryDays)
	for i := 0; i < summaryDays; i++ {
		date := today.AddDate(0, 0, i-summaryDays+1).Format(dayLayout)
		keys[i] = t.key("visits", "day", date)
		summary.LastDays[i].Date = date
	}
	values, err := t.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("reading daily visits: %w", err)
	}
	for i, value := range values {
		if s, ok := value.(string); ok {
			summary.LastDays[i].Visits, _ = strconv.ParseInt(s, 10, 64)
		}
	}
	return summary, nil
}
