// Package cache serves upstream data inside a freshness window and falls back to the last
// good value, or a static default, when the upstream cannot be reached.
//
// A Cache is built once at process start from an ordered list of layers and handed to the
// code that needs it. Every resource key owns one Entry which successful fetches overwrite.
// Lookups never fail: the caller always gets a hit, a fresh value, a stale value or the
// fallback, and upstream errors only end up in the log.
//
// Concurrent misses on the same key are not coalesced; each one runs its own fetch and the
// last write wins.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// Source tells where a Response came from.
type Source string

const (
	SourceHit      Source = "hit"
	SourceFresh    Source = "fresh"
	SourceStale    Source = "stale"
	SourceFallback Source = "fallback"
)

// Response is the outcome of GetOrFetch. FetchedAt is zero for SourceFallback.
type Response struct {
	Payload   json.RawMessage
	FetchedAt time.Time
	Source    Source
}

// FetchFn fetches and validates a resource from the upstream. A non-nil error means the
// result must not be cached.
type FetchFn[T any] func(ctx context.Context) (T, error)

// RawFetchFn is a FetchFn producing an encoded payload.
type RawFetchFn = FetchFn[json.RawMessage]

// Cache holds one Entry per resource key across its layers.
type Cache struct {
	name    string
	layers  []Layer
	clock   Clock
	counter ICounter
}

type Option func(*Cache)

// WithClock replaces the time source, mostly for tests.
func WithClock(clock Clock) Option {
	return func(c *Cache) {
		c.clock = clock
	}
}

// WithCounter makes the cache report one event per lookup labelled (name, key, source).
func WithCounter(counter ICounter) Option {
	return func(c *Cache) {
		c.counter = counter
	}
}

func New(name string, layers []Layer, opts ...Option) (*Cache, error) {
	if len(layers) == 0 {
		return nil, ErrNoLayers
	}
	c := &Cache{
		name:    name,
		layers:  layers,
		clock:   NewClock(),
		counter: NewDummyCounter(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Cache) Name() string {
	return c.name
}

// Layers returns the layers in lookup order.
func (c *Cache) Layers() []Layer {
	return c.layers
}

// GetOrFetch returns the entry for key if it is younger than ttl. Otherwise it calls fetch
// once; a successful result is stored and returned, a failed one is logged and the previous
// entry is returned unchanged, or fallback if there never was one.
//
// fetch runs on a context that keeps ctx's values but not its cancellation, so a caller
// going away does not cut the upstream calls short.
func (c *Cache) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch RawFetchFn, fallback json.RawMessage) *Response {
	now := c.clock.Now()
	cached := c.lookup(ctx, key, now, ttl)
	if cached != nil && cached.Age(now) < ttl {
		return c.respond(key, cached, SourceHit)
	}

	payload, err := fetch(context.WithoutCancel(ctx))
	if err == nil {
		payload, err = normalize(payload)
	}
	if err != nil {
		entryLog := logrus.WithError(err).WithFields(logrus.Fields{
			"cache": c.name,
			"key":   key,
		})
		if cached != nil {
			entryLog.WithField("fetched_at", cached.FetchedAt).Warn("upstream fetch failed, serving stale entry")
			return c.respond(key, cached, SourceStale)
		}
		entryLog.Warn("upstream fetch failed, serving fallback")
		c.counter.Inc(c.name, key, string(SourceFallback))
		return &Response{Payload: fallback, Source: SourceFallback}
	}

	fresh := &Entry{FetchedAt: now, Payload: payload}
	c.store(ctx, key, fresh, len(c.layers))
	return c.respond(key, fresh, SourceFresh)
}

func (c *Cache) respond(key string, entry *Entry, source Source) *Response {
	c.counter.Inc(c.name, key, string(source))
	return &Response{Payload: entry.Payload, FetchedAt: entry.FetchedAt, Source: source}
}

// lookup walks the layers until it finds a fresh entry and returns the newest one seen.
// Layers above the one holding it are back-filled.
func (c *Cache) lookup(ctx context.Context, key string, now time.Time, ttl time.Duration) *Entry {
	var newest *Entry
	newestLayer := -1
	for i, layer := range c.layers {
		entry, err := layer.Get(ctx, key)
		if err != nil {
			if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrAmnesia) {
				logrus.WithError(err).WithFields(logrus.Fields{
					"cache": c.name,
					"layer": layer.Name(),
					"key":   key,
				}).Error("failed to read cache layer")
			}
			continue
		}
		if newest == nil || entry.FetchedAt.After(newest.FetchedAt) {
			newest = entry
			newestLayer = i
		}
		if entry.Age(now) < ttl {
			break
		}
	}
	if newestLayer > 0 {
		c.store(ctx, key, newest, newestLayer)
	}
	return newest
}

// store writes entry to the first n layers.
func (c *Cache) store(ctx context.Context, key string, entry *Entry, n int) {
	for i := 0; i < n; i++ {
		if err := c.layers[i].Set(ctx, key, entry); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"cache": c.name,
				"layer": c.layers[i].Name(),
				"key":   key,
			}).Error("failed to fill cache layer")
		}
	}
}

// normalize brings a payload into the form it has after a round trip through a layer, so a
// stale answer is byte-identical to the fresh one it replaces.
func normalize(payload json.RawMessage) (json.RawMessage, error) {
	if !json.Valid(payload) {
		return nil, ErrInvalidPayload
	}
	return json.Marshal(payload)
}

// JSON adapts a typed FetchFn into a RawFetchFn by encoding its result.
func JSON[T any](fetch FetchFn[T]) RawFetchFn {
	return func(ctx context.Context) (json.RawMessage, error) {
		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(value)
	}
}

// Fetch is the typed form of GetOrFetch. The decoded value is returned along with the
// Response it came from.
func Fetch[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fetch FetchFn[T], fallback T) (T, *Response) {
	rawFallback, err := json.Marshal(fallback)
	if err != nil {
		logrus.WithError(err).WithField("key", key).Error("failed to encode fallback")
		rawFallback = json.RawMessage("null")
	}
	resp := c.GetOrFetch(ctx, key, ttl, JSON(fetch), rawFallback)
	if resp.Source == SourceFallback {
		return fallback, resp
	}
	var value T
	if err := json.Unmarshal(resp.Payload, &value); err != nil {
		logrus.WithError(err).WithField("key", key).Error("failed to decode cached payload")
		return fallback, resp
	}
	return value, resp
}
