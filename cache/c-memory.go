package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
)

// foreverWindow stands in for "no retention limit" since bigcache always needs a life window.
const foreverWindow = 100 * 365 * 24 * time.Hour

// MemoryLayer stores encoded entries off-heap in bigcache.
type MemoryLayer struct {
	baseLayer
	base    *bigcache.BigCache
	watcher ITimer
}

func NewMemoryLayer(ctx context.Context, opts *LayerOpts, watcher ITimer) (*MemoryLayer, error) {
	internalOpts := bigcache.Config{
		Shards:             16,
		LifeWindow:         foreverWindow,
		MaxEntriesInWindow: 1024,
		MaxEntrySize:       4096,
		Verbose:            false,
		HardMaxCacheSize:   opts.MaxMemory,
	}
	if opts.Retention > 0 {
		internalOpts.LifeWindow = opts.Retention
		internalOpts.CleanWindow = time.Minute
	}
	cacheInstance, err := bigcache.New(ctx, internalOpts)
	if err != nil {
		return nil, fmt.Errorf("creating memory layer %s: %w", opts.Name, err)
	}
	if watcher == nil {
		watcher = NewDummyTimer()
	}
	return &MemoryLayer{
		baseLayer: newBaseLayer(opts),
		base:      cacheInstance,
		watcher:   watcher,
	}, nil
}

func (ml *MemoryLayer) Get(ctx context.Context, key string) (*Entry, error) {
	if ml.forgets() {
		return nil, newAmnesiaError(ml.amnesiaChance)
	}
	startMarker := ml.watcher.Start()
	rawBytes, err := ml.base.Get(key)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		ml.watcher.Done(startMarker, ml.layerName, "get", "miss")
		return nil, ErrNotFound
	} else if err != nil {
		ml.watcher.Done(startMarker, ml.layerName, "get", "error")
		return nil, err
	}
	ml.watcher.Done(startMarker, ml.layerName, "get", "ok")
	return decodeEntry(rawBytes, ml.compressionEnabled)
}

func (ml *MemoryLayer) Set(ctx context.Context, key string, entry *Entry) error {
	finalData, err := encodeEntry(entry, ml.compressionEnabled)
	if err != nil {
		return err
	}
	return ml.base.Set(key, finalData)
}

// Close stops the bigcache cleanup goroutine.
func (ml *MemoryLayer) Close() error {
	return ml.base.Close()
}
