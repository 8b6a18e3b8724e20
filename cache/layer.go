package cache

import (
	"context"
	"math/rand/v2"
	"time"
)

// Layer is one storage tier of a Cache. Get returns ErrNotFound (possibly wrapped) on a miss.
type Layer interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, entry *Entry) error
	Name() string
}

type RedisShardAddress struct {
	MasterAddr string   `mapstructure:"address"`
	SlaveAddrs []string `mapstructure:"slaves"`
}

type RedisOpts struct {
	DB          int
	IdleTimeout time.Duration
	Shards      []*RedisShardAddress
}

// LayerOpts configures a single layer.
type LayerOpts struct {
	Name        string
	Amnesia     int
	Compression bool
	// Retention bounds how long a layer keeps an entry. It has to outlive the
	// freshness TTL, otherwise there is nothing left to serve when the upstream fails.
	// Zero keeps entries forever where the backend allows it.
	Retention time.Duration
	// MaxMemory is the bigcache hard limit in MB.
	MaxMemory int
	Redis     RedisOpts
}

type baseLayer struct {
	layerName          string
	amnesiaChance      int
	compressionEnabled bool
}

func newBaseLayer(opts *LayerOpts) baseLayer {
	return baseLayer{
		layerName:          opts.Name,
		amnesiaChance:      opts.Amnesia,
		compressionEnabled: opts.Compression,
	}
}

func (bl *baseLayer) forgets() bool {
	return bl.amnesiaChance > rand.IntN(100)
}

func (bl *baseLayer) Name() string {
	return bl.layerName
}
