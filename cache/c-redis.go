package cache

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type clusterClient struct {
	master *redis.Client
	slaves []*redis.Client
}

// RedisLayer shares entries between processes through sharded Redis master/replica groups.
type RedisLayer struct {
	baseLayer
	baseClients []*clusterClient
	retention   time.Duration
	watcher     ITimer
}

func makeClient(ctx context.Context, addr string, db int, idleTimeout time.Duration) *redis.Client {
	redisOptions := &redis.Options{
		Addr: addr,
		DB:   db,
	}
	if idleTimeout >= time.Second {
		redisOptions.ConnMaxIdleTime = idleTimeout
	}
	newClient := redis.NewClient(redisOptions)

	if err := newClient.Ping(ctx).Err(); err != nil {
		logrus.WithError(err).WithField("address", addr).Error("error pinging Redis")
	}
	return newClient
}

func NewRedisLayer(ctx context.Context, opts *LayerOpts, watcher ITimer) (*RedisLayer, error) {
	if len(opts.Redis.Shards) == 0 {
		return nil, fmt.Errorf("%w: redis layer %s has no shards", ErrInvalidConfig, opts.Name)
	}
	if watcher == nil {
		watcher = NewDummyTimer()
	}
	rl := &RedisLayer{
		baseLayer: newBaseLayer(opts),
		retention: opts.Retention,
		watcher:   watcher,
	}
	rl.baseClients = make([]*clusterClient, len(opts.Redis.Shards))
	for i, shard := range opts.Redis.Shards {
		cl := &clusterClient{
			master: makeClient(ctx, shard.MasterAddr, opts.Redis.DB, opts.Redis.IdleTimeout),
			slaves: make([]*redis.Client, len(shard.SlaveAddrs)),
		}
		for j, slv := range shard.SlaveAddrs {
			cl.slaves[j] = makeClient(ctx, slv, opts.Redis.DB, opts.Redis.IdleTimeout)
		}
		rl.baseClients[i] = cl
	}
	return rl, nil
}

func (rl *RedisLayer) Get(ctx context.Context, key string) (*Entry, error) {
	if rl.forgets() {
		return nil, newAmnesiaError(rl.amnesiaChance)
	}
	client := rl.pickClient(key, false)
	startMarker := rl.watcher.Start()
	rawBytes, err := client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		rl.watcher.Done(startMarker, rl.layerName, "get", "miss")
		return nil, ErrNotFound
	} else if err != nil {
		rl.watcher.Done(startMarker, rl.layerName, "get", "error")
		return nil, err
	}
	rl.watcher.Done(startMarker, rl.layerName, "get", "ok")
	return decodeEntry(rawBytes, rl.compressionEnabled)
}

func (rl *RedisLayer) Set(ctx context.Context, key string, entry *Entry) error {
	if rl.amnesiaChance == 100 {
		return newAmnesiaError(rl.amnesiaChance)
	}
	finalData, err := encodeEntry(entry, rl.compressionEnabled)
	if err != nil {
		return err
	}
	client := rl.pickClient(key, true)
	startMarker := rl.watcher.Start()
	setError := client.Set(ctx, key, finalData, rl.retention).Err()
	if setError != nil {
		rl.watcher.Done(startMarker, rl.layerName, "set", "error")
	} else {
		rl.watcher.Done(startMarker, rl.layerName, "set", "ok")
	}
	return setError
}

// Close closes every client of every shard.
func (rl *RedisLayer) Close() error {
	var errs []error
	for _, cl := range rl.baseClients {
		errs = append(errs, cl.master.Close())
		for _, slv := range cl.slaves {
			errs = append(errs, slv.Close())
		}
	}
	return errors.Join(errs...)
}

func (rl *RedisLayer) pickClient(key string, modification bool) *redis.Client {
	shard := rl.baseClients[rl.shardKey(key)]
	if modification || len(shard.slaves) == 0 {
		return shard.master
	}
	return shard.slaves[rand.IntN(len(shard.slaves))]
}

func (rl *RedisLayer) shardKey(key string) int {
	shards := len(rl.baseClients)
	if shards == 1 {
		return 0
	}
	return int(xxhash.Sum64String(key) % uint64(shards))
}
