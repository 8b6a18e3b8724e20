package cache

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// NewFromConfig builds a Cache from the viper tree under prefix:
//
//	cache:
//	  layers: [local, shared]
//	  local:
//	    type: tiny
//	  shared:
//	    type: redis
//	    address: localhost:6379
//	    retention: 24h
//
// Supported layer types are tiny, memory and redis. A redis layer takes either a single
// address (plus optional slaves) or a list of shards.
func NewFromConfig(ctx context.Context, config *viper.Viper, prefix string, watcher ITimer, opts ...Option) (*Cache, error) {
	layerNames := config.GetStringSlice(prefix + ".layers")
	if len(layerNames) == 0 {
		layerNames = []string{"local"}
	}
	layers := make([]Layer, 0, len(layerNames))
	for _, layerName := range layerNames {
		layer, err := newLayerFromConfig(ctx, config, prefix+"."+layerName, layerName, watcher)
		if err != nil {
			closeLayers(layers)
			return nil, err
		}
		layers = append(layers, layer)
	}
	return New(prefix, layers, opts...)
}

func newLayerFromConfig(ctx context.Context, config *viper.Viper, keyPrefix, layerName string, watcher ITimer) (Layer, error) {
	opts := &LayerOpts{
		Name:        layerName,
		Amnesia:     config.GetInt(keyPrefix + ".amnesia"),
		Compression: config.GetBool(keyPrefix + ".compression"),
		Retention:   config.GetDuration(keyPrefix + ".retention"),
		MaxMemory:   config.GetInt(keyPrefix + ".max-memory"),
	}
	if opts.Amnesia < 0 || opts.Amnesia > 100 {
		return nil, fmt.Errorf("%w: %s.amnesia must be between 0 and 100", ErrInvalidConfig, keyPrefix)
	}
	layerType := config.GetString(keyPrefix + ".type")
	switch layerType {
	case "", "tiny":
		return NewTinyLayer(opts), nil
	case "memory":
		return NewMemoryLayer(ctx, opts, watcher)
	case "redis":
		opts.Redis = RedisOpts{
			DB:          config.GetInt(keyPrefix + ".db"),
			IdleTimeout: config.GetDuration(keyPrefix + ".idle-timeout"),
		}
		if config.IsSet(keyPrefix + ".shards") {
			if err := config.UnmarshalKey(keyPrefix+".shards", &opts.Redis.Shards); err != nil {
				return nil, fmt.Errorf("%w: %s.shards: %v", ErrInvalidConfig, keyPrefix, err)
			}
		} else if addr := config.GetString(keyPrefix + ".address"); addr != "" {
			opts.Redis.Shards = []*RedisShardAddress{{
				MasterAddr: addr,
				SlaveAddrs: config.GetStringSlice(keyPrefix + ".slaves"),
			}}
		}
		return NewRedisLayer(ctx, opts, watcher)
	default:
		return nil, fmt.Errorf("%w: unknown layer type %q for %s", ErrInvalidConfig, layerType, layerName)
	}
}

// Close releases every layer holding resources.
func (c *Cache) Close() error {
	return closeLayers(c.layers)
}

func closeLayers(layers []Layer) error {
	var errs []error
	for _, layer := range layers {
		if closer, ok := layer.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				logrus.WithError(err).WithField("layer", layer.Name()).Error("failed to close cache layer")
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
