package cache

import (
	"context"
	"sync"
)

// TinyLayer keeps entries in process memory for the lifetime of the process.
type TinyLayer struct {
	baseLayer
	base *sync.Map
}

func NewTinyLayer(opts *LayerOpts) *TinyLayer {
	return &TinyLayer{
		baseLayer: newBaseLayer(opts),
		base:      &sync.Map{},
	}
}

func (tl *TinyLayer) Get(ctx context.Context, key string) (*Entry, error) {
	if tl.forgets() {
		return nil, newAmnesiaError(tl.amnesiaChance)
	}
	val, ok := tl.base.Load(key)
	if !ok {
		return nil, ErrNotFound
	}
	rawBytes, ok := val.([]byte)
	if !ok {
		return nil, ErrNotFound
	}
	return decodeEntry(rawBytes, tl.compressionEnabled)
}

func (tl *TinyLayer) Set(ctx context.Context, key string, entry *Entry) error {
	finalData, err := encodeEntry(entry, tl.compressionEnabled)
	if err != nil {
		return err
	}
	tl.base.Store(key, finalData)
	return nil
}
