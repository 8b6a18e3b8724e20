package cache

import (
	"errors"
	"fmt"
)

var (
	ErrNilEntry       = errors.New("nil entry found in cache")
	ErrNotFound       = errors.New("not found in layer")
	ErrAmnesia        = errors.New("layer had amnesia")
	ErrInvalidConfig  = errors.New("invalid cache configuration")
	ErrNoLayers       = errors.New("cache needs at least one layer")
	ErrInvalidPayload = errors.New("upstream payload is not valid JSON")
)

func newAmnesiaError(chance int) error {
	return fmt.Errorf("%w (chance %d%%)", ErrAmnesia, chance)
}
