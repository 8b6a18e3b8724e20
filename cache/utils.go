package cache

import "strings"

// MakeKey joins key parts into a single resource key.
func MakeKey(keys ...string) string {
	return strings.Join(keys, ";")
}
