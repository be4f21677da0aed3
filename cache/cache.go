// Package cache stores the encoded derivatives, in memory and on disk.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrCacheMiss is returned by the tiers for unknown keys.
var ErrCacheMiss = errors.New("cache miss")

// Cache is one tier of the tile cache.
type Cache interface {
	Get(key string) ([]byte, error)
	Set(key string, body []byte) error
}

// Key derives the cache key of a derivative. The identifier keeps its page
// selector so each page gets its own entries.
func Key(identifier, params string) string {
	h := sha256.New()
	h.Write([]byte(identifier))
	// separator, "a1"+"0,0,1,1" must not collide with "a"+"10,0,1,1"
	h.Write([]byte{0})
	h.Write([]byte(params))
	return hex.EncodeToString(h.Sum(nil))
}
