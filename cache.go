package wasmforge

import (
	"context"

	"github.com/wasmforge/wasmforge/internal/modcache"
)

// Cache persists compiled artifacts across runtimes (and, for the
// filesystem variant, across processes). A Cache is safe to share between
// runtimes with the same configuration; entries are keyed by content hash,
// backend identity and artifact version, so mismatched engines never
// exchange artifacts.
type Cache interface {
	backing() modcache.Cache
}

type memCache struct{ c modcache.Cache }

func (m *memCache) backing() modcache.Cache { return m.c }

// NewCache returns an in-process cache with no persistence.
func NewCache() Cache {
	front, err := modcache.NewLRUFront(discardCache{}, 256)
	if err != nil {
		// Only reachable with a non-positive size constant, which is a
		// programming error in this package, not the embedder's input.
		panic(err)
	}
	return &memCache{c: front}
}

// NewFileCache returns a cache persisting serialized artifacts under dir,
// creating it if needed. Corrupt entries are deleted on load rather than
// surfaced.
func NewFileCache(dir string) (Cache, error) {
	fc, err := modcache.NewFileCache(dir)
	if err != nil {
		return nil, err
	}
	front, err := modcache.NewLRUFront(fc, 256)
	if err != nil {
		return nil, err
	}
	return &memCache{c: front}, nil
}

// discardCache backs the pure in-memory Cache: the LRU front holds the
// entries, and misses past it are simply misses.
type discardCache struct{}

func (discardCache) Load(context.Context, modcache.Key) ([]byte, bool, error) { return nil, false, nil }
func (discardCache) Save(context.Context, modcache.Key, []byte) error         { return nil }
func (discardCache) Contains(context.Context, modcache.Key) (bool, error)     { return false, nil }
