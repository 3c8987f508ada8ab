// Package modcache caches serialized module artifacts across engine
// instances: a Cache interface the embedder can implement, a filesystem
// implementation that survives process restarts, a bounded in-memory front,
// and a compile-once guard that collapses concurrent compilations of the
// same bytes.
package modcache

import (
	"context"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"

	"github.com/wasmforge/wasmforge/internal/obs"
)

var log = obs.For("modcache")

// Key identifies one cached artifact. Two engines share an entry only if
// their deterministic ids and artifact format versions both match.
type Key struct {
	ContentHash     uint64
	EngineID        string
	ArtifactVersion uint32
}

// KeyFor derives the cache key for a module binary under one engine.
func KeyFor(bin []byte, engineID string, artifactVersion uint32) Key {
	return Key{ContentHash: xxhash.Sum64(bin), EngineID: engineID, ArtifactVersion: artifactVersion}
}

func (k Key) String() string {
	return fmt.Sprintf("%s-v%d/%016x", k.EngineID, k.ArtifactVersion, k.ContentHash)
}

// Cache stores serialized artifacts. Implementations must tolerate
// concurrent use and treat corrupt entries as absent (deleting them where
// possible) rather than surfacing them to the caller.
type Cache interface {
	Load(ctx context.Context, key Key) (data []byte, ok bool, err error)
	Save(ctx context.Context, key Key, data []byte) error
	Contains(ctx context.Context, key Key) (bool, error)
}

// CompileGroup collapses concurrent compilations of the same key onto one
// execution; every waiter receives the same result.
type CompileGroup struct {
	sf singleflight.Group
}

// Do runs compile for key unless an identical compilation is already in
// flight, in which case it waits for and shares that result.
func (g *CompileGroup) Do(key Key, compile func() (any, error)) (any, error) {
	v, err, shared := g.sf.Do(key.String(), compile)
	if shared {
		log.WithField("key", key.String()).Debug("shared in-flight compilation")
	}
	return v, err
}
