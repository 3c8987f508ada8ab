package modcache

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testKey() Key {
	return KeyFor([]byte("module bytes"), "interpreter-linux-amd64-v1", 1)
}

func TestKeyForIsContentAddressed(t *testing.T) {
	a := KeyFor([]byte("one"), "e", 1)
	b := KeyFor([]byte("one"), "e", 1)
	c := KeyFor([]byte("two"), "e", 1)
	require.Equal(t, a, b)
	require.NotEqual(t, a.ContentHash, c.ContentHash)
	require.NotEqual(t, a.String(), Key{ContentHash: a.ContentHash, EngineID: "e", ArtifactVersion: 2}.String())
}

func TestFileCacheRoundTrip(t *testing.T) {
	c, err := NewFileCache(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	key := testKey()

	_, ok, err := c.Load(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = c.Contains(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)

	payload := []byte("serialized artifact")
	require.NoError(t, c.Save(ctx, key, payload))

	got, ok, err := c.Load(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, payload, got)

	ok, err = c.Contains(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestFileCacheDeletesCorruptEntries(t *testing.T) {
	dir := t.TempDir()
	c, err := NewFileCache(dir)
	require.NoError(t, err)
	ctx := context.Background()
	key := testKey()

	require.NoError(t, c.Save(ctx, key, []byte("data")))

	// Scribble over the stored file so decompression fails.
	p := filepath.Join(dir, key.String()+".bin")
	require.NoError(t, os.WriteFile(p, []byte("not zstd"), 0o644))

	_, ok, err := c.Load(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = os.Stat(p)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestFileCacheRemove(t *testing.T) {
	c, err := NewFileCache(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	key := testKey()

	require.NoError(t, c.Remove(key)) // absent is fine
	require.NoError(t, c.Save(ctx, key, []byte("x")))
	require.NoError(t, c.Remove(key))
	ok, err := c.Contains(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)
}

// countingCache tracks inner loads so the LRU front's short-circuit is
// observable.
type countingCache struct {
	inner Cache
	loads atomic.Int32
}

func (c *countingCache) Load(ctx context.Context, key Key) ([]byte, bool, error) {
	c.loads.Add(1)
	return c.inner.Load(ctx, key)
}
func (c *countingCache) Save(ctx context.Context, key Key, data []byte) error {
	return c.inner.Save(ctx, key, data)
}
func (c *countingCache) Contains(ctx context.Context, key Key) (bool, error) {
	return c.inner.Contains(ctx, key)
}

func TestLRUFrontAvoidsInnerLoads(t *testing.T) {
	fc, err := NewFileCache(t.TempDir())
	require.NoError(t, err)
	counting := &countingCache{inner: fc}
	front, err := NewLRUFront(counting, 4)
	require.NoError(t, err)

	ctx := context.Background()
	key := testKey()
	require.NoError(t, front.Save(ctx, key, []byte("artifact")))

	for i := 0; i < 3; i++ {
		got, ok, err := front.Load(ctx, key)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []byte("artifact"), got)
	}
	require.Equal(t, int32(0), counting.loads.Load())

	ok, err := front.Contains(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCompileGroupCollapsesConcurrentWork(t *testing.T) {
	var g CompileGroup
	var runs atomic.Int32
	release := make(chan struct{})

	var wg, ready sync.WaitGroup
	results := make([]any, 8)
	for i := range results {
		i := i
		wg.Add(1)
		ready.Add(1)
		go func() {
			defer wg.Done()
			ready.Done()
			v, err := g.Do(testKey(), func() (any, error) {
				runs.Add(1)
				<-release
				return "compiled", nil
			})
			require.NoError(t, err)
			results[i] = v
		}()
	}

	// Release the one in-flight compile only after every goroutine has had
	// a chance to join it.
	ready.Wait()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), runs.Load())
	for _, v := range results {
		require.Equal(t, "compiled", v)
	}
}
