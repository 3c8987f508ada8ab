package modcache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRUFront layers a bounded in-memory cache over a slower inner Cache, so
// a long-lived engine re-loading the same modules skips the filesystem and
// decompression entirely while staying bounded in memory.
type LRUFront struct {
	inner Cache
	mem   *lru.Cache[Key, []byte]
}

// NewLRUFront wraps inner with an in-memory front holding up to size
// entries.
func NewLRUFront(inner Cache, size int) (*LRUFront, error) {
	mem, err := lru.New[Key, []byte](size)
	if err != nil {
		return nil, err
	}
	return &LRUFront{inner: inner, mem: mem}, nil
}

func (c *LRUFront) Load(ctx context.Context, key Key) ([]byte, bool, error) {
	if data, ok := c.mem.Get(key); ok {
		return data, true, nil
	}
	data, ok, err := c.inner.Load(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	c.mem.Add(key, data)
	return data, true, nil
}

func (c *LRUFront) Save(ctx context.Context, key Key, data []byte) error {
	if err := c.inner.Save(ctx, key, data); err != nil {
		return err
	}
	c.mem.Add(key, data)
	return nil
}

func (c *LRUFront) Contains(ctx context.Context, key Key) (bool, error) {
	if c.mem.Contains(key) {
		return true, nil
	}
	return c.inner.Contains(ctx, key)
}
