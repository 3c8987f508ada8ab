package modcache

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// FileCache persists artifacts under dir, one file per key at
// <engine-id>-v<version>/<content-hash>.bin, zstd-compressed. Writes go to
// a temp file in the same directory and rename into place, so a concurrent
// reader only ever sees absent or complete entries. Entries that fail to
// decompress are deleted and reported as absent.
type FileCache struct {
	dir string

	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewFileCache opens (creating if needed) a filesystem cache rooted at dir.
func NewFileCache(dir string) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &FileCache{dir: dir, enc: enc, dec: dec}, nil
}

func (c *FileCache) path(key Key) string {
	return filepath.Join(c.dir, key.String()+".bin")
}

// Load reads and decompresses the entry for key. A missing entry is
// (nil, false, nil); a corrupt entry is deleted and reported the same way.
func (c *FileCache) Load(ctx context.Context, key Key) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	p := c.path(key)
	compressed, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	data, err := c.dec.DecodeAll(compressed, nil)
	if err != nil {
		log.WithField("path", p).WithField("error", err).Warn("deleting corrupt cache entry")
		_ = os.Remove(p)
		return nil, false, nil
	}
	return data, true, nil
}

// Save compresses and writes the entry for key, creating the key's parent
// directory on demand.
func (c *FileCache) Save(ctx context.Context, key Key, data []byte) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := c.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), "*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(c.enc.EncodeAll(data, nil)); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p)
}

// Contains reports whether an entry exists for key without reading it.
func (c *FileCache) Contains(ctx context.Context, key Key) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(c.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Remove deletes the entry for key if present.
func (c *FileCache) Remove(key Key) error {
	err := os.Remove(c.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
