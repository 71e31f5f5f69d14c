// Package tilecache implements the optional content-addressed filesystem
// cache of §3/§4.4: one file per tile URL, keyed by a deterministic
// sanitised hash, write-once, with atomic ".tmp"-then-rename writes so a
// killed process never leaves a corrupt cache entry (§5, "per-file
// atomicity").
package tilecache

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jzelinskie/whirlpool"
)

// Cache implements model.TileCache.
type Cache struct {
	dir string
}

func New(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create tile cache dir: %w", err)
	}
	return &Cache{dir: dir}, nil
}

// keyFor hashes the full tile URL with Whirlpool (already a direct
// dependency of the corpus for content hashing) so the resulting filename
// is a fixed-length, filesystem-safe hex string regardless of how long or
// how strange the source URL is.
func keyFor(url string) string {
	h := whirlpool.New()
	h.Write([]byte(url))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) pathFor(url string) string {
	return filepath.Join(c.dir, keyFor(url))
}

// Get reads a cached tile body. ok is false on a cache miss; a real read
// error is reported through err.
func (c *Cache) Get(url string) ([]byte, bool, error) {
	body, err := os.ReadFile(c.pathFor(url))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return body, true, nil
}

// Put writes body through a ".tmp" staging file and renames it into place,
// so a crash mid-write never leaves a half-written cache entry visible to a
// concurrent Get.
func (c *Cache) Put(url string, body []byte) error {
	final := c.pathFor(url)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, body, 0644); err != nil {
		return fmt.Errorf("write tile cache entry: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("finalize tile cache entry: %w", err)
	}
	return nil
}
