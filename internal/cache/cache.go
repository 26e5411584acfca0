// Package cache is a small file cache keyed by BLAKE3 digests of the key.
package cache

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
)

// Cache stores one JSON entry file per key.
type Cache struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

// Entry is the on-disk envelope of a cached value.
type Entry struct {
	Key       string          `json:"key"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// New creates a cache in dir. A zero ttl means entries never expire.
func New(dir string, ttl time.Duration) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir, ttl: ttl, now: time.Now}, nil
}

// HashBytes computes a BLAKE3 hash of bytes and returns it as a hex string.
func HashBytes(data []byte) string {
	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Get returns the raw value stored for key if present and fresh.
func (c *Cache) Get(key string) ([]byte, bool) {
	path := c.keyPath(key)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Key != key {
		return nil, false
	}

	if c.ttl > 0 && c.now().Sub(entry.Timestamp) > c.ttl {
		os.Remove(path)
		return nil, false
	}
	return entry.Data, true
}

// GetJSON decodes the value stored for key into v. It reports false on a miss.
func (c *Cache) GetJSON(key string, v any) (bool, error) {
	data, ok := c.Get(key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

// Set stores a JSON value for key.
func (c *Cache) Set(key string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("cache %s: value is not JSON", key)
	}
	entryData, err := json.MarshalIndent(Entry{Key: key, Timestamp: c.now(), Data: data}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.keyPath(key), entryData, 0o600)
}

// SetJSON encodes v and stores it for key.
func (c *Cache) SetJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(key, data)
}

// Invalidate removes a cache entry. Removing a missing entry is not an error.
func (c *Cache) Invalidate(key string) error {
	err := os.Remove(c.keyPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Clear removes all cache entries. The directory stays usable.
func (c *Cache) Clear() error {
	entries, err := filepath.Glob(filepath.Join(c.dir, "*.json"))
	if err != nil {
		return err
	}
	for _, path := range entries {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// keyPath hashes the key so any string maps to a safe filename.
func (c *Cache) keyPath(key string) string {
	return filepath.Join(c.dir, HashBytes([]byte(key))+".json")
}

// Stats summarizes the cache contents.
type Stats struct {
	Entries   int           `json:"entries"`
	TotalSize int64         `json:"total_size"`
	OldestAge time.Duration `json:"oldest_age"`
	NewestAge time.Duration `json:"newest_age"`
}

// GetStats walks the cache directory.
func (c *Cache) GetStats() (*Stats, error) {
	stats := &Stats{}
	var oldest, newest time.Time

	err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}

		stats.Entries++
		stats.TotalSize += info.Size()

		modTime := info.ModTime()
		if oldest.IsZero() || modTime.Before(oldest) {
			oldest = modTime
		}
		if newest.IsZero() || modTime.After(newest) {
			newest = modTime
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !oldest.IsZero() {
		stats.OldestAge = c.now().Sub(oldest)
	}
	if !newest.IsZero() {
		stats.NewestAge = c.now().Sub(newest)
	}
	return stats, nil
}
