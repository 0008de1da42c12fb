// Package dlcache keeps downloaded file content on local disk, keyed by the
// remote path it came from. The cache is size-bounded; least-recently-used
// entries are evicted to make room.
package dlcache

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haplink/haplink/internal/logging"
)

type entry struct {
	key        string
	localPath  string
	size       int64
	lastAccess time.Time
}

// Cache manages locally cached downloads.
type Cache struct {
	dir     string
	maxSize int64

	mu      sync.Mutex
	entries map[string]*entry
	size    int64
}

// New creates a cache rooted at dir, creating the directory if needed.
func New(dir string, maxSize int64) (*Cache, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{
		dir:     dir,
		maxSize: maxSize,
		entries: make(map[string]*entry),
	}, nil
}

// Get returns the local path for a cached remote path.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	e.lastAccess = time.Now()
	return e.localPath, true
}

// Put stores content for a remote path and returns the local path. Content is
// written atomically (temp file then rename). A previous entry for the same
// key is replaced.
func (c *Cache) Put(key string, r io.Reader, size int64) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		os.Remove(old.localPath)
		c.size -= old.size
		delete(c.entries, key)
	}

	for c.size+size > c.maxSize {
		if !c.evictOldest() {
			break
		}
	}

	// Local names are opaque; the key keeps its meaning in the index only.
	localPath := filepath.Join(c.dir, uuid.NewString()+filepath.Ext(key))
	tempPath := localPath + ".tmp"

	f, err := os.Create(tempPath)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	written, err := io.Copy(f, r)
	f.Close()
	if err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("write content: %w", err)
	}

	if err := os.Rename(tempPath, localPath); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("rename temp file: %w", err)
	}

	c.entries[key] = &entry{
		key:        key,
		localPath:  localPath,
		size:       written,
		lastAccess: time.Now(),
	}
	c.size += written

	return localPath, nil
}

// Adopt moves an already-downloaded file into the cache and returns its new
// local path.
func (c *Cache) Adopt(key, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}

	localPath, err := c.Put(key, f, info.Size())
	if err != nil {
		return "", err
	}
	if err := os.Remove(path); err != nil {
		logging.Warn("remove adopted file", logging.Err(err))
	}
	return localPath, nil
}

// Evict removes one entry from the cache.
func (c *Cache) Evict(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return
	}
	os.Remove(e.localPath)
	c.size -= e.size
	delete(c.entries, key)
}

// Clear removes all entries and returns how many were dropped.
func (c *Cache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for key, e := range c.entries {
		os.Remove(e.localPath)
		c.size -= e.size
		delete(c.entries, key)
		count++
	}
	return count
}

// Stats returns current size, capacity, and entry count.
func (c *Cache) Stats() (size, maxSize int64, count int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size, c.maxSize, len(c.entries)
}

// evictOldest removes the least recently used entry. Lock must be held.
func (c *Cache) evictOldest() bool {
	var oldest *entry
	for _, e := range c.entries {
		if oldest == nil || e.lastAccess.Before(oldest.lastAccess) {
			oldest = e
		}
	}
	if oldest == nil {
		return false
	}
	os.Remove(oldest.localPath)
	c.size -= oldest.size
	delete(c.entries, oldest.key)
	return true
}
