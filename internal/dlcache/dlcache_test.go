package dlcache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestCache(t *testing.T, maxSize int64) *Cache {
	t.Helper()
	c, err := New(filepath.Join(t.TempDir(), "cache"), maxSize)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func put(t *testing.T, c *Cache, key, content string) string {
	t.Helper()
	p, err := c.Put(key, strings.NewReader(content), int64(len(content)))
	if err != nil {
		t.Fatalf("Put(%q): %v", key, err)
	}
	return p
}

func TestPutGet(t *testing.T) {
	c := newTestCache(t, 1<<20)

	local := put(t, c, "H/docs/essay.docx", "hello")

	got, ok := c.Get("H/docs/essay.docx")
	if !ok || got != local {
		t.Fatalf("Get = %q, %v; want %q", got, ok, local)
	}

	data, err := os.ReadFile(got)
	if err != nil {
		t.Fatalf("read cached file: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("content = %q", data)
	}
	if filepath.Ext(got) != ".docx" {
		t.Errorf("local name %q should keep the extension", got)
	}
}

func TestGetMiss(t *testing.T) {
	c := newTestCache(t, 1<<20)
	if _, ok := c.Get("H/missing.txt"); ok {
		t.Error("miss reported as hit")
	}
}

func TestPutReplacesSameKey(t *testing.T) {
	c := newTestCache(t, 1<<20)

	first := put(t, c, "H/a.txt", "one")
	second := put(t, c, "H/a.txt", "twotwo")

	if _, err := os.Stat(first); !os.IsNotExist(err) {
		t.Errorf("old file should be removed, stat err = %v", err)
	}
	size, _, count := c.Stats()
	if count != 1 || size != 6 {
		t.Errorf("stats = %d bytes, %d entries", size, count)
	}
	if got, _ := c.Get("H/a.txt"); got != second {
		t.Errorf("Get = %q, want %q", got, second)
	}
}

func TestLRUEviction(t *testing.T) {
	c := newTestCache(t, 10)

	put(t, c, "H/a.txt", "aaaa")
	time.Sleep(2 * time.Millisecond)
	put(t, c, "H/b.txt", "bbbb")
	time.Sleep(2 * time.Millisecond)

	// Touch a so b becomes the eviction candidate.
	c.Get("H/a.txt")

	put(t, c, "H/c.txt", "cccc")

	if _, ok := c.Get("H/b.txt"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.Get("H/a.txt"); !ok {
		t.Error("a should survive")
	}
	if _, ok := c.Get("H/c.txt"); !ok {
		t.Error("c should be cached")
	}
}

func TestEvict(t *testing.T) {
	c := newTestCache(t, 1<<20)

	local := put(t, c, "H/a.txt", "data")
	c.Evict("H/a.txt")

	if _, ok := c.Get("H/a.txt"); ok {
		t.Error("entry still present after Evict")
	}
	if _, err := os.Stat(local); !os.IsNotExist(err) {
		t.Errorf("file should be gone, stat err = %v", err)
	}
	// Evicting again is a no-op.
	c.Evict("H/a.txt")
}

func TestClear(t *testing.T) {
	c := newTestCache(t, 1<<20)

	put(t, c, "H/a.txt", "a")
	put(t, c, "H/b.txt", "b")

	if n := c.Clear(); n != 2 {
		t.Errorf("Clear = %d", n)
	}
	size, _, count := c.Stats()
	if size != 0 || count != 0 {
		t.Errorf("stats after clear = %d bytes, %d entries", size, count)
	}
}

func TestAdopt(t *testing.T) {
	c := newTestCache(t, 1<<20)

	tmp := filepath.Join(t.TempDir(), "download.bin")
	if err := os.WriteFile(tmp, []byte("payload"), 0600); err != nil {
		t.Fatal(err)
	}

	local, err := c.Adopt("H/download.bin", tmp)
	if err != nil {
		t.Fatalf("Adopt: %v", err)
	}
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Errorf("source file should be removed, stat err = %v", err)
	}
	data, err := os.ReadFile(local)
	if err != nil || string(data) != "payload" {
		t.Errorf("cached content = %q, err = %v", data, err)
	}
}
