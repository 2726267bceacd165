package tfl

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Cache is a content-addressed store for provider responses. Entries are
// keyed by the SHA-256 of the request URL (credentials stripped) and written
// atomically, so readers always see complete snapshots and warm rebuilds are
// deterministic.
type Cache struct {
	dir   string
	clock clockwork.Clock

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

type cacheEntry struct {
	URL          string          `json:"url"`
	CalculatedAt time.Time       `json:"calculated_at"`
	Body         json.RawMessage `json:"body"`
}

// NewCache opens (creating if needed) a cache directory.
func NewCache(dir string, clock clockwork.Clock) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Cache{dir: dir, clock: clock, locks: make(map[string]*sync.Mutex)}, nil
}

// CacheKey returns the content address for a URL.
func CacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

func (c *Cache) keyLock(key string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[key]
	if !ok {
		l = &sync.Mutex{}
		c.locks[key] = l
	}
	return l
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key+".json")
}

// Get returns the cached body for the URL, or false on a miss.
func (c *Cache) Get(url string) ([]byte, bool) {
	key := CacheKey(url)
	l := c.keyLock(key)
	l.Lock()
	defer l.Unlock()

	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return nil, false
	}
	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false
	}
	return entry.Body, true
}

// Put stores the body for the URL. Write-to-temp then rename keeps partially
// written files invisible to readers.
func (c *Cache) Put(url string, body []byte) error {
	if !json.Valid(body) {
		return fmt.Errorf("refusing to cache invalid JSON for %s", url)
	}
	key := CacheKey(url)
	l := c.keyLock(key)
	l.Lock()
	defer l.Unlock()

	entry := cacheEntry{
		URL:          url,
		CalculatedAt: c.clock.Now().UTC(),
		Body:         json.RawMessage(body),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, key+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing cache file: %w", err)
	}
	if err := os.Rename(tmpName, c.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("publishing cache entry: %w", err)
	}
	return nil
}
