// File: internal/mailbox/cache.go
package mailbox

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	homedir "github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
)

const defaultCacheFile = ".enroll-cli/sessions.json"

// Cache persists session records as a single JSON object keyed by session id.
// Writes go through a temp file and rename so a crash mid-write never leaves
// a truncated cache behind. The zero file (absent or empty) reads as an empty
// cache.
type Cache struct {
	mu   sync.Mutex
	path string
	log  *zap.Logger
}

// NewCache opens a session cache at path. An empty path selects the default
// location under the user's home directory.
func NewCache(path string, logger *zap.Logger) (*Cache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path == "" {
		home, err := homedir.Dir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory for session cache: %w", err)
		}
		path = filepath.Join(home, defaultCacheFile)
	}
	return &Cache{path: path, log: logger.Named("session-cache")}, nil
}

// Path returns the cache file location.
func (c *Cache) Path() string { return c.path }

// Get looks up a record by session id.
func (c *Cache) Get(sessionID string) (*SessionRecord, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	records, err := c.load()
	if err != nil {
		return nil, false, err
	}
	rec, ok := records[sessionID]
	return rec, ok, nil
}

// Put inserts or replaces the record for its session id.
func (c *Cache) Put(rec *SessionRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	records, err := c.load()
	if err != nil {
		return err
	}
	records[rec.SessionID] = rec
	return c.save(records)
}

// Remove deletes the record for sessionID. Removing an absent id is a no-op.
func (c *Cache) Remove(sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	records, err := c.load()
	if err != nil {
		return err
	}
	if _, ok := records[sessionID]; !ok {
		return nil
	}
	delete(records, sessionID)
	return c.save(records)
}

// List returns all cached records, newest first.
func (c *Cache) List() ([]*SessionRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	records, err := c.load()
	if err != nil {
		return nil, err
	}
	out := make([]*SessionRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// PurgeExpired removes every record whose expiry predates now and returns the
// number removed.
func (c *Cache) PurgeExpired(now time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	records, err := c.load()
	if err != nil {
		return 0, err
	}
	removed := 0
	for id, rec := range records {
		if rec.Expired(now) {
			delete(records, id)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, c.save(records)
}

func (c *Cache) load() (map[string]*SessionRecord, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*SessionRecord{}, nil
		}
		return nil, fmt.Errorf("reading session cache %s: %w", c.path, err)
	}
	if len(data) == 0 {
		return map[string]*SessionRecord{}, nil
	}
	records := map[string]*SessionRecord{}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing session cache %s: %w", c.path, err)
	}
	return records, nil
}

func (c *Cache) save(records map[string]*SessionRecord) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("creating session cache directory: %w", err)
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session cache: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".sessions-*.json")
	if err != nil {
		return fmt.Errorf("creating session cache temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing session cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing session cache temp file: %w", err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing session cache: %w", err)
	}
	return nil
}
