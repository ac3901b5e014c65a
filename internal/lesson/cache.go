package lesson

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrCacheMiss reports that no usable cache exists at the configured path.
// A corrupt or empty cache file is a miss, not a hard failure.
var ErrCacheMiss = errors.New("lesson cache miss")

// Cache persists the ordered lesson sequence as a JSON array. It is read
// once at run start and written once at run end; the tool assumes
// single-instance invocation, so no file locking is done.
type Cache struct {
	path string
}

// NewCache creates a cache backed by the given file path.
func NewCache(path string) *Cache {
	return &Cache{path: path}
}

// Path returns the backing file location.
func (c *Cache) Path() string { return c.path }

// Load reads the cached lesson sequence. Missing, unreadable, invalid, or
// empty files all surface as ErrCacheMiss wrapping the underlying cause so
// callers can log it and fall through to fresh extraction.
func (c *Cache) Load() ([]Record, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrCacheMiss, c.path, err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrCacheMiss, c.path, err)
	}
	if len(records) == 0 {
		return nil, ErrCacheMiss
	}
	return records, nil
}

// Save writes the lesson sequence, replacing any previous content. A nil
// sequence is written as an empty array so the file always exists after a
// run, even one that captured nothing.
func (c *Cache) Save(records []Record) error {
	if records == nil {
		records = []Record{}
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("lesson cache: mkdir: %w", err)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("lesson cache: marshal: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("lesson cache: write %s: %w", c.path, err)
	}
	return nil
}
