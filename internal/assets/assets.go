// Package assets resolves source asset paths against the file system and
// GRF archives.
package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Faultbox/geomc/pkg/encoding"
	"github.com/Faultbox/geomc/pkg/grf"
)

// ErrNotFound is returned when no location holds an asset.
var ErrNotFound = errors.New("asset not found")

// Source reads assets from disk, falling back to GRF archives. Archives are
// searched in reverse order (last added = highest priority). A Source is
// safe for concurrent use.
type Source struct {
	log      *zap.Logger
	archives []*grf.Archive
	cache    *Cache
	mu       sync.RWMutex
}

// NewSource creates a source with no archives.
func NewSource(log *zap.Logger) *Source {
	if log == nil {
		log = zap.NewNop()
	}
	return &Source{
		log:   log,
		cache: NewCache(),
	}
}

// Open creates a source over the given archives.
func Open(log *zap.Logger, archives ...string) (*Source, error) {
	s := NewSource(log)
	for _, path := range archives {
		if err := s.AddArchive(path); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// AddArchive adds a GRF archive to the source.
func (s *Source) AddArchive(path string) error {
	archive, err := grf.Open(path)
	if err != nil {
		return fmt.Errorf("opening archive %s: %w", path, err)
	}

	s.mu.Lock()
	s.archives = append(s.archives, archive)
	s.mu.Unlock()

	s.log.Debug("archive added", zap.String("path", path), zap.Int("files", len(archive.List())))
	return nil
}

// Read returns the asset at path. Files on disk win over archive entries.
func (s *Source) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	key := encoding.NormalizePath(path)
	if data, ok := s.cache.Get(key); ok {
		return data, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.archives) - 1; i >= 0; i-- {
		data, err := s.archives[i].Read(key)
		if errors.Is(err, grf.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		s.log.Debug("read from archive", zap.String("path", key), zap.Int("archive", i))
		s.cache.Set(key, data)
		return data, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
}

// Cache returns the archive read cache.
func (s *Source) Cache() *Cache {
	return s.cache
}

// Close closes all archives.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, archive := range s.archives {
		errs = append(errs, archive.Close())
	}
	s.archives = nil
	s.cache.Clear()
	return errors.Join(errs...)
}

// Cache is a simple in-memory cache for archive reads.
type Cache struct {
	data map[string][]byte
	mu   sync.RWMutex

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCache creates a new cache.
func NewCache() *Cache {
	return &Cache{
		data: make(map[string][]byte),
	}
}

// Get retrieves an item from cache.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	data, ok := c.data[key]
	c.mu.RUnlock()

	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return data, ok
}

// Set stores an item in cache.
func (c *Cache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = data
}

// Clear clears the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string][]byte)
	c.hits.Store(0)
	c.misses.Store(0)
}

// Stats returns cache statistics.
func (c *Cache) Stats() (hits, misses int) {
	return int(c.hits.Load()), int(c.misses.Load())
}
