// Package versioncache implements the on-disk dependency version cache of
// spec.md §6.6: a JSON file recording selected SemVer tags so builds stay
// reproducible across invocations. Structured like a mutex-guarded
// in-memory state map with JSON marshal/unmarshal and MkdirAll-then-WriteFile
// save, adapted to run against afero so tests don't touch the real filesystem.
package versioncache

import (
	"encoding/json"
	"path/filepath"
	"sort"
	"sync"

	"github.com/osdeverr/rebs/internal/errs"
	"github.com/osdeverr/rebs/internal/semverselect"
	"github.com/spf13/afero"
)

// FileName is the on-disk name of the version cache.
const FileName = "re-version-cache.json"

// Store is a file-backed key->tag map, keyed the same way as
// semverselect.CacheKey ("ns:name<kind><version>").
type Store struct {
	mu       sync.Mutex
	fs       afero.Fs
	path     string
	entries  map[string]string
}

// NewStore creates a Store rooted at dir/re-version-cache.json.
func NewStore(fs afero.Fs, dir string) *Store {
	return &Store{fs: fs, path: filepath.Join(dir, FileName), entries: make(map[string]string)}
}

// Load reads the cache file, if present. A missing file is not an error —
// the store simply starts empty.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := afero.Exists(s.fs, s.path)
	if err != nil {
		return errs.LoadWrap("", err, "failed to stat version cache %s", s.path)
	}
	if !exists {
		return nil
	}

	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return errs.LoadWrap("", err, "failed to read version cache %s", s.path)
	}

	var entries map[string]string
	if err := json.Unmarshal(data, &entries); err != nil {
		return errs.LoadWrap("", err, "failed to parse version cache %s", s.path)
	}
	s.entries = entries
	return nil
}

// Save writes the cache file, creating its parent directory if needed.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errs.LoadWrap("", err, "failed to create version cache directory")
	}

	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return errs.LoadWrap("", err, "failed to marshal version cache")
	}

	if err := afero.WriteFile(s.fs, s.path, data, 0o644); err != nil {
		return errs.LoadWrap("", err, "failed to write version cache %s", s.path)
	}
	return nil
}

// Get returns the cached tag for key, if any.
func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.entries[key]
	return v, ok
}

// Set records the tag chosen for key.
func (s *Store) Set(key, tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = tag
}

// Keys returns the cache's keys in sorted order, for stable iteration and
// deterministic test assertions.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// HydrateCache seeds an in-memory semverselect.Cache from the on-disk
// store at process start, without overwriting anything already resolved.
func (s *Store) HydrateCache(cache *semverselect.Cache) {
	s.mu.Lock()
	snapshot := make(map[string]string, len(s.entries))
	for k, v := range s.entries {
		snapshot[k] = v
	}
	s.mu.Unlock()
	cache.LoadEntries(snapshot)
}

// Harvest copies every entry resolved in cache this run back into the
// store, ready for Save.
func (s *Store) Harvest(cache *semverselect.Cache) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range cache.Entries() {
		s.entries[k] = v
	}
}
