// Package history keeps an append-only log of preview tags created from this
// machine, so forced overwrites stay traceable.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/numberone-ai/previewctl/internal/models"
)

// Store is a JSON file of TagRecords, pruned by age on load
type Store struct {
	path   string
	maxAge time.Duration
	now    func() time.Time

	mu sync.Mutex
}

// Open returns a store at path; maxAge <= 0 keeps records forever
func Open(path string, maxAge time.Duration) *Store {
	return &Store{path: path, maxAge: maxAge, now: time.Now}
}

// Path returns the backing file
func (s *Store) Path() string {
	return s.path
}

// Load returns the records within maxAge, oldest first. A missing or
// unreadable file yields no records.
func (s *Store) Load() []models.TagRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() []models.TagRecord {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil
	}

	var records []models.TagRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil
	}
	if s.maxAge <= 0 {
		return records
	}

	cutoff := s.now().Add(-s.maxAge)
	var valid []models.TagRecord
	for _, r := range records {
		if r.RecordedAt.After(cutoff) {
			valid = append(valid, r)
		}
	}

	// Rewrite file if we pruned anything
	if len(valid) != len(records) {
		_ = s.save(valid)
	}
	return valid
}

// Append adds records to the log
func (s *Store) Append(records ...models.TagRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(append(s.load(), records...))
}

// ForTag returns every record of tag, oldest first
func (s *Store) ForTag(tag string) []models.TagRecord {
	var out []models.TagRecord
	for _, r := range s.Load() {
		if r.Tag == tag {
			out = append(out, r)
		}
	}
	return out
}

func (s *Store) save(records []models.TagRecord) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
