package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// Store is a durable get/set of named JSON documents. Implementations
// must be safe for concurrent read-modify-write: webhook deliveries for
// the same MR can race, and lost updates here mean duplicate postings.
type Store interface {
	GetJSON(name string, target interface{}) error
	SetJSON(name string, data interface{}) error
}

// FileStore persists each document as a JSON file in a data directory.
// Writes go through a temp file plus rename so readers never observe a
// partially written document.
type FileStore struct {
	dataDir string
	mu      sync.Mutex
}

// NewFileStore creates the data directory if needed
func NewFileStore(dataDir string) (*FileStore, error) {
	if dataDir == "" {
		dataDir = "data"
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FileStore{dataDir: dataDir}, nil
}

func (s *FileStore) filePath(name string) string {
	return filepath.Join(s.dataDir, name+".json")
}

// GetJSON reads a document into target. A missing document is an error;
// callers that want a default should check os.IsNotExist or ignore it.
func (s *FileStore) GetJSON(name string, target interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.filePath(name))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("failed to decode document %s: %w", name, err)
	}
	return nil
}

// SetJSON atomically replaces a document
func (s *FileStore) SetJSON(name string, data interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode document %s: %w", name, err)
	}

	path := s.filePath(name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write document %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace document %s: %w", name, err)
	}
	return nil
}

// Markers records which MR revisions have already been reviewed, keyed
// per "{project_id}:{mr_iid}". It layers a small in-memory write-through
// cache over a Store so the idempotency check survives restarts.
type Markers struct {
	store Store
	mu    sync.Mutex
	seen  map[string][]string
}

const markersDoc = "processed_markers"

// NewMarkers loads the persisted marker set; a missing or corrupt
// document starts empty rather than failing startup.
func NewMarkers(store Store) *Markers {
	m := &Markers{store: store, seen: make(map[string][]string)}
	if store != nil {
		if err := store.GetJSON(markersDoc, &m.seen); err != nil {
			if !os.IsNotExist(err) {
				log.Warn().Err(err).Msg("Could not load processed markers, starting empty")
			}
			m.seen = make(map[string][]string)
		}
	}
	return m
}

// Seen reports whether marker was already recorded for key
func (m *Markers) Seen(key, marker string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.seen[key] {
		if existing == marker {
			return true
		}
	}
	return false
}

// Record stores marker under key and persists the set, keeping only the
// most recent few markers per MR to bound growth. The flush happens
// under the lock so concurrent records cannot persist out of order.
func (m *Markers) Record(key, marker string) {
	const keepPerKey = 5

	m.mu.Lock()
	defer m.mu.Unlock()

	markers := append(m.seen[key], marker)
	if len(markers) > keepPerKey {
		markers = markers[len(markers)-keepPerKey:]
	}
	m.seen[key] = markers

	if m.store != nil {
		if err := m.store.SetJSON(markersDoc, m.seen); err != nil {
			log.Error().Err(err).Msg("Failed to persist processed markers")
		}
	}
}
