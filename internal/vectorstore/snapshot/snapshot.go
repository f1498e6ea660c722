// Package snapshot implements the file-backed vector index: entries live
// in memory, and every mutation rewrites a full snapshot through a
// pluggable store.
package snapshot

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Entry is one embedding paired with its source chunk.
type Entry struct {
	ID       string
	Vector   []float32
	Content  string
	Metadata map[string]string
}

// Snapshot is the persisted form of the full entry set plus the embedding
// configuration used to build it. Loading with a mismatched configuration
// is an error, never a silent wrong-dimension index.
type Snapshot struct {
	Model     string
	Dimension int
	Entries   []Entry
}

// Store persists snapshots. Save must replace the previous snapshot
// atomically: a failed write leaves the prior snapshot authoritative.
type Store interface {
	// Load returns the stored snapshot, or ok=false when none exists yet.
	Load() (snap *Snapshot, ok bool, err error)
	Save(snap *Snapshot) error
}

// FileStore persists gob-encoded snapshots with write-to-temp plus rename.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load() (*Snapshot, bool, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("open snapshot %s: %w", s.path, err)
	}
	defer f.Close()

	var snap Snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return nil, false, fmt.Errorf("decode snapshot %s: %w", s.path, err)
	}
	return &snap, true, nil
}

func (s *FileStore) Save(snap *Snapshot) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(snap); err != nil {
		tmp.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}

	// Atomic replace: readers either see the old snapshot or the new one.
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// MemStore keeps the snapshot in memory. Used by tests and as the storage
// fake the index design calls for.
type MemStore struct {
	snap *Snapshot

	// FailSaves makes every Save return an error, for exercising
	// persistence-failure paths.
	FailSaves bool

	// SaveCount counts successful saves.
	SaveCount int
}

func NewMemStore() *MemStore { return &MemStore{} }

func (s *MemStore) Load() (*Snapshot, bool, error) {
	if s.snap == nil {
		return nil, false, nil
	}
	return cloneSnapshot(s.snap), true, nil
}

func (s *MemStore) Save(snap *Snapshot) error {
	if s.FailSaves {
		return fmt.Errorf("memstore: save disabled")
	}
	s.snap = cloneSnapshot(snap)
	s.SaveCount++
	return nil
}

func cloneSnapshot(snap *Snapshot) *Snapshot {
	out := &Snapshot{Model: snap.Model, Dimension: snap.Dimension}
	out.Entries = make([]Entry, len(snap.Entries))
	copy(out.Entries, snap.Entries)
	return out
}

// sortEntries orders entries by ID so snapshots serialize reproducibly.
func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
}
