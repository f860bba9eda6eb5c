// Package checkpoint persists durable import progress across restarts.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Record is the durable import progress marker. Height and Hash identify the
// last block whose graph mutations are confirmed durable.
type Record struct {
	Height    uint64    `json:"height"`
	Hash      string    `json:"hash"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileStore keeps the checkpoint in a single JSON file, replaced atomically
// on every commit so a crash mid-write never corrupts the previous state.
// A single importer instance owns the file; concurrent writers from multiple
// processes are unsupported.
type FileStore struct {
	path string

	mu     sync.Mutex
	last   Record
	loaded bool
}

// NewFileStore creates a store backed by the given file path. The parent
// directory is created if needed.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("checkpoint file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Load reads the last committed record. The second return value is false when
// no checkpoint has ever been committed. A present but unreadable file is an
// error: silently restarting from scratch would duplicate years of work.
func (s *FileStore) Load() (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("read checkpoint file: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, false, fmt.Errorf("parse checkpoint file %s: %w", s.path, err)
	}
	if rec.Hash == "" {
		return Record{}, false, fmt.Errorf("checkpoint file %s missing block hash", s.path)
	}

	s.last = rec
	s.loaded = true
	return rec, true, nil
}

// Commit durably records progress at the given height. Commits below the
// current height are ignored so a stale writer can never regress progress;
// committing the current height again is a no-op.
func (s *FileStore) Commit(height uint64, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded && height < s.last.Height {
		return nil
	}
	if s.loaded && height == s.last.Height && hash == s.last.Hash {
		return nil
	}
	return s.write(Record{Height: height, Hash: hash, UpdatedAt: time.Now().UTC()})
}

// Reset forces the checkpoint to the given position regardless of the current
// height. Only reorg reconciliation may move progress backwards.
func (s *FileStore) Reset(height uint64, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.write(Record{Height: height, Hash: hash, UpdatedAt: time.Now().UTC()})
}

func (s *FileStore) write(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create checkpoint temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write checkpoint temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync checkpoint temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace checkpoint file: %w", err)
	}

	s.last = rec
	s.loaded = true
	return nil
}
