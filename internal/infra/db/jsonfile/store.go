// Package jsonfile keeps the whole plant collection in memory and mirrors it
// to a single JSON document on disk after every write.
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"go.uber.org/zap"

	domain "github.com/bryanwahyu/leaflens/internal/domain/plants"
)

// DefaultPath is relative to the process working directory.
const DefaultPath = "db.json"

var _ domain.Store = (*Store)(nil)

// document is the on-disk shape: {"plants": [...]}.
type document struct {
	Plants []json.RawMessage `json:"plants"`
}

// entry is one slot of the collection. Entries that could not be decoded
// keep their original bytes so a rewrite never drops them.
type entry struct {
	plant domain.Plant
	raw   json.RawMessage
}

func (e entry) readable() bool { return e.raw == nil }

type Store struct {
	path string
	log  *zap.Logger

	mu          sync.RWMutex
	initialized bool
	entries     []entry
	ids         map[domain.PlantID]struct{}
}

func New(path string, log *zap.Logger) *Store {
	if path == "" {
		path = DefaultPath
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{path: path, log: log.With(zap.String("component", "jsonfile_store"))}
}

// Path returns the backing file location.
func (s *Store) Path() string { return s.path }

// Initialize loads the backing file, creating it when absent. Calls after the
// first successful one return immediately without touching the disk.
//
// A record that cannot be decoded is logged and hidden from ListAll; the
// document itself must still be valid JSON.
func (s *Store) Initialize(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}

	raw, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.entries, s.ids = nil, map[domain.PlantID]struct{}{}
		if err := s.writeLocked(); err != nil {
			return &domain.InitializationError{Path: s.path, Err: err}
		}
		s.log.Info("created plant store", zap.String("path", s.path))
	case err != nil:
		return &domain.InitializationError{Path: s.path, Err: err}
	default:
		entries, err := s.decode(raw)
		if err != nil {
			return &domain.InitializationError{Path: s.path, Err: err}
		}
		s.entries = entries
		s.ids = make(map[domain.PlantID]struct{}, len(entries))
		for _, e := range entries {
			if id := entryID(e); id != "" {
				s.ids[id] = struct{}{}
			}
		}
		s.log.Info("loaded plant store", zap.String("path", s.path), zap.Int("plants", len(s.entries)))
	}

	s.initialized = true
	return nil
}

// ListAll returns a copy of the readable records in storage order.
func (s *Store) ListAll(_ context.Context) ([]domain.Plant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, domain.ErrNotInitialized
	}
	out := make([]domain.Plant, 0, len(s.entries))
	for _, e := range s.entries {
		if !e.readable() {
			continue
		}
		p := e.plant
		p.Treatments = slices.Clone(p.Treatments)
		out = append(out, p)
	}
	return out, nil
}

// Exists also sees ids of entries that could not be decoded.
func (s *Store) Exists(_ context.Context, id domain.PlantID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return false, domain.ErrNotInitialized
	}
	_, ok := s.ids[id]
	return ok, nil
}

// Append adds p and rewrites the whole document. If the write fails the
// record stays in memory and reaches disk with the next successful write.
func (s *Store) Append(_ context.Context, p domain.Plant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return domain.ErrNotInitialized
	}
	p.Treatments = slices.Clone(p.Treatments)
	s.entries = append(s.entries, entry{plant: p})
	s.ids[p.ID] = struct{}{}

	if err := s.writeLocked(); err != nil {
		s.log.Error("persist plant store", zap.String("path", s.path), zap.String("plant_id", string(p.ID)), zap.Error(err))
		return &domain.PersistenceError{Path: s.path, Err: err, Retained: true}
	}
	return nil
}

// Check implements the health checker contract.
func (s *Store) Check(ctx context.Context) error {
	if err := s.Initialize(ctx); err != nil {
		return err
	}
	_, err := os.Stat(s.path)
	return err
}

func (s *Store) decode(raw []byte) ([]entry, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}

	entries := make([]entry, 0, len(doc.Plants))
	for i, msg := range doc.Plants {
		var p domain.Plant
		if err := json.Unmarshal(msg, &p); err != nil {
			s.log.Warn("unreadable plant record kept on disk",
				zap.String("path", s.path),
				zap.Int("index", i),
				zap.String("plant_id", string(rawID(msg))),
				zap.Error(err),
			)
			entries = append(entries, entry{raw: slices.Clone(msg)})
			continue
		}
		entries = append(entries, entry{plant: p})
	}
	return entries, nil
}

func entryID(e entry) domain.PlantID {
	if e.readable() {
		return e.plant.ID
	}
	return rawID(e.raw)
}

// rawID pulls the id out of an entry whose other fields do not decode.
func rawID(msg json.RawMessage) domain.PlantID {
	var v struct {
		ID string `json:"id"`
	}
	if json.Unmarshal(msg, &v) != nil {
		return ""
	}
	return domain.PlantID(v.ID)
}

func (s *Store) encode() ([]byte, error) {
	doc := document{Plants: make([]json.RawMessage, 0, len(s.entries))}
	for _, e := range s.entries {
		if !e.readable() {
			doc.Plants = append(doc.Plants, e.raw)
			continue
		}
		b, err := json.Marshal(e.plant)
		if err != nil {
			return nil, fmt.Errorf("encode plant %s: %w", e.plant.ID, err)
		}
		doc.Plants = append(doc.Plants, b)
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return b, nil
}

// writeLocked replaces the backing file atomically (temp file + rename).
// Caller must hold s.mu for writing.
func (s *Store) writeLocked() error {
	b, err := s.encode()
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return err
	}
	return nil
}
