package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethoslab/ethoscore/types"
)

// FileStore persists one JSON file per session under a directory.
// Writes go to a temp file in the same directory and are renamed into
// place, so a crash mid-write never leaves a corrupt session file —
// that file is the sole source of truth for reconstructing scores.
type FileStore struct {
	Dir string
}

// NewFileStore creates a file-backed store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

func (f *FileStore) path(id string) string {
	return filepath.Join(f.Dir, id+".json")
}

func (f *FileStore) Create(s *types.SessionState) error {
	if _, err := os.Stat(f.path(s.SessionID)); err == nil {
		return fmt.Errorf("%w: %s", types.ErrSessionExists, s.SessionID)
	}
	return f.write(s)
}

func (f *FileStore) Load(id string) (*types.SessionState, error) {
	data, err := os.ReadFile(f.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", types.ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("reading session %s: %w", id, err)
	}
	return Decode(data)
}

func (f *FileStore) Save(s *types.SessionState) error {
	if _, err := os.Stat(f.path(s.SessionID)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", types.ErrSessionNotFound, s.SessionID)
		}
		return err
	}
	return f.write(s)
}

func (f *FileStore) Delete(id string) error {
	err := os.Remove(f.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", types.ErrSessionNotFound, id)
	}
	return err
}

func (f *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(f.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
	}
	return ids, nil
}

// write serializes and atomically replaces the session file.
func (f *FileStore) write(s *types.SessionState) error {
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}
	data, err := Encode(s)
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", s.SessionID, err)
	}
	tmp, err := os.CreateTemp(f.Dir, s.SessionID+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing session %s: %w", s.SessionID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), f.path(s.SessionID)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing session %s: %w", s.SessionID, err)
	}
	return nil
}
