package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/snapetech/streamcheck/internal/fsutil"
)

// Store is durable storage for one snapshot.
type Store interface {
	// Load returns the stored snapshot, or nil, nil if there is none.
	// Undecodable data is reported with an error wrapping ErrCorrupt.
	Load(ctx context.Context) (*State, error)
	// Save replaces the stored snapshot atomically.
	Save(ctx context.Context, s *State) error
	// Remove deletes the stored snapshot. Removing nothing is not an error.
	Remove(ctx context.Context) error
	// Location names the backing file for logs and errors.
	Location() string
	Close() error
}

// Backend names a Store implementation.
type Backend string

const (
	BackendFile   Backend = "file"
	BackendSQLite Backend = "sqlite"
)

// BackendFor picks a backend for path: explicit wins, otherwise .db/.sqlite
// files use SQLite and everything else JSON.
func BackendFor(explicit, path string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(explicit)) {
	case "file", "json":
		return BackendFile, nil
	case "sqlite", "sqlite3":
		return BackendSQLite, nil
	case "":
	default:
		return "", fmt.Errorf("unknown checkpoint backend %q", explicit)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return BackendSQLite, nil
	}
	return BackendFile, nil
}

// Open returns the Store for backend at path.
func Open(backend Backend, path string) (Store, error) {
	switch backend {
	case BackendSQLite:
		return OpenSQLite(path)
	case BackendFile, "":
		return NewFileStore(path), nil
	}
	return nil, fmt.Errorf("unknown checkpoint backend %q", backend)
}

// OpenReadOnly returns a Store for inspecting the checkpoint at path without
// changing it. The store must not be saved to.
func OpenReadOnly(backend Backend, path string) (Store, error) {
	if backend == BackendSQLite {
		return OpenSQLiteReadOnly(path)
	}
	return Open(backend, path)
}

// FileStore keeps the snapshot as one JSON file written with temp+rename.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: filepath.Clean(path)}
}

func (f *FileStore) Location() string { return f.path }

func (f *FileStore) Load(ctx context.Context) (*State, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &s, nil
}

func (f *FileStore) Save(ctx context.Context, s *State) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(f.path, data, 0600)
}

func (f *FileStore) Remove(ctx context.Context) error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (f *FileStore) Close() error { return nil }
