// Package statefile keeps the announcement ledger in a local JSON file.
package statefile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"PDFAnnouncer/internal/domain"
	"PDFAnnouncer/internal/ledger"
	"PDFAnnouncer/internal/ports"
)

// Store reads and atomically replaces a ledger file.
type Store struct {
	path string
}

var _ ports.StateStore = (*Store)(nil)

// New returns a store backed by path.
func New(path string) *Store {
	return &Store{path: path}
}

// Load returns an empty state when the file does not exist.
func (s *Store) Load(_ context.Context) (ledger.State, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return ledger.New(), nil
	}
	if err != nil {
		return nil, &domain.RetrievalError{Op: "load state", Key: s.path, Err: err}
	}
	state, err := ledger.Decode(data)
	if err != nil {
		return nil, &domain.RetrievalError{Op: "load state", Key: s.path, Err: err}
	}
	return state, nil
}

// Save writes to a temporary file in the same directory and renames it over the target.
func (s *Store) Save(_ context.Context, state ledger.State) error {
	data, err := ledger.Encode(state)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}
