package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rumor-ml/commons.systems/spentsync/internal/domain"
	"github.com/rumor-ml/commons.systems/spentsync/internal/output"
)

// File keeps the ledger in a local JSON file
type File struct {
	path        string
	conditional bool

	// modification time seen by the last Load; zero when the file was absent
	loadedMod time.Time
	loaded    bool
}

// NewFile returns a file-backed store. The file need not exist yet.
func NewFile(path string, conditional bool) *File {
	return &File{path: path, conditional: conditional}
}

// Path returns the ledger file location
func (f *File) Path() string {
	return f.path
}

// Load reads the ledger. A missing file is an empty ledger.
func (f *File) Load(ctx context.Context) (domain.Ledger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fh, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		f.loaded, f.loadedMod = true, time.Time{}
		return domain.Ledger{}, nil
	}
	if err != nil {
		return nil, unavailable("failed to open ledger "+f.path, err)
	}
	defer fh.Close()

	info, err := fh.Stat()
	if err != nil {
		return nil, unavailable("failed to stat ledger "+f.path, err)
	}

	ledger, err := output.ReadLedger(fh)
	if err != nil {
		return nil, unavailable("failed to read ledger "+f.path, err)
	}

	f.loaded, f.loadedMod = true, info.ModTime()
	return ledger, nil
}

// Save replaces the ledger file atomically: write to a temp file, then rename
func (f *File) Save(ctx context.Context, ledger domain.Ledger) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.checkUnchanged(); err != nil {
		return err
	}

	data, err := output.EncodeLedger(ledger)
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return unavailable("failed to create directory", err)
	}

	tempFile := f.path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return unavailable("failed to write temp file", err)
	}
	if err := os.Rename(tempFile, f.path); err != nil {
		os.Remove(tempFile)
		return unavailable("failed to rename temp file", err)
	}

	if info, err := os.Stat(f.path); err == nil {
		f.loaded, f.loadedMod = true, info.ModTime()
	}
	return nil
}

func (f *File) checkUnchanged() error {
	if !f.conditional || !f.loaded {
		return nil
	}

	info, err := os.Stat(f.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if f.loadedMod.IsZero() {
			return nil
		}
		return fmt.Errorf("%s was removed: %w", f.path, domain.ErrConflict)
	case err != nil:
		return unavailable("failed to stat ledger "+f.path, err)
	case !info.ModTime().Equal(f.loadedMod):
		return fmt.Errorf("%s modified at %s: %w", f.path, info.ModTime().Format(time.RFC3339), domain.ErrConflict)
	}
	return nil
}

// Close is a no-op for files
func (f *File) Close() error {
	return nil
}
