// Package store persists the ledger. Every backend reads the full ledger on
// Load and replaces it on Save; callers only Save when a merge changed it.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/rumor-ml/commons.systems/spentsync/internal/domain"
)

// Backend types accepted in Config.Type
const (
	TypeFile      = "file"
	TypeGCS       = "gcs"
	TypeFirestore = "firestore"
	TypeSQLite    = "sqlite"
)

// Types lists the supported backend types
var Types = []string{TypeFile, TypeGCS, TypeFirestore, TypeSQLite}

// Store loads and saves the ledger. Failures wrap domain.ErrStoreUnavailable;
// a refused conditional write wraps domain.ErrConflict.
type Store interface {
	Load(ctx context.Context) (domain.Ledger, error)
	Save(ctx context.Context, ledger domain.Ledger) error
	Close() error
}

// Config selects and configures a backend
type Config struct {
	Type string `yaml:"type"`

	// file and sqlite
	Path string `yaml:"path,omitempty"`

	// gcs
	Bucket string `yaml:"bucket,omitempty"`
	Object string `yaml:"object,omitempty"`

	// firestore
	ProjectID  string `yaml:"project_id,omitempty"`
	Collection string `yaml:"collection,omitempty"`
	Document   string `yaml:"document,omitempty"`

	// gcs and firestore
	CredentialsFile string `yaml:"credentials_file,omitempty"`

	// Refuse to save over a ledger that changed since Load
	ConditionalWrite bool `yaml:"conditional_write"`
}

// Validate reports every missing field for the selected backend
func (c Config) Validate() []error {
	var errs []error
	require := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("store.%s is required for %s store", name, c.Type))
		}
	}

	switch c.Type {
	case TypeFile, TypeSQLite:
		require("path", c.Path)
	case TypeGCS:
		require("bucket", c.Bucket)
		require("object", c.Object)
	case TypeFirestore:
		require("project_id", c.ProjectID)
		require("collection", c.Collection)
		require("document", c.Document)
	case "":
		errs = append(errs, fmt.Errorf("store.type is required (one of %s)", strings.Join(Types, ", ")))
	default:
		errs = append(errs, fmt.Errorf("unknown store.type %q (one of %s)", c.Type, strings.Join(Types, ", ")))
	}
	return errs
}

// Describe names the ledger location for reports
func (c Config) Describe() string {
	switch c.Type {
	case TypeGCS:
		return fmt.Sprintf("gs://%s/%s", c.Bucket, c.Object)
	case TypeFirestore:
		return fmt.Sprintf("firestore://%s/%s/%s", c.ProjectID, c.Collection, c.Document)
	case TypeSQLite:
		return "sqlite://" + c.Path
	default:
		return c.Path
	}
}

// New opens the backend selected by cfg
func New(ctx context.Context, cfg Config) (Store, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid store config: %w", errs[0])
	}

	var (
		s   Store
		err error
	)
	switch cfg.Type {
	case TypeFile:
		s = NewFile(cfg.Path, cfg.ConditionalWrite)
	case TypeGCS:
		s, err = NewGCS(ctx, cfg)
	case TypeFirestore:
		s, err = NewFirestore(ctx, cfg)
	case TypeSQLite:
		s, err = NewSQLite(ctx, cfg.Path, cfg.ConditionalWrite)
	default:
		err = fmt.Errorf("unknown store type %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
