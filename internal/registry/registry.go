package registry

import (
	"fmt"
	"io"
	"os"

	"github.com/rumor-ml/commons.systems/spentsync/internal/parser"
	"github.com/rumor-ml/commons.systems/spentsync/internal/parsers/csv"
	"github.com/rumor-ml/commons.systems/spentsync/internal/parsers/email"
	"github.com/rumor-ml/commons.systems/spentsync/internal/parsers/ofx"
	"github.com/rumor-ml/commons.systems/spentsync/internal/transform"
)

// Options configures the built-in extractors
type Options struct {
	// IDs generates ids for sources without a stable one. Nil means random ids.
	IDs transform.IDGenerator
	// StrictCSVHeader enables header validation in the CSV extractors
	StrictCSVHeader bool
}

// Registry holds all registered extractors in match order
type Registry struct {
	extractors []parser.Extractor
}

// New creates a registry with all built-in extractors.
// Chase CSV precedes USAA CSV, which accepts any other CSV.
func New(opts Options) *Registry {
	ids := opts.IDs
	if ids == nil {
		ids = transform.UUIDGenerator{}
	}
	csvOpts := []csv.Option{
		csv.WithIDGenerator(ids),
		csv.WithStrictHeader(opts.StrictCSVHeader),
	}

	r := &Registry{}
	for _, e := range []parser.Extractor{
		ofx.NewParser(),
		csv.NewChaseParser(csvOpts...),
		csv.NewUSAAParser(csvOpts...),
		email.NewParser(ids),
	} {
		if err := r.Register(e); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a custom extractor after the built-in ones.
// Nil extractors and duplicate names are rejected.
func (r *Registry) Register(e parser.Extractor) error {
	if e == nil {
		return fmt.Errorf("cannot register nil extractor")
	}
	for _, existing := range r.extractors {
		if existing.Name() == e.Name() {
			return fmt.Errorf("extractor %q already registered", e.Name())
		}
	}
	r.extractors = append(r.extractors, e)
	return nil
}

// FindExtractor returns the first extractor that accepts this file.
// Reads first 512 bytes for format detection via header inspection.
func (r *Registry) FindExtractor(path string) (parser.Extractor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	header := make([]byte, 512)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("failed to read header from %s: %w", path, err)
	}
	// Short files are fine; extractors see whatever was read
	header = header[:n]

	for _, e := range r.extractors {
		if e.CanParse(path, header) {
			return e, nil
		}
	}
	return nil, fmt.Errorf("no extractor found for file: %s", path)
}

// ListExtractors returns all registered extractor names
func (r *Registry) ListExtractors() []string {
	names := make([]string, len(r.extractors))
	for i, e := range r.extractors {
		names[i] = e.Name()
	}
	return names
}
