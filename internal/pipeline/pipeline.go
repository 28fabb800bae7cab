// Package pipeline runs one import cycle: extract every downloaded document,
// merge the batch into the stored ledger, persist it if it changed, then
// remove the processed inputs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rumor-ml/commons.systems/spentsync/internal/dedup"
	"github.com/rumor-ml/commons.systems/spentsync/internal/domain"
	"github.com/rumor-ml/commons.systems/spentsync/internal/logger"
	"github.com/rumor-ml/commons.systems/spentsync/internal/merge"
	"github.com/rumor-ml/commons.systems/spentsync/internal/parser"
	"github.com/rumor-ml/commons.systems/spentsync/internal/registry"
	"github.com/rumor-ml/commons.systems/spentsync/internal/scanner"
	"github.com/rumor-ml/commons.systems/spentsync/internal/store"
	"github.com/rumor-ml/commons.systems/spentsync/internal/ui"
)

// Options controls side effects of a run
type Options struct {
	DownloadsDir string
	// DryRun extracts and merges but never saves or deletes
	DryRun bool
	// DeleteInputs removes processed files after a successful run
	DeleteInputs bool
}

// Summary describes what a run did
type Summary struct {
	Files      []string
	Counts     map[parser.Kind]int
	Skipped    []string // statement files without a readable statement body
	Added      []domain.Transaction
	Duplicates int
	Saved      bool
	Deleted    []string
}

// Pipeline wires the extractors to a ledger store
type Pipeline struct {
	registry *registry.Registry
	store    store.Store
	opts     Options
}

// New creates a pipeline
func New(reg *registry.Registry, st store.Store, opts Options) *Pipeline {
	return &Pipeline{registry: reg, store: st, opts: opts}
}

// Run performs one import cycle. Any error other than an unreadable
// statement file aborts the run before inputs are deleted, so the files are
// left in place for a retry.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	log := logger.FromContext(ctx)

	ui.Step(1, 3, "Extracting downloads")
	files, err := scanner.New(p.opts.DownloadsDir).Scan()
	if err != nil {
		return nil, err
	}
	log.Debug().Int("files", len(files)).Str("dir", p.opts.DownloadsDir).
		Strs("extractors", p.registry.ListExtractors()).Msg("scanned downloads")

	summary := &Summary{Counts: make(map[parser.Kind]int)}
	batch, err := p.extractAll(ctx, files, summary)
	if err != nil {
		return summary, err
	}

	for _, kind := range parser.Kinds {
		ui.Count(string(kind), summary.Counts[kind])
	}

	ui.Step(2, 3, "Merging into ledger")
	ledger, err := p.store.Load(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to load ledger: %w", err)
	}
	log.Debug().Int("entries", len(ledger)).Msg("loaded ledger")

	result, err := merge.Merge(&ledger, batch, merge.ReporterFuncs{
		OnAdded: ui.Added,
		OnSkipped: func(t *domain.Transaction, reason dedup.Reason) {
			log.Debug().Str("id", t.ID).Str("reason", string(reason)).Msg("already in ledger")
		},
	})
	if err != nil {
		return summary, fmt.Errorf("merge failed: %w", err)
	}
	summary.Added = result.Added
	summary.Duplicates = result.Skipped
	ui.Total(len(result.Added))

	ui.Step(3, 3, "Saving")
	if p.opts.DryRun {
		ui.Warning("Dry run: ledger not saved, inputs kept")
		return summary, nil
	}

	if result.Changed() {
		if err := p.store.Save(ctx, ledger); err != nil {
			return summary, fmt.Errorf("failed to save ledger: %w", err)
		}
		summary.Saved = true
		log.Info().Int("added", len(result.Added)).Int("entries", len(ledger)).Msg("ledger saved")
	}

	if p.opts.DeleteInputs {
		for _, path := range summary.Files {
			if err := os.Remove(path); err != nil {
				return summary, fmt.Errorf("failed to delete %s: %w", path, err)
			}
			summary.Deleted = append(summary.Deleted, path)
			ui.Info("Deleted " + filepath.Base(path))
		}
	}

	return summary, nil
}

func (p *Pipeline) extractAll(ctx context.Context, files []scanner.ScanResult, summary *Summary) ([]domain.Transaction, error) {
	log := logger.FromContext(ctx)

	var batch []domain.Transaction
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		summary.Files = append(summary.Files, file.Path)

		txns, kind, err := p.extractFile(ctx, file)
		if err != nil {
			if kind == parser.KindStatement && errors.Is(err, domain.ErrMalformedDocument) {
				log.Warn().Err(err).Str("file", file.Path).Msg("skipping statement file")
				ui.Warning(fmt.Sprintf("Skipping %s: %v", filepath.Base(file.Path), err))
				summary.Skipped = append(summary.Skipped, file.Path)
				continue
			}
			return nil, fmt.Errorf("%s: %w", file.Path, err)
		}

		log.Debug().Str("file", file.Path).Str("kind", string(kind)).Int("transactions", len(txns)).
			Time("detected", file.Metadata.DetectedAt()).Msg("extracted")
		summary.Counts[kind] += len(txns)
		batch = append(batch, txns...)
	}
	return batch, nil
}

func (p *Pipeline) extractFile(ctx context.Context, file scanner.ScanResult) ([]domain.Transaction, parser.Kind, error) {
	extractor, err := p.registry.FindExtractor(file.Path)
	if err != nil {
		if file.Kind == parser.KindStatement {
			// A .ofx download that does not even carry an OFX header
			return nil, file.Kind, fmt.Errorf("%w: %v", domain.ErrMalformedDocument, err)
		}
		return nil, file.Kind, err
	}

	f, err := os.Open(file.Path)
	if err != nil {
		return nil, extractor.Kind(), fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	txns, err := extractor.Extract(ctx, f, file.Metadata)
	if err != nil {
		return nil, extractor.Kind(), fmt.Errorf("%s: %w", extractor.Name(), err)
	}
	return txns, extractor.Kind(), nil
}
