// Package merge appends newly extracted transactions to a ledger exactly once.
package merge

import (
	"fmt"
	"sort"

	"github.com/rumor-ml/commons.systems/spentsync/internal/dedup"
	"github.com/rumor-ml/commons.systems/spentsync/internal/domain"
)

// Reporter is called for every decision, in batch order
type Reporter interface {
	Added(t *domain.Transaction)
	Skipped(t *domain.Transaction, reason dedup.Reason)
}

// ReporterFuncs adapts plain functions to Reporter. Nil fields are ignored.
type ReporterFuncs struct {
	OnAdded   func(t *domain.Transaction)
	OnSkipped func(t *domain.Transaction, reason dedup.Reason)
}

// Added calls OnAdded
func (r ReporterFuncs) Added(t *domain.Transaction) {
	if r.OnAdded != nil {
		r.OnAdded(t)
	}
}

// Skipped calls OnSkipped
func (r ReporterFuncs) Skipped(t *domain.Transaction, reason dedup.Reason) {
	if r.OnSkipped != nil {
		r.OnSkipped(t, reason)
	}
}

// Result summarises one merge
type Result struct {
	Added   []domain.Transaction
	Skipped int
}

// Changed reports whether the ledger gained entries
func (r Result) Changed() bool {
	return len(r.Added) > 0
}

// Merge appends every transaction of batch that the ledger does not already
// hold, by id or by fingerprint, then stably sorts the ledger by date,
// newest first. Ids accepted from the batch join the id set as the pass goes,
// so a batch never adds the same id twice. Accepted fingerprints are kept
// with their source family: a later entry from another family with the same
// fingerprint is the same purchase and is skipped, while two identical
// purchases in one export are both kept.
//
// On error the ledger is left untouched.
func Merge(ledger *domain.Ledger, batch []domain.Transaction, report Reporter) (Result, error) {
	if report == nil {
		report = ReporterFuncs{}
	}

	idx, err := dedup.NewIndex(*ledger)
	if err != nil {
		return Result{}, err
	}

	var result Result
	for i := range batch {
		t := &batch[i]
		reason, err := idx.Lookup(t)
		if err != nil {
			return Result{}, fmt.Errorf("failed to merge transaction %s: %w", t.ID, err)
		}
		if reason != dedup.ReasonNone {
			result.Skipped++
			report.Skipped(t, reason)
			continue
		}

		if err := idx.Accept(t); err != nil {
			return Result{}, fmt.Errorf("failed to merge transaction %s: %w", t.ID, err)
		}
		report.Added(t)
		result.Added = append(result.Added, *t)
	}

	*ledger = append(*ledger, result.Added...)
	SortByDateDesc(*ledger)
	return result, nil
}

// SortByDateDesc sorts by date string, newest first, keeping the relative
// order of equal dates.
func SortByDateDesc(ledger domain.Ledger) {
	sort.SliceStable(ledger, func(i, j int) bool {
		return ledger[i].Date > ledger[j].Date
	})
}

// IsSorted reports whether ledger is in date-descending order
func IsSorted(ledger domain.Ledger) bool {
	return sort.SliceIsSorted(ledger, func(i, j int) bool {
		return ledger[i].Date > ledger[j].Date
	})
}
