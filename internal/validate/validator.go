package validate

import (
	"fmt"

	"github.com/rumor-ml/commons.systems/spentsync/internal/dedup"
	"github.com/rumor-ml/commons.systems/spentsync/internal/domain"
	"github.com/rumor-ml/commons.systems/spentsync/internal/merge"
	"github.com/rumor-ml/commons.systems/spentsync/internal/transform"
)

// ValidationResult contains all validation errors and warnings for a ledger
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// ValidationError represents a problem that breaks a ledger invariant
type ValidationError struct {
	Entity  string // "transaction", "ledger"
	ID      string
	Field   string
	Value   string
	Message string
}

// ValidationWarning represents a non-critical validation issue
type ValidationWarning struct {
	Entity  string
	ID      string
	Field   string
	Value   string
	Message string
}

// HasErrors reports whether any error was found
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

func (r *ValidationResult) addError(id, field, value, message string) {
	r.Errors = append(r.Errors, ValidationError{
		Entity:  "transaction",
		ID:      id,
		Field:   field,
		Value:   value,
		Message: message,
	})
}

func (r *ValidationResult) addWarning(id, field, value, message string) {
	r.Warnings = append(r.Warnings, ValidationWarning{
		Entity:  "transaction",
		ID:      id,
		Field:   field,
		Value:   value,
		Message: message,
	})
}

// ValidateLedger checks the invariants a merge relies on: top-level entries
// sorted by date descending, statement ids unique, dates in YYYY-MM-DD form,
// and a derivable fingerprint for every fingerprinted entry. Sub-transactions
// are checked too, except for ordering.
func ValidateLedger(ledger domain.Ledger) *ValidationResult {
	result := &ValidationResult{
		Errors:   []ValidationError{},
		Warnings: []ValidationWarning{},
	}

	if !merge.IsSorted(ledger) {
		for i := 1; i < len(ledger); i++ {
			if ledger[i-1].Date < ledger[i].Date {
				result.Errors = append(result.Errors, ValidationError{
					Entity:  "ledger",
					ID:      ledger[i].ID,
					Field:   "Date",
					Value:   ledger[i].Date,
					Message: fmt.Sprintf("entry %d is newer than entry %d (%s); ledger must be sorted by date descending", i, i-1, ledger[i-1].Date),
				})
			}
		}
	}

	statementIDs := make(map[string]bool)
	otherIDs := make(map[string]bool)
	depth := make(map[*domain.Transaction]bool)
	for i := range ledger {
		depth[&ledger[i]] = true
	}

	ledger.Walk(func(t *domain.Transaction) bool {
		topLevel := depth[t]

		if t.ID == "" {
			result.addError(t.ID, "ID", "", "transaction ID cannot be empty")
		}

		switch {
		case t.Date == "" && !topLevel:
			result.addWarning(t.ID, "Date", "", "sub-transaction has no date")
		default:
			if err := transform.ValidateDate(t.Date); err != nil {
				result.addError(t.ID, "Date", t.Date, "date must be YYYY-MM-DD")
			}
		}

		if t.IsStatement() {
			if t.ID != "" && statementIDs[t.ID] {
				result.addError(t.ID, "ID", t.ID, "duplicate statement transaction ID")
			}
			statementIDs[t.ID] = true
			return true
		}

		if t.ID != "" && otherIDs[t.ID] {
			result.addWarning(t.ID, "ID", t.ID, "duplicate generated ID")
		}
		otherIDs[t.ID] = true

		if !t.HasSource() {
			result.addWarning(t.ID, "Source", "", "no source; entry is matched by id only")
			return true
		}
		if _, err := dedup.Fingerprint(t); err != nil {
			result.addError(t.ID, "OriginalLine", t.OriginalLine, err.Error())
		}
		return true
	})

	return result
}
