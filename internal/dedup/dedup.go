// Package dedup derives transaction identities and indexes a ledger by them.
//
// A transaction is known to the ledger when its id is present, or when its
// fingerprint (posting date plus description) matches a fingerprinted entry.
// Statement entries carry bank-assigned ids and are never fingerprinted, so
// two statement entries can only collide by id.
package dedup

import (
	"fmt"
	"html"
	"strings"

	"github.com/rumor-ml/commons.systems/spentsync/internal/domain"
	"github.com/rumor-ml/commons.systems/spentsync/internal/transform"
)

// Fingerprint returns the "{date} {description}" key for t.
//
// Chase CSV rows re-derive the posting date from original_line: column 3
// when it holds an M/D/Y date, otherwise column 2, with one digit month and
// day zero-padded to match the stored date. The description is
// HTML-unescaped on that path only. Every other source uses its own date and
// raw description.
func Fingerprint(t *domain.Transaction) (string, error) {
	if !strings.HasPrefix(t.Source, domain.SourceChaseCSV) {
		return fmt.Sprintf("%s %s", t.Date, t.Description), nil
	}

	fields := strings.Split(t.OriginalLine, ",")
	if len(fields) < 2 {
		return "", fmt.Errorf("%w: transaction %s: original line %q has no posting date column",
			domain.ErrFieldExtraction, t.ID, t.OriginalLine)
	}

	posted := fields[1]
	if len(fields) > 2 && len(strings.Split(fields[2], "/")) == 3 {
		posted = fields[2]
	}
	mdy := strings.Split(posted, "/")
	if len(mdy) != 3 {
		return "", fmt.Errorf("%w: transaction %s: posting date %q is not M/D/Y",
			domain.ErrFieldExtraction, t.ID, posted)
	}

	return fmt.Sprintf("%s-%s-%s %s", mdy[2], transform.PadDay(mdy[0]), transform.PadDay(mdy[1]),
		html.UnescapeString(t.Description)), nil
}

// Reason says which identity matched
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonID          Reason = "id"
	ReasonFingerprint Reason = "fingerprint"
)

// Family groups sources that describe a purchase the same way. Two entries
// of one family with equal fingerprints are two purchases; across families
// they are the same purchase reported twice.
type Family string

const (
	FamilyStatement Family = "statement"
	FamilyCSV       Family = "csv"
	FamilyEmail     Family = "email"
)

// familyOf returns the family of t's source. Entries without a source have none.
func familyOf(t *domain.Transaction) Family {
	switch {
	case !t.HasSource():
		return ""
	case t.IsStatement():
		return FamilyStatement
	case strings.HasPrefix(t.Source, "email_"):
		return FamilyEmail
	default:
		return FamilyCSV
	}
}

// Index holds the id and fingerprint sets of a ledger, plus the fingerprints
// accepted from the batch being merged.
// It is not safe for concurrent use.
type Index struct {
	ids          map[string]struct{}
	fingerprints map[string]struct{}
	accepted     map[string]Family
}

// NewIndex walks every entry of ledger, sub-transactions included. All ids
// are indexed; fingerprints are indexed only for entries with a non-empty,
// non-statement source.
func NewIndex(ledger domain.Ledger) (*Index, error) {
	idx := &Index{
		ids:          make(map[string]struct{}),
		fingerprints: make(map[string]struct{}),
		accepted:     make(map[string]Family),
	}

	var walkErr error
	ledger.Walk(func(t *domain.Transaction) bool {
		idx.ids[t.ID] = struct{}{}
		if !t.HasSource() || t.IsStatement() {
			return true
		}
		fp, err := Fingerprint(t)
		if err != nil {
			walkErr = fmt.Errorf("failed to index ledger: %w", err)
			return false
		}
		idx.fingerprints[fp] = struct{}{}
		return true
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return idx, nil
}

// Lookup reports whether t is already represented, checking the id first
// and the fingerprint second. A fingerprint accepted earlier in the batch
// matches only when it came from another source family.
func (idx *Index) Lookup(t *domain.Transaction) (Reason, error) {
	if _, ok := idx.ids[t.ID]; ok {
		return ReasonID, nil
	}
	fp, err := Fingerprint(t)
	if err != nil {
		return ReasonNone, err
	}
	if _, ok := idx.fingerprints[fp]; ok {
		return ReasonFingerprint, nil
	}
	if fam, ok := idx.accepted[fp]; ok && fam != familyOf(t) {
		return ReasonFingerprint, nil
	}
	return ReasonNone, nil
}

// Accept records t as appended to the ledger: its id joins the id set and,
// when t has a source, its fingerprint is remembered with its family. The
// first family to claim a fingerprint keeps it.
func (idx *Index) Accept(t *domain.Transaction) error {
	idx.ids[t.ID] = struct{}{}
	fam := familyOf(t)
	if fam == "" {
		return nil
	}
	fp, err := Fingerprint(t)
	if err != nil {
		return err
	}
	if _, ok := idx.accepted[fp]; !ok {
		idx.accepted[fp] = fam
	}
	return nil
}

func (idx *Index) hasID(id string) bool {
	_, ok := idx.ids[id]
	return ok
}

func (idx *Index) hasFingerprint(fp string) bool {
	_, ok := idx.fingerprints[fp]
	return ok
}
