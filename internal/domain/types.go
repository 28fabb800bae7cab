package domain

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the canonical posting date format (YYYY-MM-DD)
const DateLayout = "2006-01-02"

// Source tags identify where a transaction came from. The tag selects the
// identity strategy used during merge, so prefixes matter more than full values.
const (
	// SourceStatementPrefix prefixes every statement-file source ("ofx-Card1234").
	SourceStatementPrefix = "ofx"
	// SourceChaseCSV tags rows from the Chase CSV export.
	SourceChaseCSV = "chase"
	// SourceUSAACSV tags rows from the USAA CSV export.
	SourceUSAACSV = "usaa"
	// SourceEmailChase tags Chase and J.P. Morgan purchase alerts.
	SourceEmailChase = "email_chase"
	// SourceEmailUSAA tags USAA deposit and debit alerts.
	SourceEmailUSAA = "email_usaa"
)

// Transaction is the canonical record every source is normalized into.
// Field names and JSON keys match the persisted ledger document exactly.
//
// Sign convention:
//
//	Positive = money spent (debits, purchases)
//	Negative = money received (credits, deposits)
type Transaction struct {
	ID           string        `json:"id"`
	Description  string        `json:"description"`
	OriginalLine string        `json:"original_line"`
	Date         string        `json:"date"` // YYYY-MM-DD
	Tags         []string      `json:"tags"`
	AmountCents  int64         `json:"amount_cents"`
	Transactions []Transaction `json:"transactions"`
	Source       string        `json:"source"`
	Notes        string        `json:"notes"`
}

// NewTransaction creates a validated transaction with empty tags, notes and
// sub-transactions, as every extractor must produce them.
func NewTransaction(id, description, originalLine, date string, amountCents int64, source string) (*Transaction, error) {
	if id == "" {
		return nil, fmt.Errorf("transaction ID cannot be empty")
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return nil, fmt.Errorf("invalid date format %q: %w", date, err)
	}
	if source == "" {
		return nil, fmt.Errorf("transaction source cannot be empty")
	}

	return &Transaction{
		ID:           id,
		Description:  description,
		OriginalLine: originalLine,
		Date:         date,
		Tags:         []string{},
		AmountCents:  amountCents,
		Transactions: []Transaction{},
		Source:       source,
		Notes:        "",
	}, nil
}

// IsStatement reports whether the transaction came from a statement file.
// Statement ids are bank-assigned and authoritative.
func (t *Transaction) IsStatement() bool {
	return strings.HasPrefix(t.Source, SourceStatementPrefix)
}

// HasSource reports whether provenance was recorded. Entries written by other
// tooling may omit it.
func (t *Transaction) HasSource() bool {
	return t.Source != ""
}

// Normalize replaces nil slices with empty ones, recursively, so the ledger
// always serializes arrays rather than null.
func (t *Transaction) Normalize() {
	if t.Tags == nil {
		t.Tags = []string{}
	}
	if t.Transactions == nil {
		t.Transactions = []Transaction{}
	}
	for i := range t.Transactions {
		t.Transactions[i].Normalize()
	}
}

// StatementSource builds the source tag for a statement file of the given card,
// e.g. StatementSource("Card1234") == "ofx-Card1234".
func StatementSource(cardNumber string) string {
	return SourceStatementPrefix + "-" + cardNumber
}

// Ledger is the full ordered collection of transactions, persisted as one
// JSON array. After every merge it is sorted by date, newest first.
type Ledger []Transaction

// Len returns the number of top-level entries.
func (l Ledger) Len() int { return len(l) }

// Walk visits every transaction, including nested sub-transactions, depth first.
// Returning false from fn stops the walk.
func (l Ledger) Walk(fn func(t *Transaction) bool) {
	walk(l, fn)
}

func walk(txns []Transaction, fn func(t *Transaction) bool) bool {
	for i := range txns {
		if !fn(&txns[i]) {
			return false
		}
		if !walk(txns[i].Transactions, fn) {
			return false
		}
	}
	return true
}

// Normalize normalizes every entry in place.
func (l Ledger) Normalize() {
	for i := range l {
		l[i].Normalize()
	}
}
