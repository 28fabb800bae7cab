package parser

import (
	"context"
	"io"

	"github.com/rumor-ml/commons.systems/spentsync/internal/domain"
)

// Kind groups extractors by the raw document family they read.
type Kind string

const (
	KindStatement Kind = "statement"
	KindCSV       Kind = "csv"
	KindEmail     Kind = "email"
)

// Kinds lists every document family in reporting order.
var Kinds = []Kind{KindStatement, KindCSV, KindEmail}

// Extractor is the strategy interface for all source document extractors.
// Implementations are stateless apart from injected dependencies.
type Extractor interface {
	// Name returns extractor identifier (e.g., "ofx", "csv-chase")
	Name() string

	// Kind returns the document family this extractor handles
	Kind() Kind

	// CanParse checks if extractor can handle this file
	CanParse(path string, header []byte) bool

	// Extract produces zero or more canonical transactions from one document.
	// Every returned transaction is new; existing ledger entries are never touched.
	Extract(ctx context.Context, r io.Reader, meta *Metadata) ([]domain.Transaction, error)
}
