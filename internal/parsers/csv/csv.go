// Package csv provides the bank CSV export extractors
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/rumor-ml/commons.systems/spentsync/internal/domain"
	"github.com/rumor-ml/commons.systems/spentsync/internal/parser"
	"github.com/rumor-ml/commons.systems/spentsync/internal/transform"
)

// Layout describes the fixed column positions of one bank's CSV export.
type Layout struct {
	// Name identifies the extractor ("csv-chase")
	Name string
	// Source is the tag stamped on every extracted transaction
	Source string
	// Header lists the leading column names of the export's header row.
	// Header[0] is the sentinel used to recognise header rows.
	Header []string
	// DateCol, DescriptionCol and AmountCol are zero-based column indexes
	DateCol        int
	DescriptionCol int
	AmountCol      int
	// ParseDate converts the raw date column to YYYY-MM-DD
	ParseDate func(string) (string, error)
	// FileHint selects the layout from the file's base name
	FileHint func(base string) bool
}

// Columns is the minimum number of fields a data row must have.
func (l Layout) Columns() int {
	return len(l.Header)
}

// Sentinel is the first-column value that marks a header row.
func (l Layout) Sentinel() string {
	return l.Header[0]
}

// ChaseLayout: Transaction Date, Post Date, Description, Category, Type, Amount.
// The ledger date is the post date.
var ChaseLayout = Layout{
	Name:           "csv-chase",
	Source:         domain.SourceChaseCSV,
	Header:         []string{"Transaction Date", "Post Date", "Description", "Category", "Type", "Amount"},
	DateCol:        1,
	DescriptionCol: 2,
	AmountCol:      5,
	ParseDate:      transform.SlashDateToISO,
	FileHint: func(base string) bool {
		return strings.Contains(base, "Chase")
	},
}

// USAALayout: Date, Description, Original Description, Category, Amount.
// It is the fallback for any CSV that is not a Chase export.
var USAALayout = Layout{
	Name:           "csv-usaa",
	Source:         domain.SourceUSAACSV,
	Header:         []string{"Date", "Description", "Original Description", "Category", "Amount"},
	DateCol:        0,
	DescriptionCol: 1,
	AmountCol:      4,
	ParseDate:      transform.DashDateToISO,
	FileHint: func(base string) bool {
		return !strings.Contains(base, "Chase")
	},
}

// Parser extracts transactions from one CSV layout. CSV rows carry no stable
// id, so each row gets a fresh id from the injected generator.
type Parser struct {
	layout       Layout
	ids          transform.IDGenerator
	strictHeader bool
}

// Option configures a Parser
type Option func(*Parser)

// WithStrictHeader requires the first row to be the layout's header and every
// row to have as many fields as the header. Without it a malformed header is
// read as data and fails field extraction.
func WithStrictHeader(strict bool) Option {
	return func(p *Parser) {
		p.strictHeader = strict
	}
}

// WithIDGenerator replaces the default random id generator.
func WithIDGenerator(ids transform.IDGenerator) Option {
	return func(p *Parser) {
		if ids != nil {
			p.ids = ids
		}
	}
}

// NewParser creates a parser for the given layout
func NewParser(layout Layout, opts ...Option) *Parser {
	p := &Parser{
		layout: layout,
		ids:    transform.UUIDGenerator{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewChaseParser creates a parser for Chase exports
func NewChaseParser(opts ...Option) *Parser {
	return NewParser(ChaseLayout, opts...)
}

// NewUSAAParser creates a parser for USAA exports
func NewUSAAParser(opts ...Option) *Parser {
	return NewParser(USAALayout, opts...)
}

// Name returns the parser identifier
func (p *Parser) Name() string {
	return p.layout.Name
}

// Kind returns parser.KindCSV
func (p *Parser) Kind() parser.Kind {
	return parser.KindCSV
}

// CanParse checks the .csv extension and the layout's file name hint.
// Header content is not inspected; exports are told apart by name.
func (p *Parser) CanParse(path string, header []byte) bool {
	if strings.ToLower(filepath.Ext(path)) != ".csv" {
		return false
	}
	return p.layout.FileHint(filepath.Base(path))
}

// Extract reads every data row. Header rows (first column equal to the
// sentinel) and empty rows are skipped. Any row whose date or amount cannot be
// read fails the whole document with domain.ErrFieldExtraction.
func (p *Parser) Extract(ctx context.Context, r io.Reader, meta *parser.Metadata) ([]domain.Transaction, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	csvReader := csv.NewReader(r)
	csvReader.LazyQuotes = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read CSV content%s: %v", domain.ErrMalformedDocument, parser.FileInfo(meta), err)
	}

	start := 0
	if p.strictHeader && len(records) > 0 {
		if err := p.checkHeader(records); err != nil {
			return nil, fmt.Errorf("%w%s: %v", domain.ErrMalformedDocument, parser.FileInfo(meta), err)
		}
		start = 1
	}

	transactions := make([]domain.Transaction, 0, len(records))
	for i := start; i < len(records); i++ {
		record := records[i]
		if isEmptyRow(record) || record[0] == p.layout.Sentinel() {
			continue
		}

		txn, err := p.parseRow(record)
		if err != nil {
			return nil, fmt.Errorf("failed to parse row %d%s: %w", i+1, parser.FileInfo(meta), err)
		}
		transactions = append(transactions, *txn)
	}

	return transactions, nil
}

// checkHeader validates the leading header names and every row's width.
func (p *Parser) checkHeader(records [][]string) error {
	header := records[0]
	if len(header) < p.layout.Columns() {
		return fmt.Errorf("header has %d columns, want at least %d", len(header), p.layout.Columns())
	}
	for i, want := range p.layout.Header {
		if got := strings.TrimSpace(header[i]); !strings.EqualFold(got, want) {
			return fmt.Errorf("header column %d is %q, want %q", i+1, got, want)
		}
	}
	for i, record := range records[1:] {
		if isEmptyRow(record) {
			continue
		}
		if len(record) != len(header) {
			return fmt.Errorf("row %d has %d columns, header has %d", i+2, len(record), len(header))
		}
	}
	return nil
}

// parseRow maps one data row to a canonical transaction
func (p *Parser) parseRow(record []string) (*domain.Transaction, error) {
	if len(record) < p.layout.Columns() {
		return nil, fmt.Errorf("%w: row has %d columns, want at least %d",
			domain.ErrFieldExtraction, len(record), p.layout.Columns())
	}

	date, err := p.layout.ParseDate(record[p.layout.DateCol])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFieldExtraction, err)
	}

	// Exports report purchases as negative amounts
	amount, err := transform.NegatedCents(record[p.layout.AmountCol])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFieldExtraction, err)
	}

	txn, err := domain.NewTransaction(
		p.ids.NewID(),
		record[p.layout.DescriptionCol],
		strings.Join(record, ","),
		date,
		amount,
		p.layout.Source,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFieldExtraction, err)
	}
	return txn, nil
}

func isEmptyRow(record []string) bool {
	return len(record) == 0 || (len(record) == 1 && strings.TrimSpace(record[0]) == "")
}
