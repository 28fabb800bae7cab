// Package ofx provides the OFX/QFX statement extractor
package ofx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/aclindsa/ofxgo"

	"github.com/rumor-ml/commons.systems/spentsync/internal/domain"
	"github.com/rumor-ml/commons.systems/spentsync/internal/logger"
	"github.com/rumor-ml/commons.systems/spentsync/internal/parser"
	"github.com/rumor-ml/commons.systems/spentsync/internal/transform"
)

// Parser extracts transactions from OFX/QFX statement downloads.
// It holds no state and is safe for concurrent use.
type Parser struct{}

var parserInstance = &Parser{}

// NewParser returns the shared OFX parser instance.
func NewParser() *Parser {
	return parserInstance
}

// Name returns the parser identifier
func (p *Parser) Name() string {
	return "ofx"
}

// Kind returns parser.KindStatement
func (p *Parser) Kind() parser.Kind {
	return parser.KindStatement
}

// CanParse checks if this parser can handle the file based on extension and header
func (p *Parser) CanParse(path string, header []byte) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".ofx" && ext != ".qfx" {
		return false
	}

	// Both v1 SGML and v2 XML headers
	headerUpper := strings.ToUpper(string(header))
	return strings.Contains(headerUpper, "OFXHEADER") ||
		strings.Contains(headerUpper, "<?OFX") ||
		strings.Contains(headerUpper, "<OFX>")
}

// Extract returns every line item of every bank and credit card statement in
// the document. Ids are the bank-assigned FITIDs and amounts are negated so
// purchases are positive.
//
// A document the library cannot parse, one without any statement body, or one
// whose file name lacks the Card#### token fails with domain.ErrMalformedDocument.
// Callers treat that as a recoverable skip.
func (p *Parser) Extract(ctx context.Context, r io.Reader, meta *parser.Metadata) ([]domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	card := ""
	if meta != nil {
		card = meta.CardNumber()
	}
	if card == "" {
		return nil, fmt.Errorf("%w: no Card#### token in file name%s", domain.ErrMalformedDocument, parser.FileInfo(meta))
	}

	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX content%s: %w", parser.FileInfo(meta), err)
	}

	// ofxgo.ParseResponse does not take a context
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	response, err := ofxgo.ParseResponse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse OFX file%s (%d bytes): %v",
			domain.ErrMalformedDocument, parser.FileInfo(meta), len(content), err)
	}

	if len(response.CreditCard) == 0 && len(response.Bank) == 0 {
		return nil, fmt.Errorf("%w: no credit card (CREDITCARDMSGSRSV1) or bank (BANKMSGSRSV1) statement%s",
			domain.ErrMalformedDocument, parser.FileInfo(meta))
	}

	log := logger.FromContext(ctx)
	source := domain.StatementSource(card)
	var out []domain.Transaction

	for i, msg := range append(response.CreditCard, response.Bank...) {
		tranList, err := transactionList(msg)
		if err != nil {
			return nil, fmt.Errorf("%w: statement %d%s: %v", domain.ErrMalformedDocument, i, parser.FileInfo(meta), err)
		}
		if tranList == nil {
			log.Debug().Str("file", meta.FilePath()).Int("statement", i).Msg("statement has no transaction list")
			continue
		}

		for j, txn := range tranList.Transactions {
			t, err := extractTransaction(txn, source)
			if err != nil {
				return nil, fmt.Errorf("%w: statement %d transaction %d%s: %v",
					domain.ErrMalformedDocument, i, j, parser.FileInfo(meta), err)
			}
			out = append(out, *t)
		}
	}

	return out, nil
}

// transactionList returns the BANKTRANLIST of a bank or credit card statement.
// A nil list with a nil error means the statement carried no transactions.
func transactionList(msg ofxgo.Message) (*ofxgo.TransactionList, error) {
	switch stmt := msg.(type) {
	case *ofxgo.CCStatementResponse:
		return stmt.BankTranList, nil
	case *ofxgo.StatementResponse:
		return stmt.BankTranList, nil
	default:
		return nil, fmt.Errorf("unexpected statement type %T", msg)
	}
}

// extractTransaction maps one STMTTRN to a canonical transaction.
func extractTransaction(txn ofxgo.Transaction, source string) (*domain.Transaction, error) {
	id := txn.FiTID.String()
	if id == "" {
		return nil, fmt.Errorf("transaction missing required FITID")
	}

	// Posted date in the offset the statement declares
	posted := txn.DtPosted.Time
	if posted.IsZero() {
		return nil, fmt.Errorf("transaction %s missing posted date", id)
	}
	date := posted.Format(domain.DateLayout)

	description := txn.Name.String()
	if description == "" {
		description = txn.Memo.String()
	}
	description = strings.TrimSpace(description)

	amount, err := transform.NegatedCents(txn.TrnAmt.String())
	if err != nil {
		return nil, fmt.Errorf("transaction %s: %w", id, err)
	}

	return domain.NewTransaction(id, description, id, date, amount, source)
}
