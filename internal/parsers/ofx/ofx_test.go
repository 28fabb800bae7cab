package ofx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/spentsync/internal/domain"
	"github.com/rumor-ml/commons.systems/spentsync/internal/parser"
)

const ofxHeader = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240101120000
<LANGUAGE>ENG
<FI>
<ORG>TESTBANK
<FID>12345
</FI>
</SONRS>
</SIGNONMSGSRSV1>
`

// creditCardOFX wraps STMTTRN blocks in a credit card statement
func creditCardOFX(stmttrns string) string {
	return ofxHeader + `<CREDITCARDMSGSRSV1>
<CCSTMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<CCSTMTRS>
<CURDEF>USD
<CCACCTFROM>
<ACCTID>4111111111111234
</CCACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101000000
<DTEND>20240131235959
` + stmttrns + `</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>-500.00
<DTASOF>20240131235959
</LEDGERBAL>
</CCSTMTRS>
</CCSTMTTRNRS>
</CREDITCARDMSGSRSV1>
</OFX>`
}

func stmttrn(trnType, posted, amount, fitid, name, memo string) string {
	s := fmt.Sprintf("<STMTTRN>\n<TRNTYPE>%s\n<DTPOSTED>%s\n<TRNAMT>%s\n<FITID>%s\n", trnType, posted, amount, fitid)
	if name != "" {
		s += "<NAME>" + name + "\n"
	}
	if memo != "" {
		s += "<MEMO>" + memo + "\n"
	}
	return s + "</STMTTRN>\n"
}

func newMeta(t *testing.T, path string) *parser.Metadata {
	t.Helper()
	meta, err := parser.NewMetadata(path, time.Now())
	require.NoError(t, err)
	return meta
}

func TestName(t *testing.T) {
	p := NewParser()
	if got := p.Name(); got != "ofx" {
		t.Errorf("Name() = %q, want %q", got, "ofx")
	}
	if got := p.Kind(); got != parser.KindStatement {
		t.Errorf("Kind() = %q, want %q", got, parser.KindStatement)
	}
}

func TestCanParse(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		header   string
		expected bool
	}{
		{
			name:     "OFX file with OFXHEADER marker",
			path:     "Card1234--2024-01-16.ofx",
			header:   "OFXHEADER:100\nDATA:OFXSGML\n",
			expected: true,
		},
		{
			name:     "OFX file with XML header",
			path:     "test.ofx",
			header:   "<?xml version=\"1.0\"?><?OFX OFXHEADER=\"200\"?>\n",
			expected: true,
		},
		{
			name:     "OFX file with OFX tag",
			path:     "test.ofx",
			header:   "<OFX><SIGNONMSGSRSV1>",
			expected: true,
		},
		{
			name:     "QFX extension uppercase",
			path:     "test.QFX",
			header:   "OFXHEADER:100\n",
			expected: true,
		},
		{
			name:     "OFX file without valid header",
			path:     "test.ofx",
			header:   "This is not OFX content",
			expected: false,
		},
		{
			name:     "CSV file",
			path:     "Chase1234_Activity.csv",
			header:   "Transaction Date,Post Date,Description\n",
			expected: false,
		},
		{
			name:     "Wrong extension even with OFX content",
			path:     "test.pdf",
			header:   "OFXHEADER:100\n",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewParser().CanParse(tt.path, []byte(tt.header))
			if got != tt.expected {
				t.Errorf("CanParse() = %v, want %v", got, tt.expected)
			}
		})
	}
}

// Two line items with distinct bank ids produce two statement-sourced entries.
func TestExtract_CreditCardStatement(t *testing.T) {
	content := creditCardOFX(
		stmttrn("DEBIT", "20240110120000", "-25.99", "CC001", "AMAZON MKTPL", "") +
			stmttrn("CREDIT", "20240115120000", "100.00", "CC002", "PAYMENT THANK YOU", ""),
	)

	txns, err := NewParser().Extract(context.Background(), strings.NewReader(content),
		newMeta(t, "/downloads/Card1234--2024-01-31.10.00.00.ofx"))
	require.NoError(t, err)
	require.Len(t, txns, 2)

	first := txns[0]
	assert.Equal(t, "CC001", first.ID)
	assert.Equal(t, "CC001", first.OriginalLine)
	assert.Equal(t, "AMAZON MKTPL", first.Description)
	assert.Equal(t, "2024-01-10", first.Date)
	assert.Equal(t, int64(2599), first.AmountCents, "purchase must be positive")
	assert.Equal(t, "ofx-Card1234", first.Source)
	assert.Empty(t, first.Tags)
	assert.NotNil(t, first.Tags)
	assert.Empty(t, first.Transactions)
	assert.Empty(t, first.Notes)

	second := txns[1]
	assert.Equal(t, "CC002", second.ID)
	assert.Equal(t, int64(-10000), second.AmountCents, "credit must be negative")
	assert.True(t, second.IsStatement())
}

// Posting dates stay in the offset the statement declares and are not
// shifted to UTC, so a purchase late in the evening keeps its local day.
func TestExtract_PostedDateKeepsStatementOffset(t *testing.T) {
	tests := []struct {
		name   string
		posted string
		want   string
	}{
		{name: "evening in US eastern", posted: "20240115200000[-5:EST]", want: "2024-01-15"},
		{name: "early morning east of UTC", posted: "20240116010000[+9:JST]", want: "2024-01-16"},
		{name: "no offset", posted: "20240115200000", want: "2024-01-15"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := creditCardOFX(stmttrn("DEBIT", tt.posted, "-1.00", "CC001", "SHOP", ""))
			txns, err := NewParser().Extract(context.Background(), strings.NewReader(content),
				newMeta(t, "/downloads/Card1234--2024-01-31.10.00.00.ofx"))
			require.NoError(t, err)
			require.Len(t, txns, 1)
			assert.Equal(t, tt.want, txns[0].Date)
		})
	}
}

func TestExtract_BankStatement(t *testing.T) {
	content := ofxHeader + `<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>USD
<BANKACCTFROM>
<BANKID>123456789
<ACCTID>9876543210
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101000000
<DTEND>20240131235959
` + stmttrn("DEBIT", "20240105120000", "-50.00", "TXN001", "", "Coffee Shop") + `</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>2000.00
<DTASOF>20240131235959
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`

	txns, err := NewParser().Extract(context.Background(), strings.NewReader(content),
		newMeta(t, "Card9876--2024-01-31.ofx"))
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "Coffee Shop", txns[0].Description, "memo is used when name is absent")
	assert.Equal(t, int64(5000), txns[0].AmountCents)
	assert.Equal(t, "ofx-Card9876", txns[0].Source)
}

func TestExtract_ExactAmounts(t *testing.T) {
	tests := []struct {
		amount string
		want   int64
	}{
		{amount: "-0.29", want: 29},
		{amount: "-1234.56", want: 123456},
		{amount: "-19.99", want: 1999},
		{amount: "0.01", want: -1},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			content := creditCardOFX(stmttrn("DEBIT", "20240110", tt.amount, "X1", "SHOP", ""))
			txns, err := NewParser().Extract(context.Background(), strings.NewReader(content),
				newMeta(t, "Card1234--x.ofx"))
			require.NoError(t, err)
			require.Len(t, txns, 1)
			assert.Equal(t, tt.want, txns[0].AmountCents)
		})
	}
}

func TestExtract_EmptyTransactionList(t *testing.T) {
	txns, err := NewParser().Extract(context.Background(), strings.NewReader(creditCardOFX("")),
		newMeta(t, "Card1234--x.ofx"))
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestExtract_MalformedDocument(t *testing.T) {
	noStatement := ofxHeader + "</OFX>"

	tests := []struct {
		name    string
		path    string
		content string
	}{
		{
			name:    "file name without card token",
			path:    "statement.ofx",
			content: creditCardOFX(stmttrn("DEBIT", "20240110", "-1.00", "A", "SHOP", "")),
		},
		{
			name:    "not OFX",
			path:    "Card1234--x.ofx",
			content: "this is not an OFX file",
		},
		{
			name:    "no statement body",
			path:    "Card1234--x.ofx",
			content: noStatement,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser().Extract(context.Background(), strings.NewReader(tt.content), newMeta(t, tt.path))
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrMalformedDocument), "got %v", err)
		})
	}
}

func TestExtract_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewParser().Extract(ctx, strings.NewReader(creditCardOFX("")), newMeta(t, "Card1234--x.ofx"))
	assert.ErrorIs(t, err, context.Canceled)
}
