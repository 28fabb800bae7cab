package email

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/spentsync/internal/domain"
	"github.com/rumor-ml/commons.systems/spentsync/internal/parser"
	"github.com/rumor-ml/commons.systems/spentsync/internal/transform"
)

// crlf joins lines the way raw mail stores them
func crlf(lines ...string) string {
	return strings.Join(lines, "\r\n")
}

func encode(msg string) string {
	return base64.URLEncoding.EncodeToString([]byte(msg))
}

func newMeta(t *testing.T, path string) *parser.Metadata {
	t.Helper()
	meta, err := parser.NewMetadata(path, time.Now())
	require.NoError(t, err)
	return meta
}

func chaseMessage(amountRow string) string {
	return crlf(
		"From: Chase <no.reply.alerts@chase.com>",
		"Subject: Your $1,054.30 transaction with SP IGLOOPRODUCTSCORP",
		"Content-Type: text/html; charset=\"UTF-8\"",
		"Content-Transfer-Encoding: quoted-printable",
		"",
		"<table><tr><td>Date</td><td style=3D\"color:#414042\">Oct 4, 2022 at 11:21 AM ET</td></tr>",
		"<tr><td>Merchant</td><td style=3D\"color:#414042\">SP IGLOOPRODUCT=",
		"SCORP</td></tr>",
		amountRow,
		"</table>",
	)
}

func usaaMessage(subject string, firstPart ...string) string {
	lines := []string{
		"From: USAA <usaa.customer.service@mailcenter.usaa.com>",
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: multipart/alternative; boundary=\"BOUNDARY\"",
		"",
		"--BOUNDARY",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"Content-Transfer-Encoding: quoted-printable",
		"",
	}
	lines = append(lines, firstPart...)
	lines = append(lines,
		"--BOUNDARY",
		"Content-Type: text/html; charset=\"UTF-8\"",
		"",
		"<p>To: SOMEONE ELSE</p>",
		"--BOUNDARY--",
		"",
	)
	return crlf(lines...)
}

func TestName(t *testing.T) {
	p := NewParser(nil)
	assert.Equal(t, "email", p.Name())
	assert.Equal(t, parser.KindEmail, p.Kind())
}

func TestCanParse(t *testing.T) {
	p := NewParser(nil)
	assert.True(t, p.CanParse("downloads/email_raw_18c2f0a1b2.txt", nil))
	assert.False(t, p.CanParse("downloads/email_raw_.txt", nil))
	assert.False(t, p.CanParse("downloads/notes.txt", nil))
	assert.False(t, p.CanParse("downloads/email_raw_1.csv", nil))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		from    string
		subject string
		want    *PatternSet
	}{
		{name: "chase sender", from: "Chase <no.reply.alerts@chase.com>", subject: "Your transaction", want: ChasePatterns},
		{name: "jpmorgan sender", from: "J.P. Morgan <alerts@jpmorgan.com>", subject: "Authorized", want: JPMorganPatterns},
		{name: "sender wins over subject", from: "x@chase.com", subject: "Debit Alert for Your USAA Bank Account", want: ChasePatterns},
		{name: "usaa deposit", from: "usaa@mailcenter.usaa.com", subject: "USAA: Your Bank Account Received a Deposit", want: USAADepositPatterns},
		{name: "usaa deposit v2", from: "usaa@mailcenter.usaa.com", subject: "Deposit to Your Bank Account", want: USAA2DepositPatterns},
		{name: "usaa debit", from: "usaa@mailcenter.usaa.com", subject: "Debit Alert for Your USAA Bank Account", want: USAADebitPatterns},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(tt.from, tt.subject)
			require.NoError(t, err)
			assert.Same(t, tt.want, got)
		})
	}

	_, err := Classify("newsletter@example.com", "Weekly deals")
	assert.True(t, errors.Is(err, domain.ErrUnknownDocumentFormat))
}

func TestUnescape(t *testing.T) {
	in := "a=3D\"b\"=\r\nc=C2=A0d=0D=09e"
	assert.Equal(t, "a=\"b\"c d e", Unescape(in))
}

func TestExtract_ChasePurchase(t *testing.T) {
	msg := chaseMessage("<tr><td>Amount</td><td style=3D\"color:#414042\">$1,054.30</td></tr>")

	txns, err := NewParser(nil).Extract(context.Background(), strings.NewReader(encode(msg)),
		newMeta(t, "downloads/email_raw_18c2f0a1b2.txt"))
	require.NoError(t, err)
	require.Len(t, txns, 1)

	txn := txns[0]
	assert.Equal(t, "18c2f0a1b2", txn.ID)
	assert.Equal(t, "SP IGLOOPRODUCTSCORP", txn.Description)
	assert.Equal(t, "2022-10-04", txn.Date)
	assert.Equal(t, int64(105430), txn.AmountCents)
	assert.Equal(t, "email_chase", txn.Source)
	assert.Equal(t, "Your $1,054.30 transaction with SP IGLOOPRODUCTSCORP", txn.OriginalLine)
	assert.NotNil(t, txn.Tags)
	assert.NotNil(t, txn.Transactions)
}

func TestExtract_ChaseCredit(t *testing.T) {
	msg := chaseMessage("<tr><td>Credit Amount</td><td style=3D\"color:#414042\">$20.00</td></tr>")

	txns, err := NewParser(nil).Extract(context.Background(), strings.NewReader(encode(msg)),
		newMeta(t, "email_raw_abc.txt"))
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, int64(-2000), txns[0].AmountCents)
}

func TestExtract_JPMorgan(t *testing.T) {
	msg := crlf(
		"From: J.P. Morgan <alerts@jpmorgan.com>",
		"Subject: Card transaction authorized",
		"Content-Type: text/html",
		"",
		"<p>Date: 01/02/26</p>",
		"<tr><td>Merchant: </td><td class=3D\"v\"> BLUE BOTTLE COFFEE</td></tr>",
		"<tr><td>Authorized  amount: </td><td class=3D\"v\"> $12.34  </td></tr>",
	)

	txns, err := NewParser(nil).Extract(context.Background(), strings.NewReader(encode(msg)),
		newMeta(t, "email_raw_jpm1.txt"))
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "BLUE BOTTLE COFFEE", txns[0].Description)
	assert.Equal(t, "2026-01-02", txns[0].Date)
	assert.Equal(t, int64(1234), txns[0].AmountCents)
	assert.Equal(t, "email_chase", txns[0].Source)
}

func TestExtract_USAA(t *testing.T) {
	tests := []struct {
		name        string
		subject     string
		part        []string
		description string
		amount      int64
	}{
		{
			name:    "deposit",
			subject: "USAA: Your Bank Account Received a Deposit",
			part: []string{
				"Date: 01/02/26=0D",
				"From: VANGUARD SELL=0D",
				"You received a deposit for $444.98 to your account ending in 9552.=0D",
			},
			description: "VANGUARD SELL",
			amount:      -44498,
		},
		{
			name:    "deposit v2",
			subject: "Deposit to Your Bank Account",
			part: []string{
				"Date: 03/15/25",
				"From: JPMORGAN CHASE",
				"You received a deposit of $1,000.00 to your account ...9552.",
			},
			description: "JPMORGAN CHASE",
			amount:      -100000,
		},
		{
			name:    "debit",
			subject: "Debit Alert for Your USAA Bank Account",
			part: []string{
				"Date: 03/15/25",
				"To: ROCKY MOUNTAIN P SALE=0D",
				"$25.00 came out of your account ending in 9552.",
			},
			description: "ROCKY MOUNTAIN P SALE",
			amount:      2500,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := usaaMessage(tt.subject, tt.part...)
			txns, err := NewParser(nil).Extract(context.Background(), strings.NewReader(encode(msg)),
				newMeta(t, "email_raw_usaa1.txt"))
			require.NoError(t, err)
			require.Len(t, txns, 1)
			assert.Equal(t, tt.description, txns[0].Description)
			assert.Equal(t, tt.amount, txns[0].AmountCents)
			assert.Equal(t, "email_usaa", txns[0].Source)
			assert.Equal(t, tt.subject, txns[0].OriginalLine)
		})
	}
}

func TestExtract_UnpaddedBase64(t *testing.T) {
	msg := chaseMessage("<tr><td>Amount</td><td style=3D\"x\">$5.00</td></tr>")
	raw := base64.RawURLEncoding.EncodeToString([]byte(msg)) + "\n"

	txns, err := NewParser(nil).Extract(context.Background(), strings.NewReader(raw), newMeta(t, "email_raw_x.txt"))
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, int64(500), txns[0].AmountCents)
}

func TestExtract_Latin1Body(t *testing.T) {
	msg := crlf(
		"From: Chase <no.reply.alerts@chase.com>",
		"Subject: Your transaction",
		"Content-Type: text/html; charset=iso-8859-1",
		"",
		"<td>Date</td><td s=\"x\">Oct 4, 2022 at 11:21 AM ET</td>",
		"<td>Merchant</td><td s=\"x\">CAF\xe9 CENTRAL</td>",
		"<td>Amount</td><td s=\"x\">$3.50</td>",
	)

	txns, err := NewParser(nil).Extract(context.Background(), strings.NewReader(encode(msg)), newMeta(t, "email_raw_l1.txt"))
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "CAFé CENTRAL", txns[0].Description)
}

func TestExtract_IDFallsBackToGenerator(t *testing.T) {
	msg := chaseMessage("<tr><td>Amount</td><td style=3D\"x\">$5.00</td></tr>")

	txns, err := NewParser(transform.NewSequenceGenerator("gen-")).Extract(context.Background(), strings.NewReader(encode(msg)), nil)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "gen-1", txns[0].ID)
}

func TestExtract_Errors(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{
			name:    "unknown sender",
			raw:     encode(crlf("From: deals@example.com", "Subject: Weekly deals", "", "hello")),
			wantErr: domain.ErrUnknownDocumentFormat,
		},
		{
			name:    "not base64",
			raw:     "%%% not base64 %%%",
			wantErr: domain.ErrMalformedDocument,
		},
		{
			name:    "usaa alert that is not multipart",
			raw:     encode(crlf("From: usaa@mailcenter.usaa.com", "Subject: Debit Alert for Your USAA Bank Account", "Content-Type: text/plain", "", "To: X")),
			wantErr: domain.ErrMalformedDocument,
		},
		{
			name:    "merchant missing",
			raw:     encode(crlf("From: a@chase.com", "Subject: s", "", ">Oct 4, 2022 at", "<td>Amount</td><td s=\"x\">$5.00</td>")),
			wantErr: domain.ErrFieldExtraction,
		},
		{
			name:    "amount missing",
			raw:     encode(crlf("From: a@chase.com", "Subject: s", "", ">Oct 4, 2022 at", "<td>Merchant</td><td s=\"x\">SHOP</td>")),
			wantErr: domain.ErrFieldExtraction,
		},
		{
			name:    "date missing",
			raw:     encode(crlf("From: a@chase.com", "Subject: s", "", "<td>Merchant</td><td s=\"x\">SHOP</td>", "<td>Amount</td><td s=\"x\">$5.00</td>")),
			wantErr: domain.ErrFieldExtraction,
		},
		{
			name:    "unknown month",
			raw:     encode(crlf("From: a@chase.com", "Subject: s", "", ">Foo 4, 2022 at", "<td>Merchant</td><td s=\"x\">SHOP</td>", "<td>Amount</td><td s=\"x\">$5.00</td>")),
			wantErr: domain.ErrFieldExtraction,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser(nil).Extract(context.Background(), strings.NewReader(tt.raw), newMeta(t, "email_raw_e1.txt"))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}
