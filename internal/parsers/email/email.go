// Package email extracts transactions from bank alert emails saved as
// base64url encoded raw messages (email_raw_<message-id>.txt).
package email

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/rumor-ml/commons.systems/spentsync/internal/domain"
	"github.com/rumor-ml/commons.systems/spentsync/internal/logger"
	"github.com/rumor-ml/commons.systems/spentsync/internal/parser"
	"github.com/rumor-ml/commons.systems/spentsync/internal/transform"
)

var (
	// Date: >Oct 14, 2022 at 11:21 AM ET<
	longDatePattern = regexp.MustCompile(`(?ms)> ?(?P<mmm>\w+) (?P<dd>\d+), (?P<yyyy>\d+) `)
	// Date: 01/02/26
	shortDatePattern = regexp.MustCompile(`(?ms)Date: (?P<mm>\d\d)/(?P<dd>\d\d)/(?P<yy>\d\d)`)

	// Soft line breaks and the escapes that matter to the patterns
	unescaper = strings.NewReplacer(
		"=\r\n", "",
		"=3D", "=",
		"=C2=A0", " ",
		"=0D=09", " ",
	)
)

// Parser extracts one transaction per alert email.
type Parser struct {
	ids transform.IDGenerator
}

// NewParser creates an email parser. ids supplies the transaction id when the
// file name carries no message id; nil means random ids.
func NewParser(ids transform.IDGenerator) *Parser {
	if ids == nil {
		ids = transform.UUIDGenerator{}
	}
	return &Parser{ids: ids}
}

// Name returns the parser identifier
func (p *Parser) Name() string {
	return "email"
}

// Kind returns parser.KindEmail
func (p *Parser) Kind() parser.Kind {
	return parser.KindEmail
}

// CanParse matches the email_raw_<message-id>.txt naming convention
func (p *Parser) CanParse(path string, header []byte) bool {
	return parser.MessageIDFromName(filepath.Base(path)) != ""
}

// Extract decodes the message, classifies it and applies the matching pattern
// set. The id is the mail message id, so re-downloading an alert yields the
// same id.
func (p *Parser) Extract(ctx context.Context, r io.Reader, meta *parser.Metadata) ([]domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read email%s: %w", parser.FileInfo(meta), err)
	}

	msg, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w%s: %v", domain.ErrMalformedDocument, parser.FileInfo(meta), err)
	}

	from := msg.Header.Get("From")
	subject := decodeHeader(msg.Header.Get("Subject"))

	patterns, err := Classify(from, subject)
	if err != nil {
		return nil, fmt.Errorf("%w%s", err, parser.FileInfo(meta))
	}
	log := logger.FromContext(ctx)
	log.Debug().
		Str("patterns", patterns.Name).
		Str("subject", subject).
		Msg("classified email")

	body, err := payload(msg, patterns.FirstPart)
	if err != nil {
		return nil, fmt.Errorf("%w%s: %v", domain.ErrMalformedDocument, parser.FileInfo(meta), err)
	}

	id := ""
	if meta != nil {
		id = meta.MessageID()
	}
	if id == "" {
		id = p.ids.NewID()
	}

	originalLine := subject
	if originalLine == "" {
		originalLine = id
	}

	txn, err := extractFields(Unescape(body), patterns, id, originalLine)
	if err != nil {
		return nil, fmt.Errorf("%s%s: %w", patterns.Name, parser.FileInfo(meta), err)
	}
	return []domain.Transaction{*txn}, nil
}

// Decode reverses the base64url envelope (padded or not) and parses the
// message headers. Payloads that are not UTF-8 are transcoded using the
// charset named in Content-Type.
func Decode(raw []byte) (*mail.Message, error) {
	encoded := strings.TrimRight(strings.TrimSpace(string(raw)), "=")
	decoded, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		decoded, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 payload: %w", err)
		}
	}

	msg, err := mail.ReadMessage(bytes.NewReader(decoded))
	if err != nil {
		return nil, fmt.Errorf("invalid mail message: %w", err)
	}
	if utf8.Valid(decoded) {
		return msg, nil
	}

	body, err := io.ReadAll(msg.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read mail body: %w", err)
	}
	transcoded, err := toUTF8(body, msg.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}
	msg.Body = bytes.NewReader(transcoded)
	return msg, nil
}

// toUTF8 transcodes body from the charset parameter of contentType.
// Without a charset parameter the body is returned unchanged.
func toUTF8(body []byte, contentType string) ([]byte, error) {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil || params["charset"] == "" {
		return body, nil
	}
	enc, err := htmlindex.Get(params["charset"])
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", params["charset"], err)
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s body: %w", params["charset"], err)
	}
	return out, nil
}

func decodeHeader(value string) string {
	decoded, err := new(mime.WordDecoder).DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

// payload returns the raw, still transfer-encoded body, or the raw body of
// the first MIME part.
func payload(msg *mail.Message, firstPart bool) (string, error) {
	if !firstPart {
		body, err := io.ReadAll(msg.Body)
		if err != nil {
			return "", fmt.Errorf("failed to read body: %w", err)
		}
		return string(body), nil
	}

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("invalid Content-Type: %w", err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		return "", fmt.Errorf("expected a multipart message, got %q", mediaType)
	}

	part, err := multipart.NewReader(msg.Body, params["boundary"]).NextRawPart()
	if err != nil {
		return "", fmt.Errorf("failed to read first part: %w", err)
	}
	defer part.Close()

	body, err := io.ReadAll(part)
	if err != nil {
		return "", fmt.Errorf("failed to read first part: %w", err)
	}
	return string(body), nil
}

// Unescape removes quoted-printable soft line breaks and the handful of
// escapes that appear inside the fields the patterns capture.
func Unescape(body string) string {
	return unescaper.Replace(body)
}

// extractFields applies the date, description and amount patterns to body.
func extractFields(body string, patterns *PatternSet, id, originalLine string) (*domain.Transaction, error) {
	date, err := extractDate(body)
	if err != nil {
		return nil, err
	}

	m := patterns.Description.FindStringSubmatch(body)
	if m == nil {
		return nil, fmt.Errorf("%w: description not found", domain.ErrFieldExtraction)
	}
	description := m[patterns.Description.SubexpIndex("description")]

	amount, err := extractAmount(body, patterns)
	if err != nil {
		return nil, err
	}

	txn, err := domain.NewTransaction(id, description, originalLine, date, amount, patterns.Source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFieldExtraction, err)
	}
	return txn, nil
}

// extractDate tries "Mon DD, YYYY" first, then "Date: MM/DD/YY" read as 20YY.
func extractDate(body string) (string, error) {
	if m := longDatePattern.FindStringSubmatch(body); m != nil {
		mmm := m[longDatePattern.SubexpIndex("mmm")]
		mm, ok := transform.MonthNumber(mmm)
		if !ok {
			return "", fmt.Errorf("%w: unknown month %q", domain.ErrFieldExtraction, mmm)
		}
		dd := transform.PadDay(m[longDatePattern.SubexpIndex("dd")])
		yyyy := m[longDatePattern.SubexpIndex("yyyy")]
		return fmt.Sprintf("%s-%s-%s", yyyy, mm, dd), nil
	}

	if m := shortDatePattern.FindStringSubmatch(body); m != nil {
		mm := m[shortDatePattern.SubexpIndex("mm")]
		dd := m[shortDatePattern.SubexpIndex("dd")]
		yyyy := "20" + m[shortDatePattern.SubexpIndex("yy")]
		return fmt.Sprintf("%s-%s-%s", yyyy, mm, dd), nil
	}

	return "", fmt.Errorf("%w: date not found", domain.ErrFieldExtraction)
}

// extractAmount returns the debit amount, or the negated credit amount.
func extractAmount(body string, patterns *PatternSet) (int64, error) {
	for _, c := range []struct {
		re   *regexp.Regexp
		sign int64
	}{
		{re: patterns.Debit, sign: 1},
		{re: patterns.Credit, sign: -1},
	} {
		if c.re == nil {
			continue
		}
		m := c.re.FindStringSubmatch(body)
		if m == nil {
			continue
		}
		cents, err := transform.ParseCents(m[c.re.SubexpIndex("amount")])
		if err != nil {
			return 0, fmt.Errorf("%w: %v", domain.ErrFieldExtraction, err)
		}
		return cents * c.sign, nil
	}
	return 0, fmt.Errorf("%w: amount not found", domain.ErrFieldExtraction)
}
