package parser

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Metadata contains context about the file being extracted, derived from its name.
//
// Download tooling encodes provenance in file names:
//
//	Card1234--2024-01-16.10.00.00.ofx   statement for the card ending 1234
//	email_raw_18c2f0a1b2.txt            raw mail with message id 18c2f0a1b2
//
// CardNumber and MessageID return empty strings when the name does not carry them.
type Metadata struct {
	filePath   string
	cardNumber string // "Card1234"
	messageID  string
	detectedAt time.Time
}

var (
	cardPattern      = regexp.MustCompile(`(Card\d{4})--`)
	emailNamePattern = regexp.MustCompile(`^email_raw_(.+)\.txt$`)
)

// NewMetadata creates a new Metadata instance with validated required fields
// and fills in whatever provenance the file name carries.
func NewMetadata(filePath string, detectedAt time.Time) (*Metadata, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}
	if detectedAt.IsZero() {
		return nil, fmt.Errorf("detected time cannot be zero")
	}

	m := &Metadata{
		filePath:   filePath,
		detectedAt: detectedAt,
	}
	if match := cardPattern.FindStringSubmatch(filepath.ToSlash(filePath)); match != nil {
		m.cardNumber = match[1]
	}
	m.messageID = MessageIDFromName(filepath.Base(filePath))
	return m, nil
}

// MessageIDFromName extracts the message id from an email_raw_<id>.txt name.
// The id is the text after the last underscore, so ids never contain one.
func MessageIDFromName(name string) string {
	if !emailNamePattern.MatchString(name) {
		return ""
	}
	stem := strings.TrimSuffix(name, ".txt")
	return stem[strings.LastIndex(stem, "_")+1:]
}

// FilePath returns the file path
func (m *Metadata) FilePath() string {
	return m.filePath
}

// CardNumber returns the "Card####" token from the file name
func (m *Metadata) CardNumber() string {
	return m.cardNumber
}

// MessageID returns the mail message id from the file name
func (m *Metadata) MessageID() string {
	return m.messageID
}

// DetectedAt returns the timestamp when the file was detected
func (m *Metadata) DetectedAt() time.Time {
	return m.detectedAt
}

// FileInfo returns a " from <path>" suffix for error messages
func FileInfo(meta *Metadata) string {
	if meta != nil && meta.FilePath() != "" {
		return fmt.Sprintf(" from %s", meta.FilePath())
	}
	return ""
}
