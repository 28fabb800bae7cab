package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rumor-ml/commons.systems/spentsync/internal/domain"
)

// WriteOptions configures where a ledger is written
type WriteOptions struct {
	FilePath string // empty = stdout
}

// WriteLedger serializes the ledger as one JSON array with 2-space
// indentation. HTML characters in descriptions are written as-is.
func WriteLedger(ledger domain.Ledger, w io.Writer) error {
	if ledger == nil {
		ledger = domain.Ledger{}
	}
	ledger.Normalize()

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(ledger); err != nil {
		return fmt.Errorf("failed to encode ledger as JSON: %w", err)
	}
	return nil
}

// EncodeLedger returns the serialized ledger
func EncodeLedger(ledger domain.Ledger) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteLedger(ledger, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadLedger decodes a ledger document. A JSON null or empty input is an
// empty ledger. Missing tags and transactions arrays are filled in.
func ReadLedger(r io.Reader) (domain.Ledger, error) {
	var ledger domain.Ledger
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&ledger); err != nil {
		if err == io.EOF {
			return domain.Ledger{}, nil
		}
		return nil, fmt.Errorf("failed to decode ledger JSON: %w", err)
	}
	if ledger == nil {
		ledger = domain.Ledger{}
	}
	ledger.Normalize()
	return ledger, nil
}

// DecodeLedger decodes a ledger from bytes
func DecodeLedger(data []byte) (domain.Ledger, error) {
	return ReadLedger(bytes.NewReader(data))
}

// WriteLedgerToFile writes the ledger to a file or stdout based on options
func WriteLedgerToFile(ledger domain.Ledger, opts WriteOptions) (err error) {
	if opts.FilePath == "" {
		return WriteLedger(ledger, os.Stdout)
	}

	f, err := os.Create(opts.FilePath)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", opts.FilePath, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close output file %s: %w", opts.FilePath, closeErr)
		}
	}()

	if err = WriteLedger(ledger, f); err != nil {
		return fmt.Errorf("failed to write ledger to %s: %w", opts.FilePath, err)
	}
	return nil
}
