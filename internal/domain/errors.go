package domain

import "errors"

// Error kinds. Callers wrap these with context and match with errors.Is.
var (
	// ErrMalformedDocument means a source file is structurally unreadable or is
	// missing an expected section. For statement files this is a recoverable skip.
	ErrMalformedDocument = errors.New("malformed document")

	// ErrUnknownDocumentFormat means an email matched none of the known
	// sender/subject pattern sets.
	ErrUnknownDocumentFormat = errors.New("unknown document format")

	// ErrFieldExtraction means a required field could not be captured from an
	// otherwise recognized document.
	ErrFieldExtraction = errors.New("field extraction failure")

	// ErrStoreUnavailable means the ledger could not be read from or written to
	// its store.
	ErrStoreUnavailable = errors.New("ledger store unavailable")

	// ErrConflict means the stored ledger changed since it was loaded and a
	// conditional write was refused.
	ErrConflict = errors.New("ledger changed since load")
)
