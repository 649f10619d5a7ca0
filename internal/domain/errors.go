package domain

import "errors"

// Error taxonomy for the audit pipeline. Validation and model-availability
// failures are loud and stop the calling operation; per-rule and
// per-generator failures are contained where they occur and degrade into
// finding details or placeholder text.
var (
	// ErrMissingColumns means the uploaded data does not expose the three
	// canonical ledger fields (date, description, amount).
	ErrMissingColumns = errors.New("ledger is missing required columns")

	// ErrEmptyLedger means normalization dropped every row.
	ErrEmptyLedger = errors.New("ledger has no valid transactions")

	// ErrModelUnavailable means the trained classifier artifact is missing
	// or unreadable. Scoring must fail with this rather than fabricate a
	// default risk.
	ErrModelUnavailable = errors.New("fraud model artifact unavailable")

	// ErrRowOutOfRange means an explanation was requested for a row index
	// the ledger does not contain.
	ErrRowOutOfRange = errors.New("row index out of range")

	// ErrNotFound is returned by repositories and caches for absent records.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput is returned for malformed repository arguments.
	ErrInvalidInput = errors.New("invalid input")
)
