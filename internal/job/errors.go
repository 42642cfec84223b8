package job

import "errors"

var (
	// ErrCancelled marks a job that was stopped by an explicit cancel.
	// Its text is the caller-visible cancellation marker.
	ErrCancelled = errors.New("download cancelled")

	// ErrRetriesExhausted is returned when a part has used up its retry
	// budget on transient failures.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrFileCreate is returned when the destination file cannot be
	// created or pre-sized.
	ErrFileCreate = errors.New("failed to create destination file")

	// ErrFileWrite is returned when writing downloaded data fails.
	ErrFileWrite = errors.New("failed to write to destination file")
)
