package yt2convert

import "errors"

// Error taxonomy for a job run. Adapter errors wrap one of these sentinels so the
// pipeline and UI can classify failures with errors.Is without parsing messages.
var (
	// ErrInvalidInput means the descriptor was rejected before any subprocess ran.
	ErrInvalidInput = errors.New("invalid job input")
	// ErrToolMissing means a required external binary could not be resolved.
	ErrToolMissing = errors.New("external tool not found")
	// ErrNetwork is a transient download failure, eligible for manual retry.
	ErrNetwork = errors.New("network failure")
	// ErrUnavailable means the source content cannot be extracted (removed,
	// private, region-blocked, age-restricted). Not retryable.
	ErrUnavailable = errors.New("video unavailable")
	// ErrUnsupportedFormat means the requested output format/quality pairing is
	// not one the converter knows how to produce.
	ErrUnsupportedFormat = errors.New("unsupported output format")
	// ErrConversion is a hard converter failure (non-zero exit, corrupt input).
	ErrConversion = errors.New("conversion failed")
	// ErrDiskFull is split out from ErrConversion so the UI can suggest a fix.
	ErrDiskFull = errors.New("not enough disk space")
	// ErrTimeout means the job exceeded its configured overall bound.
	ErrTimeout = errors.New("job timed out")
)
