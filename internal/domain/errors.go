package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrBackpressure        = errors.New("job queue saturated")
	ErrConflict            = errors.New("conflicting state transition")
	ErrUnsupportedFormat   = errors.New("unsupported media format")
	ErrExtractionFailed    = errors.New("audio extraction failed")
	ErrModelUnavailable    = errors.New("recognition model unavailable")
	ErrTranscriptionFailed = errors.New("transcription failed")
	ErrTimeout             = errors.New("stage timed out")
)

// IsTransient reports whether a stage failure is worth retrying. Timeouts
// and a busy/missing model are timing failures; everything else is an input
// or capability failure that retrying cannot fix.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrModelUnavailable)
}

// Cause maps an error to the stable categorized string stored on a failed
// job. Callers see these codes, never internal error chains.
func Cause(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, ErrExtractionFailed):
		return "extraction_failed"
	case errors.Is(err, ErrModelUnavailable):
		return "model_unavailable"
	case errors.Is(err, ErrTranscriptionFailed):
		return "transcription_failed"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrBackpressure):
		return "backpressure"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "internal"
	}
}
