package domain

import (
	"fmt"
	"strings"
	"time"
)

// Format enumerates supported subtitle output formats. The set is closed:
// rendering dispatches over these tags and nothing else.
type Format string

const (
	FormatSRT Format = "srt"
	FormatVTT Format = "vtt"
	FormatTXT Format = "txt"
)

// ParseFormat validates a format tag supplied by a caller.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatSRT, FormatVTT, FormatTXT:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown subtitle format %q", ErrInvalidRequest, s)
	}
}

// ParseFormats validates and deduplicates a requested format set. An empty
// set is rejected: every job must produce at least one artifact.
func ParseFormats(tags []string) ([]Format, error) {
	if len(tags) == 0 {
		return nil, fmt.Errorf("%w: at least one subtitle format is required", ErrInvalidRequest)
	}
	seen := make(map[Format]bool, len(tags))
	formats := make([]Format, 0, len(tags))
	for _, tag := range tags {
		f, err := ParseFormat(tag)
		if err != nil {
			return nil, err
		}
		if seen[f] {
			continue
		}
		seen[f] = true
		formats = append(formats, f)
	}
	return formats, nil
}

// Subtitle is one serialized artifact in one requested format. Records are
// created only when the owning job completes and are immutable afterwards.
type Subtitle struct {
	ID        string
	JobID     string
	Format    Format
	Content   string
	CreatedAt time.Time
}
