// Package subtitle renders a transcript into serialized subtitle documents.
// Rendering is pure: same transcript in, same bytes out, no I/O.
package subtitle

import (
	"fmt"
	"strings"

	"github.com/King-fly/subtitle-api/internal/domain"
)

// Render serializes a transcript in the requested format. This is the single
// dispatch point over the closed format set.
func Render(f domain.Format, t domain.Transcript) (string, error) {
	switch f {
	case domain.FormatSRT:
		return renderSRT(t), nil
	case domain.FormatVTT:
		return renderVTT(t), nil
	case domain.FormatTXT:
		return renderTXT(t), nil
	default:
		return "", fmt.Errorf("%w: no renderer for format %q", domain.ErrInvalidRequest, f)
	}
}

// ContentType returns the MIME type served for a rendered artifact.
func ContentType(f domain.Format) string {
	switch f {
	case domain.FormatVTT:
		return "text/vtt; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// renderSRT emits indexed blocks with comma-separated millisecond timestamps:
//
//	1
//	00:00:00,000 --> 00:00:01,000
//	hi
func renderSRT(t domain.Transcript) string {
	var b strings.Builder
	for i, seg := range t {
		fmt.Fprintf(&b, "%d\n", i+1)
		fmt.Fprintf(&b, "%s --> %s\n", Timestamp(seg.StartMS, ','), Timestamp(seg.EndMS, ','))
		b.WriteString(strings.TrimSpace(seg.Text))
		b.WriteString("\n\n")
	}
	return b.String()
}

// renderVTT emits a WEBVTT header followed by dot-separated cues.
func renderVTT(t domain.Transcript) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, seg := range t {
		fmt.Fprintf(&b, "%s --> %s\n", Timestamp(seg.StartMS, '.'), Timestamp(seg.EndMS, '.'))
		b.WriteString(strings.TrimSpace(seg.Text))
		b.WriteString("\n\n")
	}
	return b.String()
}

// renderTXT concatenates segment text, one line per segment, no timing.
func renderTXT(t domain.Transcript) string {
	var b strings.Builder
	for _, seg := range t {
		b.WriteString(strings.TrimSpace(seg.Text))
		b.WriteString("\n")
	}
	return b.String()
}

// Timestamp formats a millisecond offset as HH:MM:SS<sep>mmm. The separator
// is ',' for SRT and '.' for VTT; the encoding is lossless for any
// non-negative offset below 100 hours.
func Timestamp(ms int64, sep byte) string {
	if ms < 0 {
		ms = 0
	}
	hours := ms / 3_600_000
	ms %= 3_600_000
	minutes := ms / 60_000
	ms %= 60_000
	seconds := ms / 1_000
	ms %= 1_000
	return fmt.Sprintf("%02d:%02d:%02d%c%03d", hours, minutes, seconds, sep, ms)
}

// ParseTimestamp inverts Timestamp, accepting either separator.
func ParseTimestamp(s string) (int64, error) {
	var hours, minutes, seconds, millis int64
	var sep rune
	n, err := fmt.Sscanf(s, "%02d:%02d:%02d%c%03d", &hours, &minutes, &seconds, &sep, &millis)
	if err != nil || n != 5 {
		return 0, fmt.Errorf("malformed timestamp %q", s)
	}
	if sep != ',' && sep != '.' {
		return 0, fmt.Errorf("malformed timestamp %q", s)
	}
	return hours*3_600_000 + minutes*60_000 + seconds*1_000 + millis, nil
}
