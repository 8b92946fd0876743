package transcribe

import (
	"errors"
	"testing"

	"github.com/King-fly/subtitle-api/internal/domain"
)

func TestParseSegmentsEnforcesOrdering(t *testing.T) {
	raw := []byte(`{"transcription":[
		{"offsets":{"from":5000,"to":6000},"text":" later"},
		{"offsets":{"from":0,"to":1000},"text":" first"},
		{"offsets":{"from":2000,"to":3000},"text":" middle"}
	]}`)

	got, err := parseSegments(raw)
	if err != nil {
		t.Fatalf("parseSegments returned error: %v", err)
	}
	want := domain.Transcript{
		{StartMS: 0, EndMS: 1000, Text: "first"},
		{StartMS: 2000, EndMS: 3000, Text: "middle"},
		{StartMS: 5000, EndMS: 6000, Text: "later"},
	}
	if len(got) != len(want) {
		t.Fatalf("segment count = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("segment %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestParseSegmentsDropsEmptyAndDegenerate(t *testing.T) {
	raw := []byte(`{"transcription":[
		{"offsets":{"from":0,"to":1000},"text":"   "},
		{"offsets":{"from":1000,"to":1000},"text":"zero length"},
		{"offsets":{"from":2000,"to":3000},"text":" keep"}
	]}`)

	got, err := parseSegments(raw)
	if err != nil {
		t.Fatalf("parseSegments returned error: %v", err)
	}
	if len(got) != 1 || got[0].Text != "keep" {
		t.Fatalf("unexpected transcript: %+v", got)
	}
}

func TestParseSegmentsRejectsEmptyResult(t *testing.T) {
	_, err := parseSegments([]byte(`{"transcription":[]}`))
	if !errors.Is(err, domain.ErrTranscriptionFailed) {
		t.Fatalf("err = %v, want ErrTranscriptionFailed", err)
	}
}

func TestParseSegmentsRejectsGarbage(t *testing.T) {
	_, err := parseSegments([]byte(`not json`))
	if !errors.Is(err, domain.ErrTranscriptionFailed) {
		t.Fatalf("err = %v, want ErrTranscriptionFailed", err)
	}
}

func TestNormalizeLanguage(t *testing.T) {
	tests := []struct {
		hint string
		want string
	}{
		{"", ""},
		{"auto", ""},
		{"en", "en"},
		{"EN", "en"},
		{"en-US", "en"},
		{"zh-Hans", "zh"},
		{"12345", ""},
	}
	for _, tc := range tests {
		t.Run(tc.hint, func(t *testing.T) {
			if got := NormalizeLanguage(tc.hint); got != tc.want {
				t.Fatalf("NormalizeLanguage(%q) = %q, want %q", tc.hint, got, tc.want)
			}
		})
	}
}
