package domain

// Segment is one recognized utterance with millisecond offsets relative to
// the start of the source media.
type Segment struct {
	StartMS int64
	EndMS   int64
	Text    string
}

// Transcript is the normalized recognition result: time-ordered segments,
// the single source from which every requested output format is derived.
type Transcript []Segment

// DurationMS returns the end offset of the last segment.
func (t Transcript) DurationMS() int64 {
	if len(t) == 0 {
		return 0
	}
	return t[len(t)-1].EndMS
}
