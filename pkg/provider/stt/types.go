package stt

import (
	"strings"
	"time"
)

// Transcript is the result of transcribing one utterance.
type Transcript struct {
	// Text is the full transcribed content, whitespace-trimmed.
	Text string

	// Language is the detected or requested language, if the engine reports it.
	Language string

	// Segments holds per-segment detail when the engine provides it.
	Segments []Segment

	// Duration is the audio length of the transcribed utterance.
	Duration time.Duration
}

// Segment is one timed span of recognised text.
type Segment struct {
	Text  string
	Start time.Duration
	End   time.Duration
}

// JoinSegments concatenates segment texts with single spaces and trims the
// result.
func JoinSegments(segs []Segment) string {
	var b strings.Builder
	for _, s := range segs {
		t := strings.TrimSpace(s.Text)
		if t == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(t)
	}
	return b.String()
}
