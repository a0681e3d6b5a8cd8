// Package journal records what the assistant heard and what it answered.
//
// Entries are appended by the transcript handler after every transcription
// and every spoken answer. The journal is optional: when no store is
// configured the application uses [Nop].
package journal

import (
	"context"
	"time"
)

// Kind distinguishes journal entries.
type Kind string

const (
	// KindTranscript is a transcription of one drained utterance.
	KindTranscript Kind = "transcript"

	// KindFiltered is a transcript that did not start with a wake phrase and
	// was not forwarded to the language model.
	KindFiltered Kind = "filtered"

	// KindAnswer is the language model's answer to a transcript.
	KindAnswer Kind = "answer"
)

// Entry is a single journal line.
type Entry struct {
	// Session identifies the process run that produced the entry.
	Session string

	// Utterance is the drain sequence number the entry belongs to. A
	// transcript and its answer share the same value.
	Utterance uint64

	Kind     Kind
	Text     string
	Language string

	// Duration is the audio length for transcripts and the end-to-end
	// response latency for answers.
	Duration time.Duration

	At time.Time
}

// Store persists journal entries.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Append writes e. Entries with empty Text are still recorded.
	Append(ctx context.Context, e Entry) error

	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)

	// Close releases the store's resources.
	Close()
}

// Nop is a [Store] that discards everything.
type Nop struct{}

var _ Store = Nop{}

func (Nop) Append(context.Context, Entry) error { return nil }

func (Nop) Recent(context.Context, int) ([]Entry, error) { return nil, nil }

func (Nop) Close() {}
