// Package transcript post-processes recognised utterances before they reach
// the language model.
//
// [WakeFilter] restricts answering to utterances that begin with a configured
// wake phrase. Matching is phonetic (see the phonetic subpackage), so
// recognition errors in the wake phrase itself do not cause missed
// activations.
package transcript

import (
	"sync/atomic"

	"github.com/MrWong99/voxgate/internal/transcript/phonetic"
)

// Decision is the outcome of [WakeFilter.Check].
type Decision struct {
	// Accept reports whether the utterance should be answered.
	Accept bool

	// Question is the text to answer: the transcript with the wake phrase
	// removed. Empty when the utterance was only the wake phrase.
	Question string

	// Phrase is the matched wake phrase. Empty when the filter is disabled.
	Phrase string

	// Score is the similarity of the matched phrase.
	Score float64
}

type wakeState struct {
	phrases []string
	matcher *phonetic.Matcher
}

// WakeFilter decides which transcripts are answered. With no phrases
// configured every transcript is accepted unchanged. It is safe for concurrent
// use; [WakeFilter.Update] swaps the configuration atomically.
type WakeFilter struct {
	state atomic.Pointer[wakeState]
}

// NewWakeFilter creates a filter for phrases. A threshold of 0 uses the
// matcher default.
func NewWakeFilter(phrases []string, threshold float64) *WakeFilter {
	f := &WakeFilter{}
	f.Update(phrases, threshold)
	return f
}

// Update replaces the phrases and threshold.
func (f *WakeFilter) Update(phrases []string, threshold float64) {
	kept := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if len(phonetic.Words(p)) > 0 {
			kept = append(kept, p)
		}
	}
	f.state.Store(&wakeState{
		phrases: kept,
		matcher: phonetic.New(phonetic.WithThreshold(threshold)),
	})
}

// Enabled reports whether any wake phrase is configured.
func (f *WakeFilter) Enabled() bool {
	return len(f.state.Load().phrases) > 0
}

// Check decides whether text should be answered.
func (f *WakeFilter) Check(text string) Decision {
	st := f.state.Load()
	if len(st.phrases) == 0 {
		return Decision{Accept: true, Question: text}
	}
	m, ok := st.matcher.MatchPrefix(text, st.phrases)
	if !ok {
		return Decision{}
	}
	return Decision{Accept: true, Question: m.Rest, Phrase: m.Phrase, Score: m.Score}
}
