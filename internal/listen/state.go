package listen

import (
	"sync"
	"time"
)

// SpeechState is the shared speaking flag and the time of the last voiced
// window. The [SpeechGate] is its only writer; everything else reads.
type SpeechState struct {
	mu          sync.RWMutex
	speaking    bool
	lastVoiceAt time.Time
}

// Speaking reports whether an utterance is in progress.
func (s *SpeechState) Speaking() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.speaking
}

// LastVoiceAt returns when the last voiced window was classified. Zero if
// none has been seen.
func (s *SpeechState) LastVoiceAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastVoiceAt
}

// WhileIdle runs fn if and only if no utterance is in progress, and keeps the
// state from turning to speaking until fn returns. It reports whether fn ran.
// fn must be short and must not call back into the SpeechState.
func (s *SpeechState) WhileIdle(fn func()) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.speaking {
		return false
	}
	fn()
	return true
}

// update applies fn under the write lock.
func (s *SpeechState) update(fn func(speaking *bool, lastVoiceAt *time.Time)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.speaking, &s.lastVoiceAt)
}
