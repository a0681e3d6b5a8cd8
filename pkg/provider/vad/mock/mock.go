// Package mock provides test doubles for the vad package interfaces.
//
// Use Engine to verify that sessions are created with the expected Config.
// Use Session to script classification results and inspect the windows that
// were submitted.
//
// Example:
//
//	sess := &mock.Session{}
//	sess.SetSpeech(true)
//	eng := &mock.Engine{Session: sess}
//	handle, _ := eng.NewSession(cfg)
package mock

import (
	"sync"

	"github.com/MrWong99/voxgate/pkg/provider/vad"
)

// NewSessionCall records a single invocation of Engine.NewSession.
type NewSessionCall struct {
	// Cfg is the Config passed to NewSession.
	Cfg vad.Config
}

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by NewSession. If nil, NewSession
	// returns a new default Session.
	Session vad.SessionHandle

	// NewSessionErr, if non-nil, is returned as the error from NewSession.
	NewSessionErr error

	// NewSessionCalls records every call to NewSession in order.
	NewSessionCalls []NewSessionCall
}

// NewSession records the call and returns Session, NewSessionErr.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = append(e.NewSessionCalls, NewSessionCall{Cfg: cfg})
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

// Ensure Engine implements vad.Engine at compile time.
var _ vad.Engine = (*Engine)(nil)

// Session is a mock implementation of vad.SessionHandle.
//
// Classification precedence: Classify (if set), then the value configured
// with SetSpeech / SetError.
type Session struct {
	mu sync.Mutex

	// Classify, if non-nil, decides every IsSpeech call.
	Classify func(frame []int16) (bool, error)

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	speech bool
	err    error

	// --- Call records ---

	// Frames records a copy of every window passed to IsSpeech, when
	// RecordFrames is true.
	Frames       [][]int16
	RecordFrames bool

	// IsSpeechCallCount is the number of times IsSpeech was called.
	IsSpeechCallCount int

	// ResetCallCount is the number of times Reset was called.
	ResetCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// SetSpeech sets the result returned by subsequent IsSpeech calls.
func (s *Session) SetSpeech(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speech = v
}

// SetError sets the error returned by subsequent IsSpeech calls. Pass nil to
// clear it.
func (s *Session) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// IsSpeech records the call and returns the scripted result.
func (s *Session) IsSpeech(frame []int16) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.IsSpeechCallCount++
	if s.RecordFrames {
		s.Frames = append(s.Frames, append([]int16(nil), frame...))
	}
	if s.Classify != nil {
		return s.Classify(frame)
	}
	return s.speech, s.err
}

// Calls returns the number of IsSpeech calls so far.
func (s *Session) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.IsSpeechCallCount
}

// Reset records the call by incrementing ResetCallCount.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCallCount++
}

// Close records the call and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

// Ensure Session implements vad.SessionHandle at compile time.
var _ vad.SessionHandle = (*Session)(nil)
