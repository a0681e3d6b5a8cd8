// Package vad defines the Engine interface for Voice Activity Detection backends.
//
// A VAD engine wraps a frame-level speech classifier (e.g., WebRTC VAD, an
// energy detector, or a custom model) and surfaces it as a per-stream session.
// A session answers a single question for each fixed-size window of 16-bit
// samples: does it contain voice? Debouncing and end-of-utterance detection
// are deliberately left to the caller.
//
// Classification is synchronous: IsSpeech returns immediately, making it
// suitable for the capture callback.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle must not be shared across goroutines; it is owned by
// whichever goroutine drives the audio stream.
package vad

import "errors"

// ErrFrameSize is returned by IsSpeech when the window does not contain
// exactly Config.FrameSamples samples.
var ErrFrameSize = errors.New("vad: wrong frame size")

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the
	// samples passed to IsSpeech. Common values: 8000, 16000, 32000, 48000.
	SampleRate int

	// FrameSizeMs is the duration of each classification window in
	// milliseconds. Most classifiers operate on fixed sizes (10, 20 or 30 ms).
	FrameSizeMs int

	// Aggressiveness trades missed speech for fewer false positives.
	Aggressiveness Aggressiveness
}

// FrameSamples returns the number of samples per classification window.
func (c Config) FrameSamples() int {
	return c.SampleRate * c.FrameSizeMs / 1000
}

// SessionHandle represents an active VAD session for a single audio stream. It is
// an interface so that test code can supply mock implementations without a live
// engine.
type SessionHandle interface {
	// IsSpeech classifies one window of int16 samples at the configured rate.
	// Returns [ErrFrameSize] (wrapped) if len(frame) differs from the
	// configured window, or another error if the engine fails internally.
	//
	// This method is called synchronously on the capture thread; it must not
	// block.
	IsSpeech(frame []int16) (bool, error)

	// Reset clears any accumulated state without closing the session.
	Reset()

	// Close releases all resources associated with the session. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Engine is the factory for VAD sessions. It is the top-level interface
// implemented by each VAD backend.
//
// Implementations must be safe for concurrent use: multiple goroutines may call
// NewSession simultaneously to create independent sessions.
type Engine interface {
	// NewSession creates a new VAD session with the given configuration.
	// Returns an error if the configuration is invalid (e.g., unsupported
	// sample rate or frame size).
	NewSession(cfg Config) (SessionHandle, error)
}
