// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a batch transcription engine (e.g., a local whisper.cpp
// model or a whisper.cpp HTTP server) and exposes a uniform one-shot interface:
// the caller hands over a complete utterance of float32 samples and receives
// the recognised text.
//
// Implementations must be safe for concurrent use, although the voxgate worker
// only ever issues one request at a time.
package stt

import (
	"context"
	"errors"
)

// ErrEmptyAudio is returned by Transcribe when the request carries no samples.
var ErrEmptyAudio = errors.New("stt: empty audio")

// Request describes one utterance to transcribe.
type Request struct {
	// Samples holds interleaved float32 samples, nominally in [-1, 1]. Gain may push
	// them outside that range; providers clamp as needed.
	Samples []float32

	// SampleRate is the sample rate in Hz. voxgate always sends 16000.
	SampleRate int

	// Channels is the interleaved channel count of Samples. Zero is treated
	// as mono. voxgate always sends 1.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en").
	// An empty string lets the provider auto-detect the language, if supported.
	Language string
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe recognises the speech in req and returns the transcript. An
	// utterance that contains no recognisable speech yields a Transcript with
	// empty Text and a nil error.
	//
	// Returns an error if the engine fails or ctx is cancelled first.
	Transcribe(ctx context.Context, req Request) (*Transcript, error)
}
