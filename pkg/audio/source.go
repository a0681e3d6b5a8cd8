// Package audio defines the sample types, conversion routines, and device
// abstractions used by the voxgate ingestion pipeline.
//
// The two device abstractions are:
//
//   - [Source]: a capture device that pushes [Frame] values into a
//     [FrameHandler] from its own real-time thread.
//   - [Sink]: a playback device that plays 16-bit mono PCM and blocks until
//     the audio has been heard.
//
// Implementations live in the capture and playback subpackages. The
// interfaces are intentionally narrow so the pipeline can be tested with the
// in-memory doubles in audio/mock.
package audio

import (
	"context"
	"errors"
)

// ErrDevice is returned (wrapped) when an audio device cannot be opened,
// configured, or started. It is fatal at startup.
var ErrDevice = errors.New("audio: device error")

// FrameHandler receives captured frames. It is invoked on the device's
// real-time thread and must return promptly: no unbounded blocking, no I/O.
type FrameHandler func(Frame)

// Source is a capture device.
//
// Implementations must be safe for concurrent use of Close with an active
// Start.
type Source interface {
	// Start opens the device and begins delivering frames to h. It blocks
	// until ctx is cancelled or the device fails, then stops the device.
	// Failure to open or start the device returns an error wrapping
	// [ErrDevice].
	Start(ctx context.Context, h FrameHandler) error

	// Format reports the native format frames are delivered in. Valid only
	// after the device has been opened.
	Format() Format

	// Close releases the device. Safe to call more than once.
	Close() error
}

// Sink is a playback device for synthesized speech.
type Sink interface {
	// Play plays little-endian int16 mono PCM chunks read from pcm at
	// sampleRate Hz. It returns once the last chunk has been played, pcm is
	// closed and drained, or ctx is cancelled.
	Play(ctx context.Context, pcm <-chan []byte, sampleRate int) error

	// Close releases the device. Safe to call more than once.
	Close() error
}
