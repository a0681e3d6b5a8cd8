package audio

import "time"

// Frame is one block of interleaved float32 samples as delivered by a capture
// device callback, at the device's native rate and channel count. Frames are
// transient: the slice is only valid for the duration of the callback and
// must not be retained after conversion.
type Frame struct {
	// Samples holds interleaved samples in [-1, 1], channel-major per frame
	// (L, R, L, R, … for stereo).
	Samples []float32

	// SampleRate in Hz (e.g., 48000 for a typical sound card).
	SampleRate int

	// Channels is the number of interleaved channels (1 mono, 2 stereo).
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Duration returns how long n mono samples last at the given format's rate.
// It returns zero for a non-positive sample rate.
func (f Format) Duration(n int) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(f.SampleRate))
}
