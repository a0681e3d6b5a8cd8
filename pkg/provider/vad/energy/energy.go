// Package energy provides a pure-Go [vad.Engine] that classifies a window as
// voice when its RMS level clears a threshold and its zero-crossing rate is
// low enough to rule out broadband noise.
//
// Each window is judged on its own. Hold-over across pauses is the caller's
// job, so the session carries no state.
package energy

import (
	"fmt"
	"math"

	"github.com/MrWong99/voxgate/pkg/provider/vad"
)

// rmsThresholds maps an aggressiveness mode to the minimum RMS level (as a
// fraction of int16 full scale) a voiced window must reach.
var rmsThresholds = map[vad.Aggressiveness]float64{
	vad.Quality:        0.005,
	vad.LowBitrate:     0.01,
	vad.Aggressive:     0.02,
	vad.VeryAggressive: 0.03,
}

// DefaultMaxZeroCrossingRate is the fraction of adjacent sample pairs that may
// change sign before a window is treated as noise.
const DefaultMaxZeroCrossingRate = 0.35

// supported sample rates and window sizes, mirroring common frame classifiers.
var (
	supportedRates  = map[int]bool{8000: true, 16000: true, 32000: true, 48000: true}
	supportedFrames = map[int]bool{10: true, 20: true, 30: true}
)

// Engine creates energy-based sessions.
type Engine struct {
	maxZCR float64
}

// Option is a functional option for configuring an [Engine].
type Option func(*Engine)

// WithMaxZeroCrossingRate overrides [DefaultMaxZeroCrossingRate]. Values of 1
// or more disable the check.
func WithMaxZeroCrossingRate(r float64) Option {
	return func(e *Engine) { e.maxZCR = r }
}

// New returns an energy engine.
func New(opts ...Option) *Engine {
	e := &Engine{maxZCR: DefaultMaxZeroCrossingRate}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NewSession implements [vad.Engine].
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if !supportedRates[cfg.SampleRate] {
		return nil, fmt.Errorf("energy: unsupported sample rate %d", cfg.SampleRate)
	}
	if !supportedFrames[cfg.FrameSizeMs] {
		return nil, fmt.Errorf("energy: unsupported frame size %dms", cfg.FrameSizeMs)
	}
	threshold, ok := rmsThresholds[cfg.Aggressiveness]
	if !ok {
		return nil, fmt.Errorf("energy: unsupported aggressiveness %v", cfg.Aggressiveness)
	}
	return &session{
		frameSamples: cfg.FrameSamples(),
		threshold:    threshold * 32768,
		maxZCR:       e.maxZCR,
	}, nil
}

type session struct {
	frameSamples int
	threshold    float64
	maxZCR       float64
	closed       bool
}

// IsSpeech implements [vad.SessionHandle].
func (s *session) IsSpeech(frame []int16) (bool, error) {
	if s.closed {
		return false, fmt.Errorf("energy: session closed")
	}
	if len(frame) != s.frameSamples {
		return false, fmt.Errorf("energy: got %d samples, want %d: %w", len(frame), s.frameSamples, vad.ErrFrameSize)
	}
	if RMS(frame) < s.threshold {
		return false, nil
	}
	return s.maxZCR >= 1 || ZeroCrossingRate(frame) <= s.maxZCR, nil
}

// Reset implements [vad.SessionHandle]. The session is stateless.
func (s *session) Reset() {}

// Close implements [vad.SessionHandle].
func (s *session) Close() error {
	s.closed = true
	return nil
}

// RMS returns the root-mean-square level of frame in int16 units.
func RMS(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(frame)))
}

// ZeroCrossingRate returns the fraction of adjacent sample pairs with a sign
// change.
func ZeroCrossingRate(frame []int16) float64 {
	if len(frame) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(frame); i++ {
		if (frame[i-1] >= 0) != (frame[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(frame)-1)
}

var (
	_ vad.Engine        = (*Engine)(nil)
	_ vad.SessionHandle = (*session)(nil)
)
