package listen

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/MrWong99/voxgate/internal/observe"
	"github.com/MrWong99/voxgate/pkg/audio"
	"github.com/MrWong99/voxgate/pkg/provider/vad"
)

// DefaultHysteresis is how long the gate stays open after the last voiced
// window.
const DefaultHysteresis = 900 * time.Millisecond

// Transition is the speech event, if any, produced by one classification.
type Transition int

const (
	// TransitionNone means the speaking flag did not change.
	TransitionNone Transition = iota

	// TransitionStarted means the gate opened on this window.
	TransitionStarted

	// TransitionEnded means the hysteresis expired on this window.
	TransitionEnded
)

// String returns a short name for the transition.
func (t Transition) String() string {
	switch t {
	case TransitionStarted:
		return "started"
	case TransitionEnded:
		return "ended"
	default:
		return "none"
	}
}

// SpeechGate classifies windows of converted audio and debounces the result
// into a speaking flag with hysteresis.
//
// A SpeechGate owns its classifier session exclusively and must only be used
// from the capture thread. SetHysteresis is the exception and may be called
// from any goroutine.
type SpeechGate struct {
	session    vad.SessionHandle
	state      *SpeechState
	window     []int16
	hysteresis atomic.Int64 // time.Duration
	metrics    *observe.Metrics

	classifierErrors atomic.Uint64
}

// GateOption is a functional option for [NewSpeechGate].
type GateOption func(*SpeechGate)

// WithHysteresis sets the initial hysteresis. Non-positive values are ignored.
func WithHysteresis(d time.Duration) GateOption {
	return func(g *SpeechGate) { g.SetHysteresis(d) }
}

// WithGateMetrics records classifier errors to m.
func WithGateMetrics(m *observe.Metrics) GateOption {
	return func(g *SpeechGate) { g.metrics = m }
}

// NewSpeechGate returns a gate that classifies windows of windowSamples
// samples with session and writes the outcome to state.
func NewSpeechGate(session vad.SessionHandle, state *SpeechState, windowSamples int, opts ...GateOption) *SpeechGate {
	g := &SpeechGate{
		session: session,
		state:   state,
		window:  make([]int16, windowSamples),
	}
	g.hysteresis.Store(int64(DefaultHysteresis))
	for _, o := range opts {
		o(g)
	}
	return g
}

// SetHysteresis replaces the hysteresis. Non-positive values are ignored.
func (g *SpeechGate) SetHysteresis(d time.Duration) {
	if d > 0 {
		g.hysteresis.Store(int64(d))
	}
}

// Hysteresis returns the current hysteresis.
func (g *SpeechGate) Hysteresis() time.Duration {
	return time.Duration(g.hysteresis.Load())
}

// ClassifierErrors returns how many classifications failed and were treated
// as silence.
func (g *SpeechGate) ClassifierErrors() uint64 {
	return g.classifierErrors.Load()
}

// Classify runs the classifier over the first window of samples (zero-padded
// if shorter) and updates the speech state as of now.
//
// A voiced window refreshes the last-voice time and opens the gate. An
// unvoiced window closes an open gate only once now is strictly more than the
// hysteresis past the last voiced window. Classifier failures count as
// unvoiced.
func (g *SpeechGate) Classify(samples []float32, now time.Time) (speakingAfter bool, tr Transition) {
	audio.FloatsToInt16(g.window, samples)

	voiced, err := g.session.IsSpeech(g.window)
	if err != nil {
		voiced = false
		if n := g.classifierErrors.Add(1); n == 1 || n%1000 == 0 {
			slog.Debug("speech gate: classifier failed, treating window as silence", "err", err, "count", n)
		}
		if g.metrics != nil {
			g.metrics.ClassifierErrors.Add(context.Background(), 1)
		}
	}

	hysteresis := g.Hysteresis()
	g.state.update(func(speaking *bool, lastVoiceAt *time.Time) {
		switch {
		case voiced:
			*lastVoiceAt = now
			if !*speaking {
				*speaking = true
				tr = TransitionStarted
			}
		case *speaking && now.Sub(*lastVoiceAt) > hysteresis:
			*speaking = false
			tr = TransitionEnded
		}
		speakingAfter = *speaking
	})
	return speakingAfter, tr
}
