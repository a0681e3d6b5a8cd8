package listen

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/MrWong99/voxgate/internal/observe"
	"github.com/MrWong99/voxgate/pkg/audio"
)

// SpeechObserver is notified of speech gate transitions. Methods are called
// on the capture thread and must not block.
type SpeechObserver interface {
	SpeechStarted(at time.Time)
	SpeechEnded(at time.Time, buffered int)
}

// Ingest is the capture-thread entry point: it converts each device frame,
// classifies it, and appends it to the buffer while speech is active.
//
// Process never returns an error and never panics; malformed frames and
// classifier failures are treated as silence.
type Ingest struct {
	conv     *audio.FrameConverter
	gate     *SpeechGate
	buf      *UtteranceBuffer
	wake     chan<- struct{}
	now      func() time.Time
	observer SpeechObserver
	metrics  *observe.Metrics

	frames        atomic.Uint64
	recoveries    atomic.Uint64
	warnedEvicted atomic.Bool
}

// IngestOption is a functional option for [NewIngest].
type IngestOption func(*Ingest)

// WithWake makes Ingest signal ch (non-blocking) whenever speech ends.
func WithWake(ch chan<- struct{}) IngestOption {
	return func(in *Ingest) { in.wake = ch }
}

// WithClock replaces time.Now as the classification timestamp source.
func WithClock(now func() time.Time) IngestOption {
	return func(in *Ingest) { in.now = now }
}

// WithObserver registers a [SpeechObserver].
func WithObserver(o SpeechObserver) IngestOption {
	return func(in *Ingest) { in.observer = o }
}

// WithIngestMetrics records speech events and evictions to m.
func WithIngestMetrics(m *observe.Metrics) IngestOption {
	return func(in *Ingest) { in.metrics = m }
}

// NewIngest wires a converter, gate, and buffer into a frame handler.
func NewIngest(conv *audio.FrameConverter, gate *SpeechGate, buf *UtteranceBuffer, opts ...IngestOption) *Ingest {
	in := &Ingest{
		conv: conv,
		gate: gate,
		buf:  buf,
		now:  time.Now,
	}
	for _, o := range opts {
		o(in)
	}
	return in
}

// Process handles one device frame. It is an [audio.FrameHandler].
func (in *Ingest) Process(frame audio.Frame) {
	defer func() {
		if r := recover(); r != nil {
			if n := in.recoveries.Add(1); n == 1 || n%100 == 0 {
				slog.Warn("ingest: recovered from panic, frame dropped", "panic", r, "count", n)
			}
		}
	}()
	in.frames.Add(1)

	samples := in.conv.Convert(frame)
	now := in.now()
	speaking, tr := in.gate.Classify(samples, now)

	switch tr {
	case TransitionStarted:
		in.warnedEvicted.Store(false)
		slog.Info("speech started")
		in.recordEvent(observe.SpeechStarted)
		if in.observer != nil {
			in.observer.SpeechStarted(now)
		}
	case TransitionEnded:
		buffered := in.buf.Len()
		slog.Info("speech ended", "buffered", audio.Format{SampleRate: audio.TargetSampleRate}.Duration(buffered))
		in.recordEvent(observe.SpeechEnded)
		if in.observer != nil {
			in.observer.SpeechEnded(now, buffered)
		}
		if in.wake != nil {
			select {
			case in.wake <- struct{}{}:
			default:
			}
		}
	}

	if !speaking {
		return
	}
	if evicted := in.buf.Append(samples); evicted > 0 {
		if in.warnedEvicted.CompareAndSwap(false, true) {
			slog.Warn("ingest: utterance buffer full, evicting oldest audio",
				"capacity", in.buf.Cap(),
				"evicted", evicted,
			)
		}
		if in.metrics != nil {
			in.metrics.SamplesEvicted.Add(context.Background(), int64(evicted))
		}
	}
}

// Frames returns the number of frames processed.
func (in *Ingest) Frames() uint64 {
	return in.frames.Load()
}

func (in *Ingest) recordEvent(event string) {
	if in.metrics != nil {
		in.metrics.RecordSpeechEvent(context.Background(), event)
	}
}
