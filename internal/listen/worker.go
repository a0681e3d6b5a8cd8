package listen

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/voxgate/internal/observe"
	"github.com/MrWong99/voxgate/pkg/audio"
	"github.com/MrWong99/voxgate/pkg/provider/stt"
)

// ErrTranscription wraps every failure of the speech-to-text call.
var ErrTranscription = errors.New("listen: transcription failed")

// Worker defaults.
const (
	DefaultPollInterval      = 50 * time.Millisecond
	DefaultTranscribeTimeout = 30 * time.Second
)

// Utterance is one drained sequence of samples.
type Utterance struct {
	// Seq numbers utterances from 1 in drain order.
	Seq uint64

	// Samples is the drained audio at [audio.TargetSampleRate]. The worker
	// owns it for the duration of one transcription.
	Samples []float32

	// Duration is the audio length of Samples.
	Duration time.Duration

	// DrainedAt is when the utterance was taken from the buffer.
	DrainedAt time.Time
}

// TranscriptHandler receives every non-empty transcript, in order, on the
// worker goroutine. The worker does not drain again until it returns.
type TranscriptHandler interface {
	HandleTranscript(ctx context.Context, u Utterance, tr *stt.Transcript) error
}

// TranscriptHandlerFunc adapts a function to [TranscriptHandler].
type TranscriptHandlerFunc func(ctx context.Context, u Utterance, tr *stt.Transcript) error

// HandleTranscript implements [TranscriptHandler].
func (f TranscriptHandlerFunc) HandleTranscript(ctx context.Context, u Utterance, tr *stt.Transcript) error {
	return f(ctx, u, tr)
}

// Worker drains completed utterances from the buffer and transcribes them.
//
// It wakes on a poll ticker and, when configured with [WithWakeSignal], as
// soon as the gate reports the end of speech. It never drains while speech
// is in progress, and it survives every collaborator failure.
type Worker struct {
	state    *SpeechState
	buf      *UtteranceBuffer
	stt      stt.Provider
	handler  TranscriptHandler
	wake     <-chan struct{}
	timeout  time.Duration
	language string
	metrics  *observe.Metrics
	now      func() time.Time

	poll atomic.Int64 // time.Duration
	seq  atomic.Uint64

	// scratch receives drains under the state lock so that the hold is a
	// copy into reused storage. Guarded by drainMu.
	drainMu sync.Mutex
	scratch []float32
}

// WorkerOption is a functional option for [NewWorker].
type WorkerOption func(*Worker)

// WithPollInterval sets the polling period. Non-positive values are ignored.
func WithPollInterval(d time.Duration) WorkerOption {
	return func(w *Worker) { w.SetPollInterval(d) }
}

// WithWakeSignal makes the worker check the buffer immediately whenever ch
// receives.
func WithWakeSignal(ch <-chan struct{}) WorkerOption {
	return func(w *Worker) { w.wake = ch }
}

// WithHandler sets the receiver of non-empty transcripts.
func WithHandler(h TranscriptHandler) WorkerOption {
	return func(w *Worker) { w.handler = h }
}

// WithTranscribeTimeout bounds every Transcribe call.
func WithTranscribeTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithLanguage sets the language hint passed to the transcriber.
func WithLanguage(lang string) WorkerOption {
	return func(w *Worker) { w.language = lang }
}

// WithWorkerMetrics records utterance and transcription metrics to m.
func WithWorkerMetrics(m *observe.Metrics) WorkerOption {
	return func(w *Worker) { w.metrics = m }
}

// NewWorker returns a worker draining buf under state into provider.
func NewWorker(state *SpeechState, buf *UtteranceBuffer, provider stt.Provider, opts ...WorkerOption) *Worker {
	w := &Worker{
		state:   state,
		buf:     buf,
		stt:     provider,
		timeout: DefaultTranscribeTimeout,
		now:     time.Now,
	}
	w.poll.Store(int64(DefaultPollInterval))
	for _, o := range opts {
		o(w)
	}
	return w
}

// SetPollInterval changes the polling period; a running loop picks it up on
// its next tick. Non-positive values are ignored.
func (w *Worker) SetPollInterval(d time.Duration) {
	if d > 0 {
		w.poll.Store(int64(d))
	}
}

// PollInterval returns the current polling period.
func (w *Worker) PollInterval() time.Duration {
	return time.Duration(w.poll.Load())
}

// Run loops until ctx is cancelled. On exit it makes one last attempt to
// transcribe a pending utterance if speech is not in progress. Run always
// returns nil; collaborator failures are logged and never end the loop.
func (w *Worker) Run(ctx context.Context) error {
	interval := w.PollInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log := observe.Logger(ctx)
	log.Info("transcription worker started", "poll", interval)

	for {
		select {
		case <-ctx.Done():
			w.finalDrain(ctx)
			log.Info("transcription worker stopped", "utterances", w.seq.Load())
			return nil
		case <-w.wake:
		case <-ticker.C:
			if d := w.PollInterval(); d != interval {
				interval = d
				ticker.Reset(d)
			}
		}
		w.DrainOnce(ctx)
	}
}

// DrainOnce performs one iteration of the worker loop: if the buffer holds
// samples and no speech is in progress, it drains and transcribes them. It
// reports whether an utterance was drained.
func (w *Worker) DrainOnce(ctx context.Context) bool {
	if w.buf.Len() == 0 {
		return false
	}
	w.drainMu.Lock()
	drained := w.state.WhileIdle(func() { w.scratch = w.buf.DrainInto(w.scratch) })
	var samples []float32
	if drained && len(w.scratch) > 0 {
		samples = slices.Clone(w.scratch)
	}
	w.drainMu.Unlock()
	if samples == nil {
		return false
	}
	w.process(ctx, samples)
	return true
}

func (w *Worker) finalDrain(ctx context.Context) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.timeout)
	defer cancel()
	if w.DrainOnce(fctx) {
		observe.Logger(ctx).Info("transcription worker: flushed pending utterance on shutdown")
	}
}

func (w *Worker) process(ctx context.Context, samples []float32) {
	u := Utterance{
		Seq:       w.seq.Add(1),
		Samples:   samples,
		Duration:  audio.Format{SampleRate: audio.TargetSampleRate}.Duration(len(samples)),
		DrainedAt: w.now(),
	}

	ctx, span := observe.StartSpan(ctx, "listen.transcribe")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("utterance.seq", int64(u.Seq)),
		attribute.Int("utterance.samples", len(samples)),
	)
	log := observe.Logger(ctx).With("utterance", u.Seq)

	if w.metrics != nil {
		w.metrics.RecordUtterance(ctx, u.Duration.Seconds())
	}
	log.Debug("transcribing utterance", "duration", u.Duration)

	tr, err := w.transcribe(ctx, u)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("transcription failed, utterance dropped", "err", err, "duration", u.Duration)
		return
	}

	tr.Text = strings.TrimSpace(tr.Text)
	if tr.Duration == 0 {
		tr.Duration = u.Duration
	}
	if tr.Text == "" {
		log.Debug("empty transcript", "duration", u.Duration)
		return
	}
	log.Info("transcript", "text", tr.Text, "duration", u.Duration)

	outcome := "logged"
	if w.handler != nil {
		outcome = "handled"
		if err := w.handler.HandleTranscript(ctx, u, tr); err != nil {
			outcome = "handler_error"
			span.RecordError(err)
			log.Error("transcript handler failed", "err", err)
		}
	}
	if w.metrics != nil {
		w.metrics.RecordTranscript(ctx, outcome)
	}
}

func (w *Worker) transcribe(ctx context.Context, u Utterance) (*stt.Transcript, error) {
	tctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	type result struct {
		tr  *stt.Transcript
		err error
	}
	// The provider runs on its own goroutine so an engine that ignores ctx
	// cannot hold the worker past the timeout. A late result is discarded.
	done := make(chan result, 1)
	start := time.Now()
	go func() {
		tr, err := w.stt.Transcribe(tctx, stt.Request{
			Samples:    u.Samples,
			SampleRate: audio.TargetSampleRate,
			Channels:   1,
			Language:   w.language,
		})
		done <- result{tr, err}
	}()

	var (
		tr  *stt.Transcript
		err error
	)
	select {
	case r := <-done:
		tr, err = r.tr, r.err
	case <-tctx.Done():
		err = tctx.Err()
	}
	if w.metrics != nil {
		w.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
		status := "ok"
		if err != nil {
			status = "error"
			w.metrics.RecordProviderError(ctx, "stt", "stt")
		}
		w.metrics.RecordProviderRequest(ctx, "stt", "stt", status)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTranscription, err)
	}
	if tr == nil {
		tr = &stt.Transcript{}
	}
	return tr, nil
}
