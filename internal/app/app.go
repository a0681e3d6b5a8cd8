// Package app wires all voxgate subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the capture loop, the transcription worker and the
// side HTTP server, and Shutdown tears everything down in order.
//
// For testing, inject doubles via [Providers] and the functional options
// (WithJournal, WithResponder, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxgate/internal/config"
	"github.com/MrWong99/voxgate/internal/engine"
	"github.com/MrWong99/voxgate/internal/engine/cascade"
	"github.com/MrWong99/voxgate/internal/events"
	"github.com/MrWong99/voxgate/internal/health"
	"github.com/MrWong99/voxgate/internal/journal"
	"github.com/MrWong99/voxgate/internal/journal/postgres"
	"github.com/MrWong99/voxgate/internal/listen"
	"github.com/MrWong99/voxgate/internal/observe"
	"github.com/MrWong99/voxgate/internal/transcript"
	"github.com/MrWong99/voxgate/pkg/audio"
	"github.com/MrWong99/voxgate/pkg/provider/llm"
	"github.com/MrWong99/voxgate/pkg/provider/stt"
	"github.com/MrWong99/voxgate/pkg/provider/tts"
	"github.com/MrWong99/voxgate/pkg/provider/vad"
)

// Providers holds one interface value per pipeline slot. Populated by main.go
// via the config registry.
type Providers struct {
	// VAD and STT are required.
	VAD vad.Engine
	STT stt.Provider

	// LLM is required unless answering is disabled.
	LLM llm.Provider

	// TTS is optional. Nil answers in text only.
	TTS tts.Provider

	// Source is the capture device. Required.
	Source audio.Source

	// Sink plays synthesized answers. Nil discards the audio.
	Sink audio.Sink

	// Names label the providers in logs, metrics and health checks.
	STTName, LLMName, TTSName string
}

// App owns all subsystem lifetimes and orchestrates the voxgate pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers
	session   string

	metrics   *observe.Metrics
	logLevel  *slog.LevelVar
	journal   journal.Store
	responder engine.Responder
	hub       *events.Hub
	wake      *transcript.WakeFilter
	health    *health.Handler

	conv       *audio.FrameConverter
	state      *listen.SpeechState
	buf        *listen.UtteranceBuffer
	gate       *listen.SpeechGate
	vadSession vad.SessionHandle
	ingest     *listen.Ingest
	worker     *listen.Worker
	server     *http.Server

	capturing atomic.Bool

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithJournal injects a journal store instead of connecting to the configured
// database.
func WithJournal(s journal.Store) Option {
	return func(a *App) { a.journal = s }
}

// WithResponder injects a responder instead of building the cascade from the
// LLM and TTS providers.
func WithResponder(r engine.Responder) Option {
	return func(a *App) { a.responder = r }
}

// WithMetrics records to m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel lets hot reload change the level of the handler built on lv.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// WithSessionID overrides the random session identifier written to the journal.
func WithSessionID(id string) Option {
	return func(a *App) { a.session = id }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.session == "" {
		a.session = uuid.NewString()
	}

	if err := a.checkProviders(); err != nil {
		return nil, err
	}

	// ── 1. Journal ───────────────────────────────────────────────────────
	if err := a.initJournal(ctx); err != nil {
		return nil, fmt.Errorf("app: init journal: %w", err)
	}

	// ── 2. Responder ─────────────────────────────────────────────────────
	a.initResponder()
	a.wake = transcript.NewWakeFilter(cfg.Wake.Phrases, cfg.Wake.Threshold)
	a.hub = events.NewHub(events.WithMetrics(a.metrics))

	// ── 3. Listen pipeline ───────────────────────────────────────────────
	if err := a.initListen(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init listen: %w", err)
	}

	// ── 4. Health + HTTP ─────────────────────────────────────────────────
	a.initHealth()
	a.initServer()

	return a, nil
}

func (a *App) checkProviders() error {
	p := a.providers
	var errs []error
	if p == nil {
		return errors.New("app: providers must not be nil")
	}
	if p.VAD == nil {
		errs = append(errs, errors.New("app: vad provider is required"))
	}
	if p.STT == nil {
		errs = append(errs, errors.New("app: stt provider is required"))
	}
	if p.Source == nil {
		errs = append(errs, errors.New("app: capture source is required"))
	}
	if !a.cfg.Respond.Disabled && p.LLM == nil && a.responder == nil {
		errs = append(errs, errors.New("app: llm provider is required unless respond.disabled is set"))
	}
	return errors.Join(errs...)
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initJournal connects the PostgreSQL journal, or falls back to a no-op store
// when no DSN is configured.
func (a *App) initJournal(ctx context.Context) error {
	if a.journal == nil {
		dsn := a.cfg.Journal.PostgresDSN
		if dsn == "" {
			a.journal = journal.Nop{}
			return nil
		}
		store, err := postgres.NewStore(ctx, dsn)
		if err != nil {
			return err
		}
		a.journal = store
		slog.Info("journal connected", "session", a.session)
	}
	a.closers = append(a.closers, func() error {
		a.journal.Close()
		return nil
	})
	return nil
}

// initResponder builds the cascade unless a responder was injected or
// answering is disabled.
func (a *App) initResponder() {
	if a.responder != nil || a.cfg.Respond.Disabled {
		return
	}
	r := a.cfg.Respond
	p := a.providers
	a.responder = cascade.New(p.LLM, p.TTS,
		cascade.WithSystemPrompt(r.SystemPrompt),
		cascade.WithVoice(tts.VoiceProfile{ID: r.Voice}),
		cascade.WithMaxTokens(r.MaxTokens),
		cascade.WithTemperature(r.Temperature),
		cascade.WithProviderNames(nameOr(p.LLMName, "llm"), nameOr(p.TTSName, "tts")),
		cascade.WithMetrics(a.metrics),
	)
}

// initListen builds converter → gate → buffer → ingest → worker.
func (a *App) initListen() error {
	l := a.cfg.Listen

	aggr, err := vad.ParseAggressiveness(l.Aggressiveness)
	if err != nil {
		return err
	}
	vcfg := vad.Config{
		SampleRate:     audio.TargetSampleRate,
		FrameSizeMs:    l.WindowMs,
		Aggressiveness: aggr,
	}
	sess, err := a.providers.VAD.NewSession(vcfg)
	if err != nil {
		return fmt.Errorf("create vad session: %w", err)
	}
	a.vadSession = sess
	a.closers = append(a.closers, sess.Close)

	wake := make(chan struct{}, 1)

	a.conv = audio.NewFrameConverter(l.Gain)
	a.state = &listen.SpeechState{}
	a.buf = listen.NewUtteranceBuffer(l.BufferCapacity)
	a.gate = listen.NewSpeechGate(sess, a.state, vcfg.FrameSamples(),
		listen.WithHysteresis(l.Hysteresis),
		listen.WithGateMetrics(a.metrics),
	)
	a.ingest = listen.NewIngest(a.conv, a.gate, a.buf,
		listen.WithWake(wake),
		listen.WithObserver(a.hub),
		listen.WithIngestMetrics(a.metrics),
	)
	a.worker = listen.NewWorker(a.state, a.buf, a.providers.STT,
		listen.WithPollInterval(l.PollInterval),
		listen.WithWakeSignal(wake),
		listen.WithHandler(a),
		listen.WithTranscribeTimeout(l.TranscribeTimeout),
		listen.WithLanguage(l.Language),
		listen.WithWorkerMetrics(a.metrics),
	)
	return nil
}

// initHealth registers a readiness check for every provider and store that
// can report its own health, such as a fallback group.
func (a *App) initHealth() {
	var checks []health.Checker
	add := func(name string, v any) {
		if r, ok := v.(health.Reporter); ok {
			checks = append(checks, health.ProviderCheck(name, r))
		}
	}
	p := a.providers
	add(nameOr(p.STTName, "stt"), p.STT)
	add(nameOr(p.LLMName, "llm"), p.LLM)
	add(nameOr(p.TTSName, "tts"), p.TTS)
	add("journal", a.journal)
	a.health = health.New(checks...)
}

// initServer builds the side HTTP server unless it is disabled with "-".
func (a *App) initServer() {
	addr := a.cfg.Server.ListenAddr
	if addr == "" || addr == "-" {
		return
	}
	a.server = &http.Server{
		Addr:              addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Events returns the live event hub.
func (a *App) Events() *events.Hub { return a.hub }

// Worker returns the transcription worker.
func (a *App) Worker() *listen.Worker { return a.worker }

// SessionID returns the identifier this run writes to the journal.
func (a *App) SessionID() string { return a.session }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts capture, the transcription worker and the HTTP server, and
// blocks until ctx is cancelled or one of them fails. A capture device
// failure is returned wrapped in [audio.ErrDevice].
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.worker.Run(gctx)
	})

	g.Go(func() error {
		return a.runCapture(gctx)
	})

	if a.server != nil {
		g.Go(func() error {
			return a.serveHTTP(gctx)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) runCapture(ctx context.Context) error {
	defer a.health.SetReady(false)

	// Readiness flips on the first delivered frame, not on Start, because
	// Start blocks for the lifetime of the device.
	handler := func(f audio.Frame) {
		if !a.capturing.Load() && a.capturing.CompareAndSwap(false, true) {
			a.health.SetReady(true)
			slog.Info("capture running", "sample_rate", f.SampleRate, "channels", f.Channels)
		}
		a.ingest.Process(f)
	}

	err := a.providers.Source.Start(ctx, handler)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("app: capture: %w", err)
	}
	return nil
}

func (a *App) serveHTTP(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		errc <- err
	}()
	slog.Info("http server listening", "addr", a.server.Addr)

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: http server: %w", err)
	case <-ctx.Done():
	}

	a.hub.Close()
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := a.server.Shutdown(sctx); err != nil {
		slog.Warn("http server shutdown", "err", err)
	}
	return nil
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order: devices first,
// then background generation, then sessions and stores. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		a.hub.Close()
		if err := a.providers.Source.Close(); err != nil {
			slog.Warn("capture close error", "err", err)
		}
		if a.providers.Sink != nil {
			if err := a.providers.Sink.Close(); err != nil {
				slog.Warn("playback close error", "err", err)
			}
		}
		if w, ok := a.responder.(interface{ Wait() }); ok {
			done := make(chan struct{})
			go func() { w.Wait(); close(done) }()
			select {
			case <-done:
			case <-ctx.Done():
				shutdownErr = ctx.Err()
				return
			}
		}

		closers := a.closers
		for _, c := range []any{a.providers.STT, a.providers.LLM, a.providers.TTS} {
			if cl, ok := c.(io.Closer); ok {
				closers = append(closers, cl.Close)
			}
		}
		for i, closer := range closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

func (a *App) closeAll() {
	for _, c := range a.closers {
		_ = c()
	}
	a.closers = nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func nameOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}
