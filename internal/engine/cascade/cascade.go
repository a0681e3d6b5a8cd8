// Package cascade implements [engine.Responder] as a sentence cascade: the
// language model's answer is streamed, cut into sentences as tokens arrive,
// and each sentence is handed to the synthesiser while the model is still
// generating the next one.
//
// # Pipeline
//
//  1. The transcript becomes a single user message, sent with the configured
//     system prompt (by default a request for short single-sentence answers).
//  2. Tokens are accumulated until a sentence boundary ('.', '!' or '?'
//     followed by whitespace) and the sentence is forwarded to TTS.
//  3. TTS audio is returned on [engine.Response.Audio] while generation is
//     still running.
//
// Without a synthesiser the engine falls back to a blocking completion and
// returns text only.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/voxgate/internal/engine"
	"github.com/MrWong99/voxgate/internal/observe"
	"github.com/MrWong99/voxgate/pkg/provider/llm"
	"github.com/MrWong99/voxgate/pkg/provider/tts"
)

// Errors reported by [Engine.Respond] and [engine.Response.Wait].
var (
	ErrLanguageModel = errors.New("cascade: language model failed")
	ErrSynthesis     = errors.New("cascade: speech synthesis failed")
)

const (
	// DefaultSystemPrompt keeps answers short enough to be spoken.
	DefaultSystemPrompt = "Provide short answers in single sentence only."

	// textBuf is the depth of the sentence channel feeding TTS.
	textBuf = 16
)

// Engine implements [engine.Responder]. It is safe for concurrent use.
type Engine struct {
	llm          llm.Provider
	tts          tts.Provider // nil = text only
	voice        tts.VoiceProfile
	systemPrompt string
	maxTokens    int
	temperature  float64
	llmName      string
	ttsName      string
	metrics      *observe.Metrics

	// wg tracks generation goroutines so Wait can synchronise with them.
	wg sync.WaitGroup
}

var _ engine.Responder = (*Engine)(nil)

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithSystemPrompt overrides [DefaultSystemPrompt]. An empty prompt sends no
// system instruction.
func WithSystemPrompt(p string) Option {
	return func(e *Engine) { e.systemPrompt = p }
}

// WithVoice selects the synthesis voice.
func WithVoice(v tts.VoiceProfile) Option {
	return func(e *Engine) { e.voice = v }
}

// WithMaxTokens caps the answer length. Zero uses the provider default.
func WithMaxTokens(n int) Option {
	return func(e *Engine) { e.maxTokens = n }
}

// WithTemperature sets the sampling temperature. Zero uses the provider
// default.
func WithTemperature(t float64) Option {
	return func(e *Engine) { e.temperature = t }
}

// WithProviderNames sets the provider labels used in metrics.
func WithProviderNames(llmName, ttsName string) Option {
	return func(e *Engine) { e.llmName, e.ttsName = llmName, ttsName }
}

// WithMetrics records model and synthesis metrics to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an Engine. synth may be nil to answer with text only.
func New(model llm.Provider, synth tts.Provider, opts ...Option) *Engine {
	e := &Engine{
		llm:          model,
		tts:          synth,
		systemPrompt: DefaultSystemPrompt,
		llmName:      "llm",
		ttsName:      "tts",
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Respond answers req. With a synthesiser configured it returns once
// synthesis has started; generation continues in the background and its
// result is reported through [engine.Response.Wait].
func (e *Engine) Respond(ctx context.Context, req engine.Request) (*engine.Response, error) {
	creq := e.buildRequest(req)
	if e.tts == nil {
		return e.complete(ctx, creq)
	}

	ctx, span := observe.StartSpan(ctx, "cascade.respond")
	span.SetAttributes(attribute.Int("request.chars", len(req.Text)))

	start := time.Now()
	stream, err := e.llm.StreamCompletion(ctx, creq)
	if err != nil {
		e.recordLLM(ctx, start, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, fmt.Errorf("%w: %w", ErrLanguageModel, err)
	}

	textCh := make(chan string, textBuf)
	audio, err := e.tts.SynthesizeStream(ctx, textCh, e.voice)
	if err != nil {
		close(textCh)
		go drainChunks(stream)
		e.recordProvider(ctx, e.ttsName, "tts", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, fmt.Errorf("%w: %w", ErrSynthesis, err)
	}
	e.recordProvider(ctx, e.ttsName, "tts", nil)

	resp := engine.NewResponse(audio, e.tts.SampleRate())
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer span.End()
		text, err := forwardSentences(ctx, stream, textCh)
		e.recordLLM(ctx, start, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		resp.Finish(text, err)
	}()
	return resp, nil
}

// Wait blocks until all background generation goroutines have finished.
func (e *Engine) Wait() { e.wg.Wait() }

func (e *Engine) complete(ctx context.Context, creq llm.CompletionRequest) (*engine.Response, error) {
	ctx, span := observe.StartSpan(ctx, "cascade.complete")
	defer span.End()

	start := time.Now()
	out, err := e.llm.Complete(ctx, creq)
	e.recordLLM(ctx, start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %w", ErrLanguageModel, err)
	}
	if out == nil {
		return engine.Finished(""), nil
	}
	return engine.Finished(strings.TrimSpace(out.Content)), nil
}

func (e *Engine) buildRequest(req engine.Request) llm.CompletionRequest {
	return llm.CompletionRequest{
		SystemPrompt: e.systemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: req.Text}},
		MaxTokens:    e.maxTokens,
		Temperature:  e.temperature,
	}
}

func (e *Engine) recordLLM(ctx context.Context, start time.Time, err error) {
	if e.metrics == nil {
		return
	}
	e.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	e.recordProvider(ctx, e.llmName, "llm", err)
}

func (e *Engine) recordProvider(ctx context.Context, name, kind string, err error) {
	if e.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
		e.metrics.RecordProviderError(ctx, name, kind)
	}
	e.metrics.RecordProviderRequest(ctx, name, kind, status)
}

// forwardSentences reads chunks from ch, writes each complete sentence to
// textCh, and closes textCh when the stream ends. It returns the full answer.
// An error chunk ends the stream with [ErrLanguageModel]; its text is never
// spoken.
func forwardSentences(ctx context.Context, ch <-chan llm.Chunk, textCh chan<- string) (string, error) {
	defer close(textCh)

	var (
		full strings.Builder
		buf  strings.Builder
	)
	send := func(s string) bool {
		s = strings.TrimSpace(s)
		if s == "" {
			return true
		}
		select {
		case textCh <- s:
			return true
		case <-ctx.Done():
			return false
		}
	}
	flush := func() bool {
		rest := buf.String()
		buf.Reset()
		return send(rest)
	}
	answer := func() string { return strings.TrimSpace(full.String()) }

	for {
		select {
		case <-ctx.Done():
			go drainChunks(ch)
			return answer(), ctx.Err()
		case chunk, ok := <-ch:
			if !ok {
				if !flush() {
					return answer(), ctx.Err()
				}
				return answer(), nil
			}
			if chunk.FinishReason == "error" {
				go drainChunks(ch)
				flush()
				return answer(), fmt.Errorf("%w: %s", ErrLanguageModel, chunk.Text)
			}

			full.WriteString(chunk.Text)
			buf.WriteString(chunk.Text)
			for {
				s := buf.String()
				idx := sentenceBoundary(s)
				if idx < 0 {
					break
				}
				buf.Reset()
				buf.WriteString(s[idx+1:])
				if !send(s[:idx+1]) {
					go drainChunks(ch)
					return answer(), ctx.Err()
				}
			}
		}
	}
}

// sentenceBoundary returns the index of the first '.', '!' or '?' that is
// followed by whitespace, or -1.
func sentenceBoundary(s string) int {
	for i := 0; i < len(s)-1; i++ {
		switch s[i] {
		case '.', '!', '?':
			switch s[i+1] {
			case ' ', '\n', '\r', '\t':
				return i
			}
		}
	}
	return -1
}

func drainChunks(ch <-chan llm.Chunk) {
	for range ch {
	}
}
