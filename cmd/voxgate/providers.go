package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/voxgate/internal/app"
	"github.com/MrWong99/voxgate/internal/config"
	"github.com/MrWong99/voxgate/internal/resilience"
	"github.com/MrWong99/voxgate/pkg/provider/llm"
	"github.com/MrWong99/voxgate/pkg/provider/llm/anyllm"
	oaillm "github.com/MrWong99/voxgate/pkg/provider/llm/openai"
	"github.com/MrWong99/voxgate/pkg/provider/stt"
	"github.com/MrWong99/voxgate/pkg/provider/stt/whisper"
	"github.com/MrWong99/voxgate/pkg/provider/tts"
	"github.com/MrWong99/voxgate/pkg/provider/tts/piper"
	"github.com/MrWong99/voxgate/pkg/provider/vad"
	"github.com/MrWong99/voxgate/pkg/provider/vad/energy"
)

// Default endpoints of the local servers.
const (
	defaultWhisperURL = "http://localhost:8080"
	defaultPiperURL   = "http://localhost:5000"
)

// errNoProvider marks a slot that is deliberately left empty ("none").
var errNoProvider = errors.New("provider disabled")

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── VAD ───────────────────────────────────────────────────────────────────
	reg.RegisterVAD("energy", func(entry config.ProviderEntry) (vad.Engine, error) {
		var opts []energy.Option
		if zcr, ok := optFloat(entry.Options, "max_zero_crossing_rate"); ok {
			opts = append(opts, energy.WithMaxZeroCrossingRate(zcr))
		}
		return energy.New(opts...), nil
	})

	// ── STT ───────────────────────────────────────────────────────────────────
	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if temp, ok := optFloat(entry.Options, "temperature"); ok {
			opts = append(opts, whisper.WithTemperature(temp))
		}
		return whisper.New(orDefault(entry.BaseURL, defaultWhisperURL), opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		if threads, ok := optFloat(entry.Options, "threads"); ok && threads > 0 {
			opts = append(opts, whisper.WithNativeThreads(uint(threads)))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────
	// anthropic, gemini, deepseek, mistral, groq, llamacpp, llamafile and
	// ollama all go through any-llm-go: optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq",
		"llamacpp", "llamafile", "ollama",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// openai uses the official SDK so that any OpenAI-compatible server can be
	// targeted through base_url.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oaillm.WithOrganization(org))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────
	reg.RegisterTTS("piper", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []piper.Option
		if speaker, ok := optFloat(entry.Options, "speaker_id"); ok {
			opts = append(opts, piper.WithSpeaker(int(speaker)))
		}
		if scale, ok := optFloat(entry.Options, "length_scale"); ok {
			opts = append(opts, piper.WithLengthScale(scale))
		}
		if rate, ok := optFloat(entry.Options, "sample_rate"); ok {
			opts = append(opts, piper.WithOutputSampleRate(int(rate)))
		}
		return piper.New(orDefault(entry.BaseURL, defaultPiperURL), opts...)
	})

	reg.RegisterTTS("none", func(config.ProviderEntry) (tts.Provider, error) {
		return nil, errNoProvider
	})

	for _, kind := range []string{"vad", "stt", "llm", "tts"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// buildProviders instantiates all providers named in cfg using the registry.
// STT, LLM and TTS are wrapped in fallback groups so that every backend gets a
// circuit breaker and configured fallbacks are tried in order.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}
	fb := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, from, to resilience.State) {
				if to == resilience.StateOpen {
					slog.Warn("provider unavailable, using fallbacks", "provider", name)
				}
			},
		},
	}

	v, err := reg.CreateVAD(cfg.Providers.VAD)
	if err != nil {
		return nil, fmt.Errorf("create vad provider %q: %w", cfg.Providers.VAD.Name, err)
	}
	ps.VAD = v
	slog.Info("provider created", "kind", "vad", "name", cfg.Providers.VAD.Name)

	// ── STT ───────────────────────────────────────────────────────────────────
	entry := cfg.Providers.STT
	primarySTT, err := reg.CreateSTT(entry)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", entry.Name, err)
	}
	sttGroup := resilience.NewSTTFallback(primarySTT, entry.Name, fb)
	for i, fe := range entry.Fallbacks {
		p, err := reg.CreateSTT(fe)
		if err != nil {
			return nil, fmt.Errorf("create stt fallback %d %q: %w", i, fe.Name, err)
		}
		sttGroup.AddFallback(fallbackName(fe, i), p)
	}
	ps.STT, ps.STTName = sttGroup, entry.Name
	slog.Info("provider created", "kind", "stt", "name", entry.Name, "fallbacks", len(entry.Fallbacks))

	if cfg.Respond.Disabled {
		return ps, nil
	}

	// ── LLM ───────────────────────────────────────────────────────────────────
	entry = cfg.Providers.LLM
	primaryLLM, err := reg.CreateLLM(entry)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", entry.Name, err)
	}
	llmGroup := resilience.NewLLMFallback(primaryLLM, entry.Name, fb)
	for i, fe := range entry.Fallbacks {
		p, err := reg.CreateLLM(fe)
		if err != nil {
			return nil, fmt.Errorf("create llm fallback %d %q: %w", i, fe.Name, err)
		}
		llmGroup.AddFallback(fallbackName(fe, i), p)
	}
	ps.LLM, ps.LLMName = llmGroup, entry.Name
	slog.Info("provider created", "kind", "llm", "name", entry.Name, "model", entry.Model, "fallbacks", len(entry.Fallbacks))

	// ── TTS ───────────────────────────────────────────────────────────────────
	entry = cfg.Providers.TTS
	if entry.Name == "" {
		return ps, nil
	}
	primaryTTS, err := reg.CreateTTS(entry)
	if errors.Is(err, errNoProvider) {
		slog.Info("speech synthesis disabled, answers are logged only")
		return ps, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", entry.Name, err)
	}
	ttsGroup := resilience.NewTTSFallback(primaryTTS, entry.Name, fb)
	for i, fe := range entry.Fallbacks {
		p, err := reg.CreateTTS(fe)
		if err != nil {
			return nil, fmt.Errorf("create tts fallback %d %q: %w", i, fe.Name, err)
		}
		if err := ttsGroup.AddFallback(fallbackName(fe, i), p); err != nil {
			return nil, err
		}
	}
	ps.TTS, ps.TTSName = ttsGroup, entry.Name
	slog.Info("provider created", "kind", "tts", "name", entry.Name, "sample_rate", ttsGroup.SampleRate(), "fallbacks", len(entry.Fallbacks))

	return ps, nil
}

// fallbackName distinguishes fallbacks that use the same implementation.
func fallbackName(e config.ProviderEntry, i int) string {
	return e.Name + "#" + strconv.Itoa(i+1)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optFloat extracts a numeric value from a provider Options map. YAML decodes
// integers as int and decimals as float64; both are accepted.
func optFloat(opts map[string]any, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case int:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
