package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/voxgate/pkg/provider/vad"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"vad": {"energy"},
	"stt": {"whisper", "whisper-native"},
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts": {"piper", "none"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills defaults, and validates
// the result. An empty document yields the all-defaults config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
// Validate expects defaults to have been applied.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Capture
	if cfg.Capture.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("capture.sample_rate %d must be positive", cfg.Capture.SampleRate))
	}
	if cfg.Capture.Channels < 0 {
		errs = append(errs, fmt.Errorf("capture.channels %d must be positive", cfg.Capture.Channels))
	}

	// Listen
	l := cfg.Listen
	if l.Gain <= 0 {
		errs = append(errs, fmt.Errorf("listen.gain %.2f must be positive", l.Gain))
	}
	if l.Hysteresis <= 0 {
		errs = append(errs, fmt.Errorf("listen.hysteresis %v must be positive", l.Hysteresis))
	}
	if l.BufferCapacity <= 0 {
		errs = append(errs, fmt.Errorf("listen.buffer_capacity %d must be positive", l.BufferCapacity))
	}
	if l.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("listen.poll_interval %v must be positive", l.PollInterval))
	}
	if l.WindowMs != 10 && l.WindowMs != 20 && l.WindowMs != 30 {
		errs = append(errs, fmt.Errorf("listen.window_ms %d is invalid; valid values: 10, 20, 30", l.WindowMs))
	}
	if _, err := vad.ParseAggressiveness(l.Aggressiveness); err != nil {
		errs = append(errs, fmt.Errorf("listen.aggressiveness %q is invalid; valid values: quality, low_bitrate, aggressive, very_aggressive", l.Aggressiveness))
	}
	if l.TranscribeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("listen.transcribe_timeout %v must be positive", l.TranscribeTimeout))
	}
	if l.Hysteresis < l.PollInterval {
		slog.Warn("listen.hysteresis is shorter than listen.poll_interval; utterances may be split",
			"hysteresis", l.Hysteresis,
			"poll_interval", l.PollInterval,
		)
	}

	// Providers
	validateProviderName("vad", cfg.Providers.VAD.Name)
	errs = append(errs, validateEntry("stt", cfg.Providers.STT)...)
	errs = append(errs, validateEntry("llm", cfg.Providers.LLM)...)
	errs = append(errs, validateEntry("tts", cfg.Providers.TTS)...)
	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required"))
	}

	// Respond
	if !cfg.Respond.Disabled {
		if cfg.Providers.LLM.Name == "" {
			errs = append(errs, errors.New("respond requires providers.llm; set respond.disabled to only transcribe"))
		}
		if cfg.Providers.TTS.Name == "" || cfg.Providers.TTS.Name == "none" {
			slog.Warn("providers.tts is not configured; answers will be logged but not spoken")
		}
	}
	if cfg.Respond.Timeout < 0 {
		errs = append(errs, fmt.Errorf("respond.timeout %v must be positive", cfg.Respond.Timeout))
	}
	if cfg.Respond.PlaybackSampleRate < 0 {
		errs = append(errs, fmt.Errorf("respond.playback_sample_rate %d must be positive", cfg.Respond.PlaybackSampleRate))
	}
	if cfg.Respond.Temperature < 0 || cfg.Respond.Temperature > 2 {
		errs = append(errs, fmt.Errorf("respond.temperature %.2f is out of range [0, 2]", cfg.Respond.Temperature))
	}

	// Wake
	if cfg.Wake.Threshold <= 0 || cfg.Wake.Threshold > 1 {
		errs = append(errs, fmt.Errorf("wake.threshold %.2f is out of range (0, 1]", cfg.Wake.Threshold))
	}
	for i, p := range cfg.Wake.Phrases {
		if p == "" {
			errs = append(errs, fmt.Errorf("wake.phrases[%d] is empty", i))
		}
	}

	// Journal
	if cfg.Journal.PostgresDSN == "" {
		slog.Debug("journal.postgres_dsn is empty; transcripts will not be persisted")
	}

	return errors.Join(errs...)
}

// validateEntry checks a provider entry and its fallbacks.
func validateEntry(kind string, e ProviderEntry) []error {
	var errs []error
	validateProviderName(kind, e.Name)
	if e.Name == "" && len(e.Fallbacks) > 0 {
		errs = append(errs, fmt.Errorf("providers.%s.fallbacks requires providers.%s.name", kind, kind))
	}
	for i, fb := range e.Fallbacks {
		prefix := fmt.Sprintf("providers.%s.fallbacks[%d]", kind, i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		if len(fb.Fallbacks) > 0 {
			errs = append(errs, fmt.Errorf("%s.fallbacks may not be nested", prefix))
		}
		validateProviderName(kind, fb.Name)
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
