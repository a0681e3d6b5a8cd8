package config_test

import (
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/voxgate/internal/config"
)

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantMsg string
	}{
		{name: "log level", yaml: "server:\n  log_level: verbose\n", wantMsg: "server.log_level"},
		{name: "tls without key", yaml: "server:\n  tls:\n    cert_file: c.pem\n", wantMsg: "server.tls"},
		{name: "negative gain", yaml: "listen:\n  gain: -1\n", wantMsg: "listen.gain"},
		{name: "negative hysteresis", yaml: "listen:\n  hysteresis: -5ms\n", wantMsg: "listen.hysteresis"},
		{name: "negative capacity", yaml: "listen:\n  buffer_capacity: -10\n", wantMsg: "listen.buffer_capacity"},
		{name: "window", yaml: "listen:\n  window_ms: 15\n", wantMsg: "listen.window_ms"},
		{name: "aggressiveness", yaml: "listen:\n  aggressiveness: extreme\n", wantMsg: "listen.aggressiveness"},
		{name: "temperature", yaml: "respond:\n  temperature: 3\n", wantMsg: "respond.temperature"},
		{name: "wake threshold", yaml: "wake:\n  threshold: 1.5\n", wantMsg: "wake.threshold"},
		{name: "empty wake phrase", yaml: "wake:\n  phrases: [\"\"]\n", wantMsg: "wake.phrases[0]"},
		{name: "fallback without name", yaml: "providers:\n  llm:\n    name: openai\n    fallbacks:\n      - model: x\n", wantMsg: "providers.llm.fallbacks[0].name"},
		{name: "nested fallbacks", yaml: `
providers:
  stt:
    name: whisper
    fallbacks:
      - name: whisper-native
        fallbacks:
          - name: whisper
`, wantMsg: "may not be nested"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Errorf("error should mention %q, got: %v", tc.wantMsg, err)
			}
		})
	}
}

// TestValidate_RespondRequiresLLM verifies that answering needs a language
// model while pure transcription does not.
func TestValidate_RespondRequiresLLM(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Providers.LLM = config.ProviderEntry{}

	if err := config.Validate(cfg); err == nil || !strings.Contains(err.Error(), "providers.llm") {
		t.Errorf("expected providers.llm error, got: %v", err)
	}

	cfg.Respond.Disabled = true
	if err := config.Validate(cfg); err != nil {
		t.Errorf("transcribe-only config should be valid, got: %v", err)
	}
}

func TestValidate_STTRequired(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Providers.STT.Name = ""

	if err := config.Validate(cfg); err == nil || !strings.Contains(err.Error(), "providers.stt.name") {
		t.Errorf("expected providers.stt.name error, got: %v", err)
	}
}

func TestValidate_TTSNoneIsValid(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("providers:\n  tts:\n    name: none\n"))
	if err != nil {
		t.Errorf("tts none should be valid, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
listen:
  window_ms: 15
wake:
  threshold: 2
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	for _, want := range []string{"listen.window_ms", "wake.threshold"} {
		if !strings.Contains(errStr, want) {
			t.Errorf("error should mention %s, got: %v", want, err)
		}
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	for _, kind := range []string{"vad", "stt", "llm", "tts"} {
		if len(config.ValidProviderNames[kind]) == 0 {
			t.Errorf("ValidProviderNames[%q] should not be empty", kind)
		}
	}
	if !slices.Contains(config.ValidProviderNames["llm"], "ollama") {
		t.Error("ValidProviderNames[\"llm\"] should contain \"ollama\"")
	}
	if !slices.Contains(config.ValidProviderNames["stt"], "whisper") {
		t.Error("ValidProviderNames[\"stt\"] should contain \"whisper\"")
	}
}
