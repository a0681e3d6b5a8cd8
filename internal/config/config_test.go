package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/voxgate/internal/config"
	"github.com/MrWong99/voxgate/pkg/provider/llm"
	llmmock "github.com/MrWong99/voxgate/pkg/provider/llm/mock"
	"github.com/MrWong99/voxgate/pkg/provider/stt"
	sttmock "github.com/MrWong99/voxgate/pkg/provider/stt/mock"
	"github.com/MrWong99/voxgate/pkg/provider/tts"
	ttsmock "github.com/MrWong99/voxgate/pkg/provider/tts/mock"
	"github.com/MrWong99/voxgate/pkg/provider/vad"
	vadmock "github.com/MrWong99/voxgate/pkg/provider/vad/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":8080"
  log_level: debug

capture:
  device: "USB Audio"
  sample_rate: 44100
  channels: 1

listen:
  gain: 4
  hysteresis: 1200ms
  buffer_capacity: 480000
  poll_interval: 25ms
  window_ms: 20
  aggressiveness: aggressive
  transcribe_timeout: 10s
  language: de

providers:
  vad:
    name: energy
  stt:
    name: whisper
    base_url: http://localhost:8081
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini
    fallbacks:
      - name: ollama
        model: qwen2
  tts:
    name: piper
    base_url: http://localhost:5000

respond:
  system_prompt: "Answer briefly."
  voice: en_US-lessac-medium
  timeout: 20s
  playback_sample_rate: 22050
  temperature: 0.7

wake:
  phrases: ["hey computer"]
  threshold: 0.9

journal:
  postgres_dsn: "postgres://localhost/voxgate"
`

// ── Loading ──────────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":8080")
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level: got %q, want %q", cfg.Server.LogLevel, config.LogDebug)
	}
	if cfg.Capture.Device != "USB Audio" || cfg.Capture.SampleRate != 44100 || cfg.Capture.Channels != 1 {
		t.Errorf("capture: got %+v", cfg.Capture)
	}
	l := cfg.Listen
	if l.Gain != 4 || l.Hysteresis != 1200*time.Millisecond || l.BufferCapacity != 480000 ||
		l.PollInterval != 25*time.Millisecond || l.WindowMs != 20 || l.Aggressiveness != "aggressive" ||
		l.TranscribeTimeout != 10*time.Second || l.Language != "de" {
		t.Errorf("listen: got %+v", l)
	}
	if cfg.Providers.LLM.Name != "openai" || cfg.Providers.LLM.Model != "gpt-4o-mini" {
		t.Errorf("llm: got %+v", cfg.Providers.LLM)
	}
	if len(cfg.Providers.LLM.Fallbacks) != 1 || cfg.Providers.LLM.Fallbacks[0].Name != "ollama" {
		t.Errorf("llm fallbacks: got %+v", cfg.Providers.LLM.Fallbacks)
	}
	if cfg.Respond.Timeout != 20*time.Second || cfg.Respond.PlaybackSampleRate != 22050 {
		t.Errorf("respond: got %+v", cfg.Respond)
	}
	if !slices.Equal(cfg.Wake.Phrases, []string{"hey computer"}) || cfg.Wake.Threshold != 0.9 {
		t.Errorf("wake: got %+v", cfg.Wake)
	}
	if cfg.Journal.PostgresDSN != "postgres://localhost/voxgate" {
		t.Errorf("journal dsn: got %q", cfg.Journal.PostgresDSN)
	}
}

// TestLoadFromReader_EmptyIsValid verifies that an empty document yields the
// documented defaults.
func TestLoadFromReader_EmptyIsValid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("empty config should be valid, got: %v", err)
	}

	l := cfg.Listen
	if l.Gain != 5.0 {
		t.Errorf("gain: got %v, want 5.0", l.Gain)
	}
	if l.Hysteresis != 900*time.Millisecond {
		t.Errorf("hysteresis: got %v, want 900ms", l.Hysteresis)
	}
	if l.BufferCapacity != 960_000 {
		t.Errorf("buffer_capacity: got %d, want 960000", l.BufferCapacity)
	}
	if l.PollInterval != 50*time.Millisecond {
		t.Errorf("poll_interval: got %v, want 50ms", l.PollInterval)
	}
	if l.WindowMs != 10 || l.Aggressiveness != "very_aggressive" {
		t.Errorf("classifier: got window %d, aggressiveness %q", l.WindowMs, l.Aggressiveness)
	}
	if cfg.Providers.STT.Name != "whisper" || cfg.Providers.LLM.Name != "ollama" || cfg.Providers.LLM.Model != "qwen2" {
		t.Errorf("providers: got stt=%q llm=%q/%q", cfg.Providers.STT.Name, cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	}
	if cfg.Respond.SystemPrompt != config.DefaultSystemPrompt {
		t.Errorf("system_prompt: got %q", cfg.Respond.SystemPrompt)
	}
	if cfg.Server.ListenAddr != config.DefaultListenAddr {
		t.Errorf("listen_addr: got %q", cfg.Server.ListenAddr)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("listen:\n  gian: 3\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "voxgate.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen.Language != "de" {
		t.Errorf("language: got %q, want de", cfg.Listen.Language)
	}

	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load of missing file: expected error, got nil")
	}
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Listen:    config.ListenConfig{Gain: 2, Hysteresis: time.Second},
		Providers: config.ProvidersConfig{LLM: config.ProviderEntry{Name: "openai"}},
	}
	config.ApplyDefaults(cfg)

	if cfg.Listen.Gain != 2 || cfg.Listen.Hysteresis != time.Second {
		t.Errorf("explicit listen values overwritten: %+v", cfg.Listen)
	}
	if cfg.Providers.LLM.Model != "" {
		t.Errorf("llm model: explicit provider must not get the ollama default model, got %q", cfg.Providers.LLM.Model)
	}
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestRegistry_Unknown(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	entry := config.ProviderEntry{Name: "nonexistent"}

	checks := map[string]error{}
	_, checks["vad"] = reg.CreateVAD(entry)
	_, checks["stt"] = reg.CreateSTT(entry)
	_, checks["llm"] = reg.CreateLLM(entry)
	_, checks["tts"] = reg.CreateTTS(entry)

	for kind, err := range checks {
		if !errors.Is(err, config.ErrProviderNotRegistered) {
			t.Errorf("%s: expected ErrProviderNotRegistered, got %v", kind, err)
		}
	}
}

func TestRegistry_Registered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	wantVAD := &vadmock.Engine{}
	wantSTT := &sttmock.Provider{}
	wantLLM := &llmmock.Provider{}
	wantTTS := &ttsmock.Provider{}
	reg.RegisterVAD("stub", func(config.ProviderEntry) (vad.Engine, error) { return wantVAD, nil })
	reg.RegisterSTT("stub", func(config.ProviderEntry) (stt.Provider, error) { return wantSTT, nil })
	reg.RegisterLLM("stub", func(config.ProviderEntry) (llm.Provider, error) { return wantLLM, nil })
	reg.RegisterTTS("stub", func(config.ProviderEntry) (tts.Provider, error) { return wantTTS, nil })

	entry := config.ProviderEntry{Name: "stub"}
	if got, err := reg.CreateVAD(entry); err != nil || got != wantVAD {
		t.Errorf("CreateVAD: got (%v, %v)", got, err)
	}
	if got, err := reg.CreateSTT(entry); err != nil || got != wantSTT {
		t.Errorf("CreateSTT: got (%v, %v)", got, err)
	}
	if got, err := reg.CreateLLM(entry); err != nil || got != wantLLM {
		t.Errorf("CreateLLM: got (%v, %v)", got, err)
	}
	if got, err := reg.CreateTTS(entry); err != nil || got != wantTTS {
		t.Errorf("CreateTTS: got (%v, %v)", got, err)
	}
}

func TestRegistry_FactoryReceivesEntry(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	var got config.ProviderEntry
	reg.RegisterSTT("whisper", func(e config.ProviderEntry) (stt.Provider, error) {
		got = e
		return &sttmock.Provider{}, nil
	})

	want := config.ProviderEntry{Name: "whisper", BaseURL: "http://localhost:8081", Model: "base"}
	if _, err := reg.CreateSTT(want); err != nil {
		t.Fatalf("CreateSTT: %v", err)
	}
	if got.BaseURL != want.BaseURL || got.Model != want.Model {
		t.Errorf("factory entry: got %+v, want %+v", got, want)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	wantErr := errors.New("factory boom")
	reg.RegisterLLM("broken", func(config.ProviderEntry) (llm.Provider, error) {
		return nil, wantErr
	})
	_, err := reg.CreateLLM(config.ProviderEntry{Name: "broken"})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected factory error %v, got %v", wantErr, err)
	}
}

func TestRegistry_Names(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	reg.RegisterSTT("whisper-native", func(config.ProviderEntry) (stt.Provider, error) { return nil, nil })
	reg.RegisterSTT("whisper", func(config.ProviderEntry) (stt.Provider, error) { return nil, nil })

	if got := reg.Names("stt"); !slices.Equal(got, []string{"whisper", "whisper-native"}) {
		t.Errorf("Names(stt): got %v", got)
	}
	if got := reg.Names("tts"); len(got) != 0 {
		t.Errorf("Names(tts): want empty, got %v", got)
	}
	if got := reg.Names("bogus"); got != nil {
		t.Errorf("Names(bogus): want nil, got %v", got)
	}
}
