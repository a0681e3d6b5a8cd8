package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/voxgate/internal/config"
)

func baseConfig() *config.Config {
	cfg := &config.Config{
		Providers: config.ProvidersConfig{
			STT: config.ProviderEntry{Name: "whisper", BaseURL: "http://localhost:8081"},
			LLM: config.ProviderEntry{Name: "ollama", Model: "qwen2", Options: map[string]any{"num_ctx": 2048}},
		},
		Wake: config.WakeConfig{Phrases: []string{"hey computer"}},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(baseConfig(), baseConfig())
	if d.Changed() {
		t.Errorf("Changed(): want false, got true (%+v)", d)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("RestartRequired: want empty, got %v", d.RestartRequired)
	}
}

func TestDiff_LiveFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		check  func(t *testing.T, d config.ConfigDiff)
	}{
		{
			name:   "log level",
			mutate: func(c *config.Config) { c.Server.LogLevel = config.LogDebug },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
					t.Errorf("got changed=%v new=%q", d.LogLevelChanged, d.NewLogLevel)
				}
			},
		},
		{
			name:   "gain",
			mutate: func(c *config.Config) { c.Listen.Gain = 2 },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.GainChanged || d.NewGain != 2 {
					t.Errorf("got changed=%v new=%v", d.GainChanged, d.NewGain)
				}
			},
		},
		{
			name:   "hysteresis",
			mutate: func(c *config.Config) { c.Listen.Hysteresis = 1200 * time.Millisecond },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.HysteresisChanged || d.NewHysteresis != 1200*time.Millisecond {
					t.Errorf("got changed=%v new=%v", d.HysteresisChanged, d.NewHysteresis)
				}
			},
		},
		{
			name:   "poll interval",
			mutate: func(c *config.Config) { c.Listen.PollInterval = 20 * time.Millisecond },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.PollIntervalChanged || d.NewPollInterval != 20*time.Millisecond {
					t.Errorf("got changed=%v new=%v", d.PollIntervalChanged, d.NewPollInterval)
				}
			},
		},
		{
			name:   "wake phrases",
			mutate: func(c *config.Config) { c.Wake.Phrases = append(c.Wake.Phrases, "okay jarvis") },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.WakeChanged || len(d.NewWake.Phrases) != 2 {
					t.Errorf("got changed=%v new=%v", d.WakeChanged, d.NewWake)
				}
			},
		},
		{
			name:   "wake threshold",
			mutate: func(c *config.Config) { c.Wake.Threshold = 0.9 },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.WakeChanged || d.NewWake.Threshold != 0.9 {
					t.Errorf("got changed=%v new=%v", d.WakeChanged, d.NewWake)
				}
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			newCfg := baseConfig()
			tc.mutate(newCfg)
			d := config.Diff(baseConfig(), newCfg)
			if !d.Changed() {
				t.Error("Changed(): want true")
			}
			if len(d.RestartRequired) != 0 {
				t.Errorf("RestartRequired: want empty, got %v", d.RestartRequired)
			}
			tc.check(t, d)
		})
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		section string
	}{
		{name: "listen addr", mutate: func(c *config.Config) { c.Server.ListenAddr = ":8080" }, section: "server"},
		{name: "tls added", mutate: func(c *config.Config) {
			c.Server.TLS = &config.TLSConfig{CertFile: "c.pem", KeyFile: "k.pem"}
		}, section: "server"},
		{name: "capture device", mutate: func(c *config.Config) { c.Capture.Device = "USB" }, section: "capture"},
		{name: "buffer capacity", mutate: func(c *config.Config) { c.Listen.BufferCapacity = 16000 }, section: "listen"},
		{name: "window", mutate: func(c *config.Config) { c.Listen.WindowMs = 30 }, section: "listen"},
		{name: "language", mutate: func(c *config.Config) { c.Listen.Language = "de" }, section: "listen"},
		{name: "stt url", mutate: func(c *config.Config) { c.Providers.STT.BaseURL = "http://other" }, section: "providers"},
		{name: "llm option", mutate: func(c *config.Config) { c.Providers.LLM.Options["num_ctx"] = 4096 }, section: "providers"},
		{name: "fallback added", mutate: func(c *config.Config) {
			c.Providers.LLM.Fallbacks = []config.ProviderEntry{{Name: "openai"}}
		}, section: "providers"},
		{name: "system prompt", mutate: func(c *config.Config) { c.Respond.SystemPrompt = "Be brief." }, section: "respond"},
		{name: "journal", mutate: func(c *config.Config) { c.Journal.PostgresDSN = "postgres://x" }, section: "journal"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			newCfg := baseConfig()
			tc.mutate(newCfg)
			d := config.Diff(baseConfig(), newCfg)
			if d.Changed() {
				t.Errorf("Changed(): want false for restart-only change, got %+v", d)
			}
			if !slices.Equal(d.RestartRequired, []string{tc.section}) {
				t.Errorf("RestartRequired: want [%s], got %v", tc.section, d.RestartRequired)
			}
		})
	}
}

// TestDiff_NonComparableOptions verifies that nested option values are always
// reported as changed instead of panicking.
func TestDiff_NonComparableOptions(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	old.Providers.STT.Options = map[string]any{"extra": map[string]any{"a": 1}}
	newCfg := baseConfig()
	newCfg.Providers.STT.Options = map[string]any{"extra": map[string]any{"a": 1}}

	d := config.Diff(old, newCfg)
	if !slices.Contains(d.RestartRequired, "providers") {
		t.Errorf("RestartRequired: want providers, got %v", d.RestartRequired)
	}
}
