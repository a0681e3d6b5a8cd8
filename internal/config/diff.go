package config

import (
	"slices"
	"time"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// requires a restart and is reported through RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	GainChanged bool
	NewGain     float64

	HysteresisChanged bool
	NewHysteresis     time.Duration

	PollIntervalChanged bool
	NewPollInterval     time.Duration

	WakeChanged bool
	NewWake     WakeConfig

	// RestartRequired lists top-level sections whose changes are ignored
	// until restart.
	RestartRequired []string
}

// Changed reports whether any hot-reloadable field changed.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.GainChanged || d.HysteresisChanged ||
		d.PollIntervalChanged || d.WakeChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Listen.Gain != new.Listen.Gain {
		d.GainChanged = true
		d.NewGain = new.Listen.Gain
	}
	if old.Listen.Hysteresis != new.Listen.Hysteresis {
		d.HysteresisChanged = true
		d.NewHysteresis = new.Listen.Hysteresis
	}
	if old.Listen.PollInterval != new.Listen.PollInterval {
		d.PollIntervalChanged = true
		d.NewPollInterval = new.Listen.PollInterval
	}
	if old.Wake.Threshold != new.Wake.Threshold || !slices.Equal(old.Wake.Phrases, new.Wake.Phrases) {
		d.WakeChanged = true
		d.NewWake = new.Wake
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || !tlsEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Capture != new.Capture {
		d.RestartRequired = append(d.RestartRequired, "capture")
	}
	if old.Listen.BufferCapacity != new.Listen.BufferCapacity ||
		old.Listen.WindowMs != new.Listen.WindowMs ||
		old.Listen.Aggressiveness != new.Listen.Aggressiveness ||
		old.Listen.TranscribeTimeout != new.Listen.TranscribeTimeout ||
		old.Listen.Language != new.Listen.Language {
		d.RestartRequired = append(d.RestartRequired, "listen")
	}
	if !providersEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Respond != new.Respond {
		d.RestartRequired = append(d.RestartRequired, "respond")
	}
	if old.Journal != new.Journal {
		d.RestartRequired = append(d.RestartRequired, "journal")
	}

	return d
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func providersEqual(a, b ProvidersConfig) bool {
	return entryEqual(a.VAD, b.VAD) && entryEqual(a.STT, b.STT) &&
		entryEqual(a.LLM, b.LLM) && entryEqual(a.TTS, b.TTS)
}

// entryEqual compares the scalar fields, option keys/values (shallowly), and
// fallbacks of two entries.
func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k, av := range a.Options {
		bv, ok := b.Options[k]
		if !ok || !scalarEqual(av, bv) {
			return false
		}
	}
	return slices.EqualFunc(a.Fallbacks, b.Fallbacks, entryEqual)
}

// scalarEqual compares option values; non-comparable values (maps, slices)
// are treated as changed.
func scalarEqual(a, b any) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return a == b
}
