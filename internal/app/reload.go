package app

import (
	"log/slog"

	"github.com/MrWong99/voxgate/internal/config"
)

// ApplyConfig applies the live-reloadable part of a config change. It is the
// callback for [config.NewWatcher]. Changes listed in d.RestartRequired are
// only logged.
func (a *App) ApplyConfig(d config.ConfigDiff, _ *config.Config) {
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(SlogLevel(d.NewLogLevel))
		slog.Info("config reload: log level", "level", d.NewLogLevel)
	}
	if d.GainChanged {
		a.conv.SetGain(d.NewGain)
		slog.Info("config reload: gain", "gain", a.conv.Gain())
	}
	if d.HysteresisChanged {
		a.gate.SetHysteresis(d.NewHysteresis)
		slog.Info("config reload: hysteresis", "hysteresis", a.gate.Hysteresis())
	}
	if d.PollIntervalChanged {
		a.worker.SetPollInterval(d.NewPollInterval)
		slog.Info("config reload: poll interval", "poll", a.worker.PollInterval())
	}
	if d.WakeChanged {
		a.wake.Update(d.NewWake.Phrases, d.NewWake.Threshold)
		slog.Info("config reload: wake phrases", "phrases", len(d.NewWake.Phrases))
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config reload: changes need a restart to take effect", "fields", d.RestartRequired)
	}
}

// SlogLevel maps a config log level to its slog equivalent. Unknown values
// map to info.
func SlogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
