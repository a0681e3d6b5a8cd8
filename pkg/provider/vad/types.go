package vad

import (
	"fmt"
	"strings"
)

// Aggressiveness selects how readily a window is classified as voice. Higher
// modes reject more non-speech at the risk of clipping quiet speech.
type Aggressiveness int

const (
	// Quality is the least aggressive mode.
	Quality Aggressiveness = iota

	// LowBitrate is tuned for low-bitrate voice.
	LowBitrate

	// Aggressive rejects most background noise.
	Aggressive

	// VeryAggressive rejects the most non-speech. It is the default.
	VeryAggressive
)

// String returns the configuration name of the mode.
func (a Aggressiveness) String() string {
	switch a {
	case Quality:
		return "quality"
	case LowBitrate:
		return "low_bitrate"
	case Aggressive:
		return "aggressive"
	case VeryAggressive:
		return "very_aggressive"
	default:
		return fmt.Sprintf("Aggressiveness(%d)", int(a))
	}
}

// ParseAggressiveness parses a configuration name. The empty string yields
// [VeryAggressive].
func ParseAggressiveness(s string) (Aggressiveness, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "quality":
		return Quality, nil
	case "low_bitrate", "lowbitrate":
		return LowBitrate, nil
	case "aggressive":
		return Aggressive, nil
	case "very_aggressive", "veryaggressive", "":
		return VeryAggressive, nil
	default:
		return VeryAggressive, fmt.Errorf("vad: unknown aggressiveness %q", s)
	}
}
