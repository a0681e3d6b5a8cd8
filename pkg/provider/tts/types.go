package tts

// VoiceProfile selects a synthesis voice.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier (e.g., a Piper model name).
	ID string

	// SpeedFactor adjusts speaking rate (0.5–2.0, 1.0 = default, 0 = default).
	SpeedFactor float64

	// Metadata holds provider-specific voice attributes (e.g., speaker index).
	Metadata map[string]string
}
