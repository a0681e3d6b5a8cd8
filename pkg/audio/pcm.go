package audio

import (
	"encoding/binary"
	"fmt"
)

// FloatToInt16 scales a float sample in [-1, 1] to int16, clamping values
// outside the representable range.
func FloatToInt16(s float32) int16 {
	v := s * 32767
	switch {
	case v >= 32767:
		return 32767
	case v <= -32768:
		return -32768
	}
	return int16(v)
}

// FloatsToInt16 scales samples into dst using [FloatToInt16]. Only
// min(len(dst), len(samples)) samples are written; the rest of dst is zeroed.
func FloatsToInt16(dst []int16, samples []float32) {
	n := min(len(dst), len(samples))
	for i := range n {
		dst[i] = FloatToInt16(samples[i])
	}
	clear(dst[n:])
}

// FloatsToPCM16 encodes samples as little-endian int16 PCM.
func FloatsToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(FloatToInt16(s)))
	}
	return out
}

// PCM16ToFloats decodes little-endian int16 PCM to float32 samples normalised
// to [-1.0, 1.0]. A trailing odd byte is ignored.
func PCM16ToFloats(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := range n {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
	}
	return out
}

// formatString returns a human-readable string for a sample rate and channel count,
// e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
