package audio

import (
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
)

const (
	// TargetSampleRate is the rate every converted sample sequence is
	// delivered at. Both the speech classifier and the transcriber expect it.
	TargetSampleRate = 16000

	// DefaultGain is the amplitude multiplier applied after resampling.
	DefaultGain = 5.0
)

// FrameConverter turns a device [Frame] into mono float32 samples at
// [TargetSampleRate] with gain applied.
//
// Convert is meant to run on the capture thread only. SetGain may be called
// from any goroutine (e.g. a config reload) and takes effect on the next frame.
type FrameConverter struct {
	gain           atomic.Uint64 // math.Float64bits
	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// NewFrameConverter returns a converter with the given gain. A non-positive
// gain falls back to [DefaultGain].
func NewFrameConverter(gain float64) *FrameConverter {
	c := &FrameConverter{}
	c.SetGain(gain)
	return c
}

// SetGain replaces the gain. A non-positive gain falls back to [DefaultGain].
func (c *FrameConverter) SetGain(gain float64) {
	if gain <= 0 || math.IsNaN(gain) || math.IsInf(gain, 0) {
		gain = DefaultGain
	}
	c.gain.Store(math.Float64bits(gain))
}

// Gain returns the gain currently applied.
func (c *FrameConverter) Gain() float64 {
	return math.Float64frombits(c.gain.Load())
}

// Convert downmixes, resamples to [TargetSampleRate], and scales frame.
//
// The output length is round(nMono * 16000 / frame.SampleRate) where nMono is
// the number of whole interleaved frames. Samples are not clipped. Malformed
// input never fails: a trailing partial frame is dropped and a frame with a
// non-positive rate or channel count converts to an empty slice.
func (c *FrameConverter) Convert(frame Frame) []float32 {
	if frame.SampleRate <= 0 || frame.Channels <= 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio converter: frame without valid format, treating as silence",
				"sampleRate", frame.SampleRate,
				"channels", frame.Channels,
			)
		})
		return []float32{}
	}
	if len(frame.Samples)%frame.Channels != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio converter: sample count not a multiple of channels, truncating",
				"samples", len(frame.Samples),
				"channels", frame.Channels,
			)
		})
	}
	if frame.SampleRate != TargetSampleRate || frame.Channels != 1 {
		c.warnedMismatch.Do(func() {
			slog.Debug("audio converter: converting device format",
				"from", formatString(frame.SampleRate, frame.Channels),
				"to", formatString(TargetSampleRate, 1),
			)
		})
	}

	mono := Downmix(frame.Samples, frame.Channels)
	out := Resample(mono, frame.SampleRate, TargetSampleRate)

	gain := float32(c.Gain())
	if len(out) > 0 && &out[0] == &frame.Samples[0] {
		// Same rate, mono: Resample and Downmix returned the caller's slice.
		out = append([]float32(nil), out...)
	}
	for i := range out {
		out[i] *= gain
	}
	return out
}

// Downmix averages all channels of each interleaved frame into one mono
// sample. Mono input is returned as-is. A trailing partial frame is dropped.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]float32, frames)
	inv := 1 / float32(channels)
	for i := range frames {
		var sum float32
		base := i * channels
		for ch := range channels {
			sum += samples[base+ch]
		}
		out[i] = sum * inv
	}
	return out
}

// ResampledLen returns round(n * dstRate / srcRate), the number of samples
// [Resample] produces for n input samples.
func ResampledLen(n, srcRate, dstRate int) int {
	if n <= 0 || srcRate <= 0 || dstRate <= 0 {
		return 0
	}
	num := int64(n) * int64(dstRate)
	return int((2*num + int64(srcRate)) / (2 * int64(srcRate)))
}

// Resample converts mono samples from srcRate to dstRate using linear
// interpolation. If the rates match, the input is returned unchanged.
// Positions past the last input sample hold the last sample.
func Resample(mono []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 {
		return []float32{}
	}
	if srcRate == dstRate {
		return mono
	}
	n := len(mono)
	dst := ResampledLen(n, srcRate, dstRate)
	if dst == 0 {
		return []float32{}
	}

	out := make([]float32, dst)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dst {
		srcPos := float64(i) * ratio
		idx := int(srcPos)
		if idx >= n-1 {
			out[i] = mono[n-1]
			continue
		}
		frac := float32(srcPos - float64(idx))
		out[i] = mono[idx]*(1-frac) + mono[idx+1]*frac
	}
	return out
}
