package resilience

import (
	"context"
	"fmt"

	"github.com/MrWong99/voxgate/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with failover across synthesisers.
// All entries must emit PCM at the same sample rate.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional synthesiser. It fails if provider's
// sample rate differs from the primary's, since the sink is opened once.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) error {
	if got, want := provider.SampleRate(), f.SampleRate(); got != want {
		return fmt.Errorf("resilience: tts fallback %q emits %d Hz, primary emits %d Hz", name, got, want)
	}
	f.group.AddFallback(name, provider)
	return nil
}

// SynthesizeStream starts synthesis on the first healthy provider. Only
// starting the stream fails over.
func (f *TTSFallback) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.VoiceProfile) (<-chan []byte, error) {
	return ExecuteWithResult(ctx, f.group, func(p tts.Provider) (<-chan []byte, error) {
		return p.SynthesizeStream(ctx, text, voice)
	})
}

// SampleRate reports the primary's output rate, shared by all entries.
func (f *TTSFallback) SampleRate() int { return f.group.Primary().SampleRate() }

// Status reports the breaker state of every synthesiser.
func (f *TTSFallback) Status() []ProviderStatus { return f.group.Status() }

// Healthy reports whether any synthesiser accepts calls.
func (f *TTSFallback) Healthy() bool { return f.group.Healthy() }

// Close releases every backend that holds resources, such as a loaded model.
func (f *TTSFallback) Close() error { return f.group.Close() }
