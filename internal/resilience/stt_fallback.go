package resilience

import (
	"context"

	"github.com/MrWong99/voxgate/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with failover across transcribers.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional transcriber.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Transcribe sends req to the first healthy transcriber. Empty audio is
// rejected by every backend alike, so it is returned without failover.
func (f *STTFallback) Transcribe(ctx context.Context, req stt.Request) (*stt.Transcript, error) {
	if len(req.Samples) == 0 {
		return nil, stt.ErrEmptyAudio
	}
	return ExecuteWithResult(ctx, f.group, func(p stt.Provider) (*stt.Transcript, error) {
		return p.Transcribe(ctx, req)
	})
}

// Status reports the breaker state of every transcriber.
func (f *STTFallback) Status() []ProviderStatus { return f.group.Status() }

// Healthy reports whether any transcriber accepts calls.
func (f *STTFallback) Healthy() bool { return f.group.Healthy() }

// Close releases every backend that holds resources, such as a loaded model.
func (f *STTFallback) Close() error { return f.group.Close() }
