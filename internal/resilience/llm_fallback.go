package resilience

import (
	"context"

	"github.com/MrWong99/voxgate/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] with failover across language models.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional language model.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Complete sends req to the first healthy model.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(ctx, f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// StreamCompletion opens a stream on the first healthy model. Only opening the
// stream fails over; errors after that arrive as chunks.
func (f *LLMFallback) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return ExecuteWithResult(ctx, f.group, func(p llm.Provider) (<-chan llm.Chunk, error) {
		return p.StreamCompletion(ctx, req)
	})
}

// Status reports the breaker state of every model.
func (f *LLMFallback) Status() []ProviderStatus { return f.group.Status() }

// Healthy reports whether any model accepts calls.
func (f *LLMFallback) Healthy() bool { return f.group.Healthy() }

// Close releases every backend that holds resources, such as a loaded model.
func (f *LLMFallback) Close() error { return f.group.Close() }
