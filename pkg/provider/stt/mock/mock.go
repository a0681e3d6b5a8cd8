// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider to verify which utterances the caller hands over and to feed
// controlled transcripts without a live engine.
//
// Example:
//
//	p := &mock.Provider{Result: &stt.Transcript{Text: "hello"}}
//	tr, _ := p.Transcribe(ctx, stt.Request{Samples: samples, SampleRate: 16000})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxgate/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Req is the Request passed to Transcribe, with Samples copied.
	Req stt.Request
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Transcribe. If nil, an empty Transcript is returned.
	Result *stt.Transcript

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Func, if non-nil, replaces Result/Err and is called outside the lock.
	Func func(ctx context.Context, req stt.Request) (*stt.Transcript, error)

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall

	// OnCall, if non-nil, receives a value after every recorded call. Sends
	// are non-blocking.
	OnCall chan struct{}
}

// Transcribe records the call and returns Result, Err (or delegates to Func).
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (*stt.Transcript, error) {
	rec := req
	rec.Samples = append([]float32(nil), req.Samples...)

	p.mu.Lock()
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, Req: rec})
	fn, res, err, notify := p.Func, p.Result, p.Err, p.OnCall
	p.mu.Unlock()

	if notify != nil {
		select {
		case notify <- struct{}{}:
		default:
		}
	}
	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	if res == nil {
		return &stt.Transcript{}, nil
	}
	out := *res
	return &out, nil
}

// Calls returns a snapshot of TranscribeCalls.
func (p *Provider) Calls() []TranscribeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]TranscribeCall, len(p.TranscribeCalls))
	copy(out, p.TranscribeCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
