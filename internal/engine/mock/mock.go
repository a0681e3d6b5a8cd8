// Package mock provides an in-memory [engine.Responder] for unit tests.
//
// The mock records every Respond call and answers with the configured text
// and audio. It is safe for concurrent use.
//
// Example:
//
//	r := &mock.Responder{Answer: "Four.", Audio: [][]byte{{0, 0}}, Rate: 22050}
//	resp, err := r.Respond(ctx, engine.Request{Text: "Two plus two?"})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxgate/internal/engine"
)

var _ engine.Responder = (*Responder)(nil)

// Responder is a mock implementation of [engine.Responder].
type Responder struct {
	mu sync.Mutex

	// Answer is the text reported by Response.Wait.
	Answer string

	// Audio, if non-nil, is emitted on Response.Audio in order. A nil Audio
	// yields a Response without audio.
	Audio [][]byte

	// Rate is reported as Response.SampleRate when Audio is set.
	Rate int

	// Err, if non-nil, is returned by Respond.
	Err error

	// StreamErr, if non-nil, is reported by Response.Wait.
	StreamErr error

	// Requests records every Respond call in order.
	Requests []engine.Request
}

// Respond records req and returns the configured response.
func (r *Responder) Respond(ctx context.Context, req engine.Request) (*engine.Response, error) {
	r.mu.Lock()
	r.Requests = append(r.Requests, req)
	answer, chunks, rate, err, streamErr := r.Answer, r.Audio, r.Rate, r.Err, r.StreamErr
	r.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if chunks == nil {
		resp := engine.NewResponse(nil, 0)
		resp.Finish(answer, streamErr)
		return resp, nil
	}

	audio := make(chan []byte, len(chunks))
	for _, c := range chunks {
		audio <- c
	}
	close(audio)
	resp := engine.NewResponse(audio, rate)
	resp.Finish(answer, streamErr)
	return resp, nil
}

// Calls returns a snapshot of Requests.
func (r *Responder) Calls() []engine.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]engine.Request(nil), r.Requests...)
}
