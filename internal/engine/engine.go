// Package engine defines the Responder interface: the stage that turns a
// transcript into a spoken answer.
//
// A Responder receives the text of one utterance, asks a language model for
// an answer and, when a synthesiser is configured, streams the answer as
// audio. [Respond] returns as soon as audio can start playing; the full
// answer text and any mid-stream failure are available through
// [Response.Wait] once generation has finished.
//
// Implementations live in subpackages (see cascade). The interface is narrow
// so the application can be tested with the double in engine/mock.
package engine

import (
	"context"
	"sync"
)

// Request is a single question to answer.
type Request struct {
	// Text is the transcript of the utterance.
	Text string

	// Language is the BCP-47 code detected or configured for the utterance.
	// Empty if unknown.
	Language string
}

// Response is the result of a successful [Responder.Respond] call.
type Response struct {
	// Audio streams little-endian int16 mono PCM at SampleRate. It is nil when
	// the responder has no synthesiser. The channel is closed when synthesis
	// completes or fails; callers must drain it.
	Audio <-chan []byte

	// SampleRate is the rate of the PCM on Audio. Zero when Audio is nil.
	SampleRate int

	once sync.Once
	done chan struct{}
	text string
	err  error
}

// NewResponse creates a Response whose text is not yet known. The producer
// must call [Response.Finish] exactly once.
func NewResponse(audio <-chan []byte, sampleRate int) *Response {
	return &Response{Audio: audio, SampleRate: sampleRate, done: make(chan struct{})}
}

// Finished creates a Response that is already complete.
func Finished(text string) *Response {
	r := NewResponse(nil, 0)
	r.Finish(text, nil)
	return r
}

// Finish records the complete answer text and the error that ended
// generation early, if any. Calls after the first are ignored.
func (r *Response) Finish(text string, err error) {
	r.once.Do(func() {
		r.text, r.err = text, err
		close(r.done)
	})
}

// Done is closed once [Response.Finish] has been called.
func (r *Response) Done() <-chan struct{} { return r.done }

// Wait blocks until generation has finished or ctx is done, and returns the
// answer text. On a generation failure the text produced so far is returned
// together with the error.
func (r *Response) Wait(ctx context.Context) (string, error) {
	select {
	case <-r.done:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Responder answers transcribed utterances.
//
// Implementations must be safe for concurrent use, although the transcription
// worker calls Respond for one utterance at a time.
type Responder interface {
	// Respond starts answering req. It returns an error only if generation or
	// synthesis could not be started. Cancelling ctx aborts generation and
	// closes Response.Audio.
	Respond(ctx context.Context, req Request) (*Response, error)
}
