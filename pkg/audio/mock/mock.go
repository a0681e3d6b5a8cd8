// Package mock provides in-memory mock implementations of the [audio.Source]
// and [audio.Sink] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	src := &mock.Source{NativeFormat: audio.Format{SampleRate: 48000, Channels: 2}}
//	go src.Start(ctx, ingest.Process)
//	<-src.Started()
//	src.Emit(frame)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxgate/pkg/audio"
)

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is a mock implementation of [audio.Source]. Frames are pushed into
// the registered handler with [Source.Emit], on the caller's goroutine, which
// stands in for the device thread.
type Source struct {
	mu sync.Mutex

	// NativeFormat is returned by [Source.Format].
	NativeFormat audio.Format

	// StartError, if non-nil, is returned immediately by Start.
	StartError error

	// CloseError is returned by [Source.Close].
	CloseError error

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	handler audio.FrameHandler
	started chan struct{}
}

// Start implements [audio.Source]. It registers h and blocks until ctx is
// cancelled, or returns StartError immediately if set.
func (s *Source) Start(ctx context.Context, h audio.FrameHandler) error {
	s.mu.Lock()
	s.CallCountStart++
	if s.StartError != nil {
		err := s.StartError
		s.mu.Unlock()
		return err
	}
	s.handler = h
	started := s.startedLocked()
	s.mu.Unlock()
	close(started)

	<-ctx.Done()
	return nil
}

// Started returns a channel that is closed once Start has registered its
// handler.
func (s *Source) Started() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedLocked()
}

func (s *Source) startedLocked() chan struct{} {
	if s.started == nil {
		s.started = make(chan struct{})
	}
	return s.started
}

// Emit delivers frame to the registered handler. It is a no-op before Start.
func (s *Source) Emit(frame audio.Frame) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h != nil {
		h(frame)
	}
}

// Format implements [audio.Source]. Returns NativeFormat.
func (s *Source) Format() audio.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.NativeFormat
}

// Close implements [audio.Source]. Returns CloseError.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	return s.CloseError
}

// ─── Sink ─────────────────────────────────────────────────────────────────────

// PlayCall records the arguments of a single [Sink.Play] invocation.
type PlayCall struct {
	// PCM is the concatenation of every chunk read from the channel.
	PCM []byte

	// SampleRate is the sampleRate argument passed to Play.
	SampleRate int
}

// Sink is a mock implementation of [audio.Sink]. Play drains the channel
// without real playback.
type Sink struct {
	mu sync.Mutex

	// PlayError is returned by Play after the channel has been drained.
	PlayError error

	// CloseError is returned by [Sink.Close].
	CloseError error

	// PlayCalls records all Play invocations.
	PlayCalls []PlayCall

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Play implements [audio.Sink]. Reads pcm until it is closed or ctx is done.
func (s *Sink) Play(ctx context.Context, pcm <-chan []byte, sampleRate int) error {
	var buf []byte
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case chunk, ok := <-pcm:
			if !ok {
				break loop
			}
			buf = append(buf, chunk...)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PlayCalls = append(s.PlayCalls, PlayCall{PCM: buf, SampleRate: sampleRate})
	return s.PlayError
}

// Calls returns a snapshot of PlayCalls.
func (s *Sink) Calls() []PlayCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PlayCall, len(s.PlayCalls))
	copy(out, s.PlayCalls)
	return out
}

// Close implements [audio.Sink]. Returns CloseError.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	return s.CloseError
}

var (
	_ audio.Source = (*Source)(nil)
	_ audio.Sink   = (*Sink)(nil)
)
