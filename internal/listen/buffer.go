package listen

import (
	"slices"
	"sync"
)

// DefaultBufferCapacity is 60 seconds of 16 kHz audio.
const DefaultBufferCapacity = 960_000

// UtteranceBuffer is a bounded FIFO of converted samples shared by the
// capture thread (single appender) and the worker (single drainer).
//
// When an append would exceed the capacity, the oldest samples are evicted so
// that the buffer always holds the most recent audio. Append never allocates.
//
// All methods are safe for concurrent use.
type UtteranceBuffer struct {
	mu      sync.Mutex
	ring    []float32
	head    int // index of the oldest sample
	size    int
	evicted uint64
}

// NewUtteranceBuffer returns an empty buffer holding at most capacity
// samples. A non-positive capacity uses [DefaultBufferCapacity].
func NewUtteranceBuffer(capacity int) *UtteranceBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &UtteranceBuffer{ring: make([]float32, capacity)}
}

// Append adds samples at the tail, evicting from the head as needed. It
// returns the number of samples evicted by this call.
func (b *UtteranceBuffer) Append(samples []float32) (evicted int) {
	if len(samples) == 0 {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	c := len(b.ring)
	if len(samples) >= c {
		// Only the last c samples survive.
		evicted = b.size + len(samples) - c
		copy(b.ring, samples[len(samples)-c:])
		b.head = 0
		b.size = c
		b.evicted += uint64(evicted)
		return evicted
	}

	if over := b.size + len(samples) - c; over > 0 {
		b.head = (b.head + over) % c
		b.size -= over
		evicted = over
		b.evicted += uint64(over)
	}

	tail := (b.head + b.size) % c
	n := copy(b.ring[tail:], samples)
	copy(b.ring, samples[n:])
	b.size += len(samples)
	return evicted
}

// DrainAll removes and returns every buffered sample in append order. An
// empty buffer yields an empty, non-nil slice.
func (b *UtteranceBuffer) DrainAll() []float32 {
	out := b.DrainInto(nil)
	if out == nil {
		out = []float32{}
	}
	return out
}

// DrainInto removes every buffered sample and writes them in append order to
// dst, reusing its backing array when it is large enough. It returns the
// filled slice, which aliases dst's storage.
func (b *UtteranceBuffer) DrainInto(dst []float32) []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := slices.Grow(dst[:0], b.size)[:b.size]
	if b.size > 0 {
		n := copy(out, b.ring[b.head:min(b.head+b.size, len(b.ring))])
		copy(out[n:], b.ring[:b.size-n])
	}
	b.head = 0
	b.size = 0
	return out
}

// Len returns the number of buffered samples.
func (b *UtteranceBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Cap returns the buffer capacity in samples.
func (b *UtteranceBuffer) Cap() int {
	return len(b.ring)
}

// Evicted returns the total number of samples evicted since creation.
func (b *UtteranceBuffer) Evicted() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.evicted
}
