package listen_test

import (
	"sync"
	"testing"

	"github.com/MrWong99/voxgate/internal/listen"
)

func seq(from, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(from + i)
	}
	return out
}

func assertSeq(t *testing.T, got []float32, from, n int) {
	t.Helper()
	if len(got) != n {
		t.Fatalf("length: want %d, got %d", n, len(got))
	}
	for i, v := range got {
		if v != float32(from+i) {
			t.Fatalf("sample %d: want %v, got %v", i, float32(from+i), v)
		}
	}
}

func TestUtteranceBuffer_AppendDrain(t *testing.T) {
	t.Parallel()
	b := listen.NewUtteranceBuffer(100)

	b.Append(seq(0, 30))
	b.Append(seq(30, 30))
	if b.Len() != 60 {
		t.Fatalf("Len: want 60, got %d", b.Len())
	}
	assertSeq(t, b.DrainAll(), 0, 60)
	if b.Len() != 0 {
		t.Errorf("Len after drain: want 0, got %d", b.Len())
	}
}

// TestUtteranceBuffer_EmptyDrain verifies that draining an empty buffer is a
// harmless no-op that yields an empty, non-nil slice.
func TestUtteranceBuffer_EmptyDrain(t *testing.T) {
	t.Parallel()
	b := listen.NewUtteranceBuffer(10)

	for range 3 {
		got := b.DrainAll()
		if got == nil || len(got) != 0 {
			t.Fatalf("DrainAll on empty buffer: want empty non-nil slice, got %#v", got)
		}
	}
}

// TestUtteranceBuffer_DrainInto verifies that draining into a large enough
// slice reuses its storage and leaves the buffer empty.
func TestUtteranceBuffer_DrainInto(t *testing.T) {
	t.Parallel()
	b := listen.NewUtteranceBuffer(50)
	dst := make([]float32, 0, 50)

	b.Append(seq(0, 20))
	got := b.DrainInto(dst)
	assertSeq(t, got, 0, 20)
	if &got[0] != &dst[:1][0] {
		t.Error("DrainInto allocated although dst had room")
	}
	if b.Len() != 0 {
		t.Errorf("Len after drain: want 0, got %d", b.Len())
	}

	b.Append(seq(7, 5))
	assertSeq(t, b.DrainInto(got), 7, 5)
	if got := b.DrainInto(got); len(got) != 0 {
		t.Errorf("DrainInto on empty buffer: want 0 samples, got %d", len(got))
	}
}

// TestUtteranceBuffer_Eviction verifies that overflowing appends keep the most
// recent samples in order.
func TestUtteranceBuffer_Eviction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		appends     []int // sizes
		wantEvicted int
	}{
		{name: "fits", appends: []int{40, 60}, wantEvicted: 0},
		{name: "one over", appends: []int{60, 41}, wantEvicted: 1},
		{name: "wraps repeatedly", appends: []int{70, 70, 70, 70}, wantEvicted: 180},
		{name: "single append larger than capacity", appends: []int{250}, wantEvicted: 150},
		{name: "large append after partial fill", appends: []int{30, 100}, wantEvicted: 30},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			b := listen.NewUtteranceBuffer(100)

			var total, evicted int
			for _, n := range tc.appends {
				evicted += b.Append(seq(total, n))
				total += n
			}
			if evicted != tc.wantEvicted {
				t.Errorf("evicted: want %d, got %d", tc.wantEvicted, evicted)
			}
			if got := b.Evicted(); got != uint64(tc.wantEvicted) {
				t.Errorf("Evicted(): want %d, got %d", tc.wantEvicted, got)
			}
			kept := min(total, b.Cap())
			assertSeq(t, b.DrainAll(), total-kept, kept)
		})
	}
}

// TestUtteranceBuffer_WrapAfterDrain verifies ordering when the ring wraps
// around after a partial drain cycle.
func TestUtteranceBuffer_WrapAfterDrain(t *testing.T) {
	t.Parallel()
	b := listen.NewUtteranceBuffer(10)

	b.Append(seq(0, 7))
	b.Append(seq(7, 7)) // evicts 0..3
	b.Append(seq(14, 2))
	assertSeq(t, b.DrainAll(), 6, 10)

	b.Append(seq(100, 5))
	assertSeq(t, b.DrainAll(), 100, 5)
}

func TestUtteranceBuffer_DefaultCapacity(t *testing.T) {
	t.Parallel()
	if got := listen.NewUtteranceBuffer(0).Cap(); got != listen.DefaultBufferCapacity {
		t.Errorf("Cap: want %d, got %d", listen.DefaultBufferCapacity, got)
	}
}

// TestUtteranceBuffer_ConcurrentAppendDrain verifies that with one appender
// and one drainer running concurrently, every sample is drained exactly once
// and in order.
func TestUtteranceBuffer_ConcurrentAppendDrain(t *testing.T) {
	t.Parallel()
	const (
		chunk  = 160
		chunks = 2000
	)
	b := listen.NewUtteranceBuffer(chunk * chunks)

	done := make(chan struct{})
	var drained []float32
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				drained = append(drained, b.DrainAll()...)
				return
			default:
				drained = append(drained, b.DrainAll()...)
			}
		}
	}()

	for i := range chunks {
		b.Append(seq(i*chunk, chunk))
	}
	close(done)
	wg.Wait()

	assertSeq(t, drained, 0, chunk*chunks)
}
