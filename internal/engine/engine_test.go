package engine

import (
	"context"
	"errors"
	"testing"
)

func TestResponse_FinishOnce(t *testing.T) {
	t.Parallel()

	r := NewResponse(nil, 0)
	errStream := errors.New("stream")
	r.Finish("first", errStream)
	r.Finish("second", nil)

	text, err := r.Wait(context.Background())
	if text != "first" || !errors.Is(err, errStream) {
		t.Errorf("Wait = %q, %v; want first, stream", text, err)
	}
}

func TestResponse_WaitCancelled(t *testing.T) {
	t.Parallel()

	r := NewResponse(nil, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestFinished(t *testing.T) {
	t.Parallel()

	r := Finished("done")
	select {
	case <-r.Done():
	default:
		t.Fatal("Finished response not done")
	}
	if text, err := r.Wait(context.Background()); text != "done" || err != nil {
		t.Errorf("Wait = %q, %v", text, err)
	}
}
