package resilience

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func newGroup(cfg CircuitBreakerConfig) *FallbackGroup[string] {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{CircuitBreaker: cfg})
	fg.AddFallback("secondary", "secondary")
	return fg
}

// ─── Execute ─────────────────────────────────────────────────────────────────

func TestFallbackGroup_Execute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		failing    map[string]bool
		wantCalled []string
		wantErr    bool
	}{
		{name: "primary succeeds", wantCalled: []string{"primary"}},
		{name: "primary fails", failing: map[string]bool{"primary": true}, wantCalled: []string{"primary", "secondary"}},
		{name: "all fail", failing: map[string]bool{"primary": true, "secondary": true}, wantCalled: []string{"primary", "secondary"}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			fg := newGroup(CircuitBreakerConfig{MaxFailures: 3})
			var called []string
			err := fg.Execute(context.Background(), func(v string) error {
				called = append(called, v)
				if tc.failing[v] {
					return errors.New(v + " down")
				}
				return nil
			})
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if tc.wantErr {
				if !errors.Is(err, ErrAllFailed) {
					t.Errorf("err = %v, want ErrAllFailed", err)
				}
				for _, name := range []string{"primary down", "secondary down"} {
					if !strings.Contains(err.Error(), name) {
						t.Errorf("err %q does not mention %q", err, name)
					}
				}
			}
			if strings.Join(called, ",") != strings.Join(tc.wantCalled, ",") {
				t.Errorf("called = %v, want %v", called, tc.wantCalled)
			}
		})
	}
}

func TestFallbackGroup_SkipsOpenCircuit(t *testing.T) {
	t.Parallel()

	fg := newGroup(CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour})
	for range 2 {
		_ = fg.Execute(context.Background(), func(v string) error {
			if v == "primary" {
				return errTest
			}
			return nil
		})
	}

	var called []string
	if err := fg.Execute(context.Background(), func(v string) error {
		called = append(called, v)
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(called) != 1 || called[0] != "secondary" {
		t.Errorf("called = %v, want [secondary]", called)
	}

	status := fg.Status()
	if status[0].State != StateOpen || status[1].State != StateClosed {
		t.Errorf("status = %+v", status)
	}
	if !fg.Healthy() {
		t.Error("group with a closed entry should be healthy")
	}
}

func TestFallbackGroup_Unhealthy(t *testing.T) {
	t.Parallel()

	fg := newGroup(CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})
	_ = fg.Execute(context.Background(), func(string) error { return errTest })
	if fg.Healthy() {
		t.Error("group with all circuits open should not be healthy")
	}
	err := fg.Execute(context.Background(), func(string) error { return nil })
	if !errors.Is(err, ErrAllFailed) || !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrAllFailed wrapping ErrCircuitOpen", err)
	}
}

func TestFallbackGroup_StopsOnCancellation(t *testing.T) {
	t.Parallel()

	fg := newGroup(CircuitBreakerConfig{})
	var called []string
	err := fg.Execute(context.Background(), func(v string) error {
		called = append(called, v)
		return context.Canceled
	})
	if !errors.Is(err, context.Canceled) || errors.Is(err, ErrAllFailed) {
		t.Errorf("err = %v, want bare context.Canceled", err)
	}
	if len(called) != 1 {
		t.Errorf("called = %v, want only the primary", called)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called = nil
	if err := fg.Execute(ctx, func(v string) error { called = append(called, v); return nil }); !errors.Is(err, context.Canceled) {
		t.Errorf("done ctx err = %v, want context.Canceled", err)
	}
	if len(called) != 0 {
		t.Errorf("called = %v with a done context", called)
	}
}

// ─── ExecuteWithResult ───────────────────────────────────────────────────────

func TestExecuteWithResult_Failover(t *testing.T) {
	t.Parallel()

	fg := NewFallbackGroup(10, "ten", FallbackConfig{})
	fg.AddFallback("twenty", 20)
	if fg.Primary() != 10 {
		t.Errorf("Primary = %d, want 10", fg.Primary())
	}

	result, err := ExecuteWithResult(context.Background(), fg, func(v int) (int, error) {
		if v == 10 {
			return 0, errTest
		}
		return v * 2, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 40 {
		t.Errorf("result = %d, want 40", result)
	}
}

// ─── Close ───────────────────────────────────────────────────────────────────

type closer struct {
	err    error
	closed int
}

func (c *closer) Close() error {
	c.closed++
	return c.err
}

func TestFallbackGroup_Close(t *testing.T) {
	t.Parallel()

	a, b := &closer{}, &closer{err: errors.New("busy")}
	fg := NewFallbackGroup[any](a, "a", FallbackConfig{})
	fg.AddFallback("plain", "not a closer")
	fg.AddFallback("b", b)

	err := fg.Close()
	if err == nil || !strings.Contains(err.Error(), "b: busy") {
		t.Fatalf("Close error = %v, want b's error", err)
	}
	if a.closed != 1 || b.closed != 1 {
		t.Errorf("closed counts = (%d, %d), want (1, 1)", a.closed, b.closed)
	}
}
