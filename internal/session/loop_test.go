package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestCoalescing(t *testing.T) {
	var typedCount atomic.Int32
	var lastInput atomic.Value
	lastInput.Store("")

	hooks := Hooks{
		OnTyped: func(ctx context.Context, input string) error {
			typedCount.Add(1)
			lastInput.Store(input)
			return nil
		},
	}

	sess := New(Environment{}, hooks, WithDebounce(200*time.Millisecond))
	loop := NewLoop(sess)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	start := time.Now()
	loop.Send(ctx, Event{Kind: EventOnTyped, Input: "a"})
	time.Sleep(10 * time.Millisecond)
	loop.Send(ctx, Event{Kind: EventOnTyped, Input: "ab"})
	time.Sleep(10 * time.Millisecond)
	loop.Send(ctx, Event{Kind: EventOnTyped, Input: "abc"})

	deadline := time.After(1 * time.Second)
	for typedCount.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for debounced on_typed")
		case <-time.After(5 * time.Millisecond):
		}
	}

	elapsed := time.Since(start)
	if elapsed < 220*time.Millisecond {
		t.Errorf("on_typed fired too early: %v since first keystroke, want >= 220ms", elapsed)
	}
	if got := typedCount.Load(); got != 1 {
		t.Errorf("expected exactly one on_typed call, got %d", got)
	}
	if got := lastInput.Load().(string); got != "abc" {
		t.Errorf("expected coalesced input %q, got %q", "abc", got)
	}
}

func TestSearcherCancellationBeforeNewTaskObservesItems(t *testing.T) {
	sess := New(Environment{}, Hooks{})

	ctx1, ctrl1 := sess.StartSearcher(context.Background())
	_ = ctx1

	started := make(chan struct{})
	observed := make(chan bool, 1)
	go func() {
		close(started)
		// Simulate a worker loop checking the stop flag before
		// observing any item.
		observed <- ctrl1.Stopped()
	}()
	<-started

	// Starting a new searcher must set ctrl1's stop flag before the
	// prior task's next observation.
	_, ctrl2 := sess.StartSearcher(context.Background())
	if ctrl2 == ctrl1 {
		t.Fatal("expected a fresh control")
	}
	if !ctrl1.Stopped() {
		t.Fatal("expected previous searcher control to be stopped")
	}
}

func TestHistoryCursor(t *testing.T) {
	h := NewHistory()
	h.Record("a")
	h.Record("b")
	h.Record("c")

	if v, ok := h.Prev(); !ok || v != "c" {
		t.Fatalf("Prev: got (%q, %v), want (%q, true)", v, ok, "c")
	}
	if v, ok := h.Prev(); !ok || v != "b" {
		t.Fatalf("Prev: got (%q, %v), want (%q, true)", v, ok, "b")
	}
	if v, ok := h.Next(); !ok || v != "c" {
		t.Fatalf("Next: got (%q, %v), want (%q, true)", v, ok, "c")
	}
}
