package future

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewResolve(t *testing.T) {
	f, resolve := New[int]()
	if f.State() != Pending {
		t.Fatalf("State = %v, want pending", f.State())
	}

	resolve(42, nil)
	resolve(7, errors.New("ignored"))

	if f.State() != Ready {
		t.Fatalf("State = %v, want ready", f.State())
	}
	v, err := f.Wait(context.Background())
	if err != nil || v != 42 {
		t.Errorf("Wait = (%d, %v), want (42, nil)", v, err)
	}
}

func TestRejected(t *testing.T) {
	boom := errors.New("boom")
	f := Rejected[string](boom)
	if f.State() != Failed {
		t.Errorf("State = %v, want failed", f.State())
	}
	if _, err := f.Wait(context.Background()); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestGo(t *testing.T) {
	f := Go(func() (string, error) { return "done", nil })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := f.Wait(ctx)
	if err != nil || v != "done" {
		t.Errorf("Wait = (%q, %v)", v, err)
	}
}

func TestWaitContextCancel(t *testing.T) {
	f, _ := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestOnCompleteBeforeAndAfter(t *testing.T) {
	f, resolve := New[int]()

	var got []int
	f.OnComplete(func(v int, _ error) { got = append(got, v) })
	if len(got) != 0 {
		t.Fatal("callback ran before resolve")
	}

	resolve(1, nil)
	f.OnComplete(func(v int, _ error) { got = append(got, v*10) })

	if len(got) != 2 || got[0] != 1 || got[1] != 10 {
		t.Errorf("got = %v, want [1 10]", got)
	}
}

func TestOnCompleteOnQueue(t *testing.T) {
	var q Queue
	f, resolve := New[string]()

	var got string
	f.OnCompleteOn(&q, func(v string, _ error) { got = v })

	resolve("x", nil)
	if got != "" {
		t.Fatal("callback ran before the queue was drained")
	}
	if q.Len() != 1 {
		t.Fatalf("Len = %d, want 1", q.Len())
	}
	if n := q.Drain(); n != 1 {
		t.Errorf("Drain = %d, want 1", n)
	}
	if got != "x" {
		t.Errorf("got = %q, want x", got)
	}
}

func TestQueueDrainRunsNestedPosts(t *testing.T) {
	var q Queue
	var order []int
	q.Dispatch(func() {
		order = append(order, 1)
		q.Dispatch(func() { order = append(order, 3) })
	})
	q.Dispatch(func() { order = append(order, 2) })

	if n := q.Drain(); n != 3 {
		t.Errorf("Drain = %d, want 3", n)
	}
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("order = %v", order)
	}
	if q.RunOne() {
		t.Error("RunOne on empty queue should report false")
	}
}

func TestInline(t *testing.T) {
	ran := false
	Inline.Dispatch(func() { ran = true })
	if !ran {
		t.Error("Inline should run immediately")
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{Pending: "pending", Ready: "ready", Failed: "failed", State(9): "unknown"} {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", int(s), s.String(), want)
		}
	}
}
