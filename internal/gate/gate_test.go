package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeClock returns a controllable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestTTLCacheExpiryBoundary(t *testing.T) {
	clock := newFakeClock()
	c := NewTTLCache[string, string](8*time.Second, 10, 5)
	c.SetClock(clock.Now)

	c.Put("k", "v")

	// age == TTL − ε: still a hit
	clock.Advance(8*time.Second - time.Millisecond)
	if v, ok := c.Get("k"); !ok || v != "v" {
		t.Errorf("expected hit just before TTL, got (%q, %v)", v, ok)
	}

	// age == TTL + ε: a miss
	clock.Advance(2 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Error("expected miss just after TTL")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry should be lazily evicted, Len() = %d", c.Len())
	}
}

func TestTTLCacheBulkEviction(t *testing.T) {
	clock := newFakeClock()
	c := NewTTLCache[string, int](time.Minute, 20, 10)
	c.SetClock(clock.Now)

	// Insert 21 entries with strictly increasing ages.
	for i := 0; i < 21; i++ {
		c.Put(fmt.Sprintf("key-%d", i), i)
		clock.Advance(time.Millisecond)
	}

	// The oldest 10 are gone, the newest 11 remain.
	if c.Len() != 11 {
		t.Fatalf("Len() = %d, want 11", c.Len())
	}
	if _, ok := c.Get("key-0"); ok {
		t.Error("oldest entry should have been evicted")
	}
	if _, ok := c.Get("key-20"); !ok {
		t.Error("newest entry should survive eviction")
	}
}

func TestTTLCacheClear(t *testing.T) {
	c := NewTTLCache[string, int](time.Minute, 10, 5)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", c.Len())
	}
}

func TestCooldown(t *testing.T) {
	clock := newFakeClock()
	c := NewCooldown(15 * time.Second)
	c.SetClock(clock.Now)

	if !c.Allow("slow_down") {
		t.Error("unfired kind should be allowed")
	}
	c.Fire("slow_down")
	if c.Allow("slow_down") {
		t.Error("kind should be gated right after firing")
	}
	if !c.Allow("speed_up") {
		t.Error("cooldown must be tracked per kind")
	}

	clock.Advance(15*time.Second + time.Millisecond)
	if !c.Allow("slow_down") {
		t.Error("kind should be allowed after the interval elapsed")
	}
}

func TestCooldownTryFire(t *testing.T) {
	clock := newFakeClock()
	c := NewCooldown(10 * time.Second)
	c.SetClock(clock.Now)

	if !c.TryFire("enhance") {
		t.Error("first TryFire should succeed")
	}
	if c.TryFire("enhance") {
		t.Error("second TryFire within the interval should fail")
	}
	clock.Advance(11 * time.Second)
	if !c.TryFire("enhance") {
		t.Error("TryFire should succeed again after the interval")
	}
}

func TestHistoryFIFOEviction(t *testing.T) {
	h := NewHistory[int](3)
	for i := 1; i <= 5; i++ {
		h.Push(i)
	}
	if h.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", h.Len())
	}
	got := h.Values()
	want := []int{3, 4, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Values() = %v, want %v", got, want)
			break
		}
	}

	last := h.Last(2)
	if len(last) != 2 || last[0] != 4 || last[1] != 5 {
		t.Errorf("Last(2) = %v, want [4 5]", last)
	}
	if got := h.Last(10); len(got) != 3 {
		t.Errorf("Last(10) should clamp to Len, got %v", got)
	}
}

func TestTaskLifecycle(t *testing.T) {
	task := NewTask(time.Second)
	if task.State() != TaskIdle {
		t.Fatalf("new task state = %s, want idle", task.State())
	}

	doneCh := make(chan error, 1)
	ok := task.Start(func(ctx context.Context) error {
		return nil
	}, func(err error) { doneCh <- err })
	if !ok {
		t.Fatal("Start on idle task should succeed")
	}

	select {
	case err := <-doneCh:
		if err != nil {
			t.Errorf("unexpected task error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("task did not complete")
	}
	if task.State() != TaskCompleted {
		t.Errorf("state = %s, want completed", task.State())
	}
}

func TestTaskFailureState(t *testing.T) {
	task := NewTask(time.Second)
	doneCh := make(chan error, 1)
	task.Start(func(ctx context.Context) error {
		return errors.New("inference unavailable")
	}, func(err error) { doneCh <- err })

	select {
	case err := <-doneCh:
		if err == nil {
			t.Error("expected task error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("task did not finish")
	}
	if task.State() != TaskFailed {
		t.Errorf("state = %s, want failed", task.State())
	}
}

func TestTaskSingleFlight(t *testing.T) {
	task := NewTask(5 * time.Second)
	release := make(chan struct{})
	doneCh := make(chan error, 1)

	task.Start(func(ctx context.Context) error {
		<-release
		return nil
	}, func(err error) { doneCh <- err })

	if task.Start(func(ctx context.Context) error { return nil }, nil) {
		t.Error("Start should refuse while a run is in flight")
	}

	close(release)
	<-doneCh

	if !task.Start(func(ctx context.Context) error { return nil }, func(error) { doneCh <- nil }) {
		t.Error("Start should succeed after the previous run finished")
	}
	<-doneCh
}

func TestTaskCancel(t *testing.T) {
	task := NewTask(10 * time.Second)
	doneCh := make(chan error, 1)

	task.Start(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, func(err error) { doneCh <- err })

	task.Cancel()

	select {
	case err := <-doneCh:
		if err == nil {
			t.Error("cancelled task should report an error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancel did not stop the task")
	}
	if task.State() != TaskFailed {
		t.Errorf("state = %s, want failed", task.State())
	}
}
