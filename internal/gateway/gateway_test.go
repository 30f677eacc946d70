package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"audiencepulse/internal/config"
)

type fakeCompleter struct {
	mu      sync.Mutex
	calls   int
	reply   string
	err     error
	lastReq CompletionRequest
}

func (f *fakeCompleter) Complete(_ context.Context, req CompletionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)}
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

// Sleep advances the clock instead of blocking.
func (f *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.Advance(d)
	return nil
}

func testGateway(completer Completer) (*Gateway, *fakeClock) {
	clock := newFakeClock()
	g := New(completer, config.Default().Gateway)
	g.SetClock(clock.Now, clock.Sleep)
	return g, clock
}

func TestCompleteNoCompleter(t *testing.T) {
	g, _ := testGateway(nil)
	if g.Enabled() {
		t.Error("gateway with nil completer should report disabled")
	}
	if _, err := g.Complete(context.Background(), "hello", 0.2, 100, false); err == nil {
		t.Error("expected error when no completer is configured")
	}
}

func TestCompleteCachesRepeatedPrompts(t *testing.T) {
	fc := &fakeCompleter{reply: "cached answer"}
	g, clock := testGateway(fc)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		got, err := g.Complete(ctx, "summarize the mood", 0.2, 250, true)
		if err != nil {
			t.Fatal(err)
		}
		if got != "cached answer" {
			t.Errorf("call %d: got %q", i, got)
		}
		clock.Advance(2 * time.Second)
	}
	if fc.callCount() != 1 {
		t.Errorf("second identical call should be served from cache, got %d API calls", fc.callCount())
	}

	m := g.Metrics()
	if m.TotalCalls != 1 || m.CacheHits != 1 {
		t.Errorf("metrics = %+v, want 1 call and 1 cache hit", m)
	}
}

func TestCacheExpiresAfterTTL(t *testing.T) {
	fc := &fakeCompleter{reply: "answer"}
	g, clock := testGateway(fc)
	ctx := context.Background()

	g.Complete(ctx, "prompt", 0.2, 100, true)
	clock.Advance(9 * time.Second) // past the 8s TTL
	g.Complete(ctx, "prompt", 0.2, 100, true)

	if fc.callCount() != 2 {
		t.Errorf("expired cache entry should trigger a fresh call, got %d calls", fc.callCount())
	}
}

func TestNonCacheableBypassesCache(t *testing.T) {
	fc := &fakeCompleter{reply: "answer"}
	g, clock := testGateway(fc)
	ctx := context.Background()

	g.Complete(ctx, "prompt", 0.3, 800, false)
	clock.Advance(time.Second)
	g.Complete(ctx, "prompt", 0.3, 800, false)

	if fc.callCount() != 2 {
		t.Errorf("non-cacheable calls must always reach the API, got %d calls", fc.callCount())
	}
}

func TestCacheKeyDistinguishesParameters(t *testing.T) {
	a := cacheKey("same prompt", 0.2, 100)
	b := cacheKey("same prompt", 0.3, 100)
	c := cacheKey("same prompt", 0.2, 200)
	if a == b || a == c {
		t.Error("different generation parameters must produce different keys")
	}
	if a != cacheKey("same prompt", 0.2, 100) {
		t.Error("identical input must produce identical keys")
	}
}

func TestTokenBucketBurstThenSpacing(t *testing.T) {
	fc := &fakeCompleter{reply: "ok"}
	g, clock := testGateway(fc)
	ctx := context.Background()

	// The burst allowance covers the first three calls without waiting.
	before := clock.Now()
	for i := 0; i < 3; i++ {
		if _, err := g.Complete(ctx, fmt.Sprintf("p%d", i), 0.2, 100, false); err != nil {
			t.Fatal(err)
		}
	}
	if !clock.Now().Equal(before) {
		t.Error("burst calls should not sleep")
	}

	// The fourth call finds an empty bucket and waits out the spacing.
	g.Complete(ctx, "p3", 0.2, 100, false)
	if got := clock.Now().Sub(before); got < 300*time.Millisecond {
		t.Errorf("empty bucket should enforce 300ms spacing, clock moved %s", got)
	}
}

func TestTokenBucketRefills(t *testing.T) {
	fc := &fakeCompleter{reply: "ok"}
	g, clock := testGateway(fc)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		g.Complete(ctx, fmt.Sprintf("p%d", i), 0.2, 100, false)
	}
	clock.Advance(2 * time.Second)

	before := clock.Now()
	g.Complete(ctx, "p-refilled", 0.2, 100, false)
	if !clock.Now().Equal(before) {
		t.Error("call after refill interval should use a fresh token without sleeping")
	}
}

func TestAcquireHonorsContext(t *testing.T) {
	fc := &fakeCompleter{reply: "ok"}
	g, _ := testGateway(fc)

	ctx, cancel := context.WithCancel(context.Background())
	for i := 0; i < 3; i++ {
		g.Complete(ctx, fmt.Sprintf("p%d", i), 0.2, 100, false)
	}
	cancel()

	if _, err := g.Complete(ctx, "blocked", 0.2, 100, false); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled while waiting on the bucket, got %v", err)
	}
}

func TestErrorsAreCountedAndReturned(t *testing.T) {
	fc := &fakeCompleter{err: errors.New("api down")}
	g, _ := testGateway(fc)

	if _, err := g.Complete(context.Background(), "prompt", 0.2, 100, true); err == nil {
		t.Fatal("transport error must be returned to the caller")
	}
	m := g.Metrics()
	if m.Errors != 1 || m.TotalCalls != 0 {
		t.Errorf("metrics = %+v, want 1 error and 0 successful calls", m)
	}
	// A failed call must not poison the cache.
	fc.err = nil
	fc.reply = "recovered"
	got, err := g.Complete(context.Background(), "prompt", 0.2, 100, true)
	if err != nil || got != "recovered" {
		t.Errorf("got %q, %v after recovery", got, err)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"plain object", `{"a": 1}`, `{"a": 1}`, true},
		{"fenced json", "```json\n{\"a\": 1}\n```", `{"a": 1}`, true},
		{"fenced bare", "```\n{\"a\": 1}\n```", `{"a": 1}`, true},
		{"surrounded by prose", `Sure! Here it is: {"a": 1} hope that helps`, `{"a": 1}`, true},
		{"multiline", "{\n  \"a\": 1,\n  \"b\": [2, 3]\n}", "{\n  \"a\": 1,\n  \"b\": [2, 3]\n}", true},
		{"trailing comma repaired", `{"a": 1,}`, `{"a": 1}`, true},
		{"single quotes repaired", `{'a': 'x'}`, `{"a": "x"}`, true},
		{"no object", "no json here", "", false},
		{"empty", "", "", false},
		{"hopeless", `{"a": `, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, ok := ExtractJSON(tt.in)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !tt.ok {
				return
			}
			if string(raw) != tt.want {
				t.Errorf("raw = %s, want %s", raw, tt.want)
			}
			var m map[string]any
			if err := json.Unmarshal(raw, &m); err != nil {
				t.Errorf("result should unmarshal cleanly: %v", err)
			}
		})
	}
}
