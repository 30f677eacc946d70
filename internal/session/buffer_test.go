package session

import (
	"sync"
	"testing"
	"time"

	"audiencepulse/internal/models"
)

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

func TestAddReactionValidatesKind(t *testing.T) {
	b := New(100)
	if _, err := b.AddReaction("wave", "u1"); err == nil {
		t.Error("expected error for unknown reaction kind")
	}
	if _, err := b.AddReaction(models.ReactionImLost, "u1"); err != nil {
		t.Errorf("valid reaction rejected: %v", err)
	}
}

func TestReactionBufferRotation(t *testing.T) {
	b := New(5)
	for i := 0; i < 8; i++ {
		if _, err := b.AddReaction(models.ReactionSpeedUp, "u"); err != nil {
			t.Fatal(err)
		}
	}
	if got := b.Snapshot().BufferedReactions; got != 5 {
		t.Errorf("buffered reactions = %d, want 5", got)
	}
}

func TestWindowedRetrieval(t *testing.T) {
	clock := newFakeClock()
	b := New(100)
	b.SetClock(clock.Now)

	b.AddReaction(models.ReactionSlowDown, "u1")
	clock.Advance(40 * time.Second)
	b.AddReaction(models.ReactionImLost, "u2")
	clock.Advance(10 * time.Second)
	b.AddReaction(models.ReactionImLost, "u3")

	recent := b.RecentReactions(30 * time.Second)
	if len(recent) != 2 {
		t.Fatalf("expected 2 reactions in the 30s window, got %d", len(recent))
	}
	for _, r := range recent {
		if r.Kind != models.ReactionImLost {
			t.Errorf("stale reaction leaked into window: %+v", r)
		}
	}

	counts := b.ReactionCounts(30 * time.Second)
	if counts.ImLost != 2 || counts.SlowDown != 0 {
		t.Errorf("unexpected windowed counts: %+v", counts)
	}

	// A wider window picks up the old reaction too.
	if got := b.ReactionCounts(time.Minute).Total(); got != 3 {
		t.Errorf("1m window total = %d, want 3", got)
	}
}

func TestAddQuestion(t *testing.T) {
	b := New(100)
	q, err := b.AddQuestion("  how do I deploy this?  ", "u1")
	if err != nil {
		t.Fatal(err)
	}
	if q.ID == "" {
		t.Error("question should be assigned an ID")
	}
	if q.Text != "how do I deploy this?" {
		t.Errorf("text should be trimmed, got %q", q.Text)
	}

	if _, err := b.AddQuestion("   ", "u1"); err == nil {
		t.Error("expected error for blank question")
	}
}

func TestUpvoteQuestionIdempotent(t *testing.T) {
	b := New(100)
	q, _ := b.AddQuestion("what about pricing?", "u1")

	updated, ok := b.UpvoteQuestion(q.ID, "alice")
	if !ok || updated.Upvotes != 1 {
		t.Fatalf("first upvote: ok=%v upvotes=%d", ok, updated.Upvotes)
	}
	if _, ok := b.UpvoteQuestion(q.ID, "alice"); ok {
		t.Error("duplicate upvote by the same subject should be rejected")
	}
	updated, ok = b.UpvoteQuestion(q.ID, "bob")
	if !ok || updated.Upvotes != 2 {
		t.Errorf("second subject upvote: ok=%v upvotes=%d", ok, updated.Upvotes)
	}

	if _, ok := b.UpvoteQuestion("no-such-id", "alice"); ok {
		t.Error("upvote of a missing question should fail")
	}

	// The stored question reflects the votes.
	qs := b.Questions()
	if len(qs) != 1 || qs[0].Upvotes != 2 {
		t.Errorf("stored question upvotes = %d, want 2", qs[0].Upvotes)
	}
}

func TestRecentQuestions(t *testing.T) {
	b := New(100)
	for _, text := range []string{"first question here", "second question here", "third question here"} {
		if _, err := b.AddQuestion(text, "u1"); err != nil {
			t.Fatal(err)
		}
	}

	recent := b.RecentQuestions(2)
	if len(recent) != 2 {
		t.Fatalf("expected 2 recent questions, got %d", len(recent))
	}
	if recent[0].Text != "second question here" || recent[1].Text != "third question here" {
		t.Errorf("unexpected recent ordering: %q, %q", recent[0].Text, recent[1].Text)
	}

	if got := len(b.RecentQuestions(10)); got != 3 {
		t.Errorf("RecentQuestions should clamp to available count, got %d", got)
	}
}

func TestAudienceSize(t *testing.T) {
	b := New(100)
	b.SetAudienceSize(25)
	if b.AudienceSize() != 25 {
		t.Errorf("AudienceSize() = %d, want 25", b.AudienceSize())
	}
	b.SetAudienceSize(-3)
	if b.AudienceSize() != 0 {
		t.Errorf("negative audience size should clamp to 0, got %d", b.AudienceSize())
	}
}
