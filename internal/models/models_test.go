package models

import (
	"testing"
	"time"
)

func TestParseReactionKind(t *testing.T) {
	tests := []struct {
		input string
		want  ReactionKind
		ok    bool
	}{
		{"speed_up", ReactionSpeedUp, true},
		{"slow_down", ReactionSlowDown, true},
		{"show_code", ReactionShowCode, true},
		{"im_lost", ReactionImLost, true},
		{"thumbs_up", "", false},
		{"", "", false},
		{"SPEED_UP", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseReactionKind(tt.input)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseReactionKind(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.ok)
		}
	}
}

func TestReactionValidate(t *testing.T) {
	r := Reaction{Kind: ReactionImLost, Timestamp: time.Now(), SubjectID: "u1"}
	if err := r.Validate(); err != nil {
		t.Errorf("valid reaction rejected: %v", err)
	}

	bad := Reaction{Kind: "shrug", Timestamp: time.Now()}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for unknown reaction kind")
	}

	noTS := Reaction{Kind: ReactionSpeedUp}
	if err := noTS.Validate(); err == nil {
		t.Error("expected error for zero timestamp")
	}
}

func TestQuestionUpvoteIdempotent(t *testing.T) {
	q := Question{ID: "q1", Text: "how does auth work?", Timestamp: time.Now()}

	if !q.Upvote("alice") {
		t.Error("first upvote by alice should count")
	}
	if q.Upvote("alice") {
		t.Error("second upvote by alice should be rejected")
	}
	if !q.Upvote("bob") {
		t.Error("first upvote by bob should count")
	}
	if q.Upvotes != 2 {
		t.Errorf("expected 2 upvotes, got %d", q.Upvotes)
	}
}

func TestReactionCounts(t *testing.T) {
	var c ReactionCounts
	c.Add(ReactionImLost)
	c.Add(ReactionImLost)
	c.Add(ReactionSpeedUp)
	c.Add("unknown") // ignored

	if c.ImLost != 2 || c.SpeedUp != 1 {
		t.Errorf("unexpected counts: %+v", c)
	}
	if c.Total() != 3 {
		t.Errorf("Total() = %d, want 3", c.Total())
	}
	if c.Of(ReactionImLost) != 2 {
		t.Errorf("Of(im_lost) = %d, want 2", c.Of(ReactionImLost))
	}
	if c.CacheKey() != "2:0:1:0" {
		t.Errorf("CacheKey() = %q, want \"2:0:1:0\"", c.CacheKey())
	}
}

func TestUrgencyRankOrdering(t *testing.T) {
	ordered := []Urgency{UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyImmediate}
	for i := 1; i < len(ordered); i++ {
		if ordered[i].Rank() <= ordered[i-1].Rank() {
			t.Errorf("%s should rank above %s", ordered[i], ordered[i-1])
		}
	}
	if UrgencyNone.Rank() != 0 || UrgencyOpportunity.Rank() != 0 {
		t.Error("informational urgencies should rank 0")
	}
	if got := MaxUrgency(UrgencyMedium, UrgencyImmediate); got != UrgencyImmediate {
		t.Errorf("MaxUrgency = %s, want immediate", got)
	}
	if got := MaxUrgency(UrgencyHigh, UrgencyLow); got != UrgencyHigh {
		t.Errorf("MaxUrgency = %s, want high", got)
	}
}

func TestPriorityRankOrdering(t *testing.T) {
	ordered := []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}
	for i := 1; i < len(ordered); i++ {
		if ordered[i].Rank() <= ordered[i-1].Rank() {
			t.Errorf("%s should rank above %s", ordered[i], ordered[i-1])
		}
	}
	if got := ParsePriority("critical"); got != PriorityCritical {
		t.Errorf("ParsePriority(critical) = %s", got)
	}
	if got := ParsePriority("whatever"); got != PriorityMedium {
		t.Errorf("ParsePriority should default to medium, got %s", got)
	}
}

func TestSentimentScore(t *testing.T) {
	if SentimentPositive.Score() != 1 || SentimentNegative.Score() != -1 || SentimentNeutral.Score() != 0 {
		t.Error("sentiment scores must map onto {-1, 0, +1}")
	}
}
