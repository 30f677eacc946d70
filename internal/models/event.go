// Package models defines the core domain entities for the audiencepulse engine.
// These models represent audience signals (reactions and questions), windowed
// reaction counts, and the structured analysis results produced by the three
// analyzers. Result shapes are explicit typed records rather than open maps so
// required and optional fields are visible at the type level.
//
// Terminology:
//   - Reaction: a one-tap audience signal (speed up, slow down, show code, I'm lost).
//   - Question: a free-text audience message with idempotent per-subject upvoting.
//   - Theme: a derived cluster of questions, recomputed on every analysis pass.
package models

import (
	"errors"
	"fmt"
	"time"
)

// ReactionKind identifies one of the four audience reaction buttons.
type ReactionKind string

const (
	ReactionSpeedUp  ReactionKind = "speed_up"
	ReactionSlowDown ReactionKind = "slow_down"
	ReactionShowCode ReactionKind = "show_code"
	ReactionImLost   ReactionKind = "im_lost"
)

// ReactionKinds lists all valid kinds in a fixed order.
var ReactionKinds = []ReactionKind{ReactionSpeedUp, ReactionSlowDown, ReactionShowCode, ReactionImLost}

// ParseReactionKind maps a wire string to a ReactionKind.
// Returns false for anything outside the four known kinds.
func ParseReactionKind(s string) (ReactionKind, bool) {
	switch ReactionKind(s) {
	case ReactionSpeedUp, ReactionSlowDown, ReactionShowCode, ReactionImLost:
		return ReactionKind(s), true
	}
	return "", false
}

// Reaction is a single audience reaction event. Immutable once created.
type Reaction struct {
	Kind      ReactionKind `json:"kind"`
	Timestamp time.Time    `json:"timestamp"`
	SubjectID string       `json:"subject_id"`
}

// Validate checks that the reaction carries a known kind and a timestamp.
func (r *Reaction) Validate() error {
	if _, ok := ParseReactionKind(string(r.Kind)); !ok {
		return fmt.Errorf("unknown reaction kind %q", r.Kind)
	}
	if r.Timestamp.IsZero() {
		return errors.New("reaction timestamp must not be zero")
	}
	return nil
}

// Question is a free-text audience question. The only permitted mutation is
// Upvote, which is idempotent per subject: a subject may upvote a given
// question at most once.
type Question struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	SubjectID string    `json:"subject_id"`
	Upvotes   int       `json:"upvotes"`

	upvoters map[string]struct{}
}

// Validate checks that the question has an ID, text, and timestamp.
func (q *Question) Validate() error {
	if q.ID == "" {
		return errors.New("question ID must not be empty")
	}
	if q.Text == "" {
		return errors.New("question text must not be empty")
	}
	if q.Timestamp.IsZero() {
		return errors.New("question timestamp must not be zero")
	}
	return nil
}

// Upvote records an upvote from subjectID. Returns true when the vote was
// counted and false when the subject has already upvoted this question.
func (q *Question) Upvote(subjectID string) bool {
	if q.upvoters == nil {
		q.upvoters = make(map[string]struct{})
	}
	if _, voted := q.upvoters[subjectID]; voted {
		return false
	}
	q.upvoters[subjectID] = struct{}{}
	q.Upvotes++
	return true
}

// ReactionCounts holds per-kind reaction totals over an analysis window.
type ReactionCounts struct {
	SpeedUp  int `json:"speed_up"`
	SlowDown int `json:"slow_down"`
	ShowCode int `json:"show_code"`
	ImLost   int `json:"im_lost"`
}

// Add increments the counter for the given kind. Unknown kinds are ignored.
func (c *ReactionCounts) Add(kind ReactionKind) {
	switch kind {
	case ReactionSpeedUp:
		c.SpeedUp++
	case ReactionSlowDown:
		c.SlowDown++
	case ReactionShowCode:
		c.ShowCode++
	case ReactionImLost:
		c.ImLost++
	}
}

// Of returns the count for a single kind.
func (c ReactionCounts) Of(kind ReactionKind) int {
	switch kind {
	case ReactionSpeedUp:
		return c.SpeedUp
	case ReactionSlowDown:
		return c.SlowDown
	case ReactionShowCode:
		return c.ShowCode
	case ReactionImLost:
		return c.ImLost
	}
	return 0
}

// Total returns the sum of all four counters.
func (c ReactionCounts) Total() int {
	return c.SpeedUp + c.SlowDown + c.ShowCode + c.ImLost
}

// CacheKey returns a composite key over the four counters, used to cache
// inference insights for identical reaction mixes.
func (c ReactionCounts) CacheKey() string {
	return fmt.Sprintf("%d:%d:%d:%d", c.ImLost, c.SlowDown, c.SpeedUp, c.ShowCode)
}
