// Package session provides the bounded, time-ordered event buffer owned by a
// presentation session. The buffer is the single writer-side store for
// audience signals; analyzers read windowed views of it during a pass and
// never mutate it.
//
// Reactions rotate oldest-first past the configured cap so memory stays
// bounded for long sessions. Windows are derived at query time from "now";
// nothing is materialized or persisted.
package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"audiencepulse/internal/models"
)

// Buffer is a thread-safe per-session store of reactions and questions.
type Buffer struct {
	mu           sync.RWMutex
	maxReactions int
	reactions    []models.Reaction
	questions    []*models.Question
	audienceSize int
	createdAt    time.Time
	now          func() time.Time
}

// Stats is a point-in-time summary of buffer contents.
type Stats struct {
	BufferedReactions int       `json:"buffered_reactions"`
	Questions         int       `json:"questions"`
	AudienceSize      int       `json:"audience_size"`
	CreatedAt         time.Time `json:"created_at"`
}

// New creates a buffer that retains at most maxReactions reactions.
func New(maxReactions int) *Buffer {
	return &Buffer{
		maxReactions: maxReactions,
		createdAt:    time.Now(),
		now:          time.Now,
	}
}

// SetClock overrides the buffer's time source. Test use only.
func (b *Buffer) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// SetAudienceSize records the current audience headcount, used by the pacing
// analyzer to scale its thresholds.
func (b *Buffer) SetAudienceSize(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n < 0 {
		n = 0
	}
	b.audienceSize = n
}

// AudienceSize returns the last recorded audience headcount.
func (b *Buffer) AudienceSize() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.audienceSize
}

// AddReaction appends a reaction of the given kind. The oldest reaction is
// dropped once the buffer cap is exceeded.
func (b *Buffer) AddReaction(kind models.ReactionKind, subjectID string) (models.Reaction, error) {
	if _, ok := models.ParseReactionKind(string(kind)); !ok {
		return models.Reaction{}, fmt.Errorf("unknown reaction kind %q", kind)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	r := models.Reaction{
		Kind:      kind,
		Timestamp: b.now(),
		SubjectID: subjectID,
	}
	b.reactions = append(b.reactions, r)
	if len(b.reactions) > b.maxReactions {
		b.reactions = b.reactions[len(b.reactions)-b.maxReactions:]
	}
	return r, nil
}

// AddQuestion appends a free-text question and returns the stored record.
func (b *Buffer) AddQuestion(text, subjectID string) (models.Question, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Question{}, fmt.Errorf("question text must not be empty")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	q := &models.Question{
		ID:        uuid.New().String(),
		Text:      text,
		Timestamp: b.now(),
		SubjectID: subjectID,
	}
	b.questions = append(b.questions, q)
	return *q, nil
}

// UpvoteQuestion records an upvote for the question. Upvoting is idempotent
// per subject: the second return value is false when the question does not
// exist or the subject has already upvoted it.
func (b *Buffer) UpvoteQuestion(id, subjectID string) (models.Question, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, q := range b.questions {
		if q.ID == id {
			if !q.Upvote(subjectID) {
				return models.Question{}, false
			}
			return *q, true
		}
	}
	return models.Question{}, false
}

// RecentReactions returns the reactions whose timestamp lies within the last
// window of now, oldest first.
func (b *Buffer) RecentReactions(window time.Duration) []models.Reaction {
	b.mu.RLock()
	defer b.mu.RUnlock()

	cutoff := b.now().Add(-window)
	var out []models.Reaction
	for _, r := range b.reactions {
		if !r.Timestamp.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out
}

// ReactionCounts tallies reactions per kind over the window.
func (b *Buffer) ReactionCounts(window time.Duration) models.ReactionCounts {
	b.mu.RLock()
	defer b.mu.RUnlock()

	cutoff := b.now().Add(-window)
	var counts models.ReactionCounts
	for _, r := range b.reactions {
		if !r.Timestamp.Before(cutoff) {
			counts.Add(r.Kind)
		}
	}
	return counts
}

// Questions returns a copy of all buffered questions, oldest first.
func (b *Buffer) Questions() []models.Question {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]models.Question, len(b.questions))
	for i, q := range b.questions {
		out[i] = *q
	}
	return out
}

// RecentQuestions returns a copy of the most recent n questions, oldest first.
func (b *Buffer) RecentQuestions(n int) []models.Question {
	b.mu.RLock()
	defer b.mu.RUnlock()

	start := len(b.questions) - n
	if start < 0 {
		start = 0
	}
	out := make([]models.Question, 0, len(b.questions)-start)
	for _, q := range b.questions[start:] {
		out = append(out, *q)
	}
	return out
}

// Snapshot returns current buffer statistics.
func (b *Buffer) Snapshot() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return Stats{
		BufferedReactions: len(b.reactions),
		Questions:         len(b.questions),
		AudienceSize:      b.audienceSize,
		CreatedAt:         b.createdAt,
	}
}
