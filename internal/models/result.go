package models

import "time"

// AlertLevel grades how strongly a result demands presenter attention.
type AlertLevel string

const (
	AlertNone     AlertLevel = "none"
	AlertInfo     AlertLevel = "info"
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

// Urgency describes how soon a result or theme needs to be acted on.
// UrgencyNone and UrgencyOpportunity are informational grades used by the
// pacing analyzer; only low..immediate participate in rank comparisons.
type Urgency string

const (
	UrgencyNone        Urgency = "none"
	UrgencyOpportunity Urgency = "opportunity"
	UrgencyLow         Urgency = "low"
	UrgencyMedium      Urgency = "medium"
	UrgencyHigh        Urgency = "high"
	UrgencyImmediate   Urgency = "immediate"
)

// Rank orders urgencies for max-fusion. Informational grades rank 0.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyLow:
		return 1
	case UrgencyMedium:
		return 2
	case UrgencyHigh:
		return 3
	case UrgencyImmediate:
		return 4
	}
	return 0
}

// MaxUrgency returns the higher-ranked of two urgencies.
func MaxUrgency(a, b Urgency) Urgency {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Sentiment is the coarse audience polarity.
type Sentiment string

const (
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
	SentimentPositive Sentiment = "positive"
)

// Score maps polarity onto the {-1, 0, +1} fusion scale.
func (s Sentiment) Score() float64 {
	switch s {
	case SentimentPositive:
		return 1
	case SentimentNegative:
		return -1
	}
	return 0
}

// Priority grades a question theme.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank orders priorities for sorting, higher is more urgent.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// ParsePriority maps a wire string to a Priority, defaulting to medium.
func ParsePriority(s string) Priority {
	switch Priority(s) {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return Priority(s)
	}
	return PriorityMedium
}

// Trend is a coarse direction estimate derived from per-analyzer history.
type Trend string

const (
	TrendUnknown   Trend = "unknown"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
	TrendImproving Trend = "improving"
)

// VelocityTrend classifies the short-term reaction rate movement.
type VelocityTrend string

const (
	VelocityAccelerating VelocityTrend = "accelerating"
	VelocityStable       VelocityTrend = "stable"
	VelocityDecelerating VelocityTrend = "decelerating"
)

// Intensity buckets the absolute reaction rate.
type Intensity string

const (
	IntensityLow    Intensity = "low"
	IntensityMedium Intensity = "medium"
	IntensityHigh   Intensity = "high"
)

// Velocity summarises the reaction rate over the recent window.
type Velocity struct {
	Rate      float64       `json:"rate"` // reactions per second
	Trend     VelocityTrend `json:"trend"`
	Intensity Intensity     `json:"intensity"`
}

// EnhancementSource marks whether an enhancement came from the deterministic
// rule path or from the inference service.
type EnhancementSource string

const (
	SourceRule      EnhancementSource = "rule"
	SourceInference EnhancementSource = "inference"
)

// Enhancement is the optional inference-derived sub-record attached to an
// analysis result after the synchronous rule verdict has been delivered.
type Enhancement struct {
	Recommendation string            `json:"recommendation"`
	Reasoning      string            `json:"reasoning"`
	Confidence     int               `json:"confidence"`
	Actions        []string          `json:"actions,omitempty"`
	Source         EnhancementSource `json:"source"`
	EnhancedAt     time.Time         `json:"enhanced_at"`
}

// Alert is a single presenter-facing notification produced by the pacing
// analyzer. Priority 1 is the most urgent; alerts are sorted ascending.
type Alert struct {
	Kind     string     `json:"kind"` // reaction kind or "velocity_high"
	Level    AlertLevel `json:"level"`
	Title    string     `json:"title"`
	Message  string     `json:"message"`
	Action   string     `json:"action"`
	Priority int        `json:"priority"`
}

// PacingStatus is the pacing analyzer's verdict enum.
type PacingStatus string

const (
	PacingCritical         PacingStatus = "critical"
	PacingTooFast          PacingStatus = "too_fast"
	PacingConcerning       PacingStatus = "concerning"
	PacingSlightlyFast     PacingStatus = "slightly_fast"
	PacingExcellent        PacingStatus = "excellent"
	PacingGood             PacingStatus = "good"
	PacingTooSlow          PacingStatus = "too_slow"
	PacingInsufficientData PacingStatus = "insufficient_data"
)

// EngagementTrend reports the regression over recent engagement scores.
type EngagementTrend struct {
	Direction  Trend   `json:"direction"`
	Confidence int     `json:"confidence"`
	Slope      float64 `json:"slope"`
	DataPoints int     `json:"data_points"`
}

// PacingResult is the pacing analyzer's full verdict for one window.
type PacingResult struct {
	Status          PacingStatus    `json:"status"`
	AlertLevel      AlertLevel      `json:"alert_level"`
	Score           int             `json:"score"`
	Trend           Trend           `json:"trend"` // trend implied by the fired branch
	ActionRequired  bool            `json:"action_required"`
	Title           string          `json:"title"`
	Recommendation  string          `json:"recommendation"`
	Reasoning       string          `json:"reasoning"`
	Actions         []string        `json:"actions"`
	Urgency         Urgency         `json:"urgency"`
	Velocity        Velocity        `json:"velocity"`
	VelocityNote    string          `json:"velocity_note"`
	PredictedTrend  Trend           `json:"predicted_trend"` // from engagement history
	TrendConfidence int             `json:"trend_confidence"`
	Alerts          []Alert         `json:"alerts"`
	Counts          ReactionCounts  `json:"counts"`
	TotalReactions  int             `json:"total_reactions"`
	Enhancement     *Enhancement    `json:"enhancement,omitempty"`
	EngagementTrend EngagementTrend `json:"engagement_trend"`
	AnalyzedAt      time.Time       `json:"analyzed_at"`
}

// Emotion is the dominant detected audience emotion.
type Emotion string

const (
	EmotionExcited     Emotion = "excited"
	EmotionInterested  Emotion = "interested"
	EmotionConfused    Emotion = "confused"
	EmotionFrustrated  Emotion = "frustrated"
	EmotionBored       Emotion = "bored"
	EmotionEngaged     Emotion = "engaged"
	EmotionSkeptical   Emotion = "skeptical"
	EmotionOverwhelmed Emotion = "overwhelmed"
	EmotionNeutral     Emotion = "neutral"
	EmotionUnknown     Emotion = "unknown"
)

// SentimentTrend reports the split-half comparison over sentiment history.
type SentimentTrend struct {
	Direction  Trend   `json:"direction"`
	Confidence int     `json:"confidence"`
	Delta      float64 `json:"delta"`
	DataPoints int     `json:"data_points"`
}

// InferenceValidation records a non-authoritative second opinion from the
// inference service when it did not beat the local confidence.
type InferenceValidation struct {
	Emotion   Emotion   `json:"emotion"`
	Sentiment Sentiment `json:"sentiment"`
	Agrees    bool      `json:"agrees"`
}

// SentimentResult is the sentiment analyzer's fused verdict for one window.
type SentimentResult struct {
	Sentiment       Sentiment            `json:"sentiment"`
	Emotion         Emotion              `json:"emotion"`
	Confidence      int                  `json:"confidence"`
	Urgency         Urgency              `json:"urgency"`
	Mood            string               `json:"mood"`
	DataSource      string               `json:"data_source"`
	DataQuality     string               `json:"data_quality"` // "high" with messages, "medium" without
	Trend           SentimentTrend       `json:"trend"`
	Recommendations []string             `json:"recommendations"`
	MessageCount    int                  `json:"message_count"`
	ReactionCount   int                  `json:"reaction_count"`
	Validation      *InferenceValidation `json:"validation,omitempty"`
	Enhancement     *Enhancement         `json:"enhancement,omitempty"`
	AnalyzedAt      time.Time            `json:"analyzed_at"`
}

// ThemeInsight carries the per-theme action suggestion.
type ThemeInsight struct {
	SuggestedResponse string  `json:"suggested_response"`
	TimeToAddress     string  `json:"time_to_address"`
	Urgency           Urgency `json:"urgency"`
	Action            string  `json:"action"`
}

// Theme is a named cluster of related questions. Themes are derived and
// recomputed on every analysis pass, never persisted across passes.
type Theme struct {
	Name         string       `json:"name"`
	Category     string       `json:"category"`
	Priority     Priority     `json:"priority"`
	Questions    []Question   `json:"questions"`
	Examples     []string     `json:"examples"`
	Confidence   float64      `json:"confidence"` // 0..1
	TotalUpvotes int          `json:"total_upvotes"`
	AvgUpvotes   float64      `json:"avg_upvotes"`
	Insight      ThemeInsight `json:"insight"`
}

// ClusteringMethod identifies which clustering path produced the themes.
type ClusteringMethod string

const (
	MethodNone      ClusteringMethod = "none"
	MethodLocal     ClusteringMethod = "local"
	MethodInference ClusteringMethod = "inference"
)

// ClusteringStatus is the clustering analyzer's status enum.
type ClusteringStatus string

const (
	ClusteringSuccess          ClusteringStatus = "success"
	ClusteringInsufficientData ClusteringStatus = "insufficient_data"
)

// ClusteringResult is the clustering analyzer's verdict for one pass.
type ClusteringResult struct {
	Status            ClusteringStatus `json:"status"`
	Method            ClusteringMethod `json:"method"`
	Themes            []Theme          `json:"themes"`
	TotalQuestions    int              `json:"total_questions"`
	AnalyzedQuestions int              `json:"analyzed_questions"`
	FilteredOut       int              `json:"filtered_out"`
	QualityScore      int              `json:"quality_score"`
	Message           string           `json:"message,omitempty"`
	AnalyzedAt        time.Time        `json:"analyzed_at"`
}
