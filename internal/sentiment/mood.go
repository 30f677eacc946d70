package sentiment

import (
	"fmt"

	"audiencepulse/internal/models"
)

type moodKey struct {
	sentiment models.Sentiment
	emotion   models.Emotion
	urgency   models.Urgency
}

// moodLabels maps specific signal combinations to curated presenter-facing
// labels. Misses fall back to an emotion-only label, then sentiment-only.
var moodLabels = map[moodKey]string{
	{models.SentimentNegative, models.EmotionConfused, models.UrgencyImmediate}:   "LOST - Critical Confusion",
	{models.SentimentNegative, models.EmotionFrustrated, models.UrgencyImmediate}: "FRUSTRATED - Need Help Now",
	{models.SentimentNegative, models.EmotionConfused, models.UrgencyHigh}:        "Confused & Struggling",
	{models.SentimentNegative, models.EmotionConfused, models.UrgencyMedium}:      "Getting Confused",
	{models.SentimentNegative, models.EmotionFrustrated, models.UrgencyHigh}:      "Frustrated",
	{models.SentimentNegative, models.EmotionBored, models.UrgencyMedium}:         "Losing Interest",
	{models.SentimentNegative, models.EmotionOverwhelmed, models.UrgencyHigh}:     "Overwhelmed",
	{models.SentimentNeutral, models.EmotionNeutral, models.UrgencyLow}:           "Neutral / Waiting",
	{models.SentimentNeutral, models.EmotionInterested, models.UrgencyMedium}:     "Mildly Interested",
	{models.SentimentNeutral, models.EmotionSkeptical, models.UrgencyLow}:         "Skeptical",
	{models.SentimentPositive, models.EmotionInterested, models.UrgencyLow}:       "Interested & Following",
	{models.SentimentPositive, models.EmotionInterested, models.UrgencyMedium}:    "Very Interested",
	{models.SentimentPositive, models.EmotionEngaged, models.UrgencyLow}:          "Engaged",
	{models.SentimentPositive, models.EmotionEngaged, models.UrgencyMedium}:       "Actively Engaged",
	{models.SentimentPositive, models.EmotionExcited, models.UrgencyLow}:          "Excited",
	{models.SentimentPositive, models.EmotionExcited, models.UrgencyMedium}:       "Very Excited",
	{models.SentimentPositive, models.EmotionExcited, models.UrgencyHigh}:         "Extremely Excited",
}

var emotionMoods = map[models.Emotion]string{
	models.EmotionExcited:     "Excited",
	models.EmotionInterested:  "Interested",
	models.EmotionEngaged:     "Engaged",
	models.EmotionConfused:    "Confused",
	models.EmotionFrustrated:  "Frustrated",
	models.EmotionBored:       "Bored",
	models.EmotionNeutral:     "Neutral",
	models.EmotionSkeptical:   "Skeptical",
	models.EmotionOverwhelmed: "Overwhelmed",
}

func moodLabel(s models.Sentiment, e models.Emotion, u models.Urgency) string {
	if label, ok := moodLabels[moodKey{s, e, u}]; ok {
		return label
	}
	if label, ok := emotionMoods[e]; ok {
		return label
	}
	switch s {
	case models.SentimentPositive:
		return "Positive"
	case models.SentimentNegative:
		return "Negative"
	}
	return "Neutral"
}

// recommendations runs the prioritized rule cascade over urgency, emotion,
// trend and raw counts. Rules are independently triggerable; only the generic
// fallbacks require an otherwise empty list. Capped at 5 entries.
func recommendations(res models.SentimentResult, counts models.ReactionCounts, hasMessages bool) []string {
	var recs []string

	switch res.Urgency {
	case models.UrgencyImmediate:
		switch res.Emotion {
		case models.EmotionConfused:
			recs = append(recs, "STOP NOW: Audience is lost. Pause and ask: 'What's unclear?'")
		case models.EmotionFrustrated:
			recs = append(recs, "IMMEDIATE ACTION: Frustration detected. Address concerns now.")
		default:
			recs = append(recs, "URGENT: Immediate attention needed. Check in with audience.")
		}
	case models.UrgencyHigh:
		switch {
		case res.Emotion == models.EmotionConfused && hasMessages:
			recs = append(recs, "HIGH PRIORITY: Messages show confusion. Provide concrete examples NOW.")
		case res.Emotion == models.EmotionFrustrated:
			recs = append(recs, "HIGH PRIORITY: Frustration building. Take Q&A break immediately.")
		case res.Emotion == models.EmotionOverwhelmed:
			recs = append(recs, "SLOW DOWN: Audience overwhelmed. Reduce pace and simplify.")
		}
	}

	if res.Trend.Direction == models.TrendDeclining && res.Confidence > 60 {
		recs = append(recs, fmt.Sprintf("TREND WARNING: Sentiment declining. Current mood: %s", res.Mood))
	} else if res.Trend.Direction == models.TrendImproving {
		recs = append(recs, "POSITIVE TREND: Sentiment improving! Keep current approach.")
	}

	if res.Emotion == models.EmotionConfused && res.Urgency == models.UrgencyMedium {
		recs = append(recs, "CONFUSION DETECTED: Consider quick recap or example.")
	}
	if res.Emotion == models.EmotionBored && hasMessages {
		recs = append(recs, "LOW ENGAGEMENT: Add interactive element or code demo.")
	}
	if res.Emotion == models.EmotionSkeptical {
		recs = append(recs, "SKEPTICISM: Provide evidence, examples, or address concerns.")
	}
	if res.Emotion == models.EmotionInterested && res.Sentiment == models.SentimentPositive {
		recs = append(recs, "GOOD ENGAGEMENT: Audience interested. Great time for deep dive.")
	}
	if res.Emotion == models.EmotionExcited && res.Sentiment == models.SentimentPositive {
		recs = append(recs, "EXCELLENT: Audience very excited! Capitalize on this energy.")
	}

	switch {
	case counts.ImLost >= 5:
		recs = append(recs, fmt.Sprintf("BUTTONS: %d 'I'm Lost' clicks, critical confusion.", counts.ImLost))
	case counts.ImLost >= 3:
		recs = append(recs, fmt.Sprintf("BUTTONS: %d people lost, verify understanding soon.", counts.ImLost))
	}
	if counts.ShowCode >= 8 {
		recs = append(recs, fmt.Sprintf("OPPORTUNITY: Strong demand (%d requests) for code demo.", counts.ShowCode))
	}
	if !hasMessages && res.Confidence < 60 {
		recs = append(recs, "LOW DATA: Encourage audience to ask questions for better insights.")
	}

	if len(recs) == 0 && res.Sentiment == models.SentimentPositive && res.Confidence > 70 {
		recs = append(recs, "EXCELLENT: Audience sentiment positive. Maintain current momentum!")
	}
	if len(recs) == 0 {
		if hasMessages {
			recs = append(recs, "NORMAL: Sentiment neutral. Continue as planned, monitor for changes.")
		} else {
			recs = append(recs, "MONITORING: Awaiting more data. Encourage participation.")
		}
	}

	if len(recs) > 5 {
		recs = recs[:5]
	}
	return recs
}
