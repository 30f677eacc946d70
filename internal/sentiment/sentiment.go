// Package sentiment fuses message-derived and reaction-derived emotion
// signals into a single audience-mood verdict per window.
package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"audiencepulse/internal/config"
	"audiencepulse/internal/gate"
	"audiencepulse/internal/gateway"
	"audiencepulse/internal/logger"
	"audiencepulse/internal/models"
)

// Input is one analysis window handed in by the orchestrator.
type Input struct {
	Questions []models.Question
	Counts    models.ReactionCounts
	Recent    []models.Reaction
}

// emotionPattern scores one emotion by keyword presence. Declaration order
// matters: the first pattern wins score ties, so stronger signals come first.
type emotionPattern struct {
	emotion  models.Emotion
	keywords []string
	weight   float64
	polarity models.Sentiment
}

var emotionPatterns = []emotionPattern{
	{models.EmotionExcited, []string{"amazing", "awesome", "love", "great", "excellent", "perfect",
		"wow", "fantastic", "brilliant", "incredible", "mind blown"}, 1.0, models.SentimentPositive},
	{models.EmotionInterested, []string{"interesting", "curious", "want to know", "tell me more",
		"how does", "what about", "can you show", "example"}, 0.8, models.SentimentPositive},
	{models.EmotionConfused, []string{"confused", "lost", "don't understand", "can't follow",
		"unclear", "what", "huh", "explain", "clarify", "mean"}, 1.2, models.SentimentNegative},
	{models.EmotionFrustrated, []string{"frustrated", "annoying", "difficult", "hard", "stuck",
		"not working", "can't", "impossible", "why", "failing"}, 1.5, models.SentimentNegative},
	{models.EmotionBored, []string{"boring", "slow", "tedious", "dragging", "skip",
		"move on", "next", "hurry up", "get on with"}, 1.0, models.SentimentNegative},
	{models.EmotionEngaged, []string{"yes", "makes sense", "got it", "understand", "clear",
		"following", "agree", "exactly", "right"}, 0.7, models.SentimentPositive},
	{models.EmotionSkeptical, []string{"really", "sure", "doubt", "but", "however", "what if",
		"seems", "supposedly", "allegedly"}, 0.5, models.SentimentNeutral},
}

// urgencyPatterns are probed top-down; the first level with a phrase hit wins.
var urgencyPatterns = []struct {
	level   models.Urgency
	phrases []string
}{
	{models.UrgencyImmediate, []string{"help", "urgent", "stuck", "broken", "not working", "error",
		"crash", "lost", "stop", "wait"}},
	{models.UrgencyHigh, []string{"confused", "unclear", "don't understand", "clarify", "explain"}},
	{models.UrgencyMedium, []string{"question", "how", "what", "when", "where", "why"}},
	{models.UrgencyLow, []string{"interesting", "curious", "later", "eventually"}},
}

// pathResult is the intermediate verdict of one signal path.
type pathResult struct {
	sentiment  models.Sentiment
	emotion    models.Emotion
	confidence int
	urgency    models.Urgency
}

// inferenceVerdict is the parsed second opinion from the inference service.
type inferenceVerdict struct {
	Emotion    models.Emotion
	Sentiment  models.Sentiment
	Urgency    models.Urgency
	Confidence int
	Reasoning  string
}

// Analyzer fuses the two signal paths. One instance serves one session and
// exclusively owns its history, cooldown and response cache.
type Analyzer struct {
	cfg config.SentimentConfig
	gw  *gateway.Gateway

	mu              sync.Mutex
	history         *gate.History[models.Sentiment]
	enhanceCooldown *gate.Cooldown
	responseCache   *gate.TTLCache[string, inferenceVerdict]
	task            *gate.Task
	lastEnhanced    *models.SentimentResult
	onEnhancement   func(models.SentimentResult)

	now func() time.Time
}

// New builds a sentiment analyzer. gw may be nil for rule-only operation.
func New(cfg config.SentimentConfig, gw *gateway.Gateway) *Analyzer {
	return &Analyzer{
		cfg:             cfg,
		gw:              gw,
		history:         gate.NewHistory[models.Sentiment](cfg.HistorySize),
		enhanceCooldown: gate.NewCooldown(cfg.EnhanceCooldown),
		responseCache:   gate.NewTTLCache[string, inferenceVerdict](cfg.CacheTTL, cfg.CacheMax, cfg.CacheMax/2),
		task:            gate.NewTask(10 * time.Second),
		now:             time.Now,
	}
}

// SetClock replaces the analyzer's time source for deterministic tests.
func (a *Analyzer) SetClock(now func() time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.now = now
	a.enhanceCooldown.SetClock(now)
	a.responseCache.SetClock(now)
}

// OnEnhancement registers a callback invoked from the enhancement goroutine
// with the re-merged result whenever a background enhancement completes.
func (a *Analyzer) OnEnhancement(fn func(models.SentimentResult)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onEnhancement = fn
}

// LastEnhanced returns the most recent inference-merged result, if any.
func (a *Analyzer) LastEnhanced() *models.SentimentResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lastEnhanced == nil {
		return nil
	}
	r := *a.lastEnhanced
	return &r
}

// Cancel stops any in-flight enhancement task. Called on session teardown.
func (a *Analyzer) Cancel() {
	a.task.Cancel()
}

// Analyze produces the fused verdict for one window. The synchronous result
// is always rule-based; an inference refinement may follow out of band.
func (a *Analyzer) Analyze(in Input) models.SentimentResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	msg, hasMsg := messageAnalysis(in.Questions, a.cfg.RecentMessages)
	react := reactionAnalysis(in.Counts)

	var res models.SentimentResult
	if hasMsg {
		res = a.fuse(msg, react)
		res.DataQuality = "high"
	} else {
		res = reactionOnly(react)
		res.DataQuality = "medium"
	}
	res.MessageCount = len(in.Questions)
	res.ReactionCount = in.Counts.Total()
	res.Trend = a.sentimentTrend()
	res.Recommendations = recommendations(res, in.Counts, len(in.Questions) > 0)
	res.AnalyzedAt = a.now()

	a.maybeEnhance(&res, in.Questions)

	a.history.Push(res.Sentiment)
	return res
}

// messageAnalysis scores the joined recent question texts against the emotion
// table. Returns false when there is too little text to work with.
func messageAnalysis(questions []models.Question, recentN int) (pathResult, bool) {
	if len(questions) == 0 {
		return pathResult{}, false
	}
	text := joinedTexts(questions, recentN)
	if len(strings.TrimSpace(text)) < 10 {
		return pathResult{}, false
	}
	lower := strings.ToLower(text)

	var dominant models.Emotion
	var maxScore, totalScore float64
	for _, p := range emotionPatterns {
		score := 0.0
		for _, kw := range p.keywords {
			if strings.Contains(lower, kw) {
				score += p.weight
			}
		}
		if score > 0 {
			totalScore += score
			if score > maxScore {
				maxScore = score
				dominant = p.emotion
			}
		}
	}

	r := pathResult{sentiment: models.SentimentNeutral, emotion: models.EmotionNeutral, confidence: 50}
	if dominant != "" {
		r.emotion = dominant
		r.sentiment = polarityOf(dominant)
		r.confidence = int(60 + maxScore/totalScore*30)
		if r.confidence > 95 {
			r.confidence = 95
		}
	}
	r.urgency = detectUrgency(lower)

	// Punctuation and capitalization tweaks: a wall of question marks means
	// uncertainty, exclamation marks and shouting mean strong signal.
	questionMarks := strings.Count(text, "?")
	exclamations := strings.Count(text, "!")
	if questionMarks >= 3 && r.confidence > 70 {
		r.confidence = 70
	}
	if exclamations >= 2 {
		r.confidence += 5
	}
	if capitalRatio(text) > 0.3 {
		r.confidence += 5
	}
	if r.confidence > 95 {
		r.confidence = 95
	}
	return r, true
}

func joinedTexts(questions []models.Question, recentN int) string {
	start := len(questions) - recentN
	if start < 0 {
		start = 0
	}
	texts := make([]string, 0, len(questions)-start)
	for _, q := range questions[start:] {
		texts = append(texts, q.Text)
	}
	return strings.Join(texts, " | ")
}

func polarityOf(e models.Emotion) models.Sentiment {
	for _, p := range emotionPatterns {
		if p.emotion == e {
			return p.polarity
		}
	}
	return models.SentimentNeutral
}

func detectUrgency(lower string) models.Urgency {
	for _, up := range urgencyPatterns {
		for _, phrase := range up.phrases {
			if strings.Contains(lower, phrase) {
				return up.level
			}
		}
	}
	return models.UrgencyLow
}

func capitalRatio(text string) float64 {
	if text == "" {
		return 0
	}
	upper := 0
	for _, r := range text {
		if unicode.IsUpper(r) {
			upper++
		}
	}
	return float64(upper) / float64(len([]rune(text)))
}

// reactionAnalysis derives a verdict from button counts alone.
func reactionAnalysis(c models.ReactionCounts) pathResult {
	total := c.Total()
	if total == 0 {
		return pathResult{sentiment: models.SentimentNeutral, emotion: models.EmotionUnknown, urgency: models.UrgencyLow}
	}

	positive := float64(c.SpeedUp)*0.7 + float64(c.ShowCode)*1.0
	negative := float64(c.SlowDown)*1.0 + float64(c.ImLost)*2.0

	r := pathResult{sentiment: models.SentimentNeutral, emotion: models.EmotionNeutral}
	switch {
	case positive > negative*1.5:
		r.sentiment = models.SentimentPositive
		r.emotion = models.EmotionEngaged
	case negative > positive*1.5:
		r.sentiment = models.SentimentNegative
		if c.ImLost > c.SlowDown {
			r.emotion = models.EmotionConfused
		} else {
			r.emotion = models.EmotionOverwhelmed
		}
	}

	switch {
	case c.ImLost >= 5:
		r.urgency = models.UrgencyImmediate
	case c.ImLost >= 2 || c.SlowDown >= 5:
		r.urgency = models.UrgencyHigh
	case c.SlowDown >= 3:
		r.urgency = models.UrgencyMedium
	default:
		r.urgency = models.UrgencyLow
	}

	r.confidence = int(40 + float64(total)/20*35)
	if r.confidence > 75 {
		r.confidence = 75
	}
	return r
}

// fuse blends the two paths on a {-1, 0, +1} scale with the configured
// message weight and re-buckets at +-0.3. The emotion always comes from the
// message path; urgency takes the higher rank.
func (a *Analyzer) fuse(msg, react pathResult) models.SentimentResult {
	w := a.cfg.MessageWeight
	score := msg.sentiment.Score()*w + react.sentiment.Score()*(1-w)

	sentiment := models.SentimentNeutral
	switch {
	case score > 0.3:
		sentiment = models.SentimentPositive
	case score < -0.3:
		sentiment = models.SentimentNegative
	}

	confidence := int(float64(msg.confidence)*w + float64(react.confidence)*(1-w))
	urgency := models.MaxUrgency(msg.urgency, react.urgency)

	return models.SentimentResult{
		Sentiment:  sentiment,
		Emotion:    msg.emotion,
		Confidence: confidence,
		Urgency:    urgency,
		Mood:       moodLabel(sentiment, msg.emotion, urgency),
		DataSource: fmt.Sprintf("messages (%d%%) + reactions (%d%%)", int(w*100), int((1-w)*100)),
	}
}

func reactionOnly(react pathResult) models.SentimentResult {
	confidence := react.confidence
	if confidence > 65 {
		confidence = 65
	}
	return models.SentimentResult{
		Sentiment:  react.sentiment,
		Emotion:    react.emotion,
		Confidence: confidence,
		Urgency:    react.urgency,
		Mood:       moodLabel(react.sentiment, react.emotion, react.urgency),
		DataSource: "reactions only (awaiting messages)",
	}
}

// sentimentTrend splits the last 10 history entries in half and compares the
// mean polarity of each half. Requires at least 3 points.
func (a *Analyzer) sentimentTrend() models.SentimentTrend {
	if a.history.Len() < 3 {
		return models.SentimentTrend{Direction: models.TrendUnknown}
	}

	recent := a.history.Last(10)
	scores := make([]float64, len(recent))
	for i, s := range recent {
		scores[i] = s.Score()
	}
	half := len(scores) / 2
	first := meanOf(scores[:half])
	second := meanOf(scores[half:])
	delta := second - first

	t := models.SentimentTrend{
		Delta:      roundTo(delta, 2),
		DataPoints: len(recent),
	}
	switch {
	case delta > 0.3:
		t.Direction = models.TrendImproving
		t.Confidence = boundedConfidence(delta)
	case delta < -0.3:
		t.Direction = models.TrendDeclining
		t.Confidence = boundedConfidence(delta)
	default:
		t.Direction = models.TrendStable
		t.Confidence = 70
	}
	return t
}

func boundedConfidence(delta float64) int {
	if delta < 0 {
		delta = -delta
	}
	c := int(50 + delta*50)
	if c > 85 {
		c = 85
	}
	return c
}

func meanOf(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	s := 0.0
	for _, v := range vs {
		s += v
	}
	return s / float64(len(vs))
}

func roundTo(v float64, places int) float64 {
	p := 1.0
	for i := 0; i < places; i++ {
		p *= 10
	}
	if v >= 0 {
		return float64(int(v*p+0.5)) / p
	}
	return -float64(int(-v*p+0.5)) / p
}

// maybeEnhance spawns the inference refinement when the local verdict is
// uncertain. Called with the analyzer lock held.
func (a *Analyzer) maybeEnhance(res *models.SentimentResult, questions []models.Question) {
	if a.gw == nil || !a.gw.Enabled() {
		return
	}
	if len(questions) < a.cfg.MinQuestions || res.Confidence >= a.cfg.ConfidenceGate {
		return
	}
	if !a.enhanceCooldown.TryFire("enhance") {
		return
	}

	key := joinedTexts(questions, a.cfg.RecentMessages)
	if v, ok := a.responseCache.Get(key); ok {
		*res = a.mergeVerdict(*res, v)
		return
	}

	base := *res
	started := a.task.Start(func(ctx context.Context) error {
		return a.enhance(ctx, key, base)
	}, func(err error) {
		if err != nil {
			logger.Warn("sentiment: enhancement failed: %v", err)
		}
	})
	if !started {
		logger.Debug("sentiment: enhancement already in flight, skipping")
	}
}

// enhance asks the inference service for a second opinion and merges it into
// the base verdict. Runs on the task goroutine.
func (a *Analyzer) enhance(ctx context.Context, key string, base models.SentimentResult) error {
	prompt := enhancementPrompt(key, base)
	text, err := a.gw.Complete(ctx, prompt, 0.2, 200, false)
	if err != nil {
		return err
	}

	raw, ok := gateway.ExtractJSON(text)
	if !ok {
		return fmt.Errorf("no structured verdict in response")
	}
	var wire struct {
		Emotion    string `json:"emotion"`
		Sentiment  string `json:"sentiment"`
		Urgency    string `json:"urgency"`
		Confidence int    `json:"confidence"`
		Reasoning  string `json:"reasoning"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return fmt.Errorf("failed to decode verdict: %w", err)
	}
	if wire.Emotion == "" {
		return fmt.Errorf("verdict missing emotion")
	}

	v := inferenceVerdict{
		Emotion:    parseEmotion(wire.Emotion),
		Sentiment:  parseSentiment(wire.Sentiment),
		Urgency:    parseUrgency(wire.Urgency),
		Confidence: wire.Confidence,
		Reasoning:  wire.Reasoning,
	}

	a.mu.Lock()
	a.responseCache.Put(key, v)
	merged := a.mergeVerdict(base, v)
	a.lastEnhanced = &merged
	cb := a.onEnhancement
	a.mu.Unlock()

	if cb != nil {
		cb(merged)
	}
	logger.Debug("sentiment: enhancement completed (confidence %d)", v.Confidence)
	return nil
}

// mergeVerdict applies the inference opinion. It only overrides the local
// verdict when its confidence beats the local one by more than 10 points;
// otherwise it is recorded as a non-authoritative annotation.
func (a *Analyzer) mergeVerdict(res models.SentimentResult, v inferenceVerdict) models.SentimentResult {
	if v.Confidence > res.Confidence+10 {
		res.Emotion = v.Emotion
		res.Sentiment = v.Sentiment
		res.Urgency = v.Urgency
		res.Confidence = v.Confidence
		if res.Confidence > 95 {
			res.Confidence = 95
		}
		res.Mood = moodLabel(res.Sentiment, res.Emotion, res.Urgency)
		res.Enhancement = &models.Enhancement{
			Reasoning:  v.Reasoning,
			Confidence: v.Confidence,
			Source:     models.SourceInference,
			EnhancedAt: a.now(),
		}
		return res
	}
	res.Validation = &models.InferenceValidation{
		Emotion:   v.Emotion,
		Sentiment: v.Sentiment,
		Agrees:    v.Emotion == res.Emotion,
	}
	return res
}

func enhancementPrompt(messages string, local models.SentimentResult) string {
	return fmt.Sprintf(`Analyze audience sentiment from these messages during a technical presentation:

Messages: %q

Local Analysis: %s sentiment, %s emotion

Your task: Validate or refine the analysis. Detect:
1. True emotional tone (excited, confused, frustrated, interested, bored, engaged, skeptical)
2. Sentiment (positive, negative, neutral)
3. Urgency level (immediate, high, medium, low)
4. Confidence (0-100)

Respond ONLY with valid JSON:
{
  "emotion": "excited" | "confused" | "frustrated" | "interested" | "bored" | "engaged" | "skeptical" | "neutral",
  "sentiment": "positive" | "negative" | "neutral",
  "urgency": "immediate" | "high" | "medium" | "low",
  "confidence": 0-100,
  "reasoning": "brief explanation (20 words max)"
}`, messages, local.Sentiment, local.Emotion)
}

func parseEmotion(s string) models.Emotion {
	switch e := models.Emotion(s); e {
	case models.EmotionExcited, models.EmotionInterested, models.EmotionConfused,
		models.EmotionFrustrated, models.EmotionBored, models.EmotionEngaged,
		models.EmotionSkeptical, models.EmotionOverwhelmed, models.EmotionNeutral:
		return e
	}
	return models.EmotionNeutral
}

func parseSentiment(s string) models.Sentiment {
	switch v := models.Sentiment(s); v {
	case models.SentimentPositive, models.SentimentNegative, models.SentimentNeutral:
		return v
	}
	return models.SentimentNeutral
}

func parseUrgency(s string) models.Urgency {
	switch u := models.Urgency(s); u {
	case models.UrgencyImmediate, models.UrgencyHigh, models.UrgencyMedium, models.UrgencyLow:
		return u
	}
	return models.UrgencyLow
}
