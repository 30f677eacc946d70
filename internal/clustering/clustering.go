// Package clustering groups buffered audience questions into named themes
// with priorities and per-theme action suggestions. Small batches are
// clustered locally by keyword matching; larger batches go through the
// inference service with a local fallback.
package clustering

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"audiencepulse/internal/config"
	"audiencepulse/internal/gateway"
	"audiencepulse/internal/logger"
	"audiencepulse/internal/models"
)

// Input is one analysis pass handed in by the orchestrator.
type Input struct {
	Questions []models.Question
}

// TopQuestion is the highest-upvoted question of one theme from the last
// analysis, used to surface what the presenter should answer first.
type TopQuestion struct {
	Theme        string              `json:"theme"`
	Category     string              `json:"category"`
	Priority     models.Priority     `json:"priority"`
	Question     models.Question     `json:"question"`
	SimilarCount int                 `json:"similar_count"`
	TotalUpvotes int                 `json:"total_upvotes"`
	Insight      models.ThemeInsight `json:"insight"`
}

// Analyzer clusters question batches. One instance serves one session and
// owns its similarity cache and last-analysis snapshot.
type Analyzer struct {
	cfg config.ClusteringConfig
	gw  *gateway.Gateway

	mu         sync.Mutex
	simCache   *similarityCache
	lastThemes []models.Theme

	now func() time.Time
}

// New builds a clustering analyzer. gw may be nil, forcing local clustering
// for every batch size.
func New(cfg config.ClusteringConfig, gw *gateway.Gateway) *Analyzer {
	return &Analyzer{
		cfg:      cfg,
		gw:       gw,
		simCache: newSimilarityCache(cfg.SimilarityCacheMax),
		now:      time.Now,
	}
}

// SetClock replaces the analyzer's time source for deterministic tests.
func (a *Analyzer) SetClock(now func() time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.now = now
}

// Analyze filters and clusters one question batch. The inference path blocks
// on the gateway, so ctx bounds the call; every failure degrades to local
// clustering and the result is always usable.
func (a *Analyzer) Analyze(ctx context.Context, in Input) models.ClusteringResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(in.Questions) < a.cfg.MinQuestions {
		return a.insufficientData(len(in.Questions))
	}

	filtered := filterNoise(in.Questions)
	if len(filtered) < a.cfg.MinQuestions {
		return a.insufficientData(len(in.Questions))
	}

	var themes []models.Theme
	method := models.MethodLocal
	if len(filtered) >= a.cfg.InferenceMin && a.gw != nil && a.gw.Enabled() {
		if inferred, ok := a.inferenceCluster(ctx, filtered); ok {
			themes = inferred
			method = models.MethodInference
		}
	}
	if themes == nil {
		themes = a.localCluster(filtered)
	}

	sortThemes(themes)
	for i := range themes {
		themes[i].Insight = insightFor(&themes[i])
	}

	a.lastThemes = themes
	return models.ClusteringResult{
		Status:            models.ClusteringSuccess,
		Method:            method,
		Themes:            themes,
		TotalQuestions:    len(in.Questions),
		AnalyzedQuestions: len(filtered),
		FilteredOut:       len(in.Questions) - len(filtered),
		QualityScore:      qualityScore(themes),
		AnalyzedAt:        a.now(),
	}
}

func (a *Analyzer) insufficientData(total int) models.ClusteringResult {
	return models.ClusteringResult{
		Status:         models.ClusteringInsufficientData,
		Method:         models.MethodNone,
		Themes:         []models.Theme{},
		TotalQuestions: total,
		Message:        fmt.Sprintf("Need at least %d questions for clustering", a.cfg.MinQuestions),
		AnalyzedAt:     a.now(),
	}
}

// TopQuestions returns the highest-upvoted question per theme from the last
// analysis, most urgent first.
func (a *Analyzer) TopQuestions(limit int) []TopQuestion {
	a.mu.Lock()
	defer a.mu.Unlock()

	var top []TopQuestion
	for _, theme := range a.lastThemes {
		if len(top) >= limit {
			break
		}
		if len(theme.Questions) == 0 {
			continue
		}
		best := theme.Questions[0]
		for _, q := range theme.Questions[1:] {
			if q.Upvotes > best.Upvotes {
				best = q
			}
		}
		top = append(top, TopQuestion{
			Theme:        theme.Name,
			Category:     theme.Category,
			Priority:     theme.Priority,
			Question:     best,
			SimilarCount: len(theme.Questions),
			TotalUpvotes: theme.TotalUpvotes,
			Insight:      theme.Insight,
		})
	}

	sort.SliceStable(top, func(i, j int) bool {
		if top[i].Priority.Rank() != top[j].Priority.Rank() {
			return top[i].Priority.Rank() > top[j].Priority.Rank()
		}
		return top[i].TotalUpvotes > top[j].TotalUpvotes
	})
	if len(top) > limit {
		top = top[:limit]
	}
	return top
}

// filterNoise drops greetings, reactions, emoji and other non-questions.
func filterNoise(questions []models.Question) []models.Question {
	var filtered []models.Question
	for _, q := range questions {
		if isNoise(q.Text) {
			continue
		}
		filtered = append(filtered, q)
	}
	return filtered
}

func isNoise(text string) bool {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) < 5 {
		return true
	}

	lower := strings.ToLower(text)
	words := strings.Fields(lower)
	for _, set := range noiseSets {
		if containsWord(set, lower) {
			return true
		}
		if len(words) <= 2 && allIn(words, set) {
			return true
		}
	}

	// Pure-emoji messages: short and entirely non-ASCII.
	if len(runes) <= 5 && allNonASCII(runes) {
		return true
	}

	// Require at least two words of substance.
	meaningful := 0
	for _, w := range words {
		if len([]rune(w)) > 2 {
			meaningful++
		}
	}
	return meaningful < 2
}

func containsWord(set []string, s string) bool {
	for _, w := range set {
		if w == s {
			return true
		}
	}
	return false
}

func allIn(words, set []string) bool {
	if len(words) == 0 {
		return false
	}
	for _, w := range words {
		if !containsWord(set, w) {
			return false
		}
	}
	return true
}

func allNonASCII(runes []rune) bool {
	for _, r := range runes {
		if r == ' ' || r == '\t' {
			continue
		}
		if r <= 127 {
			return false
		}
	}
	return true
}

// matchScore rates a question against a topic's keyword set, normalized so
// three keyword hits saturate the score.
func matchScore(lower string, keywords []string) float64 {
	matches := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			matches++
		}
	}
	if matches == 0 {
		return 0
	}
	score := float64(matches) / 3
	if score > 1 {
		score = 1
	}
	return score
}

// localCluster assigns each question to its best-matching topic above the
// 0.3 threshold and builds one theme per non-empty topic plus a catch-all
// for two or more uncategorized questions.
func (a *Analyzer) localCluster(questions []models.Question) []models.Theme {
	assigned := make(map[string][]models.Question)
	var uncategorized []models.Question

	for _, q := range questions {
		lower := strings.ToLower(q.Text)
		bestScore := 0.0
		bestTopic := ""
		for _, tp := range topicPatterns {
			if score := matchScore(lower, tp.keywords); score > bestScore && score > 0.3 {
				bestScore = score
				bestTopic = tp.name
			}
		}
		if bestTopic != "" {
			assigned[bestTopic] = append(assigned[bestTopic], q)
		} else {
			uncategorized = append(uncategorized, q)
		}
	}

	var themes []models.Theme
	for _, tp := range topicPatterns {
		qs := assigned[tp.name]
		if len(qs) == 0 {
			continue
		}
		theme := models.Theme{
			Name:       tp.name,
			Category:   tp.category,
			Priority:   priorityFor(qs, tp.weight, tp.boost),
			Questions:  qs,
			Examples:   exampleTexts(qs),
			Confidence: 0.85,
		}
		countUpvotes(&theme)
		themes = append(themes, theme)
	}

	if len(uncategorized) >= 2 {
		theme := models.Theme{
			Name:       "General Questions",
			Category:   "other",
			Priority:   models.PriorityMedium,
			Questions:  uncategorized,
			Examples:   exampleTexts(uncategorized),
			Confidence: 0.60,
		}
		countUpvotes(&theme)
		themes = append(themes, theme)
	}
	return themes
}

// priorityFor scores a question group and maps it onto a priority tier. Two
// or more urgency hits force critical regardless of the numeric score.
func priorityFor(qs []models.Question, weight, boost float64) models.Priority {
	totalUpvotes := 0
	urgencyHits := 0
	for _, q := range qs {
		totalUpvotes += q.Upvotes
		lower := strings.ToLower(q.Text)
		for _, kw := range urgencyKeywords {
			if strings.Contains(lower, kw) {
				urgencyHits++
				break
			}
		}
	}

	score := (float64(len(qs))*10 + float64(totalUpvotes)*5 + float64(urgencyHits)*15 + boost*50) * weight
	switch {
	case score >= 60 || urgencyHits >= 2:
		return models.PriorityCritical
	case score >= 35:
		return models.PriorityHigh
	case score >= 15:
		return models.PriorityMedium
	}
	return models.PriorityLow
}

func exampleTexts(qs []models.Question) []string {
	n := len(qs)
	if n > 3 {
		n = 3
	}
	examples := make([]string, 0, n)
	for _, q := range qs[:n] {
		examples = append(examples, q.Text)
	}
	return examples
}

func countUpvotes(t *models.Theme) {
	total := 0
	for _, q := range t.Questions {
		total += q.Upvotes
	}
	t.TotalUpvotes = total
	if len(t.Questions) > 0 {
		t.AvgUpvotes = float64(int(float64(total)/float64(len(t.Questions))*10+0.5)) / 10
	}
}

// themeWire is the structured clustering payload expected from inference.
type themeWire struct {
	Name      string   `json:"name"`
	Count     int      `json:"count"`
	Examples  []string `json:"examples"`
	Priority  string   `json:"priority"`
	Reasoning string   `json:"reasoning"`
	Category  string   `json:"category"`
}

// inferenceCluster sends the most recent filtered questions through the
// gateway and validates the response. Returns false on any failure or when
// too many of the returned themes are generically named.
func (a *Analyzer) inferenceCluster(ctx context.Context, questions []models.Question) ([]models.Theme, bool) {
	recent := questions
	if len(recent) > a.cfg.MaxQuestions {
		recent = recent[len(recent)-a.cfg.MaxQuestions:]
	}

	text, err := a.gw.Complete(ctx, clusteringPrompt(recent), 0.3, 1000, false)
	if err != nil {
		logger.Warn("clustering: inference call failed, using local clustering: %v", err)
		return nil, false
	}
	raw, ok := gateway.ExtractJSON(text)
	if !ok {
		logger.Warn("clustering: unparsable inference response, using local clustering")
		return nil, false
	}

	var wire struct {
		Themes []themeWire `json:"themes"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil || len(wire.Themes) == 0 {
		logger.Warn("clustering: invalid inference payload, using local clustering")
		return nil, false
	}

	var specific []themeWire
	for _, t := range wire.Themes {
		if !isGenericThemeName(t.Name) {
			specific = append(specific, t)
		}
	}
	// More than half generic means the model ignored the instructions;
	// discard the whole response.
	if len(specific)*2 < len(wire.Themes) {
		logger.Warn("clustering: %d/%d inference themes generic, using local clustering",
			len(wire.Themes)-len(specific), len(wire.Themes))
		return nil, false
	}

	themes := make([]models.Theme, 0, len(specific))
	for _, t := range specific {
		category := t.Category
		if !validCategories[category] {
			category = "other"
		}
		theme := models.Theme{
			Name:       t.Name,
			Category:   category,
			Priority:   models.ParsePriority(t.Priority),
			Examples:   t.Examples,
			Confidence: 0.7,
		}
		a.enrich(&theme, questions)
		themes = append(themes, theme)
	}
	return themes, true
}

// enrich re-matches a theme's example texts against the filtered question
// set to recover full question records and recompute upvote aggregates. The
// inference service often paraphrases, so matching is similarity-based.
func (a *Analyzer) enrich(theme *models.Theme, all []models.Question) {
	var matched []models.Question
	seen := make(map[string]bool)

	for _, example := range theme.Examples {
		for _, q := range all {
			if seen[q.ID] {
				continue
			}
			if a.simCache.similarity(example, q.Text) > 0.7 {
				matched = append(matched, q)
				seen[q.ID] = true
				break
			}
		}
	}

	// Paraphrased examples may miss the strict threshold entirely; retry
	// with a looser one before giving up.
	if len(matched) == 0 {
		for _, q := range all {
			for _, example := range theme.Examples {
				if a.simCache.similarity(example, q.Text) > 0.5 {
					matched = append(matched, q)
					break
				}
			}
		}
	}

	theme.Questions = matched
	countUpvotes(theme)
}

func isGenericThemeName(name string) bool {
	lower := strings.ToLower(name)
	for _, g := range genericThemeNames {
		if strings.Contains(lower, g) {
			return true
		}
	}
	return false
}

func clusteringPrompt(questions []models.Question) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are analyzing %d audience questions from a live technical presentation.\n\n", len(questions))
	b.WriteString(`CRITICAL INSTRUCTIONS:
1. Create 2-5 SPECIFIC, DIVERSE themes based on actual question content
2. NEVER use generic themes like "Technical Implementation" or "General Questions"
3. Each theme name must be SPECIFIC (e.g., "OAuth 2.0 Setup Issues", "PostgreSQL Connection Errors")
4. Only group questions that are TRULY about the same specific topic
5. Assign priority based on:
   - Number of questions (more = higher priority)
   - Urgency indicators (errors, blocked, help, stuck = higher)
   - Technical complexity (implementation issues = higher)

QUESTIONS:
`)
	for i, q := range questions {
		fmt.Fprintf(&b, "%d. %q\n", i+1, q.Text)
	}
	fmt.Fprintf(&b, `
Respond with ONLY valid JSON (no markdown, no explanations):
{
  "themes": [
    {
      "name": "Specific, descriptive theme name (4-6 words)",
      "count": number,
      "examples": ["exact question text", "another question"],
      "priority": "critical" | "high" | "medium" | "low",
      "reasoning": "Why these questions are grouped",
      "category": "authentication" | "api" | "deployment" | "database" | "errors" | "pricing" | "performance" | "setup" | "frontend" | "data" | "testing" | "docs" | "other"
    }
  ],
  "total_questions": %d,
  "quality_score": 0-100
}`, len(questions))
	return b.String()
}

// sortThemes orders by priority rank, then total upvotes, then size.
func sortThemes(themes []models.Theme) {
	sort.SliceStable(themes, func(i, j int) bool {
		if themes[i].Priority.Rank() != themes[j].Priority.Rank() {
			return themes[i].Priority.Rank() > themes[j].Priority.Rank()
		}
		if themes[i].TotalUpvotes != themes[j].TotalUpvotes {
			return themes[i].TotalUpvotes > themes[j].TotalUpvotes
		}
		return len(themes[i].Questions) > len(themes[j].Questions)
	})
}

// qualityScore blends theme substance, distribution evenness and mean
// confidence with 0.4/0.3/0.3 weights.
func qualityScore(themes []models.Theme) int {
	if len(themes) == 0 {
		return 0
	}

	substantive := 0
	total := 0
	largest := 0
	confidenceSum := 0.0
	for _, t := range themes {
		n := len(t.Questions)
		if n >= 2 {
			substantive++
		}
		total += n
		if n > largest {
			largest = n
		}
		confidenceSum += t.Confidence
	}

	themeCountScore := float64(substantive) * 30
	if themeCountScore > 100 {
		themeCountScore = 100
	}
	distributionScore := 0.0
	if total > 0 {
		distributionScore = 100 - float64(largest)/float64(total)*100
	}
	confidenceScore := confidenceSum / float64(len(themes)) * 100

	return int(themeCountScore*0.4 + distributionScore*0.3 + confidenceScore*0.3)
}

// insightFor builds the per-theme action suggestion from the category
// template, with time-to-address overridden by priority extremes.
func insightFor(theme *models.Theme) models.ThemeInsight {
	tmpl, ok := insightTemplates[theme.Category]
	if !ok {
		tmpl = insightTemplates["other"]
	}

	timeToAddress := tmpl.time
	switch theme.Priority {
	case models.PriorityCritical:
		timeToAddress = "IMMEDIATELY"
	case models.PriorityLow:
		timeToAddress = "End of session"
	}

	response := fmt.Sprintf(tmpl.response, theme.Name)
	if theme.AvgUpvotes > 3 {
		response += fmt.Sprintf(" (High engagement: %.1f avg upvotes)", theme.AvgUpvotes)
	} else if len(theme.Questions) >= 3 {
		response += fmt.Sprintf(" (Multiple questions: %d)", len(theme.Questions))
	}

	return models.ThemeInsight{
		SuggestedResponse: response,
		TimeToAddress:     timeToAddress,
		Urgency:           priorityUrgency[theme.Priority],
		Action:            tmpl.action,
	}
}
