// Package pacing turns windowed reaction counts into presenter-facing pacing
// verdicts. The rule path is synchronous and always produces a result; an
// inference enhancement may follow later through a background task.
package pacing

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"audiencepulse/internal/config"
	"audiencepulse/internal/gate"
	"audiencepulse/internal/gateway"
	"audiencepulse/internal/logger"
	"audiencepulse/internal/models"
)

// Input is one analysis window handed in by the orchestrator.
type Input struct {
	Counts        models.ReactionCounts
	Recent        []models.Reaction
	WindowSeconds int
	AudienceSize  int
}

// thresholds are the audience-scaled trigger counts for the rule branches.
type thresholds struct {
	imLostCritical   int
	imLostWarning    int
	slowDownCritical int
	slowDownWarning  int
	speedUp          int
	showCodeDemand   int
	showCodeInterest int
}

// Analyzer evaluates pacing windows. Each instance owns its own history,
// cooldowns and insight cache; one instance serves one session.
type Analyzer struct {
	cfg config.PacingConfig
	gw  *gateway.Gateway

	mu              sync.Mutex
	scores          *gate.History[int]
	velocitySamples *gate.History[float64]
	alertCooldown   *gate.Cooldown
	enhanceCooldown *gate.Cooldown
	insightCache    *gate.TTLCache[string, models.Enhancement]
	task            *gate.Task
	lastEnhancement *models.Enhancement
	onEnhancement   func(models.Enhancement)

	now func() time.Time
}

// New builds a pacing analyzer. gw may be nil, in which case the analyzer
// runs rule-only and never attempts enhancement.
func New(cfg config.PacingConfig, gw *gateway.Gateway) *Analyzer {
	return &Analyzer{
		cfg:             cfg,
		gw:              gw,
		scores:          gate.NewHistory[int](cfg.HistorySize),
		velocitySamples: gate.NewHistory[float64](cfg.VelocitySamples),
		alertCooldown:   gate.NewCooldown(cfg.AlertCooldown),
		enhanceCooldown: gate.NewCooldown(cfg.EnhanceCooldown),
		insightCache:    gate.NewTTLCache[string, models.Enhancement](cfg.InsightCacheTTL, cfg.InsightCacheMax, cfg.InsightCacheMax/2),
		task:            gate.NewTask(10 * time.Second),
		now:             time.Now,
	}
}

// SetClock replaces the analyzer's time source, including the cooldowns and
// the insight cache. Tests use this for deterministic gating.
func (a *Analyzer) SetClock(now func() time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.now = now
	a.alertCooldown.SetClock(now)
	a.enhanceCooldown.SetClock(now)
	a.insightCache.SetClock(now)
}

// OnEnhancement registers a callback invoked from the enhancement goroutine
// whenever a background enhancement completes.
func (a *Analyzer) OnEnhancement(fn func(models.Enhancement)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onEnhancement = fn
}

// LastEnhancement returns the most recent enhancement, if any.
func (a *Analyzer) LastEnhancement() *models.Enhancement {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lastEnhancement == nil {
		return nil
	}
	e := *a.lastEnhancement
	return &e
}

// Cancel stops any in-flight enhancement task. Called on session teardown.
func (a *Analyzer) Cancel() {
	a.task.Cancel()
}

// Analyze evaluates one window and always returns a usable verdict. The rule
// branches fire in strict priority order; velocity, trend and alert data are
// layered on top of whichever branch fired.
func (a *Analyzer) Analyze(in Input) models.PacingResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	th := a.scaleThresholds(in.AudienceSize)
	res := a.instantVerdict(in.Counts, th)

	velocity := a.updateVelocity(in.Recent)
	trend := a.engagementTrend()

	if ws := a.weightedKindScores(in.Recent); len(ws) > 0 {
		logger.Debug("pacing: recency-weighted kind scores %v", ws)
	}

	res.Velocity = velocity
	res.VelocityNote = interpretVelocity(velocity)
	res.PredictedTrend = trend.Direction
	res.TrendConfidence = trend.Confidence
	res.EngagementTrend = trend
	res.Alerts = a.buildAlerts(in.Counts, th, velocity)
	res.Counts = in.Counts
	res.TotalReactions = in.Counts.Total()
	res.AnalyzedAt = a.now()

	a.maybeEnhance(&res, in)

	a.scores.Push(res.Score)
	return res
}

// scaleThresholds adjusts the configured base thresholds for audience size.
// Small groups (<=5) trigger earlier, large groups (>20) later. Every scaled
// threshold is floored at 1.
func (a *Analyzer) scaleThresholds(audienceSize int) thresholds {
	scale := 1.0
	switch {
	case audienceSize <= 5:
		scale = 0.6
	case audienceSize > 20:
		scale = 1.3
	}
	adj := func(base int) int {
		v := int(float64(base) * scale)
		if v < 1 {
			v = 1
		}
		return v
	}
	return thresholds{
		imLostCritical:   adj(a.cfg.ImLostCritical),
		imLostWarning:    adj(a.cfg.ImLostWarning),
		slowDownCritical: adj(a.cfg.SlowDownCritical),
		slowDownWarning:  adj(a.cfg.SlowDownWarning),
		speedUp:          adj(a.cfg.SpeedUpThreshold),
		showCodeDemand:   adj(a.cfg.ShowCodeDemand),
		showCodeInterest: adj(a.cfg.ShowCodeInterest),
	}
}

// instantVerdict runs the rule branches in priority order. Exactly one branch
// fires for any count combination.
func (a *Analyzer) instantVerdict(c models.ReactionCounts, th thresholds) models.PacingResult {
	total := c.Total()

	if c.ImLost >= th.imLostCritical {
		return verdict(models.PacingCritical, models.AlertCritical, 20, models.TrendDeclining, true,
			"CRITICAL: Audience Lost",
			fmt.Sprintf("STOP IMMEDIATELY: %d people are lost. Pause and ask: 'What needs clarification?'", c.ImLost),
			fmt.Sprintf("Critical confusion threshold exceeded (%d/%d)", c.ImLost, th.imLostCritical),
			[]string{
				"Stop talking immediately",
				"Ask: 'What part is confusing?'",
				"Recap last 2-3 key points",
				"Show concrete example or diagram",
				"Check understanding before continuing",
			},
			models.UrgencyImmediate)
	}

	if c.SlowDown >= th.slowDownCritical {
		return verdict(models.PacingTooFast, models.AlertWarning, 35, models.TrendDeclining, true,
			"SLOW DOWN: Pace Too Fast",
			fmt.Sprintf("Reduce pace immediately. %d requests to slow down.", c.SlowDown),
			fmt.Sprintf("Multiple slow-down requests (%d/%d)", c.SlowDown, th.slowDownCritical),
			[]string{
				"Reduce speaking speed by 25%",
				"Add 3-5 second pauses between concepts",
				"Repeat last key point",
				"Ask: 'Everyone following so far?'",
			},
			models.UrgencyHigh)
	}

	if c.ImLost >= th.imLostWarning {
		return verdict(models.PacingConcerning, models.AlertWarning, 45, models.TrendDeclining, true,
			"WARNING: Confusion Detected",
			fmt.Sprintf("Some confusion detected (%d lost). Address soon.", c.ImLost),
			fmt.Sprintf("Early confusion signals (%d/%d)", c.ImLost, th.imLostWarning),
			[]string{
				"Quick comprehension check",
				"Ask: 'Any questions so far?'",
				"Provide 30-second summary",
				"Slow down slightly",
			},
			models.UrgencyMedium)
	}

	if c.SlowDown >= th.slowDownWarning && c.ImLost >= 1 {
		return verdict(models.PacingSlightlyFast, models.AlertInfo, 55, models.TrendStable, false,
			"INFO: Consider Slowing Down",
			fmt.Sprintf("Some requests to slow down (%d). Consider adjusting pace.", c.SlowDown),
			"Multiple pace-down requests with some confusion",
			[]string{
				"Reduce pace by 10-15%",
				"Add brief pauses",
				"Monitor for more feedback",
			},
			models.UrgencyLow)
	}

	if c.ShowCode >= th.showCodeDemand {
		return verdict(models.PacingExcellent, models.AlertInfo, 88, models.TrendStable, false,
			"OPPORTUNITY: Code Demo Requested",
			fmt.Sprintf("Strong demand for code! %d requests. Perfect time for demo.", c.ShowCode),
			fmt.Sprintf("High code interest (%d/%d)", c.ShowCode, th.showCodeDemand),
			[]string{
				"Start live coding session",
				"Show real-world example",
				"Walk through implementation step-by-step",
				"Explain as you code",
			},
			models.UrgencyOpportunity)
	}

	if c.ShowCode >= th.showCodeInterest {
		return verdict(models.PacingGood, models.AlertInfo, 78, models.TrendImproving, false,
			"Interest: Code Examples Wanted",
			fmt.Sprintf("Audience interested in code (%d requests). Consider demo soon.", c.ShowCode),
			"Growing code interest",
			[]string{
				"Plan code demonstration",
				"Prepare example",
				"Ask: 'Want to see this in code?'",
			},
			models.UrgencyLow)
	}

	if c.SpeedUp >= th.speedUp && c.SlowDown <= 2 && c.ImLost == 0 {
		return verdict(models.PacingTooSlow, models.AlertInfo, 72, models.TrendStable, false,
			"INFO: Audience Ready for More",
			fmt.Sprintf("Audience ready to move faster (%d requests). Increase pace.", c.SpeedUp),
			"Speed-up requests with no confusion signals",
			[]string{
				"Increase pace by 15-20%",
				"Skip trivial examples",
				"Move to advanced topics",
				"Engage with harder questions",
			},
			models.UrgencyOpportunity)
	}

	if total < 3 {
		return verdict(models.PacingInsufficientData, models.AlertNone, 65, models.TrendUnknown, false,
			"Monitoring: Gathering Feedback",
			"Not enough feedback yet. Encourage participation.",
			fmt.Sprintf("Only %d reactions, need more data", total),
			[]string{
				"Ask: 'Any questions so far?'",
				"Remind audience of reaction buttons",
				"Check engagement visually",
			},
			models.UrgencyNone)
	}

	// Default branch: score the reaction balance.
	// score = clamp(70 + 3*(0.8*su + 1.0*sc - 1.2*sd - 2.5*il), 50, 90)
	positive := 0.8*float64(c.SpeedUp) + 1.0*float64(c.ShowCode)
	negative := 1.2*float64(c.SlowDown) + 2.5*float64(c.ImLost)
	score := 70 + (positive-negative)*3
	score = math.Max(50, math.Min(90, score))

	return verdict(models.PacingGood, models.AlertNone, int(score), models.TrendStable, false,
		"Good: Pacing Optimal",
		"Excellent pacing! Audience engaged. Maintain current momentum.",
		fmt.Sprintf("Balanced reactions indicate optimal pace (%d total reactions)", total),
		[]string{
			"Maintain current pace",
			"Keep energy level",
			"Continue as planned",
		},
		models.UrgencyNone)
}

func verdict(status models.PacingStatus, level models.AlertLevel, score int, trend models.Trend, action bool, title, recommendation, reasoning string, actions []string, urgency models.Urgency) models.PacingResult {
	return models.PacingResult{
		Status:         status,
		AlertLevel:     level,
		Score:          score,
		Trend:          trend,
		ActionRequired: action,
		Title:          title,
		Recommendation: recommendation,
		Reasoning:      reasoning,
		Actions:        actions,
		Urgency:        urgency,
	}
}

// weightedKindScores sums a recency weight per reaction kind with exponential
// decay e^(-age/30). A reaction 30s old counts roughly a third of a fresh one.
func (a *Analyzer) weightedKindScores(recent []models.Reaction) map[models.ReactionKind]float64 {
	scores := make(map[models.ReactionKind]float64, 4)
	now := a.now()
	for _, r := range recent {
		age := now.Sub(r.Timestamp).Seconds()
		scores[r.Kind] += math.Exp(-age / 30)
	}
	return scores
}

// updateVelocity computes the reaction rate over the last 30 seconds, pushes
// it into the rolling sample window and classifies the movement against the
// earlier samples.
func (a *Analyzer) updateVelocity(recent []models.Reaction) models.Velocity {
	v := models.Velocity{Trend: models.VelocityStable, Intensity: models.IntensityLow}
	if len(recent) < 2 {
		return v
	}

	now := a.now()
	var stamps []time.Time
	for _, r := range recent {
		if now.Sub(r.Timestamp) <= 30*time.Second {
			stamps = append(stamps, r.Timestamp)
		}
	}
	if len(stamps) == 0 {
		return v
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })

	span := stamps[len(stamps)-1].Sub(stamps[0]).Seconds()
	rate := float64(len(stamps)) / math.Max(1, span)
	v.Rate = math.Round(rate*100) / 100

	switch {
	case rate > 0.5:
		v.Intensity = models.IntensityHigh
	case rate > 0.2:
		v.Intensity = models.IntensityMedium
	}

	a.velocitySamples.Push(rate)
	v.Trend = classifyVelocityTrend(a.velocitySamples.Values())
	return v
}

// classifyVelocityTrend compares the mean of the last 3 samples against the
// mean of everything earlier: >=1.3x is accelerating, <=0.7x decelerating.
func classifyVelocityTrend(samples []float64) models.VelocityTrend {
	if len(samples) < 3 {
		return models.VelocityStable
	}
	recent := mean(samples[len(samples)-3:])
	older := 0.0
	if n := len(samples) - 3; n > 0 {
		older = sum(samples[:len(samples)-3]) / float64(n)
	}
	switch {
	case recent > older*1.3:
		return models.VelocityAccelerating
	case recent < older*0.7:
		return models.VelocityDecelerating
	}
	return models.VelocityStable
}

func interpretVelocity(v models.Velocity) string {
	switch {
	case v.Intensity == models.IntensityHigh && v.Trend == models.VelocityAccelerating:
		return "Very high engagement, audience very active"
	case v.Intensity == models.IntensityHigh:
		return "High engagement, strong audience response"
	case v.Intensity == models.IntensityMedium && v.Trend == models.VelocityAccelerating:
		return "Growing engagement"
	case v.Intensity == models.IntensityMedium:
		return "Moderate engagement"
	case v.Trend == models.VelocityDecelerating:
		return "Declining engagement"
	}
	return "Low or steady engagement"
}

// engagementTrend fits a simple linear regression over the last 5 scores.
// A slope beyond +-2 points per pass is read as a direction change.
func (a *Analyzer) engagementTrend() models.EngagementTrend {
	if a.scores.Len() < 3 {
		return models.EngagementTrend{Direction: models.TrendUnknown}
	}

	recent := a.scores.Last(5)
	n := len(recent)
	xMean := float64(n-1) / 2
	yMean := 0.0
	for _, s := range recent {
		yMean += float64(s)
	}
	yMean /= float64(n)

	var num, den float64
	for i, s := range recent {
		num += (float64(i) - xMean) * (float64(s) - yMean)
		den += (float64(i) - xMean) * (float64(i) - xMean)
	}
	slope := 0.0
	if den != 0 {
		slope = num / den
	}

	t := models.EngagementTrend{
		Slope:      math.Round(slope*100) / 100,
		DataPoints: n,
	}
	switch {
	case slope > 2:
		t.Direction = models.TrendImproving
		t.Confidence = int(math.Min(90, math.Abs(slope)*10))
	case slope < -2:
		t.Direction = models.TrendDeclining
		t.Confidence = int(math.Min(90, math.Abs(slope)*10))
	default:
		t.Direction = models.TrendStable
		t.Confidence = 70
	}
	return t
}

// buildAlerts produces the per-kind alert list. The critical lost alert
// always fires; every other kind is gated by the shared cooldown so the
// presenter is not spammed on consecutive passes.
func (a *Analyzer) buildAlerts(c models.ReactionCounts, th thresholds, v models.Velocity) []models.Alert {
	var alerts []models.Alert

	if c.ImLost >= th.imLostCritical {
		alerts = append(alerts, models.Alert{
			Kind:     "im_lost",
			Level:    models.AlertCritical,
			Title:    "CRITICAL: You Lost the Room",
			Message:  fmt.Sprintf("%d people are confused", c.ImLost),
			Action:   "STOP and clarify immediately",
			Priority: 1,
		})
		a.alertCooldown.Fire("im_lost")
	}

	if c.SlowDown >= th.slowDownCritical && a.alertCooldown.TryFire("slow_down") {
		alerts = append(alerts, models.Alert{
			Kind:     "slow_down",
			Level:    models.AlertWarning,
			Title:    "Slow Down",
			Message:  fmt.Sprintf("%d requests to reduce pace", c.SlowDown),
			Action:   "Reduce speaking speed by 25%",
			Priority: 2,
		})
	}

	if c.ShowCode >= th.showCodeDemand && a.alertCooldown.TryFire("show_code") {
		alerts = append(alerts, models.Alert{
			Kind:     "show_code",
			Level:    models.AlertInfo,
			Title:    "Code Demo Requested",
			Message:  fmt.Sprintf("%d people want to see code", c.ShowCode),
			Action:   "Perfect time for live coding",
			Priority: 3,
		})
	}

	if c.SpeedUp >= th.speedUp && a.alertCooldown.TryFire("speed_up") {
		alerts = append(alerts, models.Alert{
			Kind:     "speed_up",
			Level:    models.AlertInfo,
			Title:    "Speed Up",
			Message:  fmt.Sprintf("%d requests to increase pace", c.SpeedUp),
			Action:   "Audience ready for faster pace",
			Priority: 4,
		})
	}

	if v.Intensity == models.IntensityHigh && v.Trend == models.VelocityAccelerating && a.alertCooldown.TryFire("velocity_high") {
		alerts = append(alerts, models.Alert{
			Kind:     "velocity_high",
			Level:    models.AlertInfo,
			Title:    "High Engagement",
			Message:  "Audience very active right now",
			Action:   "Great time for Q&A or interaction",
			Priority: 5,
		})
	}

	sort.Slice(alerts, func(i, j int) bool { return alerts[i].Priority < alerts[j].Priority })
	return alerts
}

// shouldEnhance gates the expensive inference call. Critical situations are
// already fully handled by the rules; enhancement only pays off on ambiguous
// mid-range scores or unusually busy windows.
func (a *Analyzer) shouldEnhance(res *models.PacingResult, total int) bool {
	if a.gw == nil || !a.gw.Enabled() {
		return false
	}
	if res.AlertLevel == models.AlertCritical {
		return false
	}
	if total < a.cfg.MinReactions {
		return false
	}
	ambiguous := res.Score >= a.cfg.AmbiguousLow && res.Score <= a.cfg.AmbiguousHigh
	return ambiguous || total >= a.cfg.BulkReactions
}

// maybeEnhance attaches a cached insight synchronously or spawns a background
// enhancement task. Called with the analyzer lock held.
func (a *Analyzer) maybeEnhance(res *models.PacingResult, in Input) {
	if !a.shouldEnhance(res, in.Counts.Total()) {
		return
	}
	if !a.enhanceCooldown.TryFire("enhance") {
		return
	}

	key := in.Counts.CacheKey()
	if cached, ok := a.insightCache.Get(key); ok {
		e := cached
		res.Enhancement = &e
		a.lastEnhancement = &e
		return
	}

	started := a.task.Start(func(ctx context.Context) error {
		return a.enhance(ctx, key, in)
	}, func(err error) {
		if err != nil {
			logger.Warn("pacing: enhancement failed: %v", err)
		}
	})
	if !started {
		logger.Debug("pacing: enhancement already in flight, skipping")
	}
}

// enhance runs the inference call and merges the parsed insight. Runs on the
// task goroutine; failures never touch the already-delivered rule result.
func (a *Analyzer) enhance(ctx context.Context, key string, in Input) error {
	prompt := enhancementPrompt(in)
	text, err := a.gw.Complete(ctx, prompt, 0.2, 400, false)
	if err != nil {
		return err
	}

	raw, ok := gateway.ExtractJSON(text)
	if !ok {
		return fmt.Errorf("no structured insight in response")
	}
	var wire struct {
		Recommendation   string   `json:"recommendation"`
		Reasoning        string   `json:"reasoning"`
		Confidence       int      `json:"confidence"`
		SuggestedActions []string `json:"suggested_actions"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return fmt.Errorf("failed to decode insight: %w", err)
	}
	if wire.Recommendation == "" {
		return fmt.Errorf("insight missing recommendation")
	}
	if wire.Confidence == 0 {
		wire.Confidence = 70
	}

	e := models.Enhancement{
		Recommendation: wire.Recommendation,
		Reasoning:      wire.Reasoning,
		Confidence:     wire.Confidence,
		Actions:        wire.SuggestedActions,
		Source:         models.SourceInference,
	}

	a.mu.Lock()
	e.EnhancedAt = a.now()
	a.insightCache.Put(key, e)
	a.lastEnhancement = &e
	cb := a.onEnhancement
	a.mu.Unlock()

	if cb != nil {
		cb(e)
	}
	logger.Debug("pacing: enhancement completed (confidence %d)", e.Confidence)
	return nil
}

func enhancementPrompt(in Input) string {
	var b strings.Builder
	b.WriteString("You are an expert in presentation pacing analysis.\n\n")
	fmt.Fprintf(&b, "Analyze this audience feedback data from the last %d seconds:\n", in.WindowSeconds)
	fmt.Fprintf(&b, "- Speed Up reactions: %d\n", in.Counts.SpeedUp)
	fmt.Fprintf(&b, "- Slow Down reactions: %d\n", in.Counts.SlowDown)
	fmt.Fprintf(&b, "- Show Code reactions: %d\n", in.Counts.ShowCode)
	fmt.Fprintf(&b, "- I'm Lost reactions: %d\n", in.Counts.ImLost)
	fmt.Fprintf(&b, "- Total reactions: %d\n\n", in.Counts.Total())
	b.WriteString(`Provide ONLY valid JSON:

{
  "recommendation": "specific, actionable advice in one sentence",
  "reasoning": "brief explanation",
  "confidence": 0-100,
  "suggested_actions": ["action 1", "action 2"]
}

JSON:`)
	return b.String()
}

func sum(vs []float64) float64 {
	s := 0.0
	for _, v := range vs {
		s += v
	}
	return s
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	return sum(vs) / float64(len(vs))
}
