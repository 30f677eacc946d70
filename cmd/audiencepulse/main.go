package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"audiencepulse/internal/clustering"
	"audiencepulse/internal/config"
	"audiencepulse/internal/gateway"
	"audiencepulse/internal/logger"
	"audiencepulse/internal/models"
	"audiencepulse/internal/pacing"
	"audiencepulse/internal/sentiment"
	"audiencepulse/internal/session"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")
	duration   = flag.Duration("duration", 90*time.Second, "How long to run the simulated session")
	audience   = flag.Int("audience", 12, "Simulated audience size")
	interval   = flag.Duration("interval", 5*time.Second, "Analysis cycle interval")
)

func main() {
	flag.Parse()

	// A local .env may carry OPENAI_API_KEY and AUDIENCE_PULSE_* overrides.
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("Config file not loaded (%v), using defaults", err)
		cfg = config.Default()
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Setup logging with level support
	logger.Init(cfg.Logging.Level)

	// Initialize the inference gateway. Without an API key the engine runs
	// rule-only, which is a fully supported mode.
	var completer gateway.Completer
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		completer = gateway.NewOpenAIClient(key, cfg.Gateway.APIBaseURL, cfg.Gateway.Model)
	}
	gw := gateway.New(completer, cfg.Gateway)
	if gw.Enabled() {
		logger.Info("Inference gateway enabled (model: %s)", cfg.Gateway.Model)
	} else {
		logger.Info("OPENAI_API_KEY not set, running in rule-only mode")
	}

	// Initialize the session buffer and the three analyzers
	buffer := session.New(cfg.Session.MaxReactions)
	buffer.SetAudienceSize(*audience)

	pacer := pacing.New(cfg.Pacing, gw)
	moods := sentiment.New(cfg.Sentiment, gw)
	themes := clustering.New(cfg.Clustering, gw)

	pacer.OnEnhancement(func(e models.Enhancement) {
		logger.Info("Pacing enhancement (%s, confidence %d): %s", e.Source, e.Confidence, e.Recommendation)
	})
	moods.OnEnhancement(func(r models.SentimentResult) {
		logger.Info("Sentiment enhancement: %s/%s (confidence %d), mood %q", r.Sentiment, r.Emotion, r.Confidence, r.Mood)
	})

	// Setup graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	// Feed the buffer with a scripted audience so every analyzer path is
	// exercised without a real event source attached.
	go feed(ctx, buffer)

	logger.Info("Starting analysis loop (audience: %d, window: %v, interval: %v)",
		*audience, cfg.Session.Window, *interval)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdown(pacer, moods, themes, gw)
			return
		case <-ticker.C:
			runAnalysisCycle(ctx, cfg, buffer, pacer, moods, themes)
		}
	}
}

func runAnalysisCycle(
	ctx context.Context,
	cfg *config.Config,
	buffer *session.Buffer,
	pacer *pacing.Analyzer,
	moods *sentiment.Analyzer,
	themes *clustering.Analyzer,
) {
	window := cfg.Session.Window
	counts := buffer.ReactionCounts(window)
	recent := buffer.RecentReactions(window)

	pres := pacer.Analyze(pacing.Input{
		Counts:        counts,
		Recent:        recent,
		WindowSeconds: int(window.Seconds()),
		AudienceSize:  buffer.AudienceSize(),
	})
	logger.Info("Pacing: %s (score %d, urgency %s) - %s",
		pres.Status, pres.Score, pres.Urgency, pres.Recommendation)
	for _, alert := range pres.Alerts {
		logger.Warn("Alert [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	}

	sres := moods.Analyze(sentiment.Input{
		Questions: buffer.RecentQuestions(cfg.Session.RecentQuestions),
		Counts:    counts,
		Recent:    recent,
	})
	logger.Info("Sentiment: %s/%s (confidence %d), mood %q",
		sres.Sentiment, sres.Emotion, sres.Confidence, sres.Mood)
	for _, rec := range sres.Recommendations {
		logger.Debug("Sentiment recommendation: %s", rec)
	}

	cres := themes.Analyze(ctx, clustering.Input{Questions: buffer.Questions()})
	if cres.Status == models.ClusteringSuccess {
		logger.Info("Clustering (%s): %d themes from %d questions, quality %d",
			cres.Method, len(cres.Themes), cres.AnalyzedQuestions, cres.QualityScore)
		for _, th := range cres.Themes {
			logger.Info("  [%s] %s (%d questions, %d upvotes): %s",
				th.Priority, th.Name, len(th.Questions), th.TotalUpvotes, th.Insight.SuggestedResponse)
		}
	} else {
		logger.Info("Clustering: %s", cres.Message)
	}
}

func shutdown(pacer *pacing.Analyzer, moods *sentiment.Analyzer, themes *clustering.Analyzer, gw *gateway.Gateway) {
	pacer.Cancel()
	moods.Cancel()

	for _, tq := range themes.TopQuestions(3) {
		logger.Info("Top question [%s/%s]: %q (%d similar, %d upvotes)",
			tq.Theme, tq.Priority, tq.Question.Text, tq.SimilarCount, tq.TotalUpvotes)
	}

	m := gw.Metrics()
	logger.Info("Gateway metrics: %d calls, %d cache hits (%.0f%%), %d errors, avg latency %v",
		m.TotalCalls, m.CacheHits, m.CacheHitRate*100, m.Errors, m.AvgLatency)
	logger.Info("Session analysis stopped")
}

// feedStep is one beat of the scripted audience. Reactions land first, then
// the question, then upvotes of an earlier question by index.
type feedStep struct {
	wait      time.Duration
	reactions []models.ReactionKind
	question  string
	upvote    int // 1-based index into previously asked questions, 0 for none
}

var script = []feedStep{
	{wait: 2 * time.Second, reactions: kinds(models.ReactionSpeedUp, 2)},
	{wait: 3 * time.Second, question: "How do I set up OAuth login for the API?"},
	{wait: 2 * time.Second, reactions: kinds(models.ReactionShowCode, 3)},
	{wait: 3 * time.Second, question: "Is OAuth login setup the same for mobile clients?", upvote: 1},
	{wait: 2 * time.Second, reactions: kinds(models.ReactionSlowDown, 2)},
	{wait: 3 * time.Second, question: "Why does my deploy to kubernetes keep failing?"},
	{wait: 2 * time.Second, reactions: kinds(models.ReactionImLost, 3)},
	{wait: 2 * time.Second, question: "This is confusing, can you explain the token refresh again?", upvote: 3},
	{wait: 3 * time.Second, reactions: kinds(models.ReactionImLost, 3)},
	{wait: 2 * time.Second, question: "What does the error about pool connections mean?", upvote: 4},
	{wait: 3 * time.Second, reactions: kinds(models.ReactionSlowDown, 2)},
	{wait: 4 * time.Second, question: "thanks"},
	{wait: 3 * time.Second, reactions: kinds(models.ReactionSpeedUp, 4)},
	{wait: 3 * time.Second, question: "Great recovery, how would this scale to more users?"},
	{wait: 3 * time.Second, reactions: kinds(models.ReactionShowCode, 4), upvote: 5},
}

func kinds(k models.ReactionKind, n int) []models.ReactionKind {
	out := make([]models.ReactionKind, n)
	for i := range out {
		out[i] = k
	}
	return out
}

func feed(ctx context.Context, buffer *session.Buffer) {
	var asked []models.Question
	subject := 0
	nextSubject := func() string {
		subject++
		return fmt.Sprintf("viewer-%02d", subject%*audience)
	}

	for _, step := range script {
		select {
		case <-ctx.Done():
			return
		case <-time.After(step.wait):
		}

		for _, kind := range step.reactions {
			if _, err := buffer.AddReaction(kind, nextSubject()); err != nil {
				logger.Error("Failed to add reaction: %v", err)
			}
		}
		if step.question != "" {
			q, err := buffer.AddQuestion(step.question, nextSubject())
			if err != nil {
				logger.Error("Failed to add question: %v", err)
			} else {
				asked = append(asked, q)
			}
		}
		if step.upvote > 0 && step.upvote <= len(asked) {
			buffer.UpvoteQuestion(asked[step.upvote-1].ID, nextSubject())
			buffer.UpvoteQuestion(asked[step.upvote-1].ID, nextSubject())
		}
	}
}
