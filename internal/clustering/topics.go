package clustering

import "audiencepulse/internal/models"

// noiseSets are curated phrase groups whose members never count as real
// questions. A message matches when it equals a phrase or when every word of
// a one- or two-word message belongs to one group.
var noiseSets = map[string][]string{
	"greetings":    {"hey", "hi", "hello", "sup", "yo"},
	"thanks":       {"thanks", "thank you", "thx", "ty"},
	"affirmations": {"ok", "okay", "yes", "no", "yep", "nope"},
	"reactions":    {"lol", "haha", "cool", "nice", "great", "wow"},
	"emojis":       {"\U0001f602", "\U0001f44d", "\U0001f525", "\U0001f4af", "✅"},
}

// topicPattern describes one local-clustering topic. weight scales the
// priority score; boost front-loads topics that usually need presenter
// attention regardless of volume.
type topicPattern struct {
	name     string
	category string
	keywords []string
	weight   float64
	boost    float64
}

var topicPatterns = []topicPattern{
	{
		name:     "Authentication & Security",
		category: "authentication",
		keywords: []string{"auth", "login", "oauth", "jwt", "token", "session", "password",
			"sign in", "sign up", "register", "authenticate", "security",
			"encrypt", "2fa", "mfa"},
		weight: 1.0,
		boost:  0.1,
	},
	{
		name:     "API Design & Integration",
		category: "api",
		keywords: []string{"api", "endpoint", "rest", "graphql", "webhook", "integration",
			"request", "response", "http", "fetch", "call", "axios", "curl"},
		weight: 1.0,
		boost:  0.15,
	},
	{
		name:     "Deployment & Infrastructure",
		category: "deployment",
		keywords: []string{"deploy", "deployment", "host", "server", "cloud", "aws", "gcp",
			"azure", "docker", "kubernetes", "k8s", "heroku", "vercel", "ci/cd"},
		weight: 1.0,
		boost:  0.2,
	},
	{
		name:     "Database & Storage",
		category: "database",
		keywords: []string{"database", "db", "sql", "mongodb", "postgres", "mysql", "redis",
			"query", "table", "storage", "data", "orm", "prisma", "schema"},
		weight: 1.0,
		boost:  0.05,
	},
	{
		name:     "Error Handling & Debugging",
		category: "errors",
		keywords: []string{"error", "bug", "issue", "problem", "not working", "failed", "broken",
			"crash", "debug", "fix", "troubleshoot", "exception", "stacktrace"},
		weight: 1.2,
		boost:  0.3,
	},
	{
		name:     "Pricing & Billing",
		category: "pricing",
		keywords: []string{"price", "pricing", "cost", "payment", "subscription", "plan", "tier",
			"billing", "charge", "free", "paid", "invoice", "credit card"},
		weight: 0.9,
		boost:  0.25,
	},
	{
		name:     "Performance & Optimization",
		category: "performance",
		keywords: []string{"performance", "speed", "slow", "fast", "optimize", "cache", "latency",
			"load time", "bottleneck", "memory", "cpu", "scaling", "throughput"},
		weight: 1.0,
		boost:  0.15,
	},
	{
		name:     "Setup & Installation",
		category: "setup",
		keywords: []string{"setup", "install", "configuration", "config", "getting started",
			"initialize", "start", "begin", "quickstart", "tutorial"},
		weight: 0.8,
		boost:  0.05,
	},
	{
		name:     "UI & Frontend",
		category: "frontend",
		keywords: []string{"ui", "design", "interface", "layout", "style", "css", "component",
			"button", "form", "page", "react", "vue", "angular", "frontend"},
		weight: 0.8,
		boost:  0.0,
	},
	{
		name:     "Data Processing & Analytics",
		category: "data",
		keywords: []string{"data", "analytics", "report", "metrics", "dashboard", "chart",
			"visualization", "export", "csv", "json", "parse"},
		weight: 0.9,
		boost:  0.1,
	},
	{
		name:     "Testing & Quality",
		category: "testing",
		keywords: []string{"test", "testing", "unit test", "e2e", "qa", "quality", "coverage",
			"jest", "pytest", "mock", "assertion"},
		weight: 0.7,
		boost:  0.0,
	},
	{
		name:     "Documentation & Help",
		category: "docs",
		keywords: []string{"documentation", "docs", "tutorial", "guide", "example", "help",
			"how to", "explain", "clarify", "understand"},
		weight: 0.8,
		boost:  0.1,
	},
}

// urgencyKeywords raise a theme's priority score when present in questions.
var urgencyKeywords = []string{"error", "broken", "not working", "help", "stuck", "urgent", "critical", "blocked"}

// genericThemeNames is the blocklist used to reject vague inference output.
var genericThemeNames = []string{
	"technical implementation",
	"conceptual understanding",
	"general questions",
	"other questions",
	"miscellaneous",
	"various topics",
	"mixed questions",
	"implementation",
	"understanding",
	"questions about",
}

var validCategories = map[string]bool{
	"authentication": true, "api": true, "deployment": true, "database": true,
	"errors": true, "pricing": true, "performance": true, "setup": true,
	"frontend": true, "data": true, "testing": true, "docs": true, "other": true,
}

// insightTemplate is the per-category action suggestion skeleton.
type insightTemplate struct {
	response string // format string taking the theme name
	time     string
	action   string
}

var insightTemplates = map[string]insightTemplate{
	"authentication": {"Live demo: Walk through %s with code example", "Next 3-5 minutes", "Show authentication flow step-by-step"},
	"api":            {"API walkthrough: Demonstrate %s with Postman/curl", "Next 5 minutes", "Show API request/response examples"},
	"deployment":     {"Deployment guide: Show %s process", "Next 5-7 minutes", "Share deployment checklist and resources"},
	"database":       {"Database demo: Explain %s with examples", "Next 3-5 minutes", "Show schema and queries"},
	"errors":         {"Debug session: Troubleshoot %s together", "IMMEDIATELY", "Stop and debug with audience"},
	"pricing":        {"Pricing overview: Clarify %s", "Next 2 minutes", "Show pricing page and compare plans"},
	"performance":    {"Performance deep-dive: Analyze %s", "Next 5 minutes", "Show profiling and optimization techniques"},
	"setup":          {"Setup walkthrough: Guide through %s", "Next 3 minutes", "Share quickstart guide"},
	"frontend":       {"UI demo: Show %s implementation", "Next 3 minutes", "Live code the component"},
	"data":           {"Data analysis: Explain %s approach", "Next 4 minutes", "Show data flow and transformations"},
	"testing":        {"Testing demo: Write tests for %s", "Next 4 minutes", "Show test examples"},
	"docs":           {"Documentation tour: Point to resources for %s", "Next 2 minutes", "Share docs and tutorials"},
	"other":          {"Address questions about %s", "During Q&A", "Answer individually or provide resources"},
}

// priorityUrgency maps theme priority to the insight's urgency grade.
var priorityUrgency = map[models.Priority]models.Urgency{
	models.PriorityCritical: models.UrgencyImmediate,
	models.PriorityHigh:     models.UrgencyHigh,
	models.PriorityMedium:   models.UrgencyMedium,
	models.PriorityLow:      models.UrgencyLow,
}
