// Package gateway funnels every model call through a single rate-limited,
// cached entry point so the analyzers never talk to the API directly.
package gateway

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"audiencepulse/internal/config"
	"audiencepulse/internal/gate"
	"audiencepulse/internal/logger"
)

// Metrics is a point-in-time snapshot of gateway activity.
type Metrics struct {
	TotalCalls    int
	CacheHits     int
	Errors        int
	AvgLatency    time.Duration
	CacheHitRate  float64
	ErrorRate     float64
	CachedEntries int
}

// Gateway wraps a Completer with token-bucket rate limiting, a short-TTL
// response cache and rolling call metrics. All completions made by the
// analyzers go through here.
type Gateway struct {
	completer Completer
	cache     *gate.TTLCache[string, string]

	mu         sync.Mutex
	tokens     int
	burst      int
	refill     time.Duration
	minSpacing time.Duration
	lastRefill time.Time
	lastCall   time.Time

	totalCalls int
	cacheHits  int
	errors     int
	avgLatency time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a gateway around the given completer. A nil completer is
// allowed; every Complete call then fails and callers fall back to their
// rule-based results.
func New(completer Completer, cfg config.GatewayConfig) *Gateway {
	g := &Gateway{
		completer:  completer,
		cache:      gate.NewTTLCache[string, string](cfg.CacheTTL, cfg.CacheMax, 0),
		tokens:     cfg.Burst,
		burst:      cfg.Burst,
		refill:     cfg.RefillInterval,
		minSpacing: cfg.MinInterval,
		now:        time.Now,
		sleep:      sleepCtx,
	}
	g.lastRefill = g.now()
	return g
}

// SetClock replaces the time sources. Tests use this to drive the token
// bucket and cache deterministically.
func (g *Gateway) SetClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) {
	g.mu.Lock()
	g.now = now
	g.sleep = sleep
	g.lastRefill = now()
	g.mu.Unlock()
	g.cache.SetClock(now)
}

// Enabled reports whether a completer is wired up at all.
func (g *Gateway) Enabled() bool {
	return g.completer != nil
}

// Complete runs a prompt through the cache, the rate limiter and the
// completer, in that order. Cacheable responses are stored under a key
// derived from the prompt prefix and the generation parameters, so repeated
// identical analyses within the TTL never hit the API.
func (g *Gateway) Complete(ctx context.Context, prompt string, temperature float32, maxTokens int, cacheable bool) (string, error) {
	if g.completer == nil {
		return "", fmt.Errorf("no completer configured")
	}

	var key string
	if cacheable {
		key = cacheKey(prompt, temperature, maxTokens)
		if text, ok := g.cache.Get(key); ok {
			g.mu.Lock()
			g.cacheHits++
			g.mu.Unlock()
			logger.Debug("gateway: cache hit for key %s", key)
			return text, nil
		}
	}

	if err := g.acquire(ctx); err != nil {
		return "", err
	}

	start := g.now()
	text, err := g.completer.Complete(ctx, CompletionRequest{
		Prompt:      prompt,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	elapsed := g.now().Sub(start)

	g.mu.Lock()
	if err != nil {
		g.errors++
		g.mu.Unlock()
		logger.Warn("gateway: completion failed after %s: %v", elapsed, err)
		return "", err
	}
	g.totalCalls++
	// Rolling average over all successful calls.
	g.avgLatency += (elapsed - g.avgLatency) / time.Duration(g.totalCalls)
	g.mu.Unlock()

	if cacheable {
		g.cache.Put(key, text)
	}
	logger.Debug("gateway: completion in %s (%d tokens max)", elapsed, maxTokens)
	return text, nil
}

// acquire takes one token from the bucket, blocking on the minimum spacing
// interval when the bucket is empty. It returns early if ctx is done.
func (g *Gateway) acquire(ctx context.Context) error {
	g.mu.Lock()

	now := g.now()
	if elapsed := now.Sub(g.lastRefill); elapsed >= g.refill {
		refilled := int(elapsed / g.refill)
		g.tokens = min(g.burst, g.tokens+refilled)
		g.lastRefill = now
	}

	if g.tokens > 0 {
		g.tokens--
		g.lastCall = now
		g.mu.Unlock()
		return nil
	}

	// Bucket empty: enforce minimum spacing since the previous call.
	wait := g.minSpacing - now.Sub(g.lastCall)
	sleep := g.sleep
	g.mu.Unlock()

	if wait > 0 {
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}

	g.mu.Lock()
	g.lastCall = g.now()
	g.mu.Unlock()
	return nil
}

// Metrics returns a snapshot of call counters and derived rates.
func (g *Gateway) Metrics() Metrics {
	g.mu.Lock()
	defer g.mu.Unlock()

	m := Metrics{
		TotalCalls:    g.totalCalls,
		CacheHits:     g.cacheHits,
		Errors:        g.errors,
		AvgLatency:    g.avgLatency,
		CachedEntries: g.cache.Len(),
	}
	attempts := g.totalCalls + g.cacheHits
	if attempts > 0 {
		m.CacheHitRate = float64(g.cacheHits) / float64(attempts)
	}
	if g.totalCalls+g.errors > 0 {
		m.ErrorRate = float64(g.errors) / float64(g.totalCalls+g.errors)
	}
	return m
}

// cacheKey hashes the prompt prefix together with the generation parameters.
// The prefix is enough to tell analyses apart because every prompt embeds its
// input data up front.
func cacheKey(prompt string, temperature float32, maxTokens int) string {
	prefix := prompt
	if len(prefix) > 100 {
		prefix = prefix[:100]
	}
	h := fnv.New64a()
	h.Write([]byte(prefix))
	fmt.Fprintf(h, "|%.2f|%d", temperature, maxTokens)
	return fmt.Sprintf("%x", h.Sum64())
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
