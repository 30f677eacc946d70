package clustering

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
)

var wordRe = regexp.MustCompile(`\w+`)

// similarityCache memoizes pairwise text similarity under a symmetric key.
// It is wholesale-cleared past the size cap; entries are cheap to recompute.
type similarityCache struct {
	entries map[string]float64
	max     int
}

func newSimilarityCache(max int) *similarityCache {
	return &similarityCache{entries: make(map[string]float64), max: max}
}

func (c *similarityCache) key(a, b string) string {
	ha, hb := textHash(a), textHash(b)
	if ha > hb {
		ha, hb = hb, ha
	}
	return fmt.Sprintf("%x:%x", ha, hb)
}

func textHash(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

// similarity scores two texts: exact match 1.0, substring containment 0.9,
// otherwise Jaccard similarity over word sets.
func (c *similarityCache) similarity(a, b string) float64 {
	key := c.key(a, b)
	if v, ok := c.entries[key]; ok {
		return v
	}

	t1 := strings.ToLower(strings.TrimSpace(a))
	t2 := strings.ToLower(strings.TrimSpace(b))

	var sim float64
	switch {
	case t1 == t2:
		sim = 1.0
	case strings.Contains(t2, t1) || strings.Contains(t1, t2):
		sim = 0.9
	default:
		sim = jaccard(t1, t2)
	}

	c.entries[key] = sim
	if len(c.entries) > c.max {
		c.entries = make(map[string]float64)
	}
	return sim
}

func jaccard(t1, t2 string) float64 {
	w1 := wordSet(t1)
	w2 := wordSet(t2)
	if len(w1) == 0 || len(w2) == 0 {
		return 0
	}
	intersection := 0
	for w := range w1 {
		if _, ok := w2[w]; ok {
			intersection++
		}
	}
	union := len(w1) + len(w2) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func wordSet(t string) map[string]struct{} {
	words := wordRe.FindAllString(t, -1)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
