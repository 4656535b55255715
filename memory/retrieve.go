package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/superagent-run/superagent/types"
)

// RetrieveRelevantContext is the hybrid retrieval path: dense
// (vector) search over the episodic tier and sparse (keyword) search over
// the working tier, fused by reciprocal-rank fusion with a temporal-decay
// term, returning the top k items. A cache attached via SetCache is
// consulted first; the working tier changes too often for a long TTL to
// be safe, so hits are only cached briefly (retrieveCacheTTL).
func (m *AdaptiveMemory) RetrieveRelevantContext(ctx context.Context, query string, k int) ([]types.MemoryItem, error) {
	if k <= 0 {
		k = 5
	}

	if m.cache != nil {
		cacheKey := retrieveCacheKey(query, k)
		var cached []types.MemoryItem
		if err := m.cache.GetJSON(ctx, cacheKey, &cached); err == nil {
			return cached, nil
		}
		result, err := m.retrieveRelevantContext(ctx, query, k)
		if err != nil {
			return nil, err
		}
		if err := m.cache.SetJSON(ctx, cacheKey, result, retrieveCacheTTL); err != nil {
			m.logger.Warn("retrieval cache write failed", zap.Error(err))
		}
		return result, nil
	}
	return m.retrieveRelevantContext(ctx, query, k)
}

const retrieveCacheTTL = 15 * time.Second

func retrieveCacheKey(query string, k int) string {
	sum := sha256.Sum256([]byte(query))
	return fmt.Sprintf("memory:retrieve:%d:%s", k, hex.EncodeToString(sum[:]))
}

func (m *AdaptiveMemory) retrieveRelevantContext(ctx context.Context, query string, k int) ([]types.MemoryItem, error) {
	topN := 2 * k

	// The dense search goes out to the vector index while the sparse one
	// only scans the working tier; neither depends on the other.
	var dense []episodicMatch
	var sparse []types.MemoryItem
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		dense, err = m.episodic.search(gctx, query, topN)
		return err
	})
	g.Go(func() error {
		sparse = sparseSearch(query, m.working.snapshot(), topN)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	type candidate struct {
		item       types.MemoryItem
		denseRank  int // 1-based; 0 means absent from the dense result set
		sparseRank int
	}
	candidates := make(map[string]*candidate)
	order := make([]string, 0, len(dense)+len(sparse))

	for i, d := range dense {
		candidates[d.Item.ID] = &candidate{item: d.Item, denseRank: i + 1}
		order = append(order, d.Item.ID)
	}
	for i, s := range sparse {
		if c, ok := candidates[s.ID]; ok {
			c.sparseRank = i + 1
			continue
		}
		candidates[s.ID] = &candidate{item: s, sparseRank: i + 1}
		order = append(order, s.ID)
	}

	now := time.Now()
	type scored struct {
		item  types.MemoryItem
		score float64
	}
	scoredList := make([]scored, 0, len(order))
	for _, id := range order {
		c := candidates[id]
		var denseTerm, sparseTerm float64
		if c.denseRank > 0 {
			denseTerm = 0.4 / float64(60+c.denseRank)
		}
		if c.sparseRank > 0 {
			sparseTerm = 0.3 / float64(60+c.sparseRank)
		}
		ageHours := now.Sub(c.item.Timestamp).Hours()
		if ageHours < 0 {
			ageHours = 0
		}
		temporalTerm := m.config.TemporalWeight * (1 / (1 + ageHours))
		scoredList = append(scoredList, scored{item: c.item, score: denseTerm + sparseTerm + temporalTerm})
	}

	sort.SliceStable(scoredList, func(i, j int) bool { return scoredList[i].score > scoredList[j].score })
	if len(scoredList) > k {
		scoredList = scoredList[:k]
	}

	out := make([]types.MemoryItem, len(scoredList))
	for i, s := range scoredList {
		out[i] = s.item
	}
	return out, nil
}

// sparseSearch ranks items by normalized keyword-overlap with query —
// BM25-style term-frequency scoring without a corpus-wide inverse
// document frequency term, since the working tier is too small for a
// meaningful document-frequency statistic.
func sparseSearch(query string, items []types.MemoryItem, topN int) []types.MemoryItem {
	queryTerms := tokenizeLower(query)
	if len(queryTerms) == 0 || len(items) == 0 || topN <= 0 {
		return nil
	}

	type hit struct {
		item  types.MemoryItem
		score float64
	}
	hits := make([]hit, 0, len(items))
	for _, it := range items {
		terms := tokenizeLower(it.Content)
		if len(terms) == 0 {
			continue
		}
		freq := make(map[string]int, len(terms))
		for _, t := range terms {
			freq[t]++
		}
		var overlap int
		for _, qt := range queryTerms {
			overlap += freq[qt]
		}
		if overlap == 0 {
			continue
		}
		hits = append(hits, hit{item: it, score: float64(overlap) / float64(len(terms))})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > topN {
		hits = hits[:topN]
	}
	out := make([]types.MemoryItem, len(hits))
	for i, h := range hits {
		out[i] = h.item
	}
	return out
}

func tokenizeLower(s string) []string {
	toks := tokenize(s)
	for i, t := range toks {
		toks[i] = strings.ToLower(t)
	}
	return toks
}
