package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/philippgille/chromem-go"

	"github.com/superagent-run/superagent/llm/embedding"
	"github.com/superagent-run/superagent/types"
)

// Embedder is the narrow capability AdaptiveMemory needs to vectorize
// text for the episodic tier's dense index: turn a string into an
// embedding vector.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// WrapEmbeddingProvider adapts a full llm/embedding.Provider (which deals
// in float64 vectors, matching the wider embedding ecosystem's
// convention) down to the Embedder surface the episodic tier consumes.
func WrapEmbeddingProvider(p embedding.Provider) Embedder {
	return embeddingAdapter{provider: p}
}

type embeddingAdapter struct {
	provider embedding.Provider
}

func (a embeddingAdapter) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, err := a.provider.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out, nil
}

const episodicCollection = "episodic"

// episodicTier is the persistent, vector-indexed long-term memory tier
// . It embeds a chromem-go collection so dense retrieval
// (cosine similarity) is available without an external vector-database
// process; StoragePath controls whether that collection is persisted to
// disk or held in memory only.
type episodicTier struct {
	mu       sync.Mutex
	capacity int
	col      *chromem.Collection
	order    []string // insertion order of ids, oldest first, for eviction
	embed    Embedder
}

func newEpisodicTier(capacity int, storagePath string, embed Embedder) (*episodicTier, error) {
	var db *chromem.DB
	var err error
	if storagePath != "" {
		db, err = chromem.NewPersistentDB(storagePath, false)
		if err != nil {
			return nil, err
		}
	} else {
		db = chromem.NewDB()
	}

	embeddingFunc := func(ctx context.Context, text string) ([]float32, error) {
		return embed.EmbedQuery(ctx, text)
	}
	col, err := db.GetOrCreateCollection(episodicCollection, nil, embeddingFunc)
	if err != nil {
		return nil, err
	}

	order := make([]string, 0, col.Count())
	return &episodicTier{capacity: capacity, col: col, order: order, embed: embed}, nil
}

// add inserts item into the episodic tier, evicting the oldest summary
// once capacity is exceeded.
func (e *episodicTier) add(ctx context.Context, item types.MemoryItem) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	vec := item.Embedding
	var err error
	if len(vec) == 0 {
		vec, err = e.embed.EmbedQuery(ctx, item.Content)
		if err != nil {
			return err
		}
	}

	if item.ID == "" {
		item.ID = chromemDocID(item)
	}

	doc := chromem.Document{
		ID:        item.ID,
		Content:   item.Content,
		Embedding: vec,
		Metadata: map[string]string{
			"memory_type": string(item.MemoryType),
			"timestamp":   item.Timestamp.Format(time.RFC3339Nano),
		},
	}
	if err := e.col.AddDocument(ctx, doc); err != nil {
		return err
	}
	e.order = append(e.order, item.ID)

	if len(e.order) > e.capacity {
		evictID := e.order[0]
		e.order = e.order[1:]
		_ = e.col.Delete(ctx, nil, nil, evictID)
	}
	return nil
}

func chromemDocID(item types.MemoryItem) string {
	return item.Timestamp.Format(time.RFC3339Nano) + "-" + item.Content[:min(len(item.Content), 32)]
}

func (e *episodicTier) size() int {
	return e.col.Count()
}

// episodicMatch is one dense-search hit against the episodic tier.
type episodicMatch struct {
	Item       types.MemoryItem
	Similarity float32
}

// search runs chromem's cosine-similarity query over query, returning up
// to topN matches ordered by descending similarity.
func (e *episodicTier) search(ctx context.Context, query string, topN int) ([]episodicMatch, error) {
	count := e.col.Count()
	if count == 0 || topN <= 0 {
		return nil, nil
	}
	if topN > count {
		topN = count
	}

	results, err := e.col.Query(ctx, query, topN, nil, nil)
	if err != nil {
		return nil, err
	}

	matches := make([]episodicMatch, 0, len(results))
	for _, r := range results {
		ts, _ := time.Parse(time.RFC3339Nano, r.Metadata["timestamp"])
		matches = append(matches, episodicMatch{
			Item: types.MemoryItem{
				ID:         r.ID,
				Content:    r.Content,
				MemoryType: types.MemoryType(r.Metadata["memory_type"]),
				Timestamp:  ts,
				Embedding:  r.Embedding,
			},
			Similarity: r.Similarity,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	return matches, nil
}
