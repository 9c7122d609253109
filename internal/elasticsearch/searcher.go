package elasticsearch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"paperscout/internal/models"
)

// DefaultTopK matches the documented default result count.
const DefaultTopK = 4

// Mode selects the retrieval strategy.
type Mode string

const (
	ModeVector Mode = "vector"
	ModeBM25   Mode = "bm25"
	ModeHybrid Mode = "hybrid"
)

// ParseMode maps a raw mode string to a Mode, defaulting to hybrid.
func ParseMode(raw string) Mode {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "vector":
		return ModeVector
	case "bm25":
		return ModeBM25
	default:
		return ModeHybrid
	}
}

// HybridOptions tune the hybrid search weighting.
type HybridOptions struct {
	VectorWeight float64
	BM25Weight   float64
	RRFK         int
}

func (o HybridOptions) withDefaults() HybridOptions {
	if o.VectorWeight <= 0 {
		o.VectorWeight = 0.5
	}
	if o.BM25Weight <= 0 {
		o.BM25Weight = 0.5
	}
	if o.RRFK <= 0 {
		o.RRFK = 60
	}
	return o
}

// Embedder turns query text into a vector for kNN search.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Searcher bundles the Elasticsearch client with an embedder and exposes the
// three paper search modes.
type Searcher struct {
	client   *Client
	embedder Embedder
	log      *slog.Logger
}

// NewSearcher wires a client and an embedder together.
func NewSearcher(client *Client, embedder Embedder, logger *slog.Logger) *Searcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{client: client, embedder: embedder, log: logger}
}

// VectorSearch embeds the query and runs semantic kNN retrieval.
func (s *Searcher) VectorSearch(ctx context.Context, query string, topK int) ([]models.SearchResult, error) {
	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return s.client.VectorSearch(ctx, vector, topK)
}

// BM25Search runs keyword retrieval. No embedding involved.
func (s *Searcher) BM25Search(ctx context.Context, query string, topK int) ([]models.SearchResult, error) {
	return s.client.BM25Search(ctx, query, topK)
}

// HybridSearch runs the native combined query and falls back to manual
// Reciprocal Rank Fusion when the native query fails (older clusters).
func (s *Searcher) HybridSearch(ctx context.Context, query string, topK int, opts HybridOptions) ([]models.SearchResult, error) {
	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := s.client.HybridSearch(ctx, query, vector, topK, opts)
	if err == nil {
		return results, nil
	}

	s.log.Warn("native hybrid search failed, falling back to manual RRF", slog.Any("err", err))

	if topK <= 0 {
		topK = DefaultTopK
	}
	opts = opts.withDefaults()

	vectorResults, err := s.client.VectorSearch(ctx, vector, topK*2)
	if err != nil {
		return nil, err
	}
	bm25Results, err := s.client.BM25Search(ctx, query, topK*2)
	if err != nil {
		return nil, err
	}

	return fuseRRF(vectorResults, bm25Results, topK, opts), nil
}

// Search dispatches on mode.
func (s *Searcher) Search(ctx context.Context, query string, mode Mode, topK int) ([]models.SearchResult, error) {
	switch mode {
	case ModeVector:
		return s.VectorSearch(ctx, query, topK)
	case ModeBM25:
		return s.BM25Search(ctx, query, topK)
	default:
		return s.HybridSearch(ctx, query, topK, HybridOptions{})
	}
}

// PaperSearch returns a formatted result block, the shape consumed by the
// agent tool and the CLIs.
func (s *Searcher) PaperSearch(ctx context.Context, query string, mode Mode, topK int) (string, error) {
	results, err := s.Search(ctx, query, mode, topK)
	if err != nil {
		return "", err
	}
	return FormatResults(results), nil
}

// FormatResults renders results as numbered source/page/score/content blocks.
func FormatResults(results []models.SearchResult) string {
	if len(results) == 0 {
		return "No relevant papers found in local DB."
	}

	blocks := make([]string, 0, len(results))
	for i, r := range results {
		blocks = append(blocks, fmt.Sprintf(
			"[%d] Source: %s, Page: %d\n    Score: %.4f (%s)\n    Content: %s\n",
			i+1, r.Source, r.Page, r.Score, r.SearchType, r.Content,
		))
	}

	return strings.Join(blocks, "\n---\n")
}

// fuseRRF merges two ranked lists with weighted Reciprocal Rank Fusion:
// score = Σ weight / (k + rank).
func fuseRRF(vectorResults, bm25Results []models.SearchResult, topK int, opts HybridOptions) []models.SearchResult {
	scores := make(map[string]float64)
	docs := make(map[string]models.SearchResult)

	accumulate := func(results []models.SearchResult, weight float64) {
		for rank, r := range results {
			key := r.ChunkID
			if key == "" {
				key = r.Content
			}
			scores[key] += weight / float64(opts.RRFK+rank+1)
			if _, ok := docs[key]; !ok {
				docs[key] = r
			}
		}
	}

	accumulate(vectorResults, opts.VectorWeight)
	accumulate(bm25Results, opts.BM25Weight)

	keys := make([]string, 0, len(scores))
	for key := range scores {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if scores[keys[i]] == scores[keys[j]] {
			return keys[i] < keys[j]
		}
		return scores[keys[i]] > scores[keys[j]]
	})

	if topK > len(keys) {
		topK = len(keys)
	}

	fused := make([]models.SearchResult, 0, topK)
	for _, key := range keys[:topK] {
		r := docs[key]
		r.Score = scores[key]
		r.SearchType = "hybrid"
		fused = append(fused, r)
	}

	return fused
}
