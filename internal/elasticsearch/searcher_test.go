package elasticsearch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"paperscout/internal/models"
)

func TestParseMode(t *testing.T) {
	require.Equal(t, ModeVector, ParseMode("vector"))
	require.Equal(t, ModeBM25, ParseMode("BM25"))
	require.Equal(t, ModeHybrid, ParseMode("hybrid"))
	require.Equal(t, ModeHybrid, ParseMode(""))
	require.Equal(t, ModeHybrid, ParseMode("whatever"))
}

func TestFormatResults(t *testing.T) {
	require.Equal(t, "No relevant papers found in local DB.", FormatResults(nil))

	results := []models.SearchResult{
		{Source: "papers/transformer.pdf", Page: 9, Score: 0.8559, SearchType: "vector", Content: "We presented the Transformer."},
		{Source: "papers/bert.pdf", Page: 2, Score: 0.8337, SearchType: "vector", Content: "BERT uses a bidirectional Transformer."},
	}

	out := FormatResults(results)
	require.Contains(t, out, "[1] Source: papers/transformer.pdf, Page: 9")
	require.Contains(t, out, "Score: 0.8559 (vector)")
	require.Contains(t, out, "[2] Source: papers/bert.pdf, Page: 2")
	require.Contains(t, out, "\n---\n")
}

func TestFuseRRFOverlapWinsOverSingleList(t *testing.T) {
	opts := HybridOptions{}.withDefaults()

	vector := []models.SearchResult{
		{ChunkID: "a", Content: "shared chunk"},
		{ChunkID: "b", Content: "vector only"},
	}
	bm25 := []models.SearchResult{
		{ChunkID: "c", Content: "bm25 only"},
		{ChunkID: "a", Content: "shared chunk"},
	}

	fused := fuseRRF(vector, bm25, 3, opts)
	require.Len(t, fused, 3)

	// "a" appears in both lists so its fused score must dominate.
	require.Equal(t, "a", fused[0].ChunkID)
	require.Equal(t, "hybrid", fused[0].SearchType)

	expected := opts.VectorWeight/float64(opts.RRFK+1) + opts.BM25Weight/float64(opts.RRFK+2)
	require.InDelta(t, expected, fused[0].Score, 1e-9)
}

func TestFuseRRFHonorsWeights(t *testing.T) {
	opts := HybridOptions{VectorWeight: 0.9, BM25Weight: 0.1, RRFK: 60}

	vector := []models.SearchResult{{ChunkID: "v", Content: "vector hit"}}
	bm25 := []models.SearchResult{{ChunkID: "k", Content: "keyword hit"}}

	fused := fuseRRF(vector, bm25, 2, opts)
	require.Len(t, fused, 2)
	require.Equal(t, "v", fused[0].ChunkID)
	require.Equal(t, "k", fused[1].ChunkID)
}

func TestFuseRRFTruncatesToTopK(t *testing.T) {
	opts := HybridOptions{}.withDefaults()

	vector := []models.SearchResult{
		{ChunkID: "a"}, {ChunkID: "b"}, {ChunkID: "c"}, {ChunkID: "d"},
	}

	fused := fuseRRF(vector, nil, 2, opts)
	require.Len(t, fused, 2)
	require.Equal(t, "a", fused[0].ChunkID)
	require.Equal(t, "b", fused[1].ChunkID)
}

func TestHybridOptionsDefaults(t *testing.T) {
	opts := HybridOptions{}.withDefaults()
	require.Equal(t, 0.5, opts.VectorWeight)
	require.Equal(t, 0.5, opts.BM25Weight)
	require.Equal(t, 60, opts.RRFK)
}
