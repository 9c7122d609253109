package elasticsearch_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"paperscout/internal/elasticsearch"
	"paperscout/internal/models"
)

// newFakeES spins up an httptest server that speaks just enough of the
// Elasticsearch HTTP API for the client under test.
func newFakeES(t *testing.T, handler http.HandlerFunc) *elasticsearch.Client {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// go-elasticsearch validates this header on the first response.
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := elasticsearch.New(srv.URL, "papers-test", nil)
	require.NoError(t, err)
	return client
}

func searchResponse(hits ...map[string]any) map[string]any {
	return map[string]any{
		"hits": map[string]any{
			"total": map[string]any{"value": len(hits)},
			"hits":  hits,
		},
	}
}

func TestBM25SearchParsesHits(t *testing.T) {
	var gotBody map[string]any

	client := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/papers-test/_search", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		resp := searchResponse(
			map[string]any{
				"_id":    "chunk-1",
				"_score": 1.25,
				"_source": map[string]any{
					"text": "Attention is all you need.",
					"metadata": map[string]any{
						"source":   "papers/transformer.pdf",
						"page":     9,
						"chunk_id": "chunk-1",
					},
				},
			},
		)
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})

	results, err := client.BM25Search(context.Background(), "attention", 4)
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	require.Equal(t, "chunk-1", r.ChunkID)
	require.Equal(t, "papers/transformer.pdf", r.Source)
	require.Equal(t, 9, r.Page)
	require.Equal(t, 1.25, r.Score)
	require.Equal(t, "bm25", r.SearchType)
	require.Equal(t, "Attention is all you need.", r.Content)

	require.Equal(t, float64(4), gotBody["size"])
	query := gotBody["query"].(map[string]any)["match"].(map[string]any)["text"].(map[string]any)
	require.Equal(t, "attention", query["query"])
	require.Equal(t, "or", query["operator"])
}

func TestVectorSearchBuildsKNNBody(t *testing.T) {
	var gotBody map[string]any

	client := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		require.NoError(t, json.NewEncoder(w).Encode(searchResponse()))
	})

	results, err := client.VectorSearch(context.Background(), []float32{0.1, 0.2}, 5)
	require.NoError(t, err)
	require.Empty(t, results)

	knn := gotBody["knn"].(map[string]any)
	require.Equal(t, "vector", knn["field"])
	require.Equal(t, float64(5), knn["k"])
	require.Equal(t, float64(50), knn["num_candidates"])
}

func TestHybridSearchBuildsCombinedBody(t *testing.T) {
	var gotBody map[string]any

	client := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		require.NoError(t, json.NewEncoder(w).Encode(searchResponse()))
	})

	_, err := client.HybridSearch(context.Background(), "BERT", []float32{0.3}, 4,
		elasticsearch.HybridOptions{VectorWeight: 0.7, BM25Weight: 0.3})
	require.NoError(t, err)

	knn := gotBody["knn"].(map[string]any)
	require.Equal(t, 0.7, knn["boost"])

	should := gotBody["query"].(map[string]any)["bool"].(map[string]any)["should"].([]any)
	require.Len(t, should, 1)
	match := should[0].(map[string]any)["match"].(map[string]any)["text"].(map[string]any)
	require.Equal(t, "BERT", match["query"])
	require.Equal(t, 0.3, match["boost"])
}

func TestSearchErrorSurfacesBody(t *testing.T) {
	client := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"parsing_exception"}`))
	})

	_, err := client.BM25Search(context.Background(), "x", 4)
	require.Error(t, err)
	require.Contains(t, err.Error(), "parsing_exception")
}

func TestGetChunkNotFoundReturnsNil(t *testing.T) {
	client := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"found":false}`))
	})

	doc, err := client.GetChunk(context.Background(), "missing")
	require.NoError(t, err)
	require.Nil(t, doc)
}

func TestGetChunkReturnsDocument(t *testing.T) {
	client := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/papers-test/_doc/chunk-9", r.URL.Path)
		resp := map[string]any{
			"found": true,
			"_source": models.ChunkDocument{
				Text: "chunk text",
				Metadata: models.ChunkMetadata{
					Source: "papers/bert.pdf", Page: 2, ChunkID: "chunk-9",
				},
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})

	doc, err := client.GetChunk(context.Background(), "chunk-9")
	require.NoError(t, err)
	require.NotNil(t, doc)
	require.Equal(t, "chunk text", doc.Text)
	require.Equal(t, "papers/bert.pdf", doc.Metadata.Source)
}

func TestDeleteBySource(t *testing.T) {
	client := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/papers-test/_delete_by_query", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		term := body["query"].(map[string]any)["term"].(map[string]any)
		require.Equal(t, "papers/old.pdf", term["metadata.source"])

		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"deleted": 7}))
	})

	deleted, err := client.DeleteBySource(context.Background(), "papers/old.pdf")
	require.NoError(t, err)
	require.Equal(t, int64(7), deleted)
}

func TestEnsureIndexCreatesWhenMissing(t *testing.T) {
	var created bool

	client := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodHead && r.URL.Path == "/papers-test":
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPut && r.URL.Path == "/papers-test":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

			props := body["mappings"].(map[string]any)["properties"].(map[string]any)
			vector := props["vector"].(map[string]any)
			require.Equal(t, "dense_vector", vector["type"])
			require.Equal(t, float64(768), vector["dims"])
			require.Equal(t, "cosine", vector["similarity"])

			created = true
			require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"acknowledged": true}))
		default:
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	})

	require.NoError(t, client.EnsureIndex(context.Background(), 768, false))
	require.True(t, created)
}

func TestEnsureIndexSkipsExisting(t *testing.T) {
	client := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, client.EnsureIndex(context.Background(), 768, false))
}

func TestIndexChunkUsesChunkID(t *testing.T) {
	client := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/papers-test/_doc/chunk-42", r.URL.Path)
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"result": "created"}))
	})

	err := client.IndexChunk(context.Background(), models.ChunkDocument{
		Text:     "text",
		Vector:   []float32{0.1},
		Metadata: models.ChunkMetadata{Source: "papers/a.pdf", Page: 1, ChunkID: "chunk-42"},
	})
	require.NoError(t, err)
}
