package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"

	"paperscout/internal/models"
)

// Client wraps go-elasticsearch with helpers for the hybrid paper index.
type Client struct {
	es    *elasticsearch.Client
	index string
	log   *slog.Logger
}

// New instantiates the Elasticsearch client.
func New(addr, index string, logger *slog.Logger) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{addr},
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{es: es, index: index, log: logger}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}

	return nil
}

// Health pings the cluster to ensure connectivity.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("cluster health bad: %s", strings.TrimSpace(string(data)))
	}
	return nil
}

// EnsureIndex creates the hybrid search index when it does not exist.
// With recreate set, an existing index is dropped first. The mapping pairs a
// dense_vector field (cosine kNN) with an analyzed text field (BM25).
func (c *Client) EnsureIndex(ctx context.Context, dims int, recreate bool) error {
	exists, err := c.indexExists(ctx)
	if err != nil {
		return err
	}

	if exists {
		if !recreate {
			return nil
		}
		c.log.Warn("recreating index", slog.String("index", c.index))
		res, err := c.es.Indices.Delete([]string{c.index}, c.es.Indices.Delete.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("delete index: %w", err)
		}
		res.Body.Close()
	}

	body := map[string]any{
		"settings": map[string]any{
			"analysis": map[string]any{
				"analyzer": map[string]any{
					"korean_english": map[string]any{
						"type":      "custom",
						"tokenizer": "standard",
						"filter":    []string{"lowercase", "stop"},
					},
				},
			},
		},
		"mappings": map[string]any{
			"properties": map[string]any{
				"vector": map[string]any{
					"type":       "dense_vector",
					"dims":       dims,
					"index":      true,
					"similarity": "cosine",
				},
				"text": map[string]any{
					"type":     "text",
					"analyzer": "korean_english",
					"fields": map[string]any{
						"keyword": map[string]any{"type": "keyword", "ignore_above": 256},
					},
				},
				"metadata": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"source":   map[string]any{"type": "keyword"},
						"page":     map[string]any{"type": "integer"},
						"chunk_id": map[string]any{"type": "keyword"},
					},
				},
			},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal index settings: %w", err)
	}

	res, err := c.es.Indices.Create(
		c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("create index failed: %s", strings.TrimSpace(string(data)))
	}

	c.log.Info("index ready", slog.String("index", c.index), slog.Int("dims", dims))
	return nil
}

func (c *Client) indexExists(ctx context.Context) (bool, error) {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("check index: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("check index failed: %s", res.Status())
	}
}

// IndexChunk writes a single chunk document, keyed by its chunk ID. Chunks
// arriving without an ID get a random one so they never overwrite each other.
func (c *Client) IndexChunk(ctx context.Context, doc models.ChunkDocument) error {
	if doc.Metadata.ChunkID == "" {
		doc.Metadata.ChunkID = uuid.NewString()
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal chunk: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      c.index,
		DocumentID: doc.Metadata.ChunkID,
		Body:       bytes.NewReader(payload),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("index chunk: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index chunk failed: %s", strings.TrimSpace(string(body)))
	}

	return nil
}

// GetChunk fetches a chunk document by ID. Returns nil when the document
// does not exist.
func (c *Client) GetChunk(ctx context.Context, id string) (*models.ChunkDocument, error) {
	req := esapi.GetRequest{Index: c.index, DocumentID: id}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return nil, fmt.Errorf("get chunk: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("get chunk failed: %s", strings.TrimSpace(string(body)))
	}

	var parsed struct {
		Source models.ChunkDocument `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode get response: %w", err)
	}

	return &parsed.Source, nil
}

// DeleteBySource removes every chunk belonging to a source document, used
// before reindexing a paper so stale chunks do not linger.
func (c *Client) DeleteBySource(ctx context.Context, source string) (int64, error) {
	body := map[string]any{
		"query": map[string]any{
			"term": map[string]any{
				"metadata.source": source,
			},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("marshal delete body: %w", err)
	}

	res, err := c.es.DeleteByQuery(
		[]string{c.index},
		bytes.NewReader(payload),
		c.es.DeleteByQuery.WithContext(ctx),
		c.es.DeleteByQuery.WithConflicts("proceed"),
	)
	if err != nil {
		return 0, fmt.Errorf("delete by source: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return 0, fmt.Errorf("delete by source failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Deleted int64 `json:"deleted"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decode delete response: %w", err)
	}

	return parsed.Deleted, nil
}

// VectorSearch runs a kNN query against the dense_vector field.
func (c *Client) VectorSearch(ctx context.Context, vector []float32, topK int) ([]models.SearchResult, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	body := map[string]any{
		"size": topK,
		"knn": map[string]any{
			"field":          "vector",
			"query_vector":   vector,
			"k":              topK,
			"num_candidates": topK * 10,
		},
		"_source": []string{"text", "metadata"},
	}

	return c.search(ctx, body, "vector")
}

// BM25Search runs a keyword match query against the analyzed text field.
func (c *Client) BM25Search(ctx context.Context, query string, topK int) ([]models.SearchResult, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	body := map[string]any{
		"size": topK,
		"query": map[string]any{
			"match": map[string]any{
				"text": map[string]any{"query": query, "operator": "or"},
			},
		},
		"_source": []string{"text", "metadata"},
	}

	return c.search(ctx, body, "bm25")
}

// HybridSearch combines BM25 and kNN in a single native query, using the
// weights as boosts. Callers needing the manual RRF fallback should go
// through Searcher.
func (c *Client) HybridSearch(ctx context.Context, query string, vector []float32, topK int, opts HybridOptions) ([]models.SearchResult, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	opts = opts.withDefaults()

	body := map[string]any{
		"size": topK,
		"query": map[string]any{
			"bool": map[string]any{
				"should": []map[string]any{
					{
						"match": map[string]any{
							"text": map[string]any{"query": query, "boost": opts.BM25Weight},
						},
					},
				},
			},
		},
		"knn": map[string]any{
			"field":          "vector",
			"query_vector":   vector,
			"k":              topK,
			"num_candidates": topK * 10,
			"boost":          opts.VectorWeight,
		},
		"_source": []string{"text", "metadata"},
	}

	return c.search(ctx, body, "hybrid")
}

func (c *Client) search(ctx context.Context, body map[string]any, searchType string) ([]models.SearchResult, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("%s search: %w", searchType, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("%s search failed: %s", searchType, strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID     string  `json:"_id"`
				Score  float64 `json:"_score"`
				Source struct {
					Text     string               `json:"text"`
					Metadata models.ChunkMetadata `json:"metadata"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	results := make([]models.SearchResult, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		source := hit.Source.Metadata.Source
		if source == "" {
			source = "Unknown"
		}
		chunkID := hit.Source.Metadata.ChunkID
		if chunkID == "" {
			chunkID = hit.ID
		}
		results = append(results, models.SearchResult{
			ChunkID:    chunkID,
			Content:    hit.Source.Text,
			Source:     source,
			Page:       hit.Source.Metadata.Page,
			Score:      hit.Score,
			SearchType: searchType,
		})
	}

	return results, nil
}
