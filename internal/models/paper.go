package models

// ChunkMetadata describes where a chunk came from.
type ChunkMetadata struct {
	Source  string `json:"source"`
	Page    int    `json:"page"`
	ChunkID string `json:"chunk_id"`
}

// ChunkDocument is the canonical structure stored in Elasticsearch.
// The vector field backs kNN search, the text field backs BM25.
type ChunkDocument struct {
	Text     string        `json:"text"`
	Vector   []float32     `json:"vector"`
	Metadata ChunkMetadata `json:"metadata"`
}

// SearchResult is a single retrieved chunk with its retrieval score.
// SearchType records which retrieval mode produced it: "vector", "bm25"
// or "hybrid".
type SearchResult struct {
	ChunkID    string  `json:"chunk_id,omitempty"`
	Content    string  `json:"content"`
	Source     string  `json:"source"`
	Page       int     `json:"page"`
	Score      float64 `json:"score"`
	SearchType string  `json:"search_type"`
}

// Paper is the summary-level shape the frontend renders for each hit.
type Paper struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Authors string `json:"authors"`
	Summary string `json:"summary"`
	URL     string `json:"url,omitempty"`
}
