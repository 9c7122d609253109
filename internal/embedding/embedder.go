// Package embedding provides text embeddings backed by a local Ollama
// endpoint. The index uses cosine similarity, so vector magnitude does not
// affect ranking.
package embedding

import (
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
)

// NewOllama builds a langchaingo embedder against the given Ollama server
// and embedding model.
func NewOllama(addr, model string) (embeddings.Embedder, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(addr),
		ollama.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(llm, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	return embedder, nil
}
