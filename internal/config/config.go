package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Common contains Elasticsearch parameters shared by every service.
type Common struct {
	ElasticsearchAddr  string
	ElasticsearchIndex string
}

// Embedding holds the embedding endpoint settings shared by everything
// that turns text into vectors.
type Embedding struct {
	OllamaAddr string
	EmbedModel string
	EmbedDims  int
}

// API describes the backend HTTP service.
type API struct {
	Common
	Embedding
	BindAddr    string
	DefaultTopK int
	MaxTopK     int
	LLMModel    string
	OpenAIKey   string
	OpenAIBase  string
	SerpAPIKey  string
}

// UI describes the frontend web service.
type UI struct {
	BindAddr   string
	BackendURL string
}

// Worker holds configuration for the Kafka -> Elasticsearch ingestion worker.
type Worker struct {
	Common
	Embedding
	KafkaBrokers   []string
	KafkaTopic     string
	KafkaConsumer  string
	ChunkSize      int
	ChunkOverlap   int
	DedupeCapacity int
	DedupeTTL      time.Duration
	BatchSize      int
}

// Indexer configures the batch PDF indexing pipeline.
type Indexer struct {
	Common
	Embedding
	ChunkSize    int
	ChunkOverlap int
	BatchSize    int
	PoolSize     int
}

// Launcher configures the process supervisor.
type Launcher struct {
	BackendCmd    string
	FrontendCmd   string
	BackendURL    string
	FrontendURL   string
	ShutdownGrace time.Duration
}

// Search configures the standalone search CLI, which talks to
// Elasticsearch and the embedding endpoint directly.
type Search struct {
	Common
	Embedding
	BackendURL string
}

func loadCommon() Common {
	return Common{
		ElasticsearchAddr:  getEnv("ELASTIC_ENDPOINT", "http://localhost:9200"),
		ElasticsearchIndex: getEnv("ELASTIC_INDEX", "papers-rag-local"),
	}
}

func loadEmbedding() Embedding {
	return Embedding{
		OllamaAddr: getEnv("OLLAMA_ADDR", "http://localhost:11434"),
		EmbedModel: getEnv("EMBED_MODEL", "nomic-embed-text"),
		EmbedDims:  getInt("EMBED_DIMS", 768),
	}
}

// LoadAPI builds the backend API config from environment variables.
func LoadAPI() (*API, error) {
	loadDotenv()

	c := &API{
		Common:      loadCommon(),
		Embedding:   loadEmbedding(),
		BindAddr:    getEnv("API_BIND_ADDR", "0.0.0.0:8000"),
		DefaultTopK: getInt("SEARCH_TOP_K", 4),
		MaxTopK:     getInt("SEARCH_MAX_TOP_K", 20),
		LLMModel:    getEnv("LLM_MODEL", "gpt-4o-mini"),
		OpenAIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIBase:  getEnv("OPENAI_BASE_URL", ""),
		SerpAPIKey:  getEnv("SERPAPI_API_KEY", ""),
	}

	if c.DefaultTopK <= 0 {
		return nil, fmt.Errorf("SEARCH_TOP_K must be positive")
	}
	if c.MaxTopK <= 0 {
		return nil, fmt.Errorf("SEARCH_MAX_TOP_K must be positive")
	}
	if c.DefaultTopK > c.MaxTopK {
		return nil, fmt.Errorf("SEARCH_TOP_K cannot exceed SEARCH_MAX_TOP_K")
	}
	if c.EmbedDims <= 0 {
		return nil, fmt.Errorf("EMBED_DIMS must be positive")
	}

	return c, nil
}

// LoadUI builds the frontend config from environment variables.
func LoadUI() (*UI, error) {
	loadDotenv()

	c := &UI{
		BindAddr:   getEnv("UI_BIND_ADDR", "0.0.0.0:8501"),
		BackendURL: strings.TrimRight(getEnv("BACKEND_URL", "http://localhost:8000"), "/"),
	}

	if c.BackendURL == "" {
		return nil, fmt.Errorf("BACKEND_URL must not be empty")
	}

	return c, nil
}

// LoadWorker builds the ingestion worker config from environment variables.
func LoadWorker() (*Worker, error) {
	loadDotenv()

	c := &Worker{
		Common:         loadCommon(),
		Embedding:      loadEmbedding(),
		KafkaBrokers:   splitAndTrim(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "papers_raw"),
		KafkaConsumer:  getEnv("KAFKA_CONSUMER_GROUP", "paper-worker"),
		ChunkSize:      getInt("CHUNK_SIZE", 600),
		ChunkOverlap:   getInt("CHUNK_OVERLAP", 100),
		DedupeCapacity: getInt("WORKER_DEDUPE_CAPACITY", 20000),
		DedupeTTL:      getDuration("WORKER_DEDUPE_TTL", "24h"),
		BatchSize:      getInt("WORKER_BATCH_SIZE", 10),
	}

	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.ChunkSize <= 0 {
		return nil, fmt.Errorf("CHUNK_SIZE must be positive")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return nil, fmt.Errorf("CHUNK_OVERLAP must be non-negative and below CHUNK_SIZE")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_CAPACITY must be positive")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("WORKER_BATCH_SIZE must be positive")
	}

	return c, nil
}

// LoadIndexer builds the batch indexer config from environment variables.
func LoadIndexer() (*Indexer, error) {
	loadDotenv()

	c := &Indexer{
		Common:       loadCommon(),
		Embedding:    loadEmbedding(),
		ChunkSize:    getInt("CHUNK_SIZE", 600),
		ChunkOverlap: getInt("CHUNK_OVERLAP", 100),
		BatchSize:    getInt("INDEXER_BATCH_SIZE", 32),
		PoolSize:     getInt("INDEXER_POOL_SIZE", 4),
	}

	if c.ChunkSize <= 0 {
		return nil, fmt.Errorf("CHUNK_SIZE must be positive")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return nil, fmt.Errorf("CHUNK_OVERLAP must be non-negative and below CHUNK_SIZE")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("INDEXER_BATCH_SIZE must be positive")
	}
	if c.PoolSize <= 0 {
		return nil, fmt.Errorf("INDEXER_POOL_SIZE must be positive")
	}

	return c, nil
}

// LoadLauncher builds the supervisor config from environment variables.
func LoadLauncher() (*Launcher, error) {
	loadDotenv()

	c := &Launcher{
		BackendCmd:    getEnv("LAUNCHER_BACKEND_CMD", "bin/api"),
		FrontendCmd:   getEnv("LAUNCHER_FRONTEND_CMD", "bin/ui"),
		BackendURL:    getEnv("LAUNCHER_BACKEND_URL", "http://localhost:8000"),
		FrontendURL:   getEnv("LAUNCHER_FRONTEND_URL", "http://localhost:8501"),
		ShutdownGrace: getDuration("LAUNCHER_GRACE", "5s"),
	}

	if c.BackendCmd == "" || c.FrontendCmd == "" {
		return nil, fmt.Errorf("launcher commands must not be empty")
	}
	if c.ShutdownGrace <= 0 {
		return nil, fmt.Errorf("LAUNCHER_GRACE must be positive")
	}

	return c, nil
}

// LoadSearch builds the search CLI config from environment variables.
func LoadSearch() (*Search, error) {
	loadDotenv()

	return &Search{
		Common:     loadCommon(),
		Embedding:  loadEmbedding(),
		BackendURL: strings.TrimRight(getEnv("BACKEND_URL", "http://localhost:8000"), "/"),
	}, nil
}

// loadDotenv pulls in a repository-root .env file when present. Variables
// already set in the environment win.
func loadDotenv() {
	_ = godotenv.Load()
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
