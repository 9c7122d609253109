package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tmc/langchaingo/llms/openai"

	"paperscout/internal/agent"
	"paperscout/internal/config"
	"paperscout/internal/elasticsearch"
	"paperscout/internal/embedding"
	"paperscout/internal/logger"
	"paperscout/internal/models"
	"paperscout/internal/processing"
	"paperscout/internal/scholar"
)

func main() {
	log := logger.New("api")
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	embedder, err := embedding.NewOllama(cfg.OllamaAddr, cfg.EmbedModel)
	if err != nil {
		log.Error("init embedder", slog.Any("err", err))
		os.Exit(1)
	}

	searcher := elasticsearch.NewSearcher(esClient, embedder, log)

	srv := &server{log: log, cfg: cfg, searcher: searcher, chunks: esClient}

	if cfg.OpenAIKey != "" {
		opts := []openai.Option{
			openai.WithToken(cfg.OpenAIKey),
			openai.WithModel(cfg.LLMModel),
		}
		if cfg.OpenAIBase != "" {
			opts = append(opts, openai.WithBaseURL(cfg.OpenAIBase))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			log.Error("init llm", slog.Any("err", err))
			os.Exit(1)
		}

		var scholarClient agent.ScholarSearcher
		if cfg.SerpAPIKey != "" {
			scholarClient = scholar.New(cfg.SerpAPIKey)
		} else {
			log.Warn("SERPAPI_API_KEY not set, Google Scholar tool disabled")
		}

		ag, err := agent.New(llm, searcher, scholarClient,
			agent.WithTopK(cfg.DefaultTopK),
			agent.WithLogger(log),
		)
		if err != nil {
			log.Error("init agent", slog.Any("err", err))
			os.Exit(1)
		}
		srv.agent = ag
	} else {
		log.Warn("OPENAI_API_KEY not set, agent endpoints disabled")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", srv.handleHealth)
	r.Get("/search", srv.handleSearch)
	r.Post("/agent/query", srv.handleAgentQuery)
	r.Post("/agent/translate_summary", srv.handleTranslateSummary)

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	go func() {
		log.Info("api server starting", slog.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}

// paperSearcher is the retrieval surface the handlers need.
type paperSearcher interface {
	Search(ctx context.Context, query string, mode elasticsearch.Mode, topK int) ([]models.SearchResult, error)
}

// queryAgent is the LLM surface the handlers need.
type queryAgent interface {
	Run(ctx context.Context, input string) (string, error)
	TranslateSummary(ctx context.Context, content string) (agent.Summary, error)
}

// chunkStore fetches stored chunks by id and reports cluster health.
type chunkStore interface {
	GetChunk(ctx context.Context, id string) (*models.ChunkDocument, error)
	Health(ctx context.Context) error
}

type server struct {
	log      *slog.Logger
	cfg      *config.API
	searcher paperSearcher
	agent    queryAgent
	chunks   chunkStore
}

type errorResponse struct {
	Error string `json:"error"`
}

type searchResponse struct {
	Query   string                `json:"query"`
	Mode    string                `json:"mode"`
	Results []models.SearchResult `json:"results"`
}

type agentQueryRequest struct {
	Query string `json:"query"`
	Mode  string `json:"mode"`
}

type agentQueryResponse struct {
	RAGAnswer     string         `json:"rag_answer"`
	RelatedPapers []models.Paper `json:"related_papers"`
}

type translateRequest struct {
	PaperID string `json:"paper_id"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.chunks.Health(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "query parameter q is required"})
		return
	}

	mode := elasticsearch.ParseMode(r.URL.Query().Get("mode"))
	topK := clampInt(r.URL.Query().Get("top_k"), s.cfg.DefaultTopK, s.cfg.MaxTopK)

	results, err := s.searcher.Search(ctx, query, mode, topK)
	if err != nil {
		s.log.Error("search failed", slog.String("query", query), slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{Query: query, Mode: string(mode), Results: results})
}

// handleAgentQuery serves the chat surface. RAG mode runs the full agent
// loop; keyword mode skips the LLM and returns matching papers only.
func (s *server) handleAgentQuery(w http.ResponseWriter, r *http.Request) {
	var req agentQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "query must not be empty"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 120*time.Second)
	defer cancel()

	if isKeywordMode(req.Mode) {
		results, err := s.searcher.Search(ctx, req.Query, elasticsearch.ModeBM25, s.cfg.DefaultTopK)
		if err != nil {
			s.log.Error("keyword search failed", slog.Any("err", err))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, agentQueryResponse{RelatedPapers: toPapers(results)})
		return
	}

	if s.agent == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "agent is not configured, set OPENAI_API_KEY"})
		return
	}

	answer, err := s.agent.Run(ctx, req.Query)
	if err != nil {
		s.log.Error("agent run failed", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	// Related papers come from a plain hybrid search so the list stays
	// useful even when the agent answered from Scholar.
	results, err := s.searcher.Search(ctx, req.Query, elasticsearch.ModeHybrid, s.cfg.DefaultTopK)
	if err != nil {
		s.log.Warn("related paper search failed", slog.Any("err", err))
		results = nil
	}

	writeJSON(w, http.StatusOK, agentQueryResponse{
		RAGAnswer:     answer,
		RelatedPapers: toPapers(results),
	})
}

func (s *server) handleTranslateSummary(w http.ResponseWriter, r *http.Request) {
	if s.agent == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "agent is not configured, set OPENAI_API_KEY"})
		return
	}

	var req translateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	req.PaperID = strings.TrimSpace(req.PaperID)
	if req.PaperID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "paper_id must not be empty"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	chunk, err := s.chunks.GetChunk(ctx, req.PaperID)
	if err != nil {
		s.log.Error("get chunk failed", slog.String("id", req.PaperID), slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if chunk == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "paper not found"})
		return
	}

	summary, err := s.agent.TranslateSummary(ctx, chunk.Text)
	if err != nil {
		s.log.Error("translate summary failed", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// isKeywordMode accepts both the Korean UI label and its short form.
func isKeywordMode(raw string) bool {
	mode := strings.ToLower(strings.TrimSpace(raw))
	return mode == "keyword" || strings.Contains(mode, "키워드")
}

// toPapers collapses retrieved chunks into the paper cards the frontend
// renders, keeping the first chunk per source file.
func toPapers(results []models.SearchResult) []models.Paper {
	papers := make([]models.Paper, 0, len(results))
	seen := make(map[string]bool, len(results))

	for _, r := range results {
		if seen[r.Source] {
			continue
		}
		seen[r.Source] = true

		papers = append(papers, models.Paper{
			ID:      r.ChunkID,
			Title:   processing.TitleFromSource(r.Source),
			Authors: "Unknown",
			Summary: processing.Truncate(r.Content, 300),
		})
	}

	return papers
}

func clampInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
