// Package agent runs a tool-calling LLM loop over the local paper index and
// Google Scholar.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"

	"paperscout/internal/elasticsearch"
)

var (
	// ErrLLMRequired is returned when no language model is provided.
	ErrLLMRequired = errors.New("language model required")

	// ErrSearcherRequired is returned when no paper searcher is provided.
	ErrSearcherRequired = errors.New("paper searcher required")

	// ErrMaxIterations is returned when the tool loop does not converge.
	ErrMaxIterations = errors.New("agent exceeded maximum tool iterations")
)

const (
	toolLocalSearch   = "local_paper_search"
	toolScholarSearch = "google_scholar_search"

	defaultMaxIterations = 5
)

// PaperSearcher is the local knowledge-base tool surface.
type PaperSearcher interface {
	PaperSearch(ctx context.Context, query string, mode elasticsearch.Mode, topK int) (string, error)
}

// ScholarSearcher is the external search tool surface.
type ScholarSearcher interface {
	SearchFormatted(ctx context.Context, query string) (string, error)
}

// Summary is the bilingual summary produced for a paper chunk.
type Summary struct {
	KR string `json:"summary_kr"`
	EN string `json:"summary_en"`
}

// Agent holds the model, its tools, and the conversation buffer.
type Agent struct {
	llm     llms.Model
	papers  PaperSearcher
	scholar ScholarSearcher
	topK    int
	maxIter int
	log     *slog.Logger

	mu      sync.Mutex
	history []llms.MessageContent
}

// Option configures an Agent.
type Option func(*Agent)

// WithTopK sets the result count passed to the local search tool.
func WithTopK(topK int) Option {
	return func(a *Agent) {
		if topK > 0 {
			a.topK = topK
		}
	}
}

// WithMaxIterations bounds the tool-calling loop.
func WithMaxIterations(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxIter = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		if logger != nil {
			a.log = logger
		}
	}
}

// New creates an agent. The scholar searcher may be nil; the tool then
// reports that external search is unavailable.
func New(llm llms.Model, papers PaperSearcher, scholar ScholarSearcher, opts ...Option) (*Agent, error) {
	if llm == nil {
		return nil, ErrLLMRequired
	}
	if papers == nil {
		return nil, ErrSearcherRequired
	}

	a := &Agent{
		llm:     llm,
		papers:  papers,
		scholar: scholar,
		topK:    elasticsearch.DefaultTopK,
		maxIter: defaultMaxIterations,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

var agentTools = []llms.Tool{
	{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        toolLocalSearch,
			Description: "Search for paper contents stored in the local knowledge base (Elasticsearch). Use this FIRST.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "The search query for academic papers or knowledge base.",
					},
				},
				"required": []string{"query"},
			},
		},
	},
	{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        toolScholarSearch,
			Description: "Search for external academic papers using Google Scholar. Use this if local search fails or for latest research.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "The search query for academic papers or knowledge base.",
					},
				},
				"required": []string{"query"},
			},
		},
	},
}

// Run answers one user turn, calling tools as the model requests. The turn
// is appended to the conversation buffer on success.
func (a *Agent) Run(ctx context.Context, input string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	messages := make([]llms.MessageContent, 0, len(a.history)+2)
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt))
	messages = append(messages, a.history...)
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, input))

	for i := 0; i < a.maxIter; i++ {
		resp, err := a.llm.GenerateContent(ctx, messages, llms.WithTools(agentTools))
		if err != nil {
			return "", fmt.Errorf("generate content: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", errors.New("model returned no choices")
		}

		choice := resp.Choices[0]
		if len(choice.ToolCalls) == 0 {
			answer := choice.Content
			a.history = append(a.history,
				llms.TextParts(llms.ChatMessageTypeHuman, input),
				llms.TextParts(llms.ChatMessageTypeAI, answer),
			)
			return answer, nil
		}

		assistant := llms.MessageContent{Role: llms.ChatMessageTypeAI}
		for _, tc := range choice.ToolCalls {
			assistant.Parts = append(assistant.Parts, tc)
		}
		messages = append(messages, assistant)

		for _, tc := range choice.ToolCalls {
			output := a.callTool(ctx, tc)
			messages = append(messages, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{
					llms.ToolCallResponse{
						ToolCallID: tc.ID,
						Name:       tc.FunctionCall.Name,
						Content:    output,
					},
				},
			})
		}
	}

	return "", ErrMaxIterations
}

// Reset clears the conversation buffer.
func (a *Agent) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = nil
}

// callTool executes a single tool call. Tool failures are reported back to
// the model as tool output so it can recover.
func (a *Agent) callTool(ctx context.Context, tc llms.ToolCall) string {
	if tc.FunctionCall == nil {
		return "error: malformed tool call"
	}

	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), &args); err != nil {
		return fmt.Sprintf("error: invalid tool arguments: %v", err)
	}

	a.log.Debug("tool call",
		slog.String("tool", tc.FunctionCall.Name),
		slog.String("query", args.Query),
	)

	switch tc.FunctionCall.Name {
	case toolLocalSearch:
		out, err := a.papers.PaperSearch(ctx, args.Query, elasticsearch.ModeHybrid, a.topK)
		if err != nil {
			return fmt.Sprintf("error searching local papers: %v", err)
		}
		return out
	case toolScholarSearch:
		if a.scholar == nil {
			return "Google Scholar search is not configured."
		}
		out, err := a.scholar.SearchFormatted(ctx, args.Query)
		if err != nil {
			return fmt.Sprintf("error fetching results from Google Scholar: %v", err)
		}
		return out
	default:
		return fmt.Sprintf("error: unknown tool %q", tc.FunctionCall.Name)
	}
}

// TranslateSummary produces Korean and English summaries for a paper chunk.
func (a *Agent) TranslateSummary(ctx context.Context, content string) (Summary, error) {
	prompt := fmt.Sprintf(translatePrompt, content)

	resp, err := a.llm.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}, llms.WithJSONMode())
	if err != nil {
		return Summary{}, fmt.Errorf("generate summary: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Summary{}, errors.New("model returned no choices")
	}

	var summary Summary
	raw := extractJSON(resp.Choices[0].Content)
	if err := json.Unmarshal([]byte(raw), &summary); err != nil {
		return Summary{}, fmt.Errorf("parse summary response: %w", err)
	}

	return summary, nil
}

// extractJSON trims surrounding prose or code fences around a JSON object.
func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
