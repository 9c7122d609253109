package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"paperscout/internal/elasticsearch"
)

// scriptedLLM replays a fixed sequence of responses.
type scriptedLLM struct {
	responses []*llms.ContentResponse
	calls     [][]llms.MessageContent
}

func (s *scriptedLLM) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	s.calls = append(s.calls, messages)
	if len(s.responses) == 0 {
		return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "out of script"}}}, nil
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func (s *scriptedLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := s.GenerateContent(ctx, []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)}, options...)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

type fakePapers struct {
	queries []string
	result  string
}

func (f *fakePapers) PaperSearch(_ context.Context, query string, mode elasticsearch.Mode, topK int) (string, error) {
	f.queries = append(f.queries, query)
	return f.result, nil
}

type fakeScholar struct {
	queries []string
}

func (f *fakeScholar) SearchFormatted(_ context.Context, query string) (string, error) {
	f.queries = append(f.queries, query)
	return "[1] External Paper", nil
}

func textResponse(text string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: text}}}
}

func toolResponse(id, name, args string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		ToolCalls: []llms.ToolCall{{
			ID:   id,
			Type: "function",
			FunctionCall: &llms.FunctionCall{
				Name:      name,
				Arguments: args,
			},
		}},
	}}}
}

func TestRunDirectAnswer(t *testing.T) {
	llm := &scriptedLLM{responses: []*llms.ContentResponse{textResponse("plain answer")}}
	a, err := New(llm, &fakePapers{}, nil)
	require.NoError(t, err)

	answer, err := a.Run(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, "plain answer", answer)
}

func TestRunWithLocalSearchTool(t *testing.T) {
	llm := &scriptedLLM{responses: []*llms.ContentResponse{
		toolResponse("call-1", "local_paper_search", `{"query":"transformer attention"}`),
		textResponse("The Transformer relies on attention (papers/transformer.pdf, page 9)."),
	}}
	papers := &fakePapers{result: "[1] Source: papers/transformer.pdf, Page: 9"}

	a, err := New(llm, papers, &fakeScholar{})
	require.NoError(t, err)

	answer, err := a.Run(context.Background(), "what is the transformer?")
	require.NoError(t, err)
	require.Contains(t, answer, "Transformer")
	require.Equal(t, []string{"transformer attention"}, papers.queries)

	// The second model call must carry the tool result back.
	require.Len(t, llm.calls, 2)
	last := llm.calls[1][len(llm.calls[1])-1]
	require.Equal(t, llms.ChatMessageTypeTool, last.Role)
	toolResp, ok := last.Parts[0].(llms.ToolCallResponse)
	require.True(t, ok)
	require.Equal(t, "call-1", toolResp.ToolCallID)
	require.Contains(t, toolResp.Content, "papers/transformer.pdf")
}

func TestRunScholarFallback(t *testing.T) {
	llm := &scriptedLLM{responses: []*llms.ContentResponse{
		toolResponse("call-1", "google_scholar_search", `{"query":"latest LoRA research"}`),
		textResponse("Found it externally."),
	}}
	sch := &fakeScholar{}

	a, err := New(llm, &fakePapers{}, sch)
	require.NoError(t, err)

	_, err = a.Run(context.Background(), "any new LoRA papers?")
	require.NoError(t, err)
	require.Equal(t, []string{"latest LoRA research"}, sch.queries)
}

func TestRunScholarUnconfigured(t *testing.T) {
	llm := &scriptedLLM{responses: []*llms.ContentResponse{
		toolResponse("call-1", "google_scholar_search", `{"query":"x"}`),
		textResponse("done"),
	}}

	a, err := New(llm, &fakePapers{}, nil)
	require.NoError(t, err)

	_, err = a.Run(context.Background(), "q")
	require.NoError(t, err)

	toolResp := llm.calls[1][len(llm.calls[1])-1].Parts[0].(llms.ToolCallResponse)
	require.Contains(t, toolResp.Content, "not configured")
}

func TestRunMaxIterations(t *testing.T) {
	loop := toolResponse("call-x", "local_paper_search", `{"query":"again"}`)
	llm := &scriptedLLM{responses: []*llms.ContentResponse{loop, loop, loop}}

	a, err := New(llm, &fakePapers{}, nil, WithMaxIterations(3))
	require.NoError(t, err)

	_, err = a.Run(context.Background(), "q")
	require.ErrorIs(t, err, ErrMaxIterations)
}

func TestRunKeepsConversationHistory(t *testing.T) {
	llm := &scriptedLLM{responses: []*llms.ContentResponse{
		textResponse("first answer"),
		textResponse("second answer"),
	}}

	a, err := New(llm, &fakePapers{}, nil)
	require.NoError(t, err)

	_, err = a.Run(context.Background(), "first question")
	require.NoError(t, err)
	_, err = a.Run(context.Background(), "second question")
	require.NoError(t, err)

	// Second call: system + first turn (2 messages) + new human input.
	require.Len(t, llm.calls[1], 4)

	a.Reset()
	_, err = a.Run(context.Background(), "third question")
	require.NoError(t, err)
	require.Len(t, llm.calls[2], 2)
}

func TestTranslateSummary(t *testing.T) {
	llm := &scriptedLLM{responses: []*llms.ContentResponse{
		textResponse(`{"summary_kr": "한국어 요약", "summary_en": "English summary"}`),
	}}

	a, err := New(llm, &fakePapers{}, nil)
	require.NoError(t, err)

	summary, err := a.TranslateSummary(context.Background(), "chunk content")
	require.NoError(t, err)
	require.Equal(t, "한국어 요약", summary.KR)
	require.Equal(t, "English summary", summary.EN)
}

func TestTranslateSummaryStripsCodeFence(t *testing.T) {
	llm := &scriptedLLM{responses: []*llms.ContentResponse{
		textResponse("```json\n{\"summary_kr\": \"요약\", \"summary_en\": \"summary\"}\n```"),
	}}

	a, err := New(llm, &fakePapers{}, nil)
	require.NoError(t, err)

	summary, err := a.TranslateSummary(context.Background(), "chunk")
	require.NoError(t, err)
	require.Equal(t, "요약", summary.KR)
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, &fakePapers{}, nil)
	require.ErrorIs(t, err, ErrLLMRequired)

	_, err = New(&scriptedLLM{}, nil, nil)
	require.ErrorIs(t, err, ErrSearcherRequired)
}
