package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v2"

	"paperscout/internal/elasticsearch"
	"paperscout/internal/models"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func tuiCommand(*cli.Context) error {
	searcher, err := buildSearcher(io.Discard)
	if err != nil {
		return err
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return fmt.Errorf("init renderer: %w", err)
	}

	input := textinput.New()
	input.Placeholder = "search the paper index (v: vector, b: bm25, c: compare)"
	input.Focus()
	input.CharLimit = 300
	input.Width = 80

	model := tuiModel{
		searcher: searcher,
		renderer: renderer,
		input:    input,
	}

	_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
	return err
}

type resultsMsg struct {
	rendered string
	took     time.Duration
}

type searchErrMsg struct{ err error }

type tuiModel struct {
	searcher *elasticsearch.Searcher
	renderer *glamour.TermRenderer
	input    textinput.Model

	results   string
	took      time.Duration
	err       error
	searching bool
}

func (m tuiModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			query := strings.TrimSpace(m.input.Value())
			if query == "" || m.searching {
				return m, nil
			}
			m.searching = true
			m.err = nil
			return m, m.search(query)
		}

	case resultsMsg:
		m.searching = false
		m.results = msg.rendered
		m.took = msg.took

	case searchErrMsg:
		m.searching = false
		m.err = msg.err
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m tuiModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("📚 Paper Scout"))
	b.WriteString("\n\n")
	b.WriteString(m.input.View())
	b.WriteString("\n\n")

	switch {
	case m.searching:
		b.WriteString("Searching...\n")
	case m.err != nil:
		b.WriteString(errStyle.Render("Error: " + m.err.Error()))
		b.WriteString("\n")
	case m.results != "":
		b.WriteString(m.results)
		b.WriteString(helpStyle.Render(fmt.Sprintf("(%s)", m.took.Round(time.Millisecond))))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter search, prefix v:/b:/c: to switch mode, esc quit"))

	return b.String()
}

// search runs the query off the update loop and reports back as a message.
func (m tuiModel) search(raw string) tea.Cmd {
	return func() tea.Msg {
		mode, compare, query := parseQueryPrefix(raw)

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		start := time.Now()

		var md strings.Builder
		modes := []elasticsearch.Mode{mode}
		if compare {
			modes = []elasticsearch.Mode{elasticsearch.ModeVector, elasticsearch.ModeBM25, elasticsearch.ModeHybrid}
		}

		for _, mode := range modes {
			results, err := m.searcher.Search(ctx, query, mode, elasticsearch.DefaultTopK)
			if err != nil {
				return searchErrMsg{err: fmt.Errorf("%s search: %w", mode, err)}
			}
			md.WriteString(resultsMarkdown(mode, results))
		}

		rendered, err := m.renderer.Render(md.String())
		if err != nil {
			rendered = md.String()
		}

		return resultsMsg{rendered: rendered, took: time.Since(start)}
	}
}

// parseQueryPrefix splits an optional mode prefix off the query:
// "v: foo" searches vectors, "b: foo" BM25, "c: foo" compares all modes.
func parseQueryPrefix(raw string) (elasticsearch.Mode, bool, string) {
	trimmed := strings.TrimSpace(raw)
	lower := strings.ToLower(trimmed)

	switch {
	case strings.HasPrefix(lower, "v:"):
		return elasticsearch.ModeVector, false, strings.TrimSpace(trimmed[2:])
	case strings.HasPrefix(lower, "b:"):
		return elasticsearch.ModeBM25, false, strings.TrimSpace(trimmed[2:])
	case strings.HasPrefix(lower, "c:"):
		return elasticsearch.ModeHybrid, true, strings.TrimSpace(trimmed[2:])
	default:
		return elasticsearch.ModeHybrid, false, trimmed
	}
}

// resultsMarkdown renders one mode's results as a markdown section.
func resultsMarkdown(mode elasticsearch.Mode, results []models.SearchResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## %s (%d results)\n\n", mode, len(results))

	if len(results) == 0 {
		b.WriteString("No relevant papers found in local DB.\n\n")
		return b.String()
	}

	for i, r := range results {
		fmt.Fprintf(&b, "**[%d] %s, page %d** · score %.4f\n\n", i+1, r.Source, r.Page, r.Score)
		fmt.Fprintf(&b, "> %s\n\n", r.Content)
	}

	return b.String()
}
