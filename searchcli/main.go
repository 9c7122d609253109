package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"paperscout/internal/config"
	"paperscout/internal/elasticsearch"
	"paperscout/internal/embedding"
	"paperscout/internal/models"
)

func main() {
	app := &cli.App{
		Name:      "searchcli",
		Usage:     "Query the paper index from the terminal",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "mode",
				Aliases: []string{"m"},
				Usage:   "Search mode: vector, bm25 or hybrid",
				Value:   "hybrid",
			},
			&cli.IntFlag{
				Name:    "top-k",
				Aliases: []string{"k"},
				Usage:   "Number of results to return",
				Value:   elasticsearch.DefaultTopK,
			},
			&cli.BoolFlag{
				Name:    "compare",
				Aliases: []string{"c"},
				Usage:   "Run all three modes and print them side by side",
			},
		},
		Action: searchCommand,
		Commands: []*cli.Command{
			{
				Name:   "tui",
				Usage:  "Interactive search session",
				Action: tuiCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildSearcher wires the Elasticsearch client and the embedder from the
// environment. The CLI talks to the cluster directly, no backend involved.
func buildSearcher(logWriter io.Writer) (*elasticsearch.Searcher, error) {
	cfg, err := config.LoadSearch()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{Level: slog.LevelWarn}))

	client, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		return nil, fmt.Errorf("init elasticsearch: %w", err)
	}

	embedder, err := embedding.NewOllama(cfg.OllamaAddr, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}

	return elasticsearch.NewSearcher(client, embedder, log), nil
}

func searchCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one query argument, got %d", c.NArg())
	}
	query := c.Args().First()
	topK := c.Int("top-k")

	searcher, err := buildSearcher(os.Stderr)
	if err != nil {
		return err
	}

	ctx := context.Background()

	if c.Bool("compare") {
		for _, mode := range []elasticsearch.Mode{elasticsearch.ModeVector, elasticsearch.ModeBM25, elasticsearch.ModeHybrid} {
			results, err := searcher.Search(ctx, query, mode, topK)
			if err != nil {
				return fmt.Errorf("%s search: %w", mode, err)
			}
			printResults(string(mode), results)
		}
		return nil
	}

	mode := elasticsearch.ParseMode(c.String("mode"))
	results, err := searcher.Search(ctx, query, mode, topK)
	if err != nil {
		return fmt.Errorf("%s search: %w", mode, err)
	}

	printResults(string(mode), results)
	return nil
}

func printResults(mode string, results []models.SearchResult) {
	header := color.New(color.FgCyan, color.Bold)
	source := color.New(color.FgGreen)
	score := color.New(color.FgYellow)

	header.Printf("=== %s (%d results) ===\n", mode, len(results))

	if len(results) == 0 {
		fmt.Println("No relevant papers found in local DB.")
		fmt.Println()
		return
	}

	for i, r := range results {
		fmt.Printf("[%d] ", i+1)
		source.Printf("%s, page %d", r.Source, r.Page)
		fmt.Print("  ")
		score.Printf("score %.4f\n", r.Score)
		fmt.Printf("    %s\n", r.Content)
	}
	fmt.Println()
}
