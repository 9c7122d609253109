package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"paperscout/internal/config"
	"paperscout/internal/elasticsearch"
	"paperscout/internal/embedding"
	"paperscout/internal/indexing"
	"paperscout/internal/logger"
)

func main() {
	app := &cli.App{
		Name:      "indexer",
		Usage:     "Chunk, embed and index PDF papers into Elasticsearch",
		ArgsUsage: "<pdf file or directory>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "recursive",
				Aliases: []string{"r"},
				Usage:   "Descend into subdirectories when given a directory",
			},
			&cli.BoolFlag{
				Name:  "recreate",
				Usage: "Drop and recreate the index before indexing",
			},
			&cli.StringFlag{
				Name:  "index",
				Usage: "Override the target index name",
			},
			&cli.IntFlag{
				Name:  "chunk-size",
				Usage: "Override the chunk size in characters",
			},
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "Override the embedding batch size",
			},
		},
		Action: indexCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func indexCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one path argument, got %d", c.NArg())
	}
	path := c.Args().First()

	log := logger.New("indexer")

	cfg, err := config.LoadIndexer()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if index := c.String("index"); index != "" {
		cfg.ElasticsearchIndex = index
	}
	if size := c.Int("chunk-size"); size > 0 {
		cfg.ChunkSize = size
	}
	if size := c.Int("batch-size"); size > 0 {
		cfg.BatchSize = size
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		return fmt.Errorf("init elasticsearch: %w", err)
	}

	if err := esClient.EnsureIndex(ctx, cfg.EmbedDims, c.Bool("recreate")); err != nil {
		return fmt.Errorf("ensure index: %w", err)
	}

	embedder, err := embedding.NewOllama(cfg.OllamaAddr, cfg.EmbedModel)
	if err != nil {
		return fmt.Errorf("init embedder: %w", err)
	}

	pipeline, err := indexing.NewPipeline(esClient, embedder, indexing.Options{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		BatchSize:    cfg.BatchSize,
		PoolSize:     cfg.PoolSize,
	}, log)
	if err != nil {
		return fmt.Errorf("init pipeline: %w", err)
	}
	defer pipeline.Release()

	log.Info("indexing started",
		slog.String("path", path),
		slog.String("index", cfg.ElasticsearchIndex),
		slog.Int("chunk_size", cfg.ChunkSize),
		slog.Int("batch_size", cfg.BatchSize),
	)

	stats, err := pipeline.IndexPath(ctx, path, c.Bool("recursive"))
	if err != nil {
		return fmt.Errorf("index %s: %w", path, err)
	}

	log.Info("indexing finished",
		slog.Int("files", stats.Files),
		slog.Int("pages", stats.Pages),
		slog.Int("chunks", stats.Chunks),
		slog.Int("indexed", stats.Indexed),
		slog.Int("skipped", stats.Skipped),
	)

	return nil
}
