package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"paperscout/internal/config"
	"paperscout/internal/elasticsearch"
	"paperscout/internal/embedding"
	"paperscout/internal/indexing"
	"paperscout/internal/logger"
)

// rawPage is the message shape crawlers publish: one page of extracted
// paper text per message.
type rawPage struct {
	Source string `json:"source"`
	Page   int    `json:"page"`
	Text   string `json:"text"`
}

// pageIndexer is the pipeline surface the consume loop needs.
type pageIndexer interface {
	IndexPage(ctx context.Context, source string, page int, text string) (int, error)
}

func main() {
	log := logger.New("worker")
	cfg, err := config.LoadWorker()
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

	pipeline, err := indexing.NewPipeline(esClient, embedder, indexing.Options{
		ChunkSize:      cfg.ChunkSize,
		ChunkOverlap:   cfg.ChunkOverlap,
		BatchSize:      cfg.BatchSize,
		DedupeCapacity: cfg.DedupeCapacity,
		DedupeTTL:      cfg.DedupeTTL,
	}, log)
	if err != nil {
		log.Error("init pipeline", slog.Any("err", err))
		os.Exit(1)
	}
	defer pipeline.Release()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := waitForElasticsearch(ctx, log, esClient); err != nil {
		log.Error("elasticsearch unavailable", slog.Any("err", err))
		os.Exit(1)
	}

	if err := esClient.EnsureIndex(ctx, cfg.EmbedDims, false); err != nil {
		log.Error("ensure index", slog.Any("err", err))
		os.Exit(1)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		Topic:          cfg.KafkaTopic,
		GroupID:        cfg.KafkaConsumer,
		QueueCapacity:  cfg.BatchSize,
		MinBytes:       1e3,
		MaxBytes:       10e6,
		CommitInterval: 0, // Disable auto-commit; manual commit only
	})
	defer reader.Close()

	dlqWriter := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       cfg.KafkaTopic + "_dlq",
		MaxAttempts: 3,
	})
	defer dlqWriter.Close()

	log.Info("worker started",
		slog.String("topic", cfg.KafkaTopic),
		slog.String("group", cfg.KafkaConsumer),
		slog.String("dlq_topic", cfg.KafkaTopic+"_dlq"),
	)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("context canceled, stopping")
				return
			}
			log.Error("fetch message", slog.Any("err", err))
			continue
		}

		if err := processMessage(ctx, log, pipeline, msg); err != nil {
			log.Warn("process message failed, sending to DLQ",
				slog.Any("err", err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)

			dlqMsg := kafka.Message{
				Value: msg.Value,
				Headers: append(msg.Headers,
					kafka.Header{Key: "original_partition", Value: []byte(fmt.Sprintf("%d", msg.Partition))},
					kafka.Header{Key: "original_offset", Value: []byte(fmt.Sprintf("%d", msg.Offset))},
					kafka.Header{Key: "error", Value: []byte(err.Error())},
					kafka.Header{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
				),
			}

			// Retry DLQ write with exponential backoff.
			dlqSuccess := false
			for attempt := range 5 {
				if dlqErr := dlqWriter.WriteMessages(ctx, dlqMsg); dlqErr == nil {
					dlqSuccess = true
					log.Info("message sent to DLQ",
						slog.Int("partition", msg.Partition),
						slog.Int64("offset", msg.Offset),
						slog.Int("attempt", attempt+1),
					)
					break
				} else {
					backoff := time.Duration(1<<uint(attempt)) * time.Second
					log.Warn("DLQ write failed, retrying",
						slog.Any("err", dlqErr),
						slog.Int("attempt", attempt+1),
						slog.Duration("backoff", backoff),
					)
					select {
					case <-time.After(backoff):
					case <-ctx.Done():
						log.Info("context canceled during DLQ retry")
						return
					}
				}
			}

			// Only commit if the DLQ write succeeded; otherwise the
			// message is reprocessed after restart.
			if dlqSuccess {
				if err := reader.CommitMessages(ctx, msg); err != nil {
					log.Error("commit failed message to dlq", slog.Any("err", err))
				}
			} else {
				log.Error("DLQ write exhausted retries, message may be lost if later messages commit",
					slog.Int("partition", msg.Partition),
					slog.Int64("offset", msg.Offset),
				)
			}
			continue
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Error("commit message", slog.Any("err", err))
		}
	}
}

func processMessage(ctx context.Context, log *slog.Logger, pipeline pageIndexer, msg kafka.Message) error {
	var payload rawPage
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		return err
	}

	source := strings.TrimSpace(payload.Source)
	text := strings.TrimSpace(payload.Text)
	if text == "" {
		return errors.New("empty page text")
	}
	if source == "" {
		source = "unknown"
	}
	if payload.Page < 0 {
		return fmt.Errorf("negative page number %d", payload.Page)
	}

	indexed, err := pipeline.IndexPage(ctx, source, payload.Page, text)
	if err != nil {
		return err
	}

	log.Info("indexed page",
		slog.String("source", source),
		slog.Int("page", payload.Page),
		slog.Int("chunks", indexed),
	)
	return nil
}

// waitForElasticsearch pings the cluster with backoff so the worker survives
// being started before Elasticsearch is up.
func waitForElasticsearch(ctx context.Context, log *slog.Logger, es *elasticsearch.Client) error {
	const attempts = 10

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		lastErr = es.Ping(pingCtx)
		cancel()
		if lastErr == nil {
			return nil
		}

		backoff := time.Duration(attempt) * time.Second
		log.Warn("elasticsearch not ready",
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.Any("err", lastErr),
		)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return lastErr
}
