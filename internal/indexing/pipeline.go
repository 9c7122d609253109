package indexing

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"

	"paperscout/internal/dedupe"
	"paperscout/internal/models"
	"paperscout/internal/processing"
)

// Indexer is the chunk sink, satisfied by the Elasticsearch client.
type Indexer interface {
	IndexChunk(ctx context.Context, doc models.ChunkDocument) error
	DeleteBySource(ctx context.Context, source string) (int64, error)
}

// Embedder produces document embeddings for chunk batches.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Options tune the pipeline. DedupeTTL zero means entries never expire.
type Options struct {
	ChunkSize      int
	ChunkOverlap   int
	BatchSize      int
	PoolSize       int
	DedupeCapacity int
	DedupeTTL      time.Duration
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 600
	}
	if o.ChunkOverlap < 0 {
		o.ChunkOverlap = 0
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 32
	}
	if o.PoolSize <= 0 {
		o.PoolSize = 4
	}
	if o.DedupeCapacity <= 0 {
		o.DedupeCapacity = 20000
	}
	return o
}

// Stats summarizes an indexing run.
type Stats struct {
	Files   int
	Pages   int
	Chunks  int
	Indexed int
	Skipped int
}

// Pipeline chunks paper pages, embeds them in batches on a worker pool, and
// writes the results into the hybrid index.
type Pipeline struct {
	indexer  Indexer
	embedder Embedder
	splitter textsplitter.RecursiveCharacter
	pool     *ants.Pool
	cache    *dedupe.Cache
	opts     Options
	log      *slog.Logger
}

// NewPipeline constructs a pipeline with its worker pool.
func NewPipeline(indexer Indexer, embedder Embedder, opts Options, logger *slog.Logger) (*Pipeline, error) {
	if indexer == nil {
		return nil, errors.New("indexer required")
	}
	if embedder == nil {
		return nil, errors.New("embedder required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()

	pool, err := ants.NewPool(opts.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(opts.ChunkSize),
		textsplitter.WithChunkOverlap(opts.ChunkOverlap),
		textsplitter.WithSeparators([]string{"\n\n", "\n", ". ", " ", ""}),
	)

	return &Pipeline{
		indexer:  indexer,
		embedder: embedder,
		splitter: splitter,
		pool:     pool,
		cache:    dedupe.NewCache(opts.DedupeCapacity, opts.DedupeTTL),
		opts:     opts,
		log:      logger,
	}, nil
}

// Release frees the worker pool.
func (p *Pipeline) Release() {
	p.pool.Release()
}

// IndexPath indexes a PDF file or a directory of PDFs. Existing chunks for
// each source are removed first so reindexing never leaves stale chunks.
func (p *Pipeline) IndexPath(ctx context.Context, path string, recursive bool) (Stats, error) {
	var stats Stats

	files, err := collectPDFs(path, recursive)
	if err != nil {
		return stats, err
	}
	if len(files) == 0 {
		return stats, fmt.Errorf("no PDF files found at %s", path)
	}

	for _, file := range files {
		pages, err := loadPDF(ctx, file)
		if err != nil {
			return stats, fmt.Errorf("load %s: %w", file, err)
		}

		stats.Files++
		stats.Pages += len(pages)

		if deleted, err := p.indexer.DeleteBySource(ctx, file); err != nil {
			p.log.Warn("delete stale chunks", slog.String("source", file), slog.Any("err", err))
		} else if deleted > 0 {
			p.log.Info("removed stale chunks", slog.String("source", file), slog.Int64("deleted", deleted))
		}

		var chunks []models.ChunkDocument
		for _, page := range pages {
			pageChunks, err := p.buildChunks(file, pageNumber(page.Metadata), page.PageContent)
			if err != nil {
				return stats, err
			}
			chunks = append(chunks, pageChunks...)
		}
		stats.Chunks += len(chunks)

		indexed, skipped, err := p.indexBatches(ctx, chunks)
		stats.Indexed += indexed
		stats.Skipped += skipped
		if err != nil {
			return stats, fmt.Errorf("index %s: %w", file, err)
		}

		p.log.Info("indexed paper",
			slog.String("source", file),
			slog.Int("pages", len(pages)),
			slog.Int("chunks", len(chunks)),
		)
	}

	return stats, nil
}

// IndexPage chunks and indexes a single raw page, the unit the streaming
// worker consumes. Returns the number of chunks written.
func (p *Pipeline) IndexPage(ctx context.Context, source string, page int, text string) (int, error) {
	chunks, err := p.buildChunks(source, page, text)
	if err != nil {
		return 0, err
	}

	indexed, _, err := p.embedAndIndex(ctx, chunks)
	return indexed, err
}

func (p *Pipeline) buildChunks(source string, page int, text string) ([]models.ChunkDocument, error) {
	normalized := processing.NormalizeText(text)
	if normalized == "" {
		return nil, nil
	}

	parts, err := p.splitter.SplitText(normalized)
	if err != nil {
		return nil, fmt.Errorf("split text: %w", err)
	}

	chunks := make([]models.ChunkDocument, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		chunks = append(chunks, models.ChunkDocument{
			Text: part,
			Metadata: models.ChunkMetadata{
				Source:  source,
				Page:    page,
				ChunkID: processing.BuildChunkID(source, page, part),
			},
		})
	}

	return chunks, nil
}

// indexBatches fans batches out on the worker pool and waits for all of them.
func (p *Pipeline) indexBatches(ctx context.Context, chunks []models.ChunkDocument) (int, int, error) {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		indexed int
		skipped int
		errs    []error
	)

	total := len(chunks)
	for start := 0; start < total; start += p.opts.BatchSize {
		end := start + p.opts.BatchSize
		if end > total {
			end = total
		}
		batch := chunks[start:end]

		wg.Add(1)
		submitErr := p.pool.Submit(func() {
			defer wg.Done()

			n, s, err := p.embedAndIndex(ctx, batch)

			mu.Lock()
			indexed += n
			skipped += s
			if err != nil {
				errs = append(errs, err)
			}
			mu.Unlock()
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			errs = append(errs, submitErr)
			mu.Unlock()
		}
	}

	wg.Wait()
	return indexed, skipped, errors.Join(errs...)
}

func (p *Pipeline) embedAndIndex(ctx context.Context, chunks []models.ChunkDocument) (int, int, error) {
	fresh := make([]models.ChunkDocument, 0, len(chunks))
	skipped := 0
	for _, chunk := range chunks {
		if p.cache.Seen(chunk.Metadata.ChunkID) {
			p.log.Debug("duplicate chunk", slog.String("chunk_id", chunk.Metadata.ChunkID))
			skipped++
			continue
		}
		fresh = append(fresh, chunk)
	}
	if len(fresh) == 0 {
		return 0, skipped, nil
	}

	texts := make([]string, len(fresh))
	for i, chunk := range fresh {
		texts[i] = chunk.Text
	}

	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return 0, skipped, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(fresh) {
		return 0, skipped, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(fresh))
	}

	indexed := 0
	for i := range fresh {
		fresh[i].Vector = vectors[i]
		if err := p.indexer.IndexChunk(ctx, fresh[i]); err != nil {
			return indexed, skipped, err
		}
		p.cache.Add(fresh[i].Metadata.ChunkID)
		indexed++
	}

	return indexed, skipped, nil
}

func loadPDF(ctx context.Context, path string) ([]schema.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	return documentloaders.NewPDF(f, info.Size()).Load(ctx)
}

func collectPDFs(path string, recursive bool) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	if recursive {
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.EqualFold(filepath.Ext(p), ".pdf") {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	} else {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if !entry.IsDir() && strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
				files = append(files, filepath.Join(path, entry.Name()))
			}
		}
	}

	sort.Strings(files)
	return files, nil
}

// pageNumber digs the page out of loader metadata; loaders disagree on the
// value type.
func pageNumber(metadata map[string]any) int {
	raw, ok := metadata["page"]
	if !ok {
		return 0
	}
	switch v := raw.(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}
