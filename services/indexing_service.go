package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/medtour/chatbot-service/models"
)

// Defaults sized for the OpenAI embeddings request limit and the index
// write-batch limit.
const (
	DefaultEmbedBatchSize  = 50
	DefaultUploadBatchSize = 100
	DefaultCallTimeout     = 10 * time.Second
)

// PipelineState is the readiness shared between ingestion and the request
// path. Ingestion is the only writer.
type PipelineState struct {
	documentsLoaded atomic.Bool
}

func (p *PipelineState) DocumentsLoaded() bool { return p.documentsLoaded.Load() }

func (p *PipelineState) markLoaded() { p.documentsLoaded.Store(true) }

// IngestionConfig tunes batching and per-call timeouts.
type IngestionConfig struct {
	EmbedBatchSize  int
	UploadBatchSize int
	CallTimeout     time.Duration
}

func (c IngestionConfig) withDefaults() IngestionConfig {
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = DefaultEmbedBatchSize
	}
	if c.UploadBatchSize <= 0 {
		c.UploadBatchSize = DefaultUploadBatchSize
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	return c
}

// IngestionService loads, chunks and embeds the reference documents into
// the vector index.
type IngestionService struct {
	index     VectorIndex
	embedder  EmbeddingProvider
	segmenter *Segmenter
	source    DocumentSource
	state     *PipelineState
	cfg       IngestionConfig

	// mu serializes whole runs and is held across provider and index
	// calls. Answers never take it.
	mu sync.Mutex
}

// NewIngestionService creates a new ingestion service.
func NewIngestionService(index VectorIndex, embedder EmbeddingProvider, segmenter *Segmenter, source DocumentSource, state *PipelineState, cfg IngestionConfig) *IngestionService {
	return &IngestionService{
		index:     index,
		embedder:  embedder,
		segmenter: segmenter,
		source:    source,
		state:     state,
		cfg:       cfg.withDefaults(),
	}
}

// Ingest populates the collection unless it already holds points. It
// returns nil when at least one chunk was stored (or the collection was
// already populated). ErrNoDocuments and ErrAllBatchesFailed leave the
// pipeline not loaded; a KindIndex error means the collection could not be
// prepared at all.
func (s *IngestionService) Ingest(ctx context.Context) (models.IngestReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var report models.IngestReport
	logger := log.WithField("component", "indexer")

	if err := s.withTimeout(ctx, func(c context.Context) error {
		return s.index.CreateCollection(c, s.embedder.Dimensions())
	}); err != nil {
		return report, models.NewError(models.KindIndex, "create collection", err)
	}

	// Re-read the count right before deciding to write: another instance
	// may share the same collection.
	var info models.CollectionInfo
	if err := s.withTimeout(ctx, func(c context.Context) error {
		var err error
		info, err = s.index.CollectionInfo(c)
		return err
	}); err != nil {
		return report, models.NewError(models.KindIndex, "collection info", err)
	}
	if info.PointCount > 0 {
		logger.Infof("INDEXER: Found %d existing chunks in %q, skipping ingestion.", info.PointCount, info.Name)
		report.Skipped = true
		report.Stored = info.PointCount
		s.state.markLoaded()
		return report, nil
	}

	chunks, documents, err := s.collectChunks(logger)
	report.Documents = documents
	report.Chunks = len(chunks)
	if err != nil {
		return report, err
	}

	points, failed := s.embedChunks(ctx, logger, chunks)
	report.Batches = (len(chunks) + s.cfg.EmbedBatchSize - 1) / s.cfg.EmbedBatchSize
	report.FailedBatches = failed
	if len(points) == 0 {
		logger.Errorf("INDEXER: All %d embedding batches failed.", report.Batches)
		return report, models.ErrAllBatchesFailed
	}

	report.Stored = s.uploadPoints(ctx, logger, points)
	if report.Stored == 0 {
		logger.Errorf("INDEXER: No chunks could be written to the index.")
		return report, models.ErrAllBatchesFailed
	}

	s.state.markLoaded()
	logger.WithFields(log.Fields{
		"documents":      report.Documents,
		"chunks":         report.Chunks,
		"stored":         report.Stored,
		"failed_batches": len(report.FailedBatches),
	}).Info("INDEXER: Ingestion finished.")
	return report, nil
}

// DocumentsLoaded reports whether any ingestion run has succeeded.
func (s *IngestionService) DocumentsLoaded() bool {
	return s.state.DocumentsLoaded()
}

func (s *IngestionService) collectChunks(logger *log.Entry) ([]models.Chunk, int, error) {
	paths, err := s.source.Discover()
	if err != nil {
		logger.Warnf("INDEXER: Could not list documents: %v", err)
		return nil, 0, fmt.Errorf("%w: %v", models.ErrNoDocuments, err)
	}
	if len(paths) == 0 {
		logger.Warn("INDEXER: No source documents found.")
		return nil, 0, models.ErrNoDocuments
	}

	var chunks []models.Chunk
	documents := 0
	for _, path := range paths {
		doc, err := s.source.Load(path)
		if err != nil {
			logger.WithField("file", path).Warnf("INDEXER: Could not load document: %v", err)
			continue
		}
		documents++
		before := len(chunks)
		for chunk, err := range s.segmenter.Segment(doc) {
			if err != nil {
				logger.WithField("file", path).Warnf("INDEXER: Could not split document: %v", err)
				break
			}
			chunk.SequenceIndex = len(chunks)
			chunks = append(chunks, chunk)
		}
		logger.Infof("INDEXER: Split %s into %d chunks.", filepath.Base(path), len(chunks)-before)
	}
	if len(chunks) == 0 {
		logger.Warn("INDEXER: Source documents produced no text.")
		return nil, documents, models.ErrNoDocuments
	}
	return chunks, documents, nil
}

// embedChunks embeds chunks batch by batch. A failed batch is logged and
// skipped; IDs are handed out only to chunks of successful batches.
func (s *IngestionService) embedChunks(ctx context.Context, logger *log.Entry, chunks []models.Chunk) ([]models.Point, []int) {
	size := s.cfg.EmbedBatchSize
	total := (len(chunks) + size - 1) / size
	dims := s.embedder.Dimensions()

	points := make([]models.Point, 0, len(chunks))
	var failed []int
	var nextID uint64

	for b := 0; b < total; b++ {
		batch := chunks[b*size : min((b+1)*size, len(chunks))]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		blog := logger.WithFields(log.Fields{"batch": b + 1, "batches": total})
		blog.Debugf("INDEXER: Embedding %d chunks.", len(batch))

		var vectors [][]float32
		err := s.withTimeout(ctx, func(c context.Context) error {
			var err error
			vectors, err = s.embedder.EmbedBatch(c, texts)
			return err
		})
		if err == nil {
			err = checkVectors(vectors, len(batch), dims)
		}
		if err != nil {
			blog.WithField("kind", kindName(err)).Errorf("INDEXER: Embedding batch failed, skipping: %v", err)
			failed = append(failed, b+1)
			continue
		}

		for i, c := range batch {
			points = append(points, models.Point{
				ID:     nextID,
				Vector: vectors[i],
				Payload: models.Payload{
					Text:    c.Text,
					Page:    c.Page,
					Source:  c.Source,
					ChunkID: c.SequenceIndex,
				},
			})
			nextID++
		}
	}
	return points, failed
}

func (s *IngestionService) uploadPoints(ctx context.Context, logger *log.Entry, points []models.Point) int {
	size := s.cfg.UploadBatchSize
	stored := 0
	for start := 0; start < len(points); start += size {
		batch := points[start:min(start+size, len(points))]
		err := s.withTimeout(ctx, func(c context.Context) error {
			return s.index.Upsert(c, batch)
		})
		if err != nil {
			logger.WithFields(log.Fields{"offset": start, "kind": kindName(err)}).
				Errorf("INDEXER: Upload of %d points failed, skipping: %v", len(batch), err)
			continue
		}
		stored += len(batch)
		logger.Infof("INDEXER: Stored %d/%d chunks.", start+len(batch), len(points))
	}
	return stored
}

func (s *IngestionService) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	c, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()
	return fn(c)
}

func checkVectors(vectors [][]float32, want, dims int) error {
	if len(vectors) != want {
		return models.NewError(models.KindProvider, "embed batch", fmt.Errorf("got %d vectors for %d texts", len(vectors), want))
	}
	for _, v := range vectors {
		if dims > 0 && len(v) != dims {
			return models.NewError(models.KindProvider, "embed batch", fmt.Errorf("vector has %d dimensions, collection expects %d", len(v), dims))
		}
	}
	return nil
}

func kindName(err error) string {
	if kind, ok := models.KindOf(err); ok {
		return kind.String()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "unknown"
}

// WatchDirectory re-runs ingestion when supported files appear in dirPath
// while the pipeline is still not loaded. Event bursts are coalesced by
// debounce. It blocks until ctx is cancelled.
func (s *IngestionService) WatchDirectory(ctx context.Context, dirPath string, debounce time.Duration) {
	logger := log.WithField("component", "watcher")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Errorf("WATCHER ERROR: Failed to create file watcher: %v", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(dirPath); err != nil {
		logger.Errorf("WATCHER ERROR: Failed to add path to watcher: %v", err)
		return
	}
	logger.Infof("WATCHER: Watching directory: %s", dirPath)

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !isSupportedFile(event.Name) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if s.DocumentsLoaded() {
					continue
				}
				logger.Infof("WATCHER: New document %s, scheduling ingestion.", event.Name)
				timer.Reset(debounce)
			}

		case <-timer.C:
			report, err := s.Ingest(ctx)
			if err != nil {
				logger.Warnf("WATCHER: Ingestion did not complete: %v", err)
				continue
			}
			logger.Infof("WATCHER: Ingestion stored %d chunks.", report.Stored)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Errorf("WATCHER ERROR: %v", err)

		case <-ctx.Done():
			logger.Info("WATCHER: Context cancelled, shutting down watcher.")
			return
		}
	}
}
