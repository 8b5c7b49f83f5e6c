package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medtour/chatbot-service/models"
)

func newTestIngestion(t *testing.T, index *fakeIndex, emb *fakeEmbedder, src DocumentSource, cfg IngestionConfig) (*IngestionService, *PipelineState) {
	t.Helper()
	seg, err := NewSegmenter(100, 10)
	require.NoError(t, err)
	state := &PipelineState{}
	return NewIngestionService(index, emb, seg, src, state, cfg), state
}

func TestIngest(t *testing.T) {
	t.Run("skips a populated collection without embedding", func(t *testing.T) {
		index := newFakeIndex()
		index.existing = 425
		emb := newFakeEmbedder(4)
		svc, state := newTestIngestion(t, index, emb, newFakeSource(docWithChunks("a.pdf", 3)), IngestionConfig{})

		report, err := svc.Ingest(context.Background())

		require.NoError(t, err)
		assert.True(t, report.Skipped)
		assert.Equal(t, 425, report.Stored)
		assert.Equal(t, 0, emb.calls())
		assert.Empty(t, index.upserts)
		assert.True(t, state.DocumentsLoaded())
	})

	t.Run("creates the collection with the provider dimensions", func(t *testing.T) {
		index := newFakeIndex()
		emb := newFakeEmbedder(8)
		svc, _ := newTestIngestion(t, index, emb, newFakeSource(docWithChunks("a.pdf", 1)), IngestionConfig{})

		_, err := svc.Ingest(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 1, index.created)
		assert.Equal(t, 8, index.vectorSize)
	})

	t.Run("stores every chunk with increasing ids and payload", func(t *testing.T) {
		index := newFakeIndex()
		emb := newFakeEmbedder(4)
		src := newFakeSource(docWithChunks("a.pdf", 3), docWithChunks("b.pdf", 2))
		svc, state := newTestIngestion(t, index, emb, src, IngestionConfig{EmbedBatchSize: 2, UploadBatchSize: 3})

		report, err := svc.Ingest(context.Background())

		require.NoError(t, err)
		assert.Equal(t, models.IngestReport{Documents: 2, Chunks: 5, Batches: 3, Stored: 5}, report)
		assert.True(t, state.DocumentsLoaded())
		require.Len(t, index.upserts, 2)
		assert.Len(t, index.upserts[0], 3)
		assert.Len(t, index.upserts[1], 2)

		for id := uint64(0); id < 5; id++ {
			p, ok := index.points[id]
			require.True(t, ok, "point %d", id)
			assert.Equal(t, int(id), p.Payload.ChunkID)
			assert.Len(t, p.Vector, 4)
		}
		assert.Equal(t, "b.pdf", index.points[3].Payload.Source)
		assert.Equal(t, 0, index.points[3].Payload.Page)
		assert.Equal(t, "b.pdf page 1 text", index.points[4].Payload.Text)
	})

	t.Run("a failed batch is skipped and the run still succeeds", func(t *testing.T) {
		index := newFakeIndex()
		emb := newFakeEmbedder(4)
		emb.failBatch[2] = models.NewError(models.KindProvider, "embed batch", context.DeadlineExceeded)
		svc, state := newTestIngestion(t, index, emb, newFakeSource(docWithChunks("guide.pdf", 10)), IngestionConfig{EmbedBatchSize: 2})

		report, err := svc.Ingest(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 5, report.Batches)
		assert.Equal(t, []int{2}, report.FailedBatches)
		assert.Equal(t, 8, report.Stored)
		assert.True(t, state.DocumentsLoaded())

		var pages []int
		for id := uint64(0); id < 8; id++ {
			pages = append(pages, index.points[id].Payload.Page)
		}
		assert.Equal(t, []int{0, 1, 4, 5, 6, 7, 8, 9}, pages)
		assert.Equal(t, 5, emb.calls(), "failed batches are not retried")
	})

	t.Run("every batch failing leaves the pipeline not loaded", func(t *testing.T) {
		index := newFakeIndex()
		emb := newFakeEmbedder(4)
		for i := 1; i <= 3; i++ {
			emb.failBatch[i] = errors.New("rate limited")
		}
		svc, state := newTestIngestion(t, index, emb, newFakeSource(docWithChunks("a.pdf", 3)), IngestionConfig{EmbedBatchSize: 1})

		report, err := svc.Ingest(context.Background())

		assert.ErrorIs(t, err, models.ErrAllBatchesFailed)
		assert.Equal(t, []int{1, 2, 3}, report.FailedBatches)
		assert.False(t, state.DocumentsLoaded())
		assert.Empty(t, index.upserts)
	})

	t.Run("vectors of the wrong size fail the batch", func(t *testing.T) {
		index := newFakeIndex()
		emb := newFakeEmbedder(4)
		svc, _ := newTestIngestion(t, index, emb, newFakeSource(docWithChunks("a.pdf", 1)), IngestionConfig{})
		svc.embedder = &resizedEmbedder{fakeEmbedder: emb, claimed: 16}

		_, err := svc.Ingest(context.Background())

		assert.ErrorIs(t, err, models.ErrAllBatchesFailed)
	})

	t.Run("a failed upload batch is skipped", func(t *testing.T) {
		index := newFakeIndex()
		index.upsertErr = func(call int) error {
			if call == 1 {
				return models.NewError(models.KindIndex, "upsert", errors.New("payload too large"))
			}
			return nil
		}
		emb := newFakeEmbedder(4)
		svc, state := newTestIngestion(t, index, emb, newFakeSource(docWithChunks("a.pdf", 5)), IngestionConfig{UploadBatchSize: 2})

		report, err := svc.Ingest(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 3, report.Stored)
		assert.True(t, state.DocumentsLoaded())
	})

	t.Run("no documents is a degraded start", func(t *testing.T) {
		index := newFakeIndex()
		emb := newFakeEmbedder(4)
		svc, state := newTestIngestion(t, index, emb, newFakeSource(), IngestionConfig{})

		_, err := svc.Ingest(context.Background())

		assert.ErrorIs(t, err, models.ErrNoDocuments)
		assert.False(t, state.DocumentsLoaded())
		assert.Equal(t, 0, emb.calls())
	})

	t.Run("unreadable documents are skipped", func(t *testing.T) {
		index := newFakeIndex()
		emb := newFakeEmbedder(4)
		src := newFakeSource(docWithChunks("broken.pdf", 2), docWithChunks("ok.pdf", 2))
		src.loadErr["broken.pdf"] = errors.New("malformed xref")
		svc, _ := newTestIngestion(t, index, emb, src, IngestionConfig{})

		report, err := svc.Ingest(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 1, report.Documents)
		assert.Equal(t, 2, report.Stored)
		assert.Equal(t, "ok.pdf", index.points[0].Payload.Source)
	})

	t.Run("collection creation failure is an index error", func(t *testing.T) {
		index := newFakeIndex()
		index.createErr = errors.New("connection refused")
		emb := newFakeEmbedder(4)
		svc, state := newTestIngestion(t, index, emb, newFakeSource(docWithChunks("a.pdf", 1)), IngestionConfig{})

		_, err := svc.Ingest(context.Background())

		require.Error(t, err)
		assert.True(t, models.IsKind(err, models.KindIndex))
		assert.False(t, state.DocumentsLoaded())
		assert.Equal(t, 0, emb.calls())
	})

	t.Run("embedding calls carry a deadline", func(t *testing.T) {
		index := newFakeIndex()
		emb := &deadlineEmbedder{fakeEmbedder: newFakeEmbedder(4)}
		seg, err := NewSegmenter(100, 10)
		require.NoError(t, err)
		svc := NewIngestionService(index, emb, seg, newFakeSource(docWithChunks("a.pdf", 1)), &PipelineState{}, IngestionConfig{CallTimeout: time.Second})

		_, err = svc.Ingest(context.Background())

		require.NoError(t, err)
		assert.True(t, emb.sawDeadline)
	})

	t.Run("second run after success is skipped", func(t *testing.T) {
		index := newFakeIndex()
		emb := newFakeEmbedder(4)
		svc, _ := newTestIngestion(t, index, emb, newFakeSource(docWithChunks("a.pdf", 2)), IngestionConfig{})

		_, err := svc.Ingest(context.Background())
		require.NoError(t, err)
		calls := emb.calls()

		report, err := svc.Ingest(context.Background())

		require.NoError(t, err)
		assert.True(t, report.Skipped)
		assert.Equal(t, calls, emb.calls())
	})
}

func TestIngestSerializesRuns(t *testing.T) {
	ctx := context.Background()
	index := newFakeIndex()
	emb := &blockingEmbedder{fakeEmbedder: newFakeEmbedder(4), started: make(chan struct{}), release: make(chan struct{})}
	seg, err := NewSegmenter(100, 10)
	require.NoError(t, err)
	state := &PipelineState{}
	svc := NewIngestionService(index, emb, seg, newFakeSource(docWithChunks("a.pdf", 2)), state, IngestionConfig{})
	rag := NewRAGService(index, emb, &fakeLLM{reply: "unused"}, state, RAGConfig{})

	first := make(chan error, 1)
	go func() {
		_, err := svc.Ingest(ctx)
		first <- err
	}()
	<-emb.started

	second := make(chan models.IngestReport, 1)
	go func() {
		report, _ := svc.Ingest(ctx)
		second <- report
	}()

	answer := rag.Answer(ctx, "Do I need a visa?")
	assert.Zero(t, answer.Confidence, "answers do not wait for a running ingestion")
	assert.Empty(t, answer.Sources)

	close(emb.release)
	require.NoError(t, <-first)
	assert.True(t, (<-second).Skipped, "the queued run sees the stored points")
	assert.Equal(t, 1, emb.calls())
}

// blockingEmbedder holds every batch until release is closed.
type blockingEmbedder struct {
	*fakeEmbedder
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (b *blockingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return b.fakeEmbedder.EmbedBatch(ctx, texts)
}

type resizedEmbedder struct {
	*fakeEmbedder
	claimed int
}

func (r *resizedEmbedder) Dimensions() int { return r.claimed }

type deadlineEmbedder struct {
	*fakeEmbedder
	sawDeadline bool
}

func (d *deadlineEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	_, d.sawDeadline = ctx.Deadline()
	return d.fakeEmbedder.EmbedBatch(ctx, texts)
}

func TestCheckVectors(t *testing.T) {
	assert.NoError(t, checkVectors([][]float32{{1, 2}, {3, 4}}, 2, 2))
	assert.Error(t, checkVectors([][]float32{{1, 2}}, 2, 2))
	err := checkVectors([][]float32{{1, 2, 3}}, 1, 2)
	assert.True(t, models.IsKind(err, models.KindProvider), fmt.Sprint(err))
}
