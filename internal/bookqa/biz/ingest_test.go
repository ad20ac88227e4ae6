package biz_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/bookqa/internal/bookqa/biz"
	"github.com/kart-io/bookqa/internal/model"
)

func newTestIngestor(t *testing.T, vectors *fakeVectorStore, states *fakeUnitStateStore, embedErr error) *biz.Ingestor {
	t.Helper()

	chunker, err := biz.NewChunker(&biz.ChunkerConfig{TokenBudget: 20, TokenOverlap: 3})
	require.NoError(t, err)

	embedder := biz.NewEmbedder(&fakeEmbeddingProvider{dim: 8, err: embedErr}, &biz.EmbedderConfig{
		BatchSize: 4,
		Dimension: 8,
		Retry:     fastRetry(),
	})

	ingestor, err := biz.NewIngestor(chunker, embedder, vectors, states, &biz.IngestorConfig{
		Collection:      "test_units",
		Dimension:       8,
		Workers:         2,
		UpsertBatchSize: 2,
	})
	require.NoError(t, err)
	t.Cleanup(ingestor.Close)
	return ingestor
}

func testDocument() *model.Document {
	return &model.Document{
		SourceLocator: "ch03",
		Content: makeSentences(6, 10) +
			" Closing remarks about concurrency end here.",
	}
}

func TestIngestDocument(t *testing.T) {
	ctx := context.Background()

	t.Run("全部单元走完三个阶段", func(t *testing.T) {
		vectors := newFakeVectorStore()
		states := newFakeUnitStateStore()
		ingestor := newTestIngestor(t, vectors, states, nil)

		report, err := ingestor.IngestDocument(ctx, testDocument())
		require.NoError(t, err)
		assert.Greater(t, report.TotalUnits, 1)
		assert.Equal(t, report.TotalUnits, report.Stored)
		assert.Zero(t, report.Skipped)
		assert.Zero(t, report.Failed)
		assert.Equal(t, report.Stored, vectors.storedCount())

		recorded, err := states.ListBySource(ctx, "ch03")
		require.NoError(t, err)
		require.Len(t, recorded, report.TotalUnits)
		for _, unit := range recorded {
			assert.Equal(t, model.StageStored, unit.Stage)
		}
	})

	t.Run("重复摄入未变更的来源全部跳过", func(t *testing.T) {
		vectors := newFakeVectorStore()
		states := newFakeUnitStateStore()
		ingestor := newTestIngestor(t, vectors, states, nil)

		first, err := ingestor.IngestDocument(ctx, testDocument())
		require.NoError(t, err)

		second, err := ingestor.IngestDocument(ctx, testDocument())
		require.NoError(t, err)
		assert.Equal(t, first.TotalUnits, second.Skipped)
		assert.Zero(t, second.Stored)
		assert.Zero(t, second.Failed)
	})

	t.Run("嵌入失败逐单元记账", func(t *testing.T) {
		vectors := newFakeVectorStore()
		states := newFakeUnitStateStore()
		ingestor := newTestIngestor(t, vectors, states, errors.New("provider down"))

		report, err := ingestor.IngestDocument(ctx, testDocument())
		require.NoError(t, err)
		assert.Zero(t, report.Stored)
		assert.Equal(t, report.TotalUnits, report.Failed)
		require.Len(t, report.Failures, report.TotalUnits)
		for _, fail := range report.Failures {
			assert.Equal(t, model.StageEmbedded, fail.Stage)
		}
		assert.Zero(t, vectors.storedCount())

		recorded, err := states.ListBySource(ctx, "ch03")
		require.NoError(t, err)
		for _, unit := range recorded {
			assert.Equal(t, model.StageFailed, unit.Stage)
			assert.NotEmpty(t, unit.FailReason)
		}
	})

	t.Run("嵌入失败后重新摄入可恢复", func(t *testing.T) {
		vectors := newFakeVectorStore()
		states := newFakeUnitStateStore()

		failing := newTestIngestor(t, vectors, states, errors.New("provider down"))
		report, err := failing.IngestDocument(ctx, testDocument())
		require.NoError(t, err)
		require.Equal(t, report.TotalUnits, report.Failed)

		healthy := newTestIngestor(t, vectors, states, nil)
		retry, err := healthy.IngestDocument(ctx, testDocument())
		require.NoError(t, err)
		assert.Equal(t, report.TotalUnits, retry.Stored)
		assert.Zero(t, retry.Failed)
	})

	t.Run("向量写入失败记为存储阶段失败", func(t *testing.T) {
		vectors := newFakeVectorStore()
		vectors.upsertErr = errors.New("milvus unavailable")
		states := newFakeUnitStateStore()
		ingestor := newTestIngestor(t, vectors, states, nil)

		report, err := ingestor.IngestDocument(ctx, testDocument())
		require.NoError(t, err)
		assert.Zero(t, report.Stored)
		assert.Equal(t, report.TotalUnits, report.Failed)
		for _, fail := range report.Failures {
			assert.Equal(t, model.StageStored, fail.Stage)
		}
	})

	t.Run("空文档产生空报告", func(t *testing.T) {
		vectors := newFakeVectorStore()
		states := newFakeUnitStateStore()
		ingestor := newTestIngestor(t, vectors, states, nil)

		report, err := ingestor.IngestDocument(ctx, &model.Document{SourceLocator: "empty", Content: "   "})
		require.NoError(t, err)
		assert.Zero(t, report.TotalUnits)
	})
}

func TestPurgeSource(t *testing.T) {
	ctx := context.Background()
	vectors := newFakeVectorStore()
	states := newFakeUnitStateStore()
	ingestor := newTestIngestor(t, vectors, states, nil)

	_, err := ingestor.IngestDocument(ctx, testDocument())
	require.NoError(t, err)
	require.Greater(t, vectors.storedCount(), 0)

	require.NoError(t, ingestor.PurgeSource(ctx, "ch03"))
	assert.Zero(t, vectors.storedCount())

	recorded, err := states.ListBySource(ctx, "ch03")
	require.NoError(t, err)
	assert.Empty(t, recorded)
}
