package biz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kart-io/logger"
	"github.com/panjf2000/ants/v2"

	"github.com/kart-io/bookqa/internal/bookqa/store"
	"github.com/kart-io/bookqa/internal/model"
	"github.com/kart-io/bookqa/internal/pkg/textutil"
)

// IngestorConfig 摄入管线配置。
type IngestorConfig struct {
	// Collection 向量集合名称。
	Collection string
	// Dimension 嵌入向量维度。
	Dimension int
	// Workers 向量写入阶段的最大并发数。
	Workers int
	// UpsertBatchSize 单次向量写入的记录数上限。
	UpsertBatchSize int
}

// IngestReport 单次摄入的逐单元记账结果。
type IngestReport struct {
	SourceLocator string
	TotalUnits    int
	Skipped       int
	Stored        int
	Failed        int
	Failures      []*StageError
}

// Ingestor 编排摄入管线：切分、嵌入、向量写入。
//
// 每个单元的阶段状态落库（chunked → embedded → stored），重复
// 摄入同一来源时已入库且内容未变的单元直接跳过，失败单元可在
// 下次摄入中恢复重试。部分失败不会中断整条管线。
type Ingestor struct {
	chunker  *Chunker
	embedder *Embedder
	vectors  store.VectorStore
	states   store.IngestUnitStore
	pool     *ants.Pool
	config   *IngestorConfig
}

// NewIngestor 创建摄入编排器。
func NewIngestor(
	chunker *Chunker,
	embedder *Embedder,
	vectors store.VectorStore,
	states store.IngestUnitStore,
	config *IngestorConfig,
) (*Ingestor, error) {
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.UpsertBatchSize <= 0 {
		config.UpsertBatchSize = 64
	}

	pool, err := ants.NewPool(config.Workers, ants.WithPanicHandler(func(p interface{}) {
		logger.Errorw("ingest worker panic recovered", "panic", p)
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to create ingest worker pool: %w", err)
	}

	return &Ingestor{
		chunker:  chunker,
		embedder: embedder,
		vectors:  vectors,
		states:   states,
		pool:     pool,
		config:   config,
	}, nil
}

// EnsureReady 确保向量集合存在并已加载。
func (ing *Ingestor) EnsureReady(ctx context.Context) error {
	return ing.vectors.EnsureCollection(ctx, &store.CollectionConfig{
		Name:        ing.config.Collection,
		Description: "book text units with embeddings",
		Dimension:   ing.config.Dimension,
	})
}

// IngestDocument 摄入单个文档来源。
//
// 返回的 IngestReport 给出跳过、入库、失败的逐单元统计；仅当
// 管线本身无法推进（切分失败、状态库不可用）时返回 error。
func (ing *Ingestor) IngestDocument(ctx context.Context, doc *model.Document) (*IngestReport, error) {
	units, err := ing.chunker.Chunk(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to chunk document %q: %w", doc.SourceLocator, err)
	}

	report := &IngestReport{
		SourceLocator: doc.SourceLocator,
		TotalUnits:    len(units),
	}
	if len(units) == 0 {
		return report, nil
	}

	// 单元 ID 由来源、序号与内容哈希决定，ID 相同即内容未变：
	// 已入库的单元直接跳过，实现断点续传式的重复摄入。
	existing, err := ing.states.ListBySource(ctx, doc.SourceLocator)
	if err != nil {
		return nil, fmt.Errorf("failed to load ingest state for %q: %w", doc.SourceLocator, err)
	}
	stored := make(map[string]bool, len(existing))
	for _, st := range existing {
		if st.Stage == model.StageStored {
			stored[st.UnitID] = true
		}
	}

	pending := make([]*model.TextUnit, 0, len(units))
	for _, unit := range units {
		if stored[unit.ID] {
			report.Skipped++
			continue
		}
		pending = append(pending, unit)
	}
	if len(pending) == 0 {
		logger.Infow("all units already stored, nothing to ingest",
			"source", doc.SourceLocator, "units", len(units))
		return report, nil
	}

	for _, unit := range pending {
		if err := ing.markStage(ctx, unit, model.StageChunked, ""); err != nil {
			return nil, err
		}
	}

	vectors, embedFailures := ing.embedder.EmbedUnits(ctx, pending)
	for _, fail := range embedFailures {
		report.Failures = append(report.Failures, fail)
	}
	failedIDs := make(map[string]bool, len(embedFailures))
	for _, fail := range embedFailures {
		failedIDs[fail.UnitID] = true
	}

	embedded := make([]*store.UnitRecord, 0, len(pending))
	for i, unit := range pending {
		if failedIDs[unit.ID] || vectors[i] == nil {
			ing.markStageBestEffort(ctx, unit, model.StageFailed, failReason(report.Failures, unit.ID))
			continue
		}
		if err := ing.markStage(ctx, unit, model.StageEmbedded, ""); err != nil {
			return nil, err
		}
		embedded = append(embedded, &store.UnitRecord{
			Unit:         unit,
			Vector:       vectors[i],
			ModelVersion: ing.embedder.ModelVersion(),
		})
	}

	storedCount, storeFailures := ing.upsertBatches(ctx, embedded)
	report.Stored = storedCount
	report.Failures = append(report.Failures, storeFailures...)
	report.Failed = len(report.Failures)

	logger.Infow("document ingested",
		"source", doc.SourceLocator,
		"units", report.TotalUnits,
		"skipped", report.Skipped,
		"stored", report.Stored,
		"failed", report.Failed,
	)
	return report, nil
}

// upsertBatches 并发写入向量存储，逐批提交到工作池。
func (ing *Ingestor) upsertBatches(ctx context.Context, records []*store.UnitRecord) (int, []*StageError) {
	if len(records) == 0 {
		return 0, nil
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		stored   int
		failures []*StageError
	)

	for start := 0; start < len(records); start += ing.config.UpsertBatchSize {
		end := start + ing.config.UpsertBatchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		wg.Add(1)
		submitErr := ing.pool.Submit(func() {
			defer wg.Done()

			err := ing.vectors.Upsert(ctx, batch)

			mu.Lock()
			defer mu.Unlock()
			for _, rec := range batch {
				if err != nil {
					failures = append(failures, &StageError{
						UnitID: rec.Unit.ID,
						Stage:  model.StageStored,
						Err:    err,
					})
					ing.markStageBestEffort(ctx, rec.Unit, model.StageFailed, err.Error())
					continue
				}
				stored++
				ing.markStageBestEffort(ctx, rec.Unit, model.StageStored, "")
			}
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			for _, rec := range batch {
				failures = append(failures, &StageError{
					UnitID: rec.Unit.ID,
					Stage:  model.StageStored,
					Err:    submitErr,
				})
			}
			mu.Unlock()
		}
	}

	wg.Wait()
	return stored, failures
}

// PurgeSource 删除指定来源的全部单元：向量存储与阶段状态一并清理。
func (ing *Ingestor) PurgeSource(ctx context.Context, sourceLocator string) error {
	if err := ing.vectors.DeleteBySource(ctx, sourceLocator); err != nil {
		return fmt.Errorf("failed to delete vectors for %q: %w", sourceLocator, err)
	}
	if err := ing.states.DeleteBySource(ctx, sourceLocator); err != nil {
		return fmt.Errorf("failed to delete ingest state for %q: %w", sourceLocator, err)
	}
	logger.Infow("source purged", "source", sourceLocator)
	return nil
}

// Close 释放工作池。
func (ing *Ingestor) Close() {
	ing.pool.Release()
}

func (ing *Ingestor) markStage(ctx context.Context, unit *model.TextUnit, stage, reason string) error {
	err := ing.states.Save(ctx, &model.IngestUnit{
		UnitID:        unit.ID,
		SourceLocator: unit.SourceLocator,
		SequenceIndex: unit.SequenceIndex,
		ContentHash:   textutil.HashString(unit.Content),
		Stage:         stage,
		FailReason:    reason,
		UpdatedAt:     time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to save ingest state for unit %s: %w", unit.ID, err)
	}
	return nil
}

// markStageBestEffort 与 markStage 相同，但状态写失败只记日志，
// 避免记账故障掩盖真正的管线结果。
func (ing *Ingestor) markStageBestEffort(ctx context.Context, unit *model.TextUnit, stage, reason string) {
	if err := ing.markStage(ctx, unit, stage, reason); err != nil {
		logger.Warnw("failed to record ingest stage", "unit", unit.ID, "stage", stage, "error", err.Error())
	}
}

func failReason(failures []*StageError, unitID string) string {
	for _, f := range failures {
		if f.UnitID == unitID {
			return f.Err.Error()
		}
	}
	return "embedding failed"
}
