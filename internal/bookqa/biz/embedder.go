package biz

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"

	"github.com/kart-io/bookqa/internal/model"
	"github.com/kart-io/bookqa/pkg/llm"
	"github.com/kart-io/bookqa/pkg/llm/resilience"
)

// EmbedderConfig 嵌入适配器配置。
type EmbedderConfig struct {
	// BatchSize 单次请求的最大文本数。
	BatchSize int
	// Dimension 期望的向量维度，不符立即判定硬失败。
	Dimension int
	// ModelVersion 嵌入模型版本，随记录写入向量存储。
	ModelVersion string
	// Retry 瞬时故障的重试策略。
	Retry *resilience.RetryConfig
}

// Embedder 将文本单元批量转换为固定维度向量。
//
// 适配器本身无状态：分批发起外部调用，瞬时故障按统一退避
// 策略重试；重试耗尽后整批逐单元上报失败，绝不静默缺漏。
type Embedder struct {
	provider llm.EmbeddingProvider
	config   *EmbedderConfig
}

// NewEmbedder 创建嵌入适配器实例。
func NewEmbedder(provider llm.EmbeddingProvider, config *EmbedderConfig) *Embedder {
	if config.BatchSize <= 0 {
		config.BatchSize = 32
	}
	if config.Retry == nil {
		config.Retry = resilience.DefaultRetryConfig()
	}
	return &Embedder{
		provider: provider,
		config:   config,
	}
}

// ModelVersion 返回配置的嵌入模型版本。
func (e *Embedder) ModelVersion() string {
	return e.config.ModelVersion
}

// EmbedUnits 为文本单元批量生成向量。
//
// 返回值 vectors 与 units 按下标对齐，失败单元对应 nil；
// failed 逐单元给出失败原因，供编排器做部分成功记账与重试。
func (e *Embedder) EmbedUnits(ctx context.Context, units []*model.TextUnit) (vectors [][]float32, failed []*StageError) {
	vectors = make([][]float32, len(units))

	for start := 0; start < len(units); start += e.config.BatchSize {
		end := start + e.config.BatchSize
		if end > len(units) {
			end = len(units)
		}
		batch := units[start:end]

		texts := make([]string, len(batch))
		for i, unit := range batch {
			texts[i] = unit.Content
		}

		var embeddings [][]float32
		err := resilience.RetryWithBackoff(ctx, e.config.Retry, func() error {
			var embedErr error
			embeddings, embedErr = e.provider.Embed(ctx, texts)
			return embedErr
		})
		if err != nil {
			// 整批失败：逐单元上报，调用方决定是否恢复重试。
			terr := &TransientProviderError{Provider: e.provider.Name(), Err: err}
			for _, unit := range batch {
				failed = append(failed, &StageError{UnitID: unit.ID, Stage: model.StageEmbedded, Err: terr})
			}
			logger.Warnw("embedding batch failed",
				"provider", e.provider.Name(),
				"batch_size", len(batch),
				"error", err.Error(),
			)
			continue
		}

		if len(embeddings) != len(batch) {
			terr := fmt.Errorf("provider returned %d embeddings for %d texts", len(embeddings), len(batch))
			for _, unit := range batch {
				failed = append(failed, &StageError{UnitID: unit.ID, Stage: model.StageEmbedded, Err: terr})
			}
			continue
		}

		for i, unit := range batch {
			// 维度不符是硬性摄入失败，不重试。
			if e.config.Dimension > 0 && len(embeddings[i]) != e.config.Dimension {
				failed = append(failed, &StageError{
					UnitID: unit.ID,
					Stage:  model.StageEmbedded,
					Err: &DimensionMismatchError{
						Expected: e.config.Dimension,
						Actual:   len(embeddings[i]),
						UnitID:   unit.ID,
					},
				})
				continue
			}
			vectors[start+i] = embeddings[i]
		}
	}

	return vectors, failed
}

// EmbedQuery 为单条查询文本生成向量。
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	err := resilience.RetryWithBackoff(ctx, e.config.Retry, func() error {
		var embedErr error
		vector, embedErr = e.provider.EmbedSingle(ctx, text)
		return embedErr
	})
	if err != nil {
		return nil, &TransientProviderError{Provider: e.provider.Name(), Err: err}
	}

	if e.config.Dimension > 0 && len(vector) != e.config.Dimension {
		return nil, &DimensionMismatchError{
			Expected: e.config.Dimension,
			Actual:   len(vector),
		}
	}

	return vector, nil
}
