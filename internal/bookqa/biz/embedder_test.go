package biz_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/bookqa/internal/bookqa/biz"
	"github.com/kart-io/bookqa/internal/model"
	"github.com/kart-io/bookqa/pkg/llm/resilience"
)

// fastRetry 单次尝试，测试中不等待退避。
func fastRetry() *resilience.RetryConfig {
	return &resilience.RetryConfig{
		MaxAttempts:     1,
		InitialDelay:    time.Millisecond,
		MaxDelay:        time.Millisecond,
		Multiplier:      1.0,
		RetryableErrors: func(error) bool { return true },
	}
}

func makeUnits(n int) []*model.TextUnit {
	units := make([]*model.TextUnit, n)
	for i := range units {
		units[i] = &model.TextUnit{
			ID:            string(rune('a' + i)),
			Content:       "unit content number " + string(rune('a'+i)),
			SourceLocator: "ch01",
			SequenceIndex: i,
		}
	}
	return units
}

func TestEmbedUnits(t *testing.T) {
	ctx := context.Background()

	t.Run("成功时向量与单元下标对齐", func(t *testing.T) {
		provider := &fakeEmbeddingProvider{dim: 8}
		embedder := biz.NewEmbedder(provider, &biz.EmbedderConfig{
			BatchSize: 2,
			Dimension: 8,
			Retry:     fastRetry(),
		})

		units := makeUnits(5)
		vectors, failed := embedder.EmbedUnits(ctx, units)

		require.Empty(t, failed)
		require.Len(t, vectors, 5)
		for i, v := range vectors {
			assert.Len(t, v, 8, "unit %d", i)
		}
		// 5 个单元按批大小 2 分了 3 批
		assert.Equal(t, 3, provider.calls)
	})

	t.Run("整批失败时逐单元上报", func(t *testing.T) {
		provider := &fakeEmbeddingProvider{dim: 8, err: errors.New("rate limited")}
		embedder := biz.NewEmbedder(provider, &biz.EmbedderConfig{
			BatchSize: 4,
			Dimension: 8,
			Retry:     fastRetry(),
		})

		units := makeUnits(3)
		vectors, failed := embedder.EmbedUnits(ctx, units)

		require.Len(t, failed, 3)
		for i, fail := range failed {
			assert.Equal(t, units[i].ID, fail.UnitID)
			assert.Equal(t, model.StageEmbedded, fail.Stage)
			var terr *biz.TransientProviderError
			assert.ErrorAs(t, fail.Err, &terr)
		}
		for _, v := range vectors {
			assert.Nil(t, v)
		}
	})

	t.Run("维度不符判为硬失败", func(t *testing.T) {
		provider := &fakeEmbeddingProvider{dim: 8, badDim: true}
		embedder := biz.NewEmbedder(provider, &biz.EmbedderConfig{
			BatchSize: 4,
			Dimension: 8,
			Retry:     fastRetry(),
		})

		units := makeUnits(2)
		vectors, failed := embedder.EmbedUnits(ctx, units)

		require.Len(t, failed, 2)
		var dimErr *biz.DimensionMismatchError
		assert.ErrorAs(t, failed[0].Err, &dimErr)
		assert.Equal(t, 8, dimErr.Expected)
		assert.Equal(t, 9, dimErr.Actual)
		for _, v := range vectors {
			assert.Nil(t, v)
		}
	})
}

func TestEmbedQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("成功返回定长向量", func(t *testing.T) {
		provider := &fakeEmbeddingProvider{dim: 8}
		embedder := biz.NewEmbedder(provider, &biz.EmbedderConfig{Dimension: 8, Retry: fastRetry()})

		vector, err := embedder.EmbedQuery(ctx, "what is a goroutine")
		require.NoError(t, err)
		assert.Len(t, vector, 8)
	})

	t.Run("重试耗尽后返回瞬时错误", func(t *testing.T) {
		provider := &fakeEmbeddingProvider{dim: 8, err: errors.New("timeout")}
		embedder := biz.NewEmbedder(provider, &biz.EmbedderConfig{Dimension: 8, Retry: fastRetry()})

		vector, err := embedder.EmbedQuery(ctx, "what is a goroutine")
		require.Error(t, err)
		assert.Nil(t, vector)
		var terr *biz.TransientProviderError
		assert.ErrorAs(t, err, &terr)
	})
}
