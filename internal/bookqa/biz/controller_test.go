package biz_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/bookqa/internal/bookqa/biz"
	"github.com/kart-io/bookqa/internal/bookqa/store"
	"github.com/kart-io/bookqa/internal/model"
)

func newTestController(vectors store.VectorStore) *biz.Controller {
	embedder := biz.NewEmbedder(&fakeEmbeddingProvider{dim: 8}, &biz.EmbedderConfig{
		Dimension: 8,
		Retry:     fastRetry(),
	})
	return biz.NewController(vectors, embedder, &biz.ControllerConfig{
		TopK:              5,
		ScoreThreshold:    0.3,
		MinSelectedTokens: 5,
	})
}

func TestAssembleWholeCorpus(t *testing.T) {
	ctx := context.Background()

	t.Run("检索有结果时装配完成", func(t *testing.T) {
		vectors := newFakeVectorStore()
		vectors.queryResults = []*store.RetrievedUnit{
			{UnitID: "u1", Content: "goroutines are lightweight", SourceLocator: "ch08", Score: 0.9},
			{UnitID: "u2", Content: "channels connect goroutines", SourceLocator: "ch08", Score: 0.7},
		}

		assembly, err := newTestController(vectors).AssembleWholeCorpus(ctx, "what is a goroutine")
		require.NoError(t, err)
		assert.Equal(t, biz.StateContextAssembled, assembly.State)
		assert.Equal(t, model.ModeWholeCorpus, assembly.Mode)
		require.Len(t, assembly.Units, 2)
		assert.Equal(t, "u1", assembly.Units[0].UnitID)
		assert.Equal(t, "ch08", assembly.Units[0].SourceLocator)
	})

	t.Run("零结果进入上下文不足", func(t *testing.T) {
		vectors := newFakeVectorStore()

		assembly, err := newTestController(vectors).AssembleWholeCorpus(ctx, "unrelated question")
		require.NoError(t, err)
		assert.Equal(t, biz.StateContextInsufficient, assembly.State)
		assert.Empty(t, assembly.Units)
	})

	t.Run("向量存储不可达按零结果处理", func(t *testing.T) {
		vectors := newFakeVectorStore()
		vectors.queryErr = fmt.Errorf("%w: connection refused", store.ErrUnavailable)

		assembly, err := newTestController(vectors).AssembleWholeCorpus(ctx, "any question")
		require.NoError(t, err)
		assert.Equal(t, biz.StateContextInsufficient, assembly.State)
	})

	t.Run("嵌入瞬时故障原样上抛", func(t *testing.T) {
		vectors := newFakeVectorStore()
		embedder := biz.NewEmbedder(&fakeEmbeddingProvider{dim: 8, err: errors.New("timeout")}, &biz.EmbedderConfig{
			Dimension: 8,
			Retry:     fastRetry(),
		})
		controller := biz.NewController(vectors, embedder, &biz.ControllerConfig{TopK: 5})

		assembly, err := controller.AssembleWholeCorpus(ctx, "any question")
		require.Error(t, err)
		assert.Nil(t, assembly)
		var terr *biz.TransientProviderError
		assert.ErrorAs(t, err, &terr)
		// 嵌入失败时不应触达向量存储
		assert.Equal(t, 0, vectors.queryCalls)
	})
}

func TestAssembleSelectedText(t *testing.T) {
	t.Run("选中文本足够长时装配为唯一上下文", func(t *testing.T) {
		text := "A goroutine is a lightweight thread managed by the runtime."
		assembly := biz.AssembleSelectedText(text, 5)

		assert.Equal(t, biz.StateContextAssembled, assembly.State)
		assert.Equal(t, model.ModeSelectedText, assembly.Mode)
		require.Len(t, assembly.Units, 1)
		assert.Equal(t, text, assembly.Units[0].Content)
		assert.Equal(t, biz.SourceLocatorSelection, assembly.Units[0].SourceLocator)
	})

	t.Run("过短的选中文本进入上下文不足", func(t *testing.T) {
		assembly := biz.AssembleSelectedText("too short", 5)
		assert.Equal(t, biz.StateContextInsufficient, assembly.State)
	})

	t.Run("空白选中文本进入上下文不足", func(t *testing.T) {
		assembly := biz.AssembleSelectedText("   \n\t ", 0)
		assert.Equal(t, biz.StateContextInsufficient, assembly.State)
	})
}

func TestControllerStateString(t *testing.T) {
	tests := []struct {
		state biz.ControllerState
		want  string
	}{
		{biz.StateIdle, "idle"},
		{biz.StateModeSelected, "mode-selected"},
		{biz.StateContextAssembled, "context-assembled"},
		{biz.StateContextInsufficient, "context-insufficient"},
		{biz.StateDone, "done"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}
