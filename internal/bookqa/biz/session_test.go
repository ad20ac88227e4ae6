package biz_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/bookqa/internal/bookqa/biz"
	"github.com/kart-io/bookqa/internal/model"
)

func newTestSessionManager(t *testing.T) *biz.SessionManager {
	t.Helper()
	factory := newTestFactory(t)
	return biz.NewSessionManager(factory.Sessions(), &biz.SessionManagerConfig{
		InactivityTTL: 30 * time.Minute,
		SweepInterval: time.Minute,
	})
}

func TestSessionManager(t *testing.T) {
	ctx := context.Background()

	t.Run("创建后可读取", func(t *testing.T) {
		manager := newTestSessionManager(t)

		id, err := manager.Create(ctx)
		require.NoError(t, err)
		require.Len(t, id, 26) // ULID 长度

		session, err := manager.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, session.ID)
	})

	t.Run("不存在的会话返回 ErrSessionNotFound", func(t *testing.T) {
		manager := newTestSessionManager(t)

		_, err := manager.Get(ctx, "01ARZ3NDEKTSV4RRFFQ69G5FAV")
		assert.ErrorIs(t, err, biz.ErrSessionNotFound)

		_, err = manager.History(ctx, "01ARZ3NDEKTSV4RRFFQ69G5FAV")
		assert.ErrorIs(t, err, biz.ErrSessionNotFound)
	})

	t.Run("轮次按追加顺序编号", func(t *testing.T) {
		manager := newTestSessionManager(t)
		id, err := manager.Create(ctx)
		require.NoError(t, err)

		sources := []model.UnitSource{{UnitID: "u1", SourceLocator: "ch01", Content: "context"}}
		first, err := manager.AppendTurn(ctx, id, model.ModeWholeCorpus, "q1", "a1", false, sources)
		require.NoError(t, err)
		assert.Equal(t, 0, first.Seq)

		second, err := manager.AppendTurn(ctx, id, model.ModeWholeCorpus, "q2", biz.RefusalWholeCorpus, true, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, second.Seq)

		turns, err := manager.History(ctx, id)
		require.NoError(t, err)
		require.Len(t, turns, 2)
		assert.Equal(t, "q1", turns[0].Question)
		require.Len(t, turns[0].Sources, 1)
		assert.Equal(t, "u1", turns[0].Sources[0].UnitID)
		assert.True(t, turns[1].Refused)
		assert.Empty(t, turns[1].Sources)
	})

	t.Run("选中文本轮次不携带检索引用", func(t *testing.T) {
		manager := newTestSessionManager(t)
		id, err := manager.Create(ctx)
		require.NoError(t, err)

		// 即便调用方传了引用也必须被丢弃
		sources := []model.UnitSource{{UnitID: "u1", SourceLocator: "ch01"}}
		turn, err := manager.AppendTurn(ctx, id, model.ModeSelectedText, "q", "a", false, sources)
		require.NoError(t, err)
		assert.Empty(t, turn.Sources)

		turns, err := manager.History(ctx, id)
		require.NoError(t, err)
		require.Len(t, turns, 1)
		assert.Equal(t, model.ModeSelectedText, turns[0].Mode)
		assert.Empty(t, turns[0].Sources)
	})

	t.Run("并发追加序号无空洞", func(t *testing.T) {
		manager := newTestSessionManager(t)
		id, err := manager.Create(ctx)
		require.NoError(t, err)

		const turns = 10
		done := make(chan int, turns)
		for i := 0; i < turns; i++ {
			go func() {
				turn, err := manager.AppendTurn(ctx, id, model.ModeWholeCorpus, "q", "a", false, nil)
				if err != nil {
					done <- -1
					return
				}
				done <- turn.Seq
			}()
		}

		seen := make(map[int]bool)
		for i := 0; i < turns; i++ {
			seq := <-done
			require.GreaterOrEqual(t, seq, 0)
			assert.False(t, seen[seq], "duplicated seq %d", seq)
			seen[seq] = true
		}
		for seq := 0; seq < turns; seq++ {
			assert.True(t, seen[seq], "missing seq %d", seq)
		}
	})
}
