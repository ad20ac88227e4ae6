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

// stubVerifier 返回固定的接地判定结果。
type stubVerifier struct {
	grounded bool
	err      error
}

func (s *stubVerifier) VerifyGrounded(_ context.Context, _ []*biz.ContextUnit, _ string) (bool, error) {
	return s.grounded, s.err
}

func assembledUnits(contents ...string) *biz.Assembly {
	units := make([]*biz.ContextUnit, len(contents))
	for i, content := range contents {
		units[i] = &biz.ContextUnit{UnitID: string(rune('a' + i)), Content: content, SourceLocator: "ch01"}
	}
	return &biz.Assembly{Mode: model.ModeWholeCorpus, State: biz.StateContextAssembled, Units: units}
}

func TestValidatorPreCheck(t *testing.T) {
	t.Run("空上下文返回 ErrContextInsufficient", func(t *testing.T) {
		v := biz.NewValidator(&stubVerifier{grounded: true}, &biz.ValidatorConfig{})

		_, err := v.PreCheck(&biz.Assembly{State: biz.StateContextInsufficient})
		assert.ErrorIs(t, err, biz.ErrContextInsufficient)

		_, err = v.PreCheck(nil)
		assert.ErrorIs(t, err, biz.ErrContextInsufficient)
	})

	t.Run("预算内的上下文原样保留", func(t *testing.T) {
		v := biz.NewValidator(&stubVerifier{grounded: true}, &biz.ValidatorConfig{ContextTokenBudget: 100})

		units, err := v.PreCheck(assembledUnits("one two three", "four five six"))
		require.NoError(t, err)
		assert.Len(t, units, 2)
	})

	t.Run("超预算时整单元丢弃排名最低者", func(t *testing.T) {
		v := biz.NewValidator(&stubVerifier{grounded: true}, &biz.ValidatorConfig{ContextTokenBudget: 5})

		units, err := v.PreCheck(assembledUnits("one two three", "four five six", "seven eight"))
		require.NoError(t, err)
		// 第一个单元 3 词元，加第二个越过预算 5，其后全部丢弃
		require.Len(t, units, 1)
		assert.Equal(t, "one two three", units[0].Content)
	})

	t.Run("单个超预算单元仍保留", func(t *testing.T) {
		v := biz.NewValidator(&stubVerifier{grounded: true}, &biz.ValidatorConfig{ContextTokenBudget: 2})

		units, err := v.PreCheck(assembledUnits("one two three four five"))
		require.NoError(t, err)
		assert.Len(t, units, 1)
	})
}

func TestValidatorPostCheck(t *testing.T) {
	ctx := context.Background()
	units := assembledUnits("goroutines are lightweight threads").Units

	t.Run("接地草稿原样通过", func(t *testing.T) {
		v := biz.NewValidator(&stubVerifier{grounded: true}, &biz.ValidatorConfig{})

		answer, refused := v.PostCheck(ctx, model.ModeWholeCorpus, units, "Goroutines are lightweight.")
		assert.False(t, refused)
		assert.Equal(t, "Goroutines are lightweight.", answer)
	})

	t.Run("未接地草稿替换为全库拒答文案", func(t *testing.T) {
		v := biz.NewValidator(&stubVerifier{grounded: false}, &biz.ValidatorConfig{})

		answer, refused := v.PostCheck(ctx, model.ModeWholeCorpus, units, "Made-up answer.")
		assert.True(t, refused)
		assert.Equal(t, biz.RefusalWholeCorpus, answer)
	})

	t.Run("选中文本模式使用对应拒答文案", func(t *testing.T) {
		v := biz.NewValidator(&stubVerifier{grounded: false}, &biz.ValidatorConfig{})

		answer, refused := v.PostCheck(ctx, model.ModeSelectedText, units, "Made-up answer.")
		assert.True(t, refused)
		assert.Equal(t, biz.RefusalSelectedText, answer)
	})

	t.Run("校验调用出错按未接地处理", func(t *testing.T) {
		v := biz.NewValidator(&stubVerifier{grounded: true, err: errors.New("verifier down")}, &biz.ValidatorConfig{})

		answer, refused := v.PostCheck(ctx, model.ModeWholeCorpus, units, "Any draft.")
		assert.True(t, refused)
		assert.Equal(t, biz.RefusalWholeCorpus, answer)
	})
}

func TestOverlapVerifier(t *testing.T) {
	ctx := context.Background()
	verifier := biz.NewOverlapVerifier(nil)

	units := []*biz.ContextUnit{
		{Content: "A goroutine is a lightweight thread of execution managed by the Go runtime scheduler."},
		{Content: "Channels provide a way for goroutines to communicate and synchronize their execution."},
	}

	tests := []struct {
		name  string
		draft string
		want  bool
	}{
		{
			name:  "复述上下文的草稿判为接地",
			draft: "A goroutine is a lightweight thread managed by the Go runtime. Channels let goroutines communicate and synchronize.",
			want:  true,
		},
		{
			name:  "与上下文无关的草稿判为未接地",
			draft: "Python decorators wrap functions to modify their behavior at definition time.",
			want:  false,
		},
		{
			name:  "空草稿判为未接地",
			draft: "",
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grounded, err := verifier.VerifyGrounded(ctx, units, tt.draft)
			require.NoError(t, err)
			assert.Equal(t, tt.want, grounded)
		})
	}

	t.Run("空上下文判为未接地", func(t *testing.T) {
		grounded, err := verifier.VerifyGrounded(ctx, nil, "any draft")
		require.NoError(t, err)
		assert.False(t, grounded)
	})
}
