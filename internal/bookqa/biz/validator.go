package biz

import (
	"context"

	"github.com/kart-io/logger"

	"github.com/kart-io/bookqa/internal/model"
	"github.com/kart-io/bookqa/internal/pkg/textutil"
)

// Verifier 判定草稿答案是否可归因于给定上下文。
// 这是可插拔策略：默认用词重叠启发式，也可换成二次校验调用。
type Verifier interface {
	// VerifyGrounded 返回草稿是否接地于上下文。
	VerifyGrounded(ctx context.Context, units []*ContextUnit, draft string) (bool, error)
}

// ValidatorConfig 接地校验器配置。
type ValidatorConfig struct {
	// ContextTokenBudget 生成器输入的词元预算。
	ContextTokenBudget int
}

// Validator 在生成前后强制执行接地约束。
//
// 生成前：上下文非空且在生成器输入预算内（超预算时整单元
// 丢弃排名最低者，绝不从单元中间截断）；
// 生成后：草稿未通过接地校验时以当前模式的固定拒答文案替换，
// 替换是终局的，不允许放宽约束重试。
type Validator struct {
	verifier Verifier
	config   *ValidatorConfig
}

// NewValidator 创建接地校验器实例。
func NewValidator(verifier Verifier, config *ValidatorConfig) *Validator {
	return &Validator{
		verifier: verifier,
		config:   config,
	}
}

// PreCheck 生成前检查：上下文非空并截到输入预算之内。
// 上下文为空时返回 ErrContextInsufficient。
func (v *Validator) PreCheck(assembly *Assembly) ([]*ContextUnit, error) {
	if assembly == nil || assembly.State != StateContextAssembled || len(assembly.Units) == 0 {
		return nil, ErrContextInsufficient
	}

	if v.config.ContextTokenBudget <= 0 {
		return assembly.Units, nil
	}

	// 按装配顺序（分数降序）累积，超预算的低排名单元整个丢弃。
	var kept []*ContextUnit
	total := 0
	for _, unit := range assembly.Units {
		tokens := textutil.CountTokens(unit.Content)
		if len(kept) > 0 && total+tokens > v.config.ContextTokenBudget {
			break
		}
		kept = append(kept, unit)
		total += tokens
	}

	if len(kept) < len(assembly.Units) {
		logger.Infow("context truncated to generator budget",
			"kept", len(kept),
			"dropped", len(assembly.Units)-len(kept),
			"budget", v.config.ContextTokenBudget,
		)
	}

	return kept, nil
}

// PostCheck 生成后检查：草稿不可归因于上下文时替换为固定拒答。
// 返回最终答案与是否拒答。校验调用本身出错时按未接地处理。
func (v *Validator) PostCheck(ctx context.Context, mode model.Mode, units []*ContextUnit, draft string) (string, bool) {
	grounded, err := v.verifier.VerifyGrounded(ctx, units, draft)
	if err != nil {
		logger.Warnw("grounding verification failed, refusing",
			"error", err.Error(),
		)
		grounded = false
	}

	if !grounded {
		return RefusalForMode(mode == model.ModeSelectedText), true
	}
	return draft, false
}

// OverlapVerifierConfig 词重叠校验配置。
type OverlapVerifierConfig struct {
	// SentenceThreshold 单句对齐所需的实义词覆盖比例。
	SentenceThreshold float64
	// AnswerThreshold 整体接地所需的对齐句子比例。
	AnswerThreshold float64
}

// DefaultOverlapVerifierConfig 返回默认的词重叠校验配置。
func DefaultOverlapVerifierConfig() *OverlapVerifierConfig {
	return &OverlapVerifierConfig{
		SentenceThreshold: 0.6,
		AnswerThreshold:   0.8,
	}
}

// OverlapVerifier 基于停用词过滤后的实义词重叠判定接地：
// 草稿逐句检查其实义词在上下文词集中的覆盖比例，对齐句子
// 占比达到阈值则认为接地。
type OverlapVerifier struct {
	config *OverlapVerifierConfig
}

// NewOverlapVerifier 创建词重叠校验器。
func NewOverlapVerifier(config *OverlapVerifierConfig) *OverlapVerifier {
	if config == nil {
		config = DefaultOverlapVerifierConfig()
	}
	return &OverlapVerifier{config: config}
}

// VerifyGrounded 实现 Verifier 接口。
func (o *OverlapVerifier) VerifyGrounded(_ context.Context, units []*ContextUnit, draft string) (bool, error) {
	if len(units) == 0 {
		return false, nil
	}

	contextWords := make(map[string]struct{})
	for _, unit := range units {
		for _, w := range textutil.ContentWords(unit.Content) {
			contextWords[w] = struct{}{}
		}
	}
	if len(contextWords) == 0 {
		return false, nil
	}

	sentences := textutil.SplitSentences(draft)
	if len(sentences) == 0 {
		return false, nil
	}

	aligned := 0
	checked := 0
	for _, sentence := range sentences {
		words := textutil.ContentWords(sentence)
		if len(words) == 0 {
			continue
		}
		checked++

		covered := 0
		for _, w := range words {
			if _, ok := contextWords[w]; ok {
				covered++
			}
		}
		if float64(covered)/float64(len(words)) >= o.config.SentenceThreshold {
			aligned++
		}
	}

	if checked == 0 {
		return false, nil
	}
	return float64(aligned)/float64(checked) >= o.config.AnswerThreshold, nil
}

// 确保 OverlapVerifier 实现了 Verifier 接口。
var _ Verifier = (*OverlapVerifier)(nil)
