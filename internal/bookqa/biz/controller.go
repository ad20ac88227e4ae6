package biz

import (
	"context"
	"errors"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/bookqa/internal/bookqa/store"
	"github.com/kart-io/bookqa/internal/model"
	"github.com/kart-io/bookqa/internal/pkg/textutil"
)

// SourceLocatorSelection 选中文本上下文的固定来源定位。
const SourceLocatorSelection = "user-selection"

// ControllerState 检索控制器的状态。
// 状态机：Idle → ModeSelected → (ContextAssembled | ContextInsufficient) → Done。
type ControllerState int

const (
	// StateIdle 初始状态。
	StateIdle ControllerState = iota
	// StateModeSelected 已确定检索模式。
	StateModeSelected
	// StateContextAssembled 上下文装配完成，可以进入生成。
	StateContextAssembled
	// StateContextInsufficient 上下文不足，进入拒答终态。
	StateContextInsufficient
	// StateDone 请求处理完毕。
	StateDone
)

// String 返回状态名。
func (s ControllerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateModeSelected:
		return "mode-selected"
	case StateContextAssembled:
		return "context-assembled"
	case StateContextInsufficient:
		return "context-insufficient"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// ContextUnit 装配后的一条上下文单元。
type ContextUnit struct {
	// UnitID 文本单元 ID；选中文本上下文为空。
	UnitID string
	// SourceLocator 来源定位。
	SourceLocator string
	// Content 单元内容。
	Content string
	// Score 相似度分数；选中文本上下文为 0。
	Score float32
}

// Assembly 一次请求的上下文装配结果。
type Assembly struct {
	// Mode 本次请求使用的模式。
	Mode model.Mode
	// State 装配终态：ContextAssembled 或 ContextInsufficient。
	State ControllerState
	// Units 装配的上下文单元，按分数降序；不足时为空。
	Units []*ContextUnit
}

// ControllerConfig 检索控制器配置。
type ControllerConfig struct {
	// TopK 相似度检索返回的结果数上限。
	TopK int
	// ScoreThreshold 结果保留的最低相似度分数。
	ScoreThreshold float32
	// MinSelectedTokens 选中文本可用的最小词元数。
	MinSelectedTokens int
}

// Controller 模式感知的检索控制器。
//
// 仅全库检索路径持有向量存储与嵌入适配器引用；选中文本路径
// 是不触达任何外部依赖的纯函数（见 AssembleSelectedText），
// 模式隔离由构造保证而非运行时检查。
type Controller struct {
	store    store.VectorStore
	embedder *Embedder
	config   *ControllerConfig
}

// NewController 创建检索控制器实例。
func NewController(vectorStore store.VectorStore, embedder *Embedder, config *ControllerConfig) *Controller {
	return &Controller{
		store:    vectorStore,
		embedder: embedder,
		config:   config,
	}
}

// MinSelectedTokens 返回选中文本可用的最小词元数配置。
func (c *Controller) MinSelectedTokens() int {
	return c.config.MinSelectedTokens
}

// AssembleWholeCorpus 全库检索模式的上下文装配。
//
// 检索是生成的硬性前置条件：向量存储不可达或没有任何结果达到
// 分数阈值时进入 ContextInsufficient，生成绝不会被调用。
// 嵌入查询的瞬时故障原样上抛，由调用方返回可重试错误响应，
// 而非伪装成拒答。
func (c *Controller) AssembleWholeCorpus(ctx context.Context, question string) (*Assembly, error) {
	assembly := &Assembly{Mode: model.ModeWholeCorpus, State: StateModeSelected}

	vector, err := c.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, err
	}

	results, err := c.store.Query(ctx, vector, c.config.TopK, c.config.ScoreThreshold)
	if err != nil {
		if errors.Is(err, store.ErrUnavailable) {
			// 连接失败等同于零结果：拒答，不尝试生成。
			logger.Warnw("vector store unavailable, refusing",
				"error", err.Error(),
			)
			assembly.State = StateContextInsufficient
			return assembly, nil
		}
		return nil, err
	}

	if len(results) == 0 {
		assembly.State = StateContextInsufficient
		return assembly, nil
	}

	units := make([]*ContextUnit, len(results))
	for i, r := range results {
		units[i] = &ContextUnit{
			UnitID:        r.UnitID,
			SourceLocator: r.SourceLocator,
			Content:       r.Content,
			Score:         r.Score,
		}
	}

	assembly.State = StateContextAssembled
	assembly.Units = units
	return assembly, nil
}

// AssembleSelectedText 选中文本模式的上下文装配。
//
// 纯函数：不嵌入、不检索，用户提供的文本就是唯一上下文。
// 文本为空或低于最小可用长度时进入 ContextInsufficient。
func AssembleSelectedText(selectedText string, minTokens int) *Assembly {
	assembly := &Assembly{Mode: model.ModeSelectedText, State: StateModeSelected}

	if strings.TrimSpace(selectedText) == "" || textutil.CountTokens(selectedText) < minTokens {
		assembly.State = StateContextInsufficient
		return assembly
	}

	assembly.State = StateContextAssembled
	assembly.Units = []*ContextUnit{{
		SourceLocator: SourceLocatorSelection,
		Content:       selectedText,
	}}
	return assembly
}
