package biz

import (
	"fmt"
	"strings"

	"github.com/kart-io/bookqa/internal/model"
	"github.com/kart-io/bookqa/internal/pkg/textutil"
)

// ChunkerConfig 切分器配置。
type ChunkerConfig struct {
	// TokenBudget 每个文本单元的词元数上限。
	TokenBudget int
	// TokenOverlap 同一来源相邻单元间的固定词元重叠数。
	TokenOverlap int
}

// Chunker 将文档确定性地切分为有序、稳定编号的文本单元。
//
// 切分按句子边界进行：容差内存在句子边界时绝不从句中切开；
// 单元 ID 是 (来源定位, 序号, 内容哈希) 的纯函数，未变更的
// 源文本重新切分产生字节级相同的 ID。
type Chunker struct {
	config *ChunkerConfig
}

// NewChunker 创建切分器实例。
func NewChunker(config *ChunkerConfig) (*Chunker, error) {
	if config.TokenBudget <= 0 {
		return nil, fmt.Errorf("chunker token budget must be positive, got %d", config.TokenBudget)
	}
	if config.TokenOverlap < 0 || config.TokenOverlap >= config.TokenBudget {
		return nil, fmt.Errorf("chunker token overlap must be in [0, budget), got %d", config.TokenOverlap)
	}
	return &Chunker{config: config}, nil
}

// UnitID 由 (来源定位, 序号, 内容哈希) 派生稳定单元 ID。
func UnitID(sourceLocator string, sequenceIndex int, content string) string {
	contentHash := textutil.HashString(content)
	return textutil.HashString(fmt.Sprintf("%s#%d#%s", sourceLocator, sequenceIndex, contentHash))
}

// Chunk 将文档切分为文本单元序列。
// 空白文档返回空序列。
//
// Markdown 标题是硬切分边界：每个章节独立切分，重叠词元不跨章节，
// 序号在整个文档内单调递增。无标题的纯文本视为单一章节。
func (c *Chunker) Chunk(doc *model.Document) ([]*model.TextUnit, error) {
	if doc == nil || strings.TrimSpace(doc.SourceLocator) == "" {
		return nil, fmt.Errorf("document source locator is required")
	}

	var units []*model.TextUnit

	emit := func(content string, truncated bool) {
		content = strings.TrimSpace(content)
		if content == "" {
			return
		}
		seq := len(units)
		units = append(units, &model.TextUnit{
			ID:            UnitID(doc.SourceLocator, seq, content),
			Content:       content,
			SourceLocator: doc.SourceLocator,
			SequenceIndex: seq,
			TokenCount:    textutil.CountTokens(content),
			Truncated:     truncated,
		})
	}

	chunkText := func(text string) {
		sentences := textutil.SplitSentences(text)
		if len(sentences) == 0 {
			return
		}

		var current string // 当前累积的单元内容（可能以重叠词元开头）
		var hasNew bool    // current 是否包含重叠之外的新句子
		var carry string   // 下一单元开头的重叠词元

		flush := func() {
			if !hasNew {
				return
			}
			emit(current, false)
			carry = textutil.TailTokens(current, c.config.TokenOverlap)
			current = carry
			hasNew = false
		}

		for _, sentence := range sentences {
			sentTokens := textutil.CountTokens(sentence)

			// 超预算的不可切分长句：先落盘已累积内容，再按词元窗口
			// 硬切并标记，绝不静默丢弃。
			if sentTokens > c.config.TokenBudget {
				flush()
				c.hardSplit(sentence, emit)
				last := units[len(units)-1]
				carry = textutil.TailTokens(last.Content, c.config.TokenOverlap)
				current = carry
				hasNew = false
				continue
			}

			currentTokens := textutil.CountTokens(current)
			if hasNew && currentTokens+sentTokens > c.config.TokenBudget {
				flush()
				currentTokens = textutil.CountTokens(current)
			}

			// 重叠词元与新句子相加仍超预算时，舍弃重叠从句子重新开始，
			// 保证单元长度不破预算。
			if !hasNew && currentTokens+sentTokens > c.config.TokenBudget {
				current = ""
			}

			if current == "" {
				current = sentence
			} else {
				current = current + " " + sentence
			}
			hasNew = true
		}
		flush()
	}

	for _, section := range textutil.ExtractMarkdownSections(doc.Content) {
		chunkText(section.Content)
	}

	return units, nil
}

// hardSplit 将超预算的不可切分文本按词元窗口切开，每个窗口
// 不超过预算并带固定重叠，所有产出单元都打上截断标记。
func (c *Chunker) hardSplit(text string, emit func(content string, truncated bool)) {
	tokens := textutil.Tokenize(text)
	step := c.config.TokenBudget - c.config.TokenOverlap

	for i := 0; i < len(tokens); i += step {
		end := i + c.config.TokenBudget
		if end > len(tokens) {
			end = len(tokens)
		}
		emit(strings.Join(tokens[i:end], " "), true)
		if end == len(tokens) {
			break
		}
	}
}
