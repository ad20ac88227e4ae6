package biz

import (
	"context"
	"fmt"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/bookqa/pkg/llm"
)

// 提示词中各段落的定界标记。上下文内容只出现在 CONTEXT 段内，
// 指令与问题不会和资料文本混在一起。
const (
	promptContextOpen  = "<<<CONTEXT>>>"
	promptContextClose = "<<<END CONTEXT>>>"
)

const wholeCorpusInstruction = `You are a technical book assistant. Answer the question using ONLY the material between the context markers below. Do not use any outside knowledge. If the material does not contain the answer, say so plainly instead of guessing.`

const selectedTextInstruction = `You are a technical book assistant. The reader selected a passage and asked a question about it. Answer using ONLY the selected passage between the context markers below. Do not use any outside knowledge and do not bring in other parts of the book. If the passage does not contain the answer, say so plainly instead of guessing.`

// Generator 负责调用 Chat 模型生成草稿答案。
type Generator struct {
	chatProvider llm.ChatProvider
}

// NewGenerator 创建生成器实例。
func NewGenerator(chatProvider llm.ChatProvider) *Generator {
	return &Generator{chatProvider: chatProvider}
}

// BuildPrompt 按固定槽位拼装提示词：指令、定界上下文、问题。
// selectedText 为 true 时使用选中文本模式的指令。
func BuildPrompt(selectedText bool, units []*ContextUnit, question string) string {
	instruction := wholeCorpusInstruction
	if selectedText {
		instruction = selectedTextInstruction
	}

	var b strings.Builder
	b.WriteString(instruction)
	b.WriteString("\n\n")
	b.WriteString(promptContextOpen)
	b.WriteString("\n")
	for _, unit := range units {
		if selectedText {
			b.WriteString(unit.Content)
		} else {
			b.WriteString(fmt.Sprintf("[Source: %s]\n%s", unit.SourceLocator, unit.Content))
		}
		b.WriteString("\n\n")
	}
	b.WriteString(promptContextClose)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	return b.String()
}

// Generate 根据已装配的上下文生成草稿答案。调用方保证 units 非空。
func (g *Generator) Generate(ctx context.Context, selectedText bool, units []*ContextUnit, question string) (string, error) {
	// 到达生成步骤前若 context 已取消则不再发起调用
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("cancelled before generation: %w", err)
	}

	prompt := BuildPrompt(selectedText, units, question)

	draft, err := g.chatProvider.Generate(ctx, prompt, "")
	if err != nil {
		logger.Errorf("answer generation failed: %v", err)
		return "", &TransientProviderError{Provider: g.chatProvider.Name(), Err: err}
	}

	logger.Infof("draft answer generated (length: %d, context units: %d)", len(draft), len(units))
	return draft, nil
}
