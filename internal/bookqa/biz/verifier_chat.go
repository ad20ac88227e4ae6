package biz

import (
	"context"
	"fmt"
	"strings"

	"github.com/kart-io/bookqa/pkg/llm"
)

// ChatVerifier 通过二次 LLM 调用判定接地：让校验模型判断草稿
// 能否仅凭给定上下文推导得出。比词重叠启发式更准但引入一次
// 额外调用；校验调用失败时由 Validator 按未接地处理（宁拒勿漏）。
type ChatVerifier struct {
	chatProvider llm.ChatProvider
}

// NewChatVerifier 创建二次校验器。
func NewChatVerifier(chatProvider llm.ChatProvider) *ChatVerifier {
	return &ChatVerifier{chatProvider: chatProvider}
}

// VerifyGrounded 实现 Verifier 接口。
func (c *ChatVerifier) VerifyGrounded(ctx context.Context, units []*ContextUnit, draft string) (bool, error) {
	if len(units) == 0 || strings.TrimSpace(draft) == "" {
		return false, nil
	}

	var contextBuilder strings.Builder
	for _, unit := range units {
		contextBuilder.WriteString(unit.Content)
		contextBuilder.WriteString("\n\n")
	}

	prompt := fmt.Sprintf(`判断以下回答是否完全可以从给定的上下文中推导出来，不依赖任何外部知识。

回答: %s

上下文:
%s

请只回答 "是" 或 "否"。`, draft, contextBuilder.String())

	response, err := c.chatProvider.Generate(ctx, prompt, "")
	if err != nil {
		return false, fmt.Errorf("grounding verification call failed: %w", err)
	}

	return parseVerdict(response), nil
}

// parseVerdict 解析校验模型的回答。否定词优先：诸如 "不是"、"no, ..."
// 之类的回答同样含有肯定词，先查否定避免误判为接地。
func parseVerdict(response string) bool {
	response = strings.ToLower(strings.TrimSpace(response))
	for _, negative := range []string{"否", "不是", "不能", "no"} {
		if strings.Contains(response, negative) {
			return false
		}
	}
	return strings.Contains(response, "是") || strings.Contains(response, "yes")
}

// 确保 ChatVerifier 实现了 Verifier 接口。
var _ Verifier = (*ChatVerifier)(nil)
