package biz

import (
	"errors"
	"fmt"
)

// 固定拒答文案。上下文不足或接地校验未通过时原样返回，
// 不附加任何生成内容。
const (
	// RefusalWholeCorpus 全库检索模式的拒答文案。
	RefusalWholeCorpus = "The answer is not available in the provided content."
	// RefusalSelectedText 选中文本模式的拒答文案。
	RefusalSelectedText = "The answer is not available in the selected text."
)

// RefusalForMode 返回指定模式对应的拒答文案。
func RefusalForMode(selectedText bool) string {
	if selectedText {
		return RefusalSelectedText
	}
	return RefusalWholeCorpus
}

// ErrInvalidRequest 表示请求参数不合法，调用方应返回客户端错误。
var ErrInvalidRequest = errors.New("invalid request")

// ErrContextInsufficient 表示上下文不足，进入拒答终态。
// 这是设计内的终止状态而非故障：调用方返回固定拒答响应，
// 绝不进入生成。
var ErrContextInsufficient = errors.New("context insufficient")

// TransientProviderError 表示供应商瞬时故障（网络、限流、超时）。
// 适配器内部按退避策略重试，重试耗尽后逐单元上报为阶段失败。
type TransientProviderError struct {
	Provider string
	Err      error
}

// Error 实现 error 接口。
func (e *TransientProviderError) Error() string {
	return fmt.Sprintf("transient provider error (%s): %v", e.Provider, e.Err)
}

// Unwrap 返回底层错误。
func (e *TransientProviderError) Unwrap() error {
	return e.Err
}

// DimensionMismatchError 表示嵌入向量维度与集合配置不符。
// 这是硬性摄入失败，不重试。
type DimensionMismatchError struct {
	Expected int
	Actual   int
	UnitID   string
}

// Error 实现 error 接口。
func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch for unit %s: expected %d, got %d",
		e.UnitID, e.Expected, e.Actual)
}

// StageError 表示摄入流水线中某个单元在某阶段的失败。
// 逐单元上报给编排器做部分成功记账，绝不静默吞掉。
type StageError struct {
	UnitID string
	Stage  string
	Err    error
}

// Error 实现 error 接口。
func (e *StageError) Error() string {
	return fmt.Sprintf("unit %s failed at stage %s: %v", e.UnitID, e.Stage, e.Err)
}

// Unwrap 返回底层错误。
func (e *StageError) Unwrap() error {
	return e.Err
}
