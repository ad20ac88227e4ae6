// Package textutil 提供检索问答相关的文本处理工具函数。
package textutil

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode/utf8"
)

// HashString 计算字符串的 MD5 哈希值，返回十六进制表示。
func HashString(s string) string {
	hash := md5.Sum([]byte(s))
	return hex.EncodeToString(hash[:])
}

// TruncateString 截断字符串到指定的最大 Unicode 字符数。
func TruncateString(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen])
}

// sentenceEndRegex 匹配以句末标点结尾的句子片段。
var sentenceEndRegex = regexp.MustCompile(`[^.!?。！？]*[.!?。！？]+(?:["')\]]+)?`)

// SplitSentences 将文本按句子边界切分。
// 识别常见的中英文句末标点；没有句末标点的尾部文本作为最后一句返回。
func SplitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var sentences []string
	rest := text
	for {
		loc := sentenceEndRegex.FindStringIndex(rest)
		if loc == nil {
			break
		}
		s := strings.TrimSpace(rest[loc[0]:loc[1]])
		if s != "" {
			sentences = append(sentences, s)
		}
		rest = rest[loc[1]:]
	}

	if tail := strings.TrimSpace(rest); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

// Tokenize 将文本按空白切分为词元序列。
func Tokenize(s string) []string {
	return strings.Fields(s)
}

// CountTokens 统计文本的词元数量（按空白切分）。
func CountTokens(s string) int {
	return len(strings.Fields(s))
}

// TailTokens 返回文本末尾最多 n 个词元组成的字符串。
// n <= 0 时返回空串。
func TailTokens(s string, n int) string {
	if n <= 0 {
		return ""
	}
	tokens := strings.Fields(s)
	if len(tokens) <= n {
		return strings.Join(tokens, " ")
	}
	return strings.Join(tokens[len(tokens)-n:], " ")
}

// stopwords 为词重叠对齐检查时忽略的高频功能词。
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "can": {}, "for": {}, "from": {}, "has": {},
	"have": {}, "in": {}, "is": {}, "it": {}, "its": {}, "of": {},
	"on": {}, "or": {}, "that": {}, "the": {}, "this": {}, "to": {},
	"was": {}, "were": {}, "which": {}, "will": {}, "with": {},
}

var wordRegex = regexp.MustCompile(`[\p{L}\p{N}]+`)

// ContentWords 提取文本中的实义词：小写化、去标点、过滤停用词。
// 用于答案与上下文之间的词重叠对齐检查。
func ContentWords(s string) []string {
	raw := wordRegex.FindAllString(strings.ToLower(s), -1)
	words := make([]string, 0, len(raw))
	for _, w := range raw {
		if _, ok := stopwords[w]; ok {
			continue
		}
		if utf8.RuneCountInString(w) < 2 {
			continue
		}
		words = append(words, w)
	}
	return words
}

// ExtractMarkdownSections 从 Markdown 内容中按标题提取章节。
// 返回有序的 (标题, 内容) 列表；首个标题之前的内容归入 "Introduction"。
func ExtractMarkdownSections(content string) []MarkdownSection {
	headerRegex := regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)

	parts := headerRegex.Split(content, -1)
	headers := headerRegex.FindAllStringSubmatch(content, -1)

	var sections []MarkdownSection
	currentTitle := "Introduction"
	for i, part := range parts {
		if i > 0 && i-1 < len(headers) {
			currentTitle = strings.TrimSpace(headers[i-1][2])
		}
		part = strings.TrimSpace(part)
		if len(part) > 0 {
			sections = append(sections, MarkdownSection{Title: currentTitle, Content: part})
		}
	}

	return sections
}

// MarkdownSection 表示 Markdown 文档中的一个章节。
type MarkdownSection struct {
	Title   string
	Content string
}
