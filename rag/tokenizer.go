package rag

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// Tokenizer 是上下文打包使用的 token 计数接口。
// 计数永不失败：实现内部出错时回退到估算并记录警告。
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数。
	CountTokens(text string) int
}

// NewTokenizer 按模型名创建分词器。
// model 非空时使用 tiktoken 精确计数（如 "gpt-4o"、"gpt-4"），
// 为空或初始化失败时回退到 CJK 感知估算器。
func NewTokenizer(model string, logger *zap.Logger) Tokenizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if model == "" {
		return NewEstimatorTokenizer()
	}
	return &tiktokenTokenizer{model: model, logger: logger}
}

// --- tiktoken 分词器 ---

// modelEncodings 将模型名称映射到其 tiktoken 编码。
var modelEncodings = map[string]string{
	"gpt-4o":        "o200k_base",
	"gpt-4o-mini":   "o200k_base",
	"gpt-4-turbo":   "cl100k_base",
	"gpt-4":         "cl100k_base",
	"gpt-3.5-turbo": "cl100k_base",
}

// tiktokenTokenizer 基于 tiktoken 的精确计数实现。
type tiktokenTokenizer struct {
	model   string
	logger  *zap.Logger
	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
}

// init lazily 初始化 tiktoken 编码（首次使用时可能下载编码数据）。
func (t *tiktokenTokenizer) init() error {
	t.once.Do(func() {
		encoding, ok := modelEncodings[t.model]
		if !ok {
			// 尝试前缀匹配（如 "gpt-4o-2024" 匹配 "gpt-4o"）。
			for prefix, e := range modelEncodings {
				if len(t.model) >= len(prefix) && t.model[:len(prefix)] == prefix {
					encoding = e
					ok = true
					break
				}
			}
		}
		if !ok {
			encoding = "cl100k_base"
		}
		t.enc, t.initErr = tiktoken.GetEncoding(encoding)
	})
	return t.initErr
}

// CountTokens 返回文本的 token 数。
// 初始化失败时回退到估算并记录警告。
func (t *tiktokenTokenizer) CountTokens(text string) int {
	if err := t.init(); err != nil {
		t.logger.Warn("tiktoken init failed, falling back to estimate",
			zap.String("model", t.model),
			zap.Error(err))
		return NewEstimatorTokenizer().CountTokens(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

// --- 估算分词器 ---

// EstimatorTokenizer 是基于字符数的 token 估算器。
// 区分 CJK 与 ASCII 字符，比朴素的 len/4 更准确。
type EstimatorTokenizer struct{}

// NewEstimatorTokenizer 创建估算器。
func NewEstimatorTokenizer() *EstimatorTokenizer {
	return &EstimatorTokenizer{}
}

// CountTokens 估算文本的 token 数。
// CJK 字符约 1.5 字符/token，ASCII 约 4 字符/token。
func (e *EstimatorTokenizer) CountTokens(text string) int {
	if text == "" {
		return 0
	}

	totalChars := utf8.RuneCountInString(text)
	cjkCount := 0
	for _, r := range text {
		if isCJK(r) {
			cjkCount++
		}
	}

	cjkTokens := float64(cjkCount) / 1.5
	asciiTokens := float64(totalChars-cjkCount) / 4.0
	estimated := int(cjkTokens + asciiTokens)

	if estimated == 0 {
		estimated = 1
	}
	return estimated
}

// isCJK returns true if the rune is a CJK character.
func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) || // CJK Unified Ideographs
		(r >= 0x3400 && r <= 0x4DBF) || // CJK Extension A
		(r >= 0x20000 && r <= 0x2A6DF) || // CJK Extension B
		(r >= 0xF900 && r <= 0xFAFF) || // CJK Compatibility Ideographs
		(r >= 0x3000 && r <= 0x303F) || // CJK Symbols and Punctuation
		(r >= 0xFF00 && r <= 0xFFEF) // Halfwidth and Fullwidth Forms
}
