package rag

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/answerflow/types"
)

// ContextBuilder 将打分文档按输入顺序贪心打包为 token 预算内的上下文块。
// 单个文档超出预算时先切分为顺序子块再打包。无失败模式：
// 缺失的元数据字段静默省略。
type ContextBuilder struct {
	budget    int
	fullDocs  bool
	tokenizer Tokenizer
	logger    *zap.Logger
}

// NewContextBuilder 创建上下文打包器。
// budget 是单块 token 预算；useFullDocuments 为 false 时打包元数据摘要。
func NewContextBuilder(budget int, useFullDocuments bool, tokenizer Tokenizer, logger *zap.Logger) *ContextBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContextBuilder{
		budget:    budget,
		fullDocs:  useFullDocuments,
		tokenizer: tokenizer,
		logger:    logger,
	}
}

// Build 打包文档并返回上下文块与文档归因列表。
// 零个输入文档返回恰好一个空块。
func (b *ContextBuilder) Build(docs []types.Document) ([]types.ContextBlock, []types.UsedArticle) {
	blocks := []types.ContextBlock{{}}
	used := make([]types.UsedArticle, 0, len(docs))

	for _, doc := range docs {
		content := doc.Content
		if !b.fullDocs {
			if summary := doc.Meta(types.MetaSummary); summary != "" {
				content = summary
			}
		}

		tokens := b.tokenizer.CountTokens(content)
		chunks := []chunk{{text: content, tokens: tokens}}
		if tokens > b.budget {
			chunks = b.splitLargeContent(content, tokens)
		}

		for _, c := range chunks {
			// 当前块放不下则开新块
			last := &blocks[len(blocks)-1]
			if last.TokensUsed+c.tokens >= b.budget && len(last.Entries) > 0 {
				blocks = append(blocks, types.ContextBlock{})
				last = &blocks[len(blocks)-1]
			}

			last.Entries = append(last.Entries, types.ContextEntry{
				Title:   doc.Title(),
				Content: c.text,
			})
			last.TokensUsed += c.tokens
			last.DocsUsed++

			used = append(used, types.UsedArticle{
				Label: fmt.Sprintf("%s Context: %d", doc.Meta(types.MetaSectionName), len(blocks)),
				Score: doc.Score,
			})
		}
	}

	docsUsed := make([]int, len(blocks))
	tokensUsed := make([]int, len(blocks))
	for i, block := range blocks {
		docsUsed[i] = block.DocsUsed
		tokensUsed[i] = block.TokensUsed
	}
	b.logger.Info("context blocks built",
		zap.Ints("docs_used", docsUsed),
		zap.Ints("tokens_used", tokensUsed))

	return blocks, used
}

// chunk 是预切分后的一段内容及其 token 数。
type chunk struct {
	text   string
	tokens int
}

// splitLargeContent 将超预算的内容切分为顺序子块，每块 token 数 <= 预算。
// 按字符比例估计切点，超出时回退收缩。
func (b *ContextBuilder) splitLargeContent(content string, totalTokens int) []chunk {
	runes := []rune(content)

	// 预算对应的字符数估计
	approxChars := int(float64(len(runes)) * float64(b.budget) / float64(totalTokens))
	if approxChars < 1 {
		approxChars = 1
	}

	chunks := make([]chunk, 0, totalTokens/b.budget+1)
	for start := 0; start < len(runes); {
		end := start + approxChars
		if end > len(runes) {
			end = len(runes)
		}

		piece := string(runes[start:end])
		pieceTokens := b.tokenizer.CountTokens(piece)

		// 估计偏大时收缩，直至满足预算
		for pieceTokens > b.budget && end > start+1 {
			shrink := (end - start) / 10
			if shrink < 1 {
				shrink = 1
			}
			end -= shrink
			piece = string(runes[start:end])
			pieceTokens = b.tokenizer.CountTokens(piece)
		}

		chunks = append(chunks, chunk{text: piece, tokens: pieceTokens})
		start = end
	}

	return chunks
}
