package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/answerflow/types"
)

// Retriever 是检索后端契约。
// queries 中的多个查询彼此无序，结果合并满足「交换律 + 首见优先」；
// 返回 pre-filter（全部命中）与 post-filter（通过分数阈值）两个有序列表。
type Retriever interface {
	Retrieve(ctx context.Context, queries []string, memberCtx map[string]string) (pre, post []types.Document, err error)
}

// EmbedFunc 生成查询/文档的向量表示，由外部协作方提供。
type EmbedFunc func(ctx context.Context, text string) ([]float64, error)

// ====== 内存检索后端（用于测试和小规模语料）======

// MemoryRetriever 基于余弦相似度的内存检索后端。
// 相似度线性映射到 0–5 相关性量表后与 ScoreThreshold 比较。
type MemoryRetriever struct {
	topK      int
	threshold float64
	embed     EmbedFunc

	mu   sync.RWMutex
	docs []indexedDocument

	logger *zap.Logger
}

type indexedDocument struct {
	doc       types.Document
	embedding []float64
}

// NewMemoryRetriever 创建内存检索后端。
func NewMemoryRetriever(topK int, threshold float64, embed EmbedFunc, logger *zap.Logger) *MemoryRetriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	if topK <= 0 {
		topK = 4
	}
	return &MemoryRetriever{
		topK:      topK,
		threshold: threshold,
		embed:     embed,
		logger:    logger,
	}
}

// Index 将文档加入语料索引。
func (r *MemoryRetriever) Index(ctx context.Context, docs []types.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, doc := range docs {
		embedding, err := r.embed(ctx, doc.Content)
		if err != nil {
			return fmt.Errorf("embed document %s: %w", doc.Key(), err)
		}
		r.docs = append(r.docs, indexedDocument{doc: doc, embedding: embedding})
	}

	r.logger.Info("documents indexed",
		zap.Int("count", len(docs)),
		zap.Int("total", len(r.docs)))
	return nil
}

// Retrieve 实现 Retriever。
// 每个查询独立检索 topK 条，多查询结果按首见优先去重合并。
func (r *MemoryRetriever) Retrieve(ctx context.Context, queries []string, _ map[string]string) ([]types.Document, []types.Document, error) {
	var preLists [][]types.Document

	for _, query := range queries {
		hits, err := r.search(ctx, query)
		if err != nil {
			return nil, nil, err
		}
		preLists = append(preLists, hits)
	}

	pre := Deduplicate(preLists...)

	post := make([]types.Document, 0, len(pre))
	for _, doc := range pre {
		if doc.Score >= r.threshold {
			post = append(post, doc)
		}
	}

	r.logger.Debug("retrieval round done",
		zap.Int("queries", len(queries)),
		zap.Int("pre_filtered", len(pre)),
		zap.Int("post_filtered", len(post)))

	return pre, post, nil
}

func (r *MemoryRetriever) search(ctx context.Context, query string) ([]types.Document, error) {
	queryEmbedding, err := r.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	type scored struct {
		doc   types.Document
		score float64
	}

	results := make([]scored, 0, len(r.docs))
	for _, indexed := range r.docs {
		similarity := cosineSimilarity(queryEmbedding, indexed.embedding)
		// 余弦相似度 [0,1] 映射到 0–5 相关性量表
		results = append(results, scored{doc: indexed.doc, score: similarity * 5})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})

	if len(results) > r.topK {
		results = results[:r.topK]
	}

	docs := make([]types.Document, 0, len(results))
	for _, res := range results {
		doc := res.doc
		doc.Score = res.score
		if doc.Metadata == nil {
			doc.Metadata = make(map[string]string, 1)
		} else {
			// 不修改共享的底层 map
			cloned := make(map[string]string, len(doc.Metadata)+1)
			for k, v := range doc.Metadata {
				cloned[k] = v
			}
			doc.Metadata = cloned
		}
		doc.Metadata[types.MetaRelevancyScore] = fmt.Sprintf("%.2f", res.score)
		docs = append(docs, doc)
	}
	return docs, nil
}

// cosineSimilarity 计算两个向量的余弦相似度。
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
