package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/answerflow/config"
	"github.com/BaSui01/answerflow/types"
)

// axisEmbed 把已知文本映射到固定正交向量，让相似度可精确预期。
func axisEmbed(vectors map[string][]float64) EmbedFunc {
	return func(_ context.Context, text string) ([]float64, error) {
		if v, ok := vectors[text]; ok {
			return v, nil
		}
		return []float64{0, 0, 0}, nil
	}
}

func TestMemoryRetriever_ScoreThresholdSplitsPrePost(t *testing.T) {
	embed := axisEmbed(map[string][]float64{
		"dental coverage": {1, 0, 0},
		"vision coverage": {0, 1, 0},
		"dental":          {1, 0, 0},
	})
	retriever := NewMemoryRetriever(4, 2.0, embed, nil)

	ctx := context.Background()
	dental := doc("dental.pdf", "benefits")
	dental.Content = "dental coverage"
	vision := doc("vision.pdf", "benefits")
	vision.Content = "vision coverage"
	require.NoError(t, retriever.Index(ctx, []types.Document{dental, vision}))

	pre, post, err := retriever.Retrieve(ctx, []string{"dental"}, nil)
	require.NoError(t, err)

	// pre 含全部命中，post 仅含过阈值者
	require.Len(t, pre, 2)
	require.Len(t, post, 1)
	assert.Equal(t, "dental.pdf|benefits", post[0].Key())
	assert.InDelta(t, 5.0, post[0].Score, 1e-9, "余弦 1.0 映射到满分 5")
	assert.Equal(t, "5.00", post[0].Meta(types.MetaRelevancyScore))
}

func TestMemoryRetriever_TopK(t *testing.T) {
	embed := func(_ context.Context, _ string) ([]float64, error) {
		return []float64{1, 1}, nil
	}
	retriever := NewMemoryRetriever(2, 0, embed, nil)

	ctx := context.Background()
	docs := []types.Document{
		doc("a.pdf", "s1"), doc("b.pdf", "s2"), doc("c.pdf", "s3"),
	}
	require.NoError(t, retriever.Index(ctx, docs))

	pre, _, err := retriever.Retrieve(ctx, []string{"anything"}, nil)
	require.NoError(t, err)
	assert.Len(t, pre, 2)
}

func TestMemoryRetriever_MultiQueryMergeDedups(t *testing.T) {
	embed := func(_ context.Context, _ string) ([]float64, error) {
		return []float64{1}, nil
	}
	retriever := NewMemoryRetriever(4, 0, embed, nil)

	ctx := context.Background()
	require.NoError(t, retriever.Index(ctx, []types.Document{doc("a.pdf", "s1")}))

	pre, _, err := retriever.Retrieve(ctx, []string{"q1", "q2"}, nil)
	require.NoError(t, err)
	assert.Len(t, pre, 1, "多查询命中同一文档只保留一份")
}

func TestMemoryRetriever_DoesNotMutateIndexedMetadata(t *testing.T) {
	embed := func(_ context.Context, _ string) ([]float64, error) {
		return []float64{1}, nil
	}
	retriever := NewMemoryRetriever(4, 0, embed, nil)

	original := doc("a.pdf", "s1")
	require.NoError(t, retriever.Index(context.Background(), []types.Document{original}))

	_, _, err := retriever.Retrieve(context.Background(), []string{"q"}, nil)
	require.NoError(t, err)
	assert.NotContains(t, original.Metadata, types.MetaRelevancyScore,
		"检索不得写回共享元数据")
}

func TestMemoryRetriever_EmbedFailure(t *testing.T) {
	embed := func(_ context.Context, _ string) ([]float64, error) {
		return nil, errors.New("embedding service down")
	}
	retriever := NewMemoryRetriever(4, 0, embed, nil)

	_, _, err := retriever.Retrieve(context.Background(), []string{"q"}, nil)
	require.Error(t, err)
}

func TestNewRetriever_Backends(t *testing.T) {
	embed := func(_ context.Context, _ string) ([]float64, error) {
		return []float64{1}, nil
	}

	cfg := config.Default()
	r, err := NewRetriever(cfg, embed, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryRetriever{}, r)

	cfg.Retriever.Backend = "opensearch"
	_, err = NewRetriever(cfg, embed, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrUnknownBackend, types.GetErrorCode(err))
	assert.False(t, types.IsRetryable(err), "配置错误从不重试")
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float64{1, 0}, []float64{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.Zero(t, cosineSimilarity([]float64{1}, []float64{1, 2}), "维度不一致返回 0")
	assert.Zero(t, cosineSimilarity(nil, nil))
}
