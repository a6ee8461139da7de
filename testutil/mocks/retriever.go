// MockRetriever 的检索后端测试模拟实现。
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/answerflow/types"
)

// RetrieveResult 是一次脚本化检索的返回。
type RetrieveResult struct {
	Pre  []types.Document
	Post []types.Document
	Err  error
}

// MockRetriever 是 Retriever 的模拟实现。
// 结果按调用顺序消费脚本；脚本耗尽后返回空结果。
type MockRetriever struct {
	mu sync.Mutex

	script []RetrieveResult

	// 调用记录
	calls   int
	queries [][]string
}

// NewMockRetriever 创建新的 MockRetriever。
func NewMockRetriever(script ...RetrieveResult) *MockRetriever {
	return &MockRetriever{script: script}
}

// Retrieve 实现 rag.Retriever。
func (m *MockRetriever) Retrieve(_ context.Context, queries []string, _ map[string]string) ([]types.Document, []types.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	copied := make([]string, len(queries))
	copy(copied, queries)
	m.queries = append(m.queries, copied)

	if m.calls > len(m.script) {
		return nil, nil, nil
	}
	res := m.script[m.calls-1]
	return res.Pre, res.Post, res.Err
}

// Calls 返回检索调用次数。
func (m *MockRetriever) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Queries 返回每次调用收到的查询列表。
func (m *MockRetriever) Queries() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]string, len(m.queries))
	copy(out, m.queries)
	return out
}

// Doc 构造测试文档。
func Doc(source, section, content string, score float64) types.Document {
	return types.Document{
		Content: content,
		Score:   score,
		Metadata: map[string]string{
			types.MetaSourceID:    source,
			types.MetaSectionName: section,
		},
	}
}
