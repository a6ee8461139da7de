// MockGenerator 的生成侧测试模拟实现。
//
// 支持按调用顺序脚本化响应、错误注入与调用记录。
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/answerflow/llm"
)

// --- MockGenerator 结构 ---

// MockGenerator 是 Generator 的模拟实现。
// 响应按调用顺序消费脚本；脚本耗尽后重复最后一条。
type MockGenerator struct {
	mu sync.Mutex

	// 脚本化响应
	responses []string

	// 错误注入：前 failFirst 次调用返回 err
	err       error
	failFirst int

	// 调用记录
	calls    int
	requests []llm.GenerateRequest
}

// NewMockGenerator 创建新的 MockGenerator。
func NewMockGenerator(responses ...string) *MockGenerator {
	return &MockGenerator{responses: responses}
}

// WithError 注入错误：前 n 次调用返回 err，之后恢复脚本响应。
// n <= 0 表示所有调用都返回 err。
func (m *MockGenerator) WithError(err error, n int) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	m.failFirst = n
	return m
}

// Generate 实现 llm.Generator。
func (m *MockGenerator) Generate(_ context.Context, req llm.GenerateRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	m.requests = append(m.requests, req)

	if m.err != nil && (m.failFirst <= 0 || m.calls <= m.failFirst) {
		return "", m.err
	}

	if len(m.responses) == 0 {
		return "", nil
	}
	idx := m.calls - 1
	if m.err != nil {
		idx -= m.failFirst
	}
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return m.responses[idx], nil
}

// Calls 返回生成调用次数。
func (m *MockGenerator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Requests 返回所有收到的请求副本。
func (m *MockGenerator) Requests() []llm.GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.GenerateRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// --- MockRepairer 结构 ---

// MockRepairer 是 Repairer 的模拟实现。
type MockRepairer struct {
	mu sync.Mutex

	response string
	err      error
	calls    int
}

// NewMockRepairer 创建新的 MockRepairer，修复调用固定返回 response。
func NewMockRepairer(response string) *MockRepairer {
	return &MockRepairer{response: response}
}

// WithError 让所有修复调用返回 err。
func (m *MockRepairer) WithError(err error) *MockRepairer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Repair 实现 llm.Repairer。
func (m *MockRepairer) Repair(_ context.Context, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

// Calls 返回修复调用次数。
func (m *MockRepairer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// --- MockScorer 结构 ---

// MockScorer 是 ConfidenceScorer 的模拟实现。
// 分数按调用顺序消费脚本；脚本耗尽后重复最后一条。
type MockScorer struct {
	mu sync.Mutex

	scores []float64
	err    error
	calls  int
}

// NewMockScorer 创建新的 MockScorer。
func NewMockScorer(scores ...float64) *MockScorer {
	return &MockScorer{scores: scores}
}

// WithError 让所有打分调用返回 err。
func (m *MockScorer) WithError(err error) *MockScorer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Score 实现 llm.ConfidenceScorer。
func (m *MockScorer) Score(_ context.Context, _, _ string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return 0, m.err
	}
	if len(m.scores) == 0 {
		return 0, nil
	}
	idx := m.calls - 1
	if idx >= len(m.scores) {
		idx = len(m.scores) - 1
	}
	return m.scores[idx], nil
}

// Calls 返回打分调用次数。
func (m *MockScorer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
