// Package bestof 并发发起 N 次独立生成采样并归约到最高置信度的成功结果。
// 单次采样不可靠；多采几次线性地用调用成本换答案质量。
package bestof

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/BaSui01/answerflow/llm/structured"
)

// Attempt 是单次生成采样：内部应当已经过重试包装与结构化修复。
// 返回错误表示该采样未能产出可解析记录。
type Attempt func(ctx context.Context, index int) (structured.RoundOutput, float64, error)

// Result 是归约后的最优采样。
type Result struct {
	Output     structured.RoundOutput
	Confidence float64

	// Index 是胜出采样的序号；全部失败时为 -1。
	Index int
}

// maxPoolSize 是采样 worker 池的并发上限。
const maxPoolSize = 4

// Sampler 并发 best-of-N 采样器。
type Sampler struct {
	n        int
	parallel int64
	logger   *zap.Logger
}

// NewSampler 创建采样器。n < 1 时按 1 处理；
// worker 池并发受 maxPoolSize 约束。
func NewSampler(n int, logger *zap.Logger) *Sampler {
	if n < 1 {
		n = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	parallel := int64(n)
	if parallel > maxPoolSize {
		parallel = maxPoolSize
	}
	return &Sampler{n: n, parallel: parallel, logger: logger}
}

// Sample 并行发起 N 次采样，join 后归约到置信度最高的成功结果，
// 平分时取完成序号最小者。全部失败时返回降级哨兵。
// 任一 worker 成功即可用，不受其余失败或慢 worker 影响。
func (s *Sampler) Sample(ctx context.Context, attempt Attempt) Result {
	type sampleResult struct {
		output     structured.RoundOutput
		confidence float64
		err        error
	}

	results := make([]sampleResult, s.n)

	sem := semaphore.NewWeighted(s.parallel)
	var wg sync.WaitGroup

	for i := 0; i < s.n; i++ {
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = sampleResult{err: err}
			continue
		}

		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer sem.Release(1)

			output, confidence, err := attempt(ctx, idx)
			results[idx] = sampleResult{output: output, confidence: confidence, err: err}
		}(i)
	}

	wg.Wait()

	best := Result{Index: -1}
	for i, res := range results {
		if res.err != nil {
			s.logger.Debug("sample attempt failed",
				zap.Int("index", i),
				zap.Error(res.err))
			continue
		}
		if best.Index == -1 || res.confidence > best.Confidence {
			best = Result{Output: res.output, Confidence: res.confidence, Index: i}
		}
	}

	if best.Index == -1 {
		s.logger.Warn("all sample attempts failed, returning sentinel",
			zap.Int("n", s.n))
		best.Output = structured.Sentinel()
	}

	return best
}
