// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector 指标收集器
type Collector struct {
	// ReAct 循环指标
	roundsTotal    *prometheus.CounterVec
	roundDuration  prometheus.Histogram
	turnsTotal     *prometheus.CounterVec
	turnConfidence prometheus.Histogram

	// 生成调用指标
	generationRetries  prometheus.Counter
	repairFallbacks    prometheus.Counter
	sentinelAnswers    prometheus.Counter
	generationDuration prometheus.Histogram

	// 上下文打包指标
	tokensPacked prometheus.Counter
	docsPacked   prometheus.Counter
}

var (
	defaultCollector *Collector
	collectorOnce    sync.Once
)

// Default 返回进程级单例收集器，注册到默认 registry。
func Default() *Collector {
	collectorOnce.Do(func() {
		defaultCollector = NewCollector(prometheus.DefaultRegisterer)
	})
	return defaultCollector
}

// NewCollector 创建指标收集器并注册到给定 registry。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		roundsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "answerflow",
			Name:      "react_rounds_total",
			Help:      "Total ReAct rounds executed, by stop reason.",
		}, []string{"stop_reason"}),
		roundDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "answerflow",
			Name:      "react_round_duration_seconds",
			Help:      "Wall time per ReAct round.",
			Buckets:   prometheus.DefBuckets,
		}),
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "answerflow",
			Name:      "turns_total",
			Help:      "Total turns processed, by outcome.",
		}, []string{"outcome"}),
		turnConfidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "answerflow",
			Name:      "turn_confidence",
			Help:      "Final confidence score per turn (0-5 scale).",
			Buckets:   []float64{0, 1, 2, 3, 4, 5},
		}),
		generationRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "answerflow",
			Name:      "generation_retries_total",
			Help:      "Transient generation failures that were retried.",
		}),
		repairFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "answerflow",
			Name:      "repair_fallbacks_total",
			Help:      "Structured outputs that went through the repair loop.",
		}),
		sentinelAnswers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "answerflow",
			Name:      "sentinel_answers_total",
			Help:      "Turns answered with the degraded sentinel record.",
		}),
		generationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "answerflow",
			Name:      "generation_duration_seconds",
			Help:      "Wall time per generation call.",
			Buckets:   prometheus.DefBuckets,
		}),
		tokensPacked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "answerflow",
			Name:      "context_tokens_packed_total",
			Help:      "Tokens packed into context blocks.",
		}),
		docsPacked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "answerflow",
			Name:      "context_docs_packed_total",
			Help:      "Documents packed into context blocks.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			c.roundsTotal, c.roundDuration, c.turnsTotal, c.turnConfidence,
			c.generationRetries, c.repairFallbacks, c.sentinelAnswers,
			c.generationDuration, c.tokensPacked, c.docsPacked,
		)
	}
	return c
}

// ObserveRound 记录一个完成的轮次。
func (c *Collector) ObserveRound(stopReason string, duration time.Duration) {
	c.roundsTotal.WithLabelValues(stopReason).Inc()
	c.roundDuration.Observe(duration.Seconds())
}

// ObserveTurn 记录一个完成的对话轮。
func (c *Collector) ObserveTurn(outcome string, confidence float64) {
	c.turnsTotal.WithLabelValues(outcome).Inc()
	c.turnConfidence.Observe(confidence)
}

// IncGenerationRetry 记录一次瞬时失败重试。
func (c *Collector) IncGenerationRetry() { c.generationRetries.Inc() }

// IncRepairFallback 记录一次修复回路进入。
func (c *Collector) IncRepairFallback() { c.repairFallbacks.Inc() }

// IncSentinelAnswer 记录一次哨兵答案。
func (c *Collector) IncSentinelAnswer() { c.sentinelAnswers.Inc() }

// ObserveGeneration 记录一次生成调用耗时。
func (c *Collector) ObserveGeneration(duration time.Duration) {
	c.generationDuration.Observe(duration.Seconds())
}

// ObservePacking 记录一次上下文打包。
func (c *Collector) ObservePacking(docs, tokens int) {
	c.docsPacked.Add(float64(docs))
	c.tokensPacked.Add(float64(tokens))
}
