// Package llm 定义生成侧协作方的边界契约。
// 生成模型本身是不透明的 text-in/text-out 函数，由调用方注入。
package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// GenerateRequest 是一次生成调用的完整输入。
type GenerateRequest struct {
	// Question 是用户问题
	Question string

	// PreviousContext 是多轮模式下携带的历史对话上下文
	PreviousContext string

	// Context 是本次使用的上下文块文本
	Context string

	// PreviousRounds 是本轮对话内已完成轮次的序列化记录
	PreviousRounds string

	// RoundNumber 从 1 开始编号
	RoundNumber int

	// FinalRoundStatement 仅在最后允许轮非空，指示模型必须作答
	FinalRoundStatement string
}

// Generator 是生成调用契约。
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// Repairer 是结构化输出修复契约，仅在解析失败时调用。
type Repairer interface {
	Repair(ctx context.Context, malformed string) (string, error)
}

// ConfidenceScorer 对候选答案打分（0–5 量表）。
type ConfidenceScorer interface {
	Score(ctx context.Context, question, answer string) (float64, error)
}

// GeneratorFunc 将普通函数适配为 Generator。
type GeneratorFunc func(ctx context.Context, req GenerateRequest) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	return f(ctx, req)
}

// ====== 速率限制装饰器 ======

// RateLimitedGenerator 用令牌桶限制底层生成调用的速率。
type RateLimitedGenerator struct {
	inner   Generator
	limiter *rate.Limiter
}

// NewRateLimitedGenerator 创建速率限制装饰器。
// perSecond <= 0 时不限速，直接返回底层 Generator。
func NewRateLimitedGenerator(inner Generator, perSecond float64) Generator {
	if perSecond <= 0 {
		return inner
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedGenerator{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Generate 先等待令牌再调用底层生成。
func (g *RateLimitedGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait: %w", err)
	}
	return g.inner.Generate(ctx, req)
}
