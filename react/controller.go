package react

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/answerflow/config"
	"github.com/BaSui01/answerflow/internal/metrics"
	"github.com/BaSui01/answerflow/llm"
	"github.com/BaSui01/answerflow/llm/bestof"
	"github.com/BaSui01/answerflow/llm/retry"
	"github.com/BaSui01/answerflow/llm/structured"
	"github.com/BaSui01/answerflow/rag"
	"github.com/BaSui01/answerflow/types"
)

// 循环停止原因，打进指标的 stop_reason 标签。
const (
	stopNoDirective = "no_directive"
	stopConfident   = "confident"
	stopMaxRounds   = "max_rounds"
	stopCancelled   = "cancelled"
)

// TurnContext 是一个对话轮的外部输入，由会话层组装。
type TurnContext struct {
	// SessionID 标识所属会话，透传进追踪快照
	SessionID string

	// PreviousContext 是多轮模式下序列化的历史对话文本
	PreviousContext string

	// PreviousQuestions 是历史轮的问题，参与首次种子检索
	PreviousQuestions []string

	// MemberContext 透传给检索后端
	MemberContext map[string]string
}

// Deps 是 Controller 的注入协作方。
// Retriever 与 Generator 必填；其余为 nil 时使用默认实现或跳过。
type Deps struct {
	Retriever rag.Retriever
	Builder   *rag.ContextBuilder
	Generator llm.Generator
	Repairer  llm.Repairer
	Scorer    llm.ConfidenceScorer
	Caller    retry.Caller
	Metrics   *metrics.Collector
	Logger    *zap.Logger

	// Emit 接收每轮的追踪快照。实现必须立即返回（内部异步落地），
	// 轮次推进不等待快照。
	Emit func(TraceSnapshot)
}

// Controller 驱动单个对话轮的 ReAct 状态机。
// 一个 Controller 实例可跨轮复用，但同一时刻只驱动一个 QueryState。
type Controller struct {
	cfg       config.ReactConfig
	retriever rag.Retriever
	builder   *rag.ContextBuilder
	generator llm.Generator
	scorer    llm.ConfidenceScorer
	parser    *structured.Parser
	sampler   *bestof.Sampler
	caller    retry.Caller
	metrics   *metrics.Collector
	logger    *zap.Logger
	emit      func(TraceSnapshot)
}

// NewController 创建状态机控制器。
func NewController(cfg config.ReactConfig, deps Deps) (*Controller, error) {
	if deps.Retriever == nil {
		return nil, types.NewError(types.ErrInvalidConfig, "react: retriever is required")
	}
	if deps.Generator == nil {
		return nil, types.NewError(types.ErrInvalidConfig, "react: generator is required")
	}
	if cfg.MaxRounds < 1 {
		return nil, types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("react: max rounds must be >= 1, got %d", cfg.MaxRounds))
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	builder := deps.Builder
	if builder == nil {
		builder = rag.NewContextBuilder(cfg.BlockTokenBudget, cfg.UseFullDocuments,
			rag.NewTokenizer("", logger), logger)
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.Default()
	}
	caller := deps.Caller
	if caller == nil {
		policy := retry.DefaultPolicy()
		policy.OnRetry = func(int, error, time.Duration) {
			collector.IncGenerationRetry()
		}
		caller = retry.NewBackoffCaller(policy, logger)
	}

	return &Controller{
		cfg:       cfg,
		retriever: deps.Retriever,
		builder:   builder,
		generator: llm.NewRateLimitedGenerator(deps.Generator, cfg.GenerateRatePerSecond),
		scorer:    deps.Scorer,
		parser:    structured.NewParser(deps.Repairer, 0, logger),
		sampler:   bestof.NewSampler(cfg.ParallelGenerations, logger),
		caller:    caller,
		metrics:   collector,
		logger:    logger,
		emit:      deps.Emit,
	}, nil
}

// ProcessTurn 在 state 上运行完整的 ReAct 循环直至停止条件满足，
// 然后把最后一条轮次记录固化为对话轮结论。
// 协作方故障被吸收为降级记录；唯一返回错误的情形是 context 取消。
func (c *Controller) ProcessTurn(ctx context.Context, state *types.QueryState, turn TurnContext) error {
	tracer := otel.Tracer("github.com/BaSui01/answerflow/react")
	ctx, span := tracer.Start(ctx, "react.turn")
	defer span.End()

	// 种子检索：历史问题 + 当前问题一次性批量检索
	seedQueries := make([]string, 0, len(turn.PreviousQuestions)+1)
	seedQueries = append(seedQueries, turn.PreviousQuestions...)
	seedQueries = append(seedQueries, state.Question)

	allPre, allPost := c.retrieve(ctx, seedQueries, turn.MemberContext)

	for {
		if err := ctx.Err(); err != nil {
			c.finalize(state, stopCancelled)
			return err
		}

		roundNumber := state.RoundCount() + 1
		roundStart := time.Now()
		roundCtx, roundSpan := tracer.Start(ctx, "react.round",
			trace.WithAttributes(attribute.Int("react.round_number", roundNumber)))

		finalStatement := ""
		if roundNumber == c.cfg.MaxRounds {
			// 最后允许轮：必达指令在生成之前附加
			finalStatement = c.cfg.FinalRoundStatement
		}

		blocks, used := c.builder.Build(allPost)

		inputTokens := make([]int, len(blocks))
		numDocs := make([]int, len(blocks))
		for i, block := range blocks {
			inputTokens[i] = block.TokensUsed
			numDocs[i] = block.DocsUsed
			c.metrics.ObservePacking(block.DocsUsed, block.TokensUsed)
		}
		state.InputTokens = inputTokens
		state.NumDocsUsed = numDocs
		state.UsedArticles = used

		previousRounds := c.cfg.FirstRoundStatement
		if state.RoundCount() > 0 {
			serialized, err := json.MarshalIndent(state.Rounds, "", "    ")
			if err == nil {
				previousRounds = string(serialized)
			} else {
				c.logger.Warn("serializing previous rounds failed", zap.Error(err))
			}
		}

		best := c.generateRound(roundCtx, roundInput{
			question:        state.Question,
			previousContext: turn.PreviousContext,
			previousRounds:  previousRounds,
			roundNumber:     roundNumber,
			finalStatement:  finalStatement,
			hasDocs:         len(allPost) > 0,
		}, blocks)

		record := types.RoundRecord{
			RoundNumber:     roundNumber,
			PlanAndSummary:  best.Output.PlanAndSummaries,
			Answer:          best.Output.Answer,
			ConfidenceScore: best.Confidence,
			ContextUsed:     best.Output.ContextUsed,
		}
		state.AppendRound(record)
		state.Directive = best.Output.Directive

		if best.Output.Answer == types.SentinelAnswer {
			c.metrics.IncSentinelAnswer()
		}

		elapsed := time.Since(roundStart)
		state.TimeTaken = elapsed
		roundSpan.End()
		c.logger.Info("react round completed",
			zap.Int("round", roundNumber),
			zap.Float64("confidence", best.Confidence),
			zap.Bool("directive_present", best.Output.Directive != ""),
			zap.Duration("elapsed", elapsed))

		if c.emit != nil {
			c.emit(newTraceSnapshot(turn.SessionID, state.Question, record,
				best.Output.Directive, allPre, allPost, elapsed))
		}

		stopReason := ""
		switch {
		case best.Output.Directive == "":
			stopReason = stopNoDirective
		case best.Confidence >= c.cfg.SufficientConfidence:
			stopReason = stopConfident
		case roundNumber >= c.cfg.MaxRounds:
			stopReason = stopMaxRounds
		}
		if stopReason != "" {
			c.metrics.ObserveRound(stopReason, elapsed)
			span.SetAttributes(
				attribute.String("react.stop_reason", stopReason),
				attribute.Int("react.rounds", state.RoundCount()),
			)
			c.finalize(state, stopReason)
			return nil
		}
		c.metrics.ObserveRound("continue", elapsed)

		// 继续：用指令检索增量文档，新文档排在已有文档之前
		pre, post := c.retrieve(ctx, []string{state.Directive}, turn.MemberContext)
		allPre = rag.Deduplicate(pre, allPre)
		allPost = rag.Deduplicate(post, allPost)
	}
}

// roundInput 是单轮生成的固定输入，块间共享。
type roundInput struct {
	question        string
	previousContext string
	previousRounds  string
	roundNumber     int
	finalStatement  string
	hasDocs         bool
}

// generateRound 对每个上下文块并发采样，跨块归约到置信度最高的记录。
// 平分时保留靠前的块。
func (c *Controller) generateRound(ctx context.Context, in roundInput, blocks []types.ContextBlock) bestof.Result {
	best := bestof.Result{Index: -1}

	for blockIdx, block := range blocks {
		contextText := block.Text()

		res := c.sampler.Sample(ctx, func(ctx context.Context, _ int) (structured.RoundOutput, float64, error) {
			req := llm.GenerateRequest{
				Question:            in.question,
				PreviousContext:     in.previousContext,
				Context:             contextText,
				PreviousRounds:      in.previousRounds,
				RoundNumber:         in.roundNumber,
				FinalRoundStatement: in.finalStatement,
			}

			genStart := time.Now()
			raw, err := c.caller.DoWithResult(ctx, func() (any, error) {
				return c.generator.Generate(ctx, req)
			})
			c.metrics.ObserveGeneration(time.Since(genStart))
			if err != nil {
				return structured.RoundOutput{}, 0, err
			}

			out, ok := c.parser.Parse(ctx, raw.(string))
			if !ok {
				c.metrics.IncRepairFallback()
				return structured.RoundOutput{}, 0,
					fmt.Errorf("round %d: unparseable generation output", in.roundNumber)
			}

			out = structured.Degrade(out, in.hasDocs)

			confidence := 0.0
			if out.Answer != types.SentinelAnswer && c.scorer != nil {
				score, err := c.scorer.Score(ctx, in.question, out.Answer)
				if err != nil {
					c.logger.Warn("confidence scoring failed, treating as zero",
						zap.Error(err))
				} else {
					confidence = score
				}
			}
			return out, confidence, nil
		})

		if res.Index == -1 {
			continue
		}
		if best.Index == -1 || res.Confidence > best.Confidence {
			best = res
			best.Index = blockIdx
		}
	}

	if best.Index == -1 {
		best.Output = structured.Sentinel()
	}
	return best
}

// retrieve 带重试执行检索。耗尽或失败时记录并返回空结果，
// 让循环以零文档继续而非中断对话轮。
func (c *Controller) retrieve(ctx context.Context, queries []string, memberCtx map[string]string) (pre, post []types.Document) {
	err := c.caller.Do(ctx, func() error {
		var retrieveErr error
		pre, post, retrieveErr = c.retriever.Retrieve(ctx, queries, memberCtx)
		return retrieveErr
	})
	if err != nil {
		c.logger.Warn("retrieval failed, continuing with empty results",
			zap.Int("queries", len(queries)),
			zap.Error(err))
		return nil, nil
	}
	return pre, post
}

// finalize 把最后一条轮次记录固化为对话轮结论。
// TimeTaken 已在循环中按轮覆盖，最终值是最后一轮的耗时。
func (c *Controller) finalize(state *types.QueryState, stopReason string) {
	if state.RoundCount() == 0 {
		state.Answer = types.SentinelAnswer
		c.metrics.ObserveTurn("sentinel", 0)
		return
	}

	last := state.Rounds[state.RoundCount()-1]
	state.Answer = last.Answer
	state.RelevantContext = last.ContextUsed
	state.ConfidenceScore = last.ConfidenceScore

	state.SectionsUsed = state.SectionsUsed[:0]
	seen := make(map[string]struct{}, len(state.UsedArticles))
	for _, article := range state.UsedArticles {
		if _, ok := seen[article.Label]; ok {
			continue
		}
		seen[article.Label] = struct{}{}
		state.SectionsUsed = append(state.SectionsUsed, article.Label)
	}

	outcome := "answered"
	if state.Answer == types.SentinelAnswer {
		outcome = "sentinel"
	}
	c.metrics.ObserveTurn(outcome, state.ConfidenceScore)

	c.logger.Info("turn finalized",
		zap.String("stop_reason", stopReason),
		zap.String("outcome", outcome),
		zap.Int("rounds", state.RoundCount()),
		zap.Float64("confidence", state.ConfidenceScore),
		zap.Duration("time_taken", state.TimeTaken))
}
