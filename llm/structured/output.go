// Package structured 将生成模型的原始文本解析为结构化轮次记录，
// 解析失败时通过修复调用恢复；彻底失败时返回降级哨兵记录而非报错 ——
// 一个标记过的「无法作答」好过中断整轮对话。
package structured

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/answerflow/llm"
	"github.com/BaSui01/answerflow/types"
)

// RoundOutput 是生成模型单次输出的结构化记录。
type RoundOutput struct {
	Answer           string `json:"answer"`
	PlanAndSummaries string `json:"plan_and_summaries"`
	ContextUsed      string `json:"context_used"`

	// Directive 是「还需检索的信息」，为空表示模型认为信息已足够。
	Directive string `json:"additional_information_to_retrieve"`
}

// Sentinel 返回降级哨兵记录：固定的「无法作答」答案、空计划、空上下文。
func Sentinel() RoundOutput {
	return RoundOutput{Answer: types.SentinelAnswer}
}

// Degrade 应用答案有效性规则：没有答案，或既无文档又无指令的记录
// 降级为哨兵。hasDocs 表示本轮是否有 post-filter 文档。
// 降级只覆盖答案本身，检索指令原样保留：模型答不上来但知道
// 还缺什么信息时，循环仍可在后续轮补取信息再作答。
func Degrade(out RoundOutput, hasDocs bool) RoundOutput {
	if out.Answer == "" || (!hasDocs && out.Directive == "") {
		degraded := Sentinel()
		degraded.Directive = out.Directive
		return degraded
	}
	return out
}

// Parser 带修复重试的结构化输出解析器。
type Parser struct {
	repairer    llm.Repairer
	maxAttempts int
	logger      *zap.Logger
}

// NewParser 创建解析器。repairer 为 nil 时只做本地解析。
// maxAttempts 是修复尝试预算，默认 2。
func NewParser(repairer llm.Repairer, maxAttempts int, logger *zap.Logger) *Parser {
	if maxAttempts <= 0 {
		maxAttempts = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{
		repairer:    repairer,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Parse 将原始文本解析为 RoundOutput。
// 解析失败时剥离代码围栏标记并调用修复生成，重新解析；
// 重复至修复预算耗尽。ok 为 false 时返回值是哨兵记录。
func (p *Parser) Parse(ctx context.Context, raw string) (out RoundOutput, ok bool) {
	text := stripFences(raw)
	if err := json.Unmarshal([]byte(text), &out); err == nil {
		return out, true
	} else {
		p.logger.Info("structured parse failed, entering repair loop",
			zap.Error(err))
	}

	if p.repairer == nil {
		return Sentinel(), false
	}

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		repaired, err := p.repairer.Repair(ctx, text)
		if err != nil {
			p.logger.Info("repair call failed",
				zap.Int("attempt", attempt),
				zap.Error(err))
			continue
		}

		text = stripFences(repaired)
		if err := json.Unmarshal([]byte(text), &out); err == nil {
			return out, true
		} else {
			p.logger.Info("repaired output still unparseable",
				zap.Int("attempt", attempt),
				zap.Error(err))
		}
	}

	return Sentinel(), false
}

// stripFences 剥离 Markdown 代码围栏标记。
// 与上游模型的习惯一致：先去掉 ```json 前缀再去掉所有反引号。
func stripFences(raw string) string {
	text := strings.ReplaceAll(raw, "```json", "")
	text = strings.ReplaceAll(text, "`", "")
	return strings.TrimSpace(text)
}
