package types

import "time"

// SentinelAnswer 是降级哨兵记录的固定答案文本。
// 解析与修复全部失败、或无文档且无指令时返回，替代抛出错误。
const SentinelAnswer = "I was not able to answer this question"

// RoundRecord 是单个 ReAct 轮次的快照。追加进 QueryState 后不再修改。
type RoundRecord struct {
	RoundNumber     int     `json:"round_number"`
	PlanAndSummary  string  `json:"plan_and_summaries"`
	Answer          string  `json:"answer"`
	ConfidenceScore float64 `json:"confidence_score"`
	ContextUsed     string  `json:"context_used"`
}

// QueryState 是一个对话轮（turn）的完整状态。
// 由处理该轮的 RoundController 独占持有和修改，轮结束后冻结。
type QueryState struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`

	// Rounds 是只追加的轮次记录列表，长度不超过配置的最大轮数。
	Rounds []RoundRecord `json:"react_rounds"`

	// Directive 是生成阶段给出的「还需检索的信息」，驱动下一轮检索。
	// 为空表示模型认为信息已足够。
	Directive string `json:"additional_information_to_retrieve"`

	ConfidenceScore float64 `json:"confidence_score"`
	RelevantContext string  `json:"relevant_context"`

	// InputTokens 与 NumDocsUsed 按上下文块记录使用量。
	InputTokens  []int `json:"input_tokens,omitempty"`
	NumDocsUsed  []int `json:"num_docs_used,omitempty"`
	OutputTokens int   `json:"output_tokens,omitempty"`

	// UsedArticles 是文档归因列表。
	UsedArticles []UsedArticle `json:"used_articles_with_scores,omitempty"`

	// SectionsUsed 是最终归因的章节标签。
	SectionsUsed []string `json:"all_sections_needed,omitempty"`

	TimeTaken time.Duration `json:"time_taken"`
	CreatedAt time.Time     `json:"created_at"`
}

// NewQueryState 在轮开始时创建状态对象。
func NewQueryState(question string) *QueryState {
	return &QueryState{
		Question:  question,
		Rounds:    make([]RoundRecord, 0),
		CreatedAt: time.Now(),
	}
}

// AppendRound 追加一条轮次记录。记录一旦追加即为历史，不再变更。
func (q *QueryState) AppendRound(r RoundRecord) {
	q.Rounds = append(q.Rounds, r)
}

// RoundCount 返回已完成的轮次数。
func (q *QueryState) RoundCount() int {
	return len(q.Rounds)
}

// Conversation 持有一个会话中按序排列的所有轮。
// 会话标识在创建时分配一次（外部提供或生成），此后保持稳定。
type Conversation struct {
	SessionID string        `json:"session_id"`
	Exchanges []*QueryState `json:"exchanges"`

	// MemberContext 是调用方附带的成员上下文，透传给检索后端。
	MemberContext map[string]string `json:"member_context,omitempty"`
}

// Active 返回当前正在处理的轮（最后一个 QueryState）。
func (c *Conversation) Active() *QueryState {
	if len(c.Exchanges) == 0 {
		return nil
	}
	return c.Exchanges[len(c.Exchanges)-1]
}

// Prior 返回除当前轮之外最近的 n 个历史轮，按时间正序。
// n <= 0 或没有历史时返回空切片。
func (c *Conversation) Prior(n int) []*QueryState {
	if len(c.Exchanges) < 2 || n <= 0 {
		return nil
	}
	prior := c.Exchanges[:len(c.Exchanges)-1]
	if len(prior) > n {
		prior = prior[len(prior)-n:]
	}
	return prior
}
