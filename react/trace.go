package react

import (
	"time"

	"github.com/BaSui01/answerflow/types"
)

// TraceSnapshot 是单轮的完整追踪快照，交给外部导出协作方。
// 轮次推进不等待快照落地。
type TraceSnapshot struct {
	SessionID       string           `json:"session_id,omitempty"`
	Question        string           `json:"question"`
	RoundNumber     int              `json:"round_number"`
	PlanAndSummary  string           `json:"plan_and_summaries"`
	Answer          string           `json:"answer"`
	ConfidenceScore float64          `json:"confidence_score"`
	ContextUsed     string           `json:"context_used"`
	Directive       string           `json:"additional_information_to_retrieve"`
	PreFiltered     []types.Document `json:"pre_filtered_docs"`
	PostFiltered    []types.Document `json:"post_filtered_docs"`
	TimeTaken       time.Duration    `json:"time_taken"`
	Timestamp       time.Time        `json:"timestamp"`
}

// newTraceSnapshot 从轮次记录与检索状态组装快照。
func newTraceSnapshot(
	sessionID, question string,
	record types.RoundRecord,
	directive string,
	pre, post []types.Document,
	elapsed time.Duration,
) TraceSnapshot {
	return TraceSnapshot{
		SessionID:       sessionID,
		Question:        question,
		RoundNumber:     record.RoundNumber,
		PlanAndSummary:  record.PlanAndSummary,
		Answer:          record.Answer,
		ConfidenceScore: record.ConfidenceScore,
		ContextUsed:     record.ContextUsed,
		Directive:       directive,
		PreFiltered:     pre,
		PostFiltered:    post,
		TimeTaken:       elapsed,
		Timestamp:       time.Now(),
	}
}
