package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryState_Rounds(t *testing.T) {
	state := NewQueryState("what is covered?")
	assert.Zero(t, state.RoundCount())

	state.AppendRound(RoundRecord{RoundNumber: 1, Answer: "partial"})
	state.AppendRound(RoundRecord{RoundNumber: 2, Answer: "full"})
	assert.Equal(t, 2, state.RoundCount())
	assert.Equal(t, "full", state.Rounds[1].Answer)
}

func TestQueryState_JSONFieldNames(t *testing.T) {
	state := NewQueryState("q")
	state.Directive = "more"
	state.AppendRound(RoundRecord{RoundNumber: 1, PlanAndSummary: "plan"})

	data, err := json.Marshal(state)
	require.NoError(t, err)

	// 字段名是对外契约，轮次记录被序列化进生成提示
	assert.Contains(t, string(data), `"react_rounds"`)
	assert.Contains(t, string(data), `"additional_information_to_retrieve"`)
	assert.Contains(t, string(data), `"plan_and_summaries"`)
	assert.Contains(t, string(data), `"round_number"`)
}

func TestConversation_Active(t *testing.T) {
	conv := &Conversation{SessionID: "sess-1"}
	assert.Nil(t, conv.Active())

	first := NewQueryState("q1")
	second := NewQueryState("q2")
	conv.Exchanges = []*QueryState{first, second}
	assert.Same(t, second, conv.Active())
}

func TestConversation_Prior(t *testing.T) {
	conv := &Conversation{}
	for _, q := range []string{"q1", "q2", "q3", "q4"} {
		conv.Exchanges = append(conv.Exchanges, NewQueryState(q))
	}

	// 当前轮 q4 不算历史
	prior := conv.Prior(2)
	require.Len(t, prior, 2)
	assert.Equal(t, "q2", prior[0].Question)
	assert.Equal(t, "q3", prior[1].Question)

	assert.Len(t, conv.Prior(10), 3)
	assert.Empty(t, conv.Prior(0))

	single := &Conversation{Exchanges: []*QueryState{NewQueryState("q")}}
	assert.Empty(t, single.Prior(3))
}
