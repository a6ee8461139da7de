package session

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/answerflow/config"
	"github.com/BaSui01/answerflow/llm/retry"
	"github.com/BaSui01/answerflow/react"
	"github.com/BaSui01/answerflow/testutil/mocks"
	"github.com/BaSui01/answerflow/types"
)

func roundJSON(answer, directive string) string {
	return fmt.Sprintf(`{
		"answer": %q,
		"plan_and_summaries": "plan",
		"context_used": "ctx",
		"additional_information_to_retrieve": %q
	}`, answer, directive)
}

// newTestManager 组装一个由脚本化协作方驱动的 Manager。
func newTestManager(t *testing.T, mode config.APIMode, store Store,
	generator *mocks.MockGenerator, retriever *mocks.MockRetriever, opts ...Option) *Manager {
	t.Helper()

	logger := zap.NewNop()
	ctrl, err := react.NewController(config.ReactConfig{
		MaxRounds:            3,
		SufficientConfidence: 5.0,
		ParallelGenerations:  1,
		BlockTokenBudget:     512,
		UseFullDocuments:     true,
	}, react.Deps{
		Retriever: retriever,
		Generator: generator,
		Scorer:    mocks.NewMockScorer(3.0),
		Caller:    retry.NewBackoffCaller(&retry.Policy{MaxAttempts: 1}, logger),
		Logger:    logger,
	})
	require.NoError(t, err)

	mgr, err := NewManager(config.SessionConfig{Mode: mode, PreviousTurns: 3}, ctrl, store, opts...)
	require.NoError(t, err)
	return mgr
}

func coverageDocs() []types.Document {
	return []types.Document{mocks.Doc("doc-1", "benefits", "coverage details", 4.0)}
}

func TestRespond_StatelessAssignsSessionID(t *testing.T) {
	docs := coverageDocs()
	mgr := newTestManager(t, config.APIModeStateless, nil,
		mocks.NewMockGenerator(roundJSON("the answer", "")),
		mocks.NewMockRetriever(mocks.RetrieveResult{Pre: docs, Post: docs}))

	resp, err := mgr.Respond(context.Background(), Request{Question: "what is covered?"})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.SessionID, "无会话标识时应自动分配")
	assert.Equal(t, "the answer", resp.Answer)
	assert.Equal(t, 1, resp.Rounds)
	assert.InDelta(t, 3.0, resp.ConfidenceScore, 1e-9)
}

func TestRespond_EmptyQuestion(t *testing.T) {
	mgr := newTestManager(t, config.APIModeStateless, nil,
		mocks.NewMockGenerator(), mocks.NewMockRetriever())

	_, err := mgr.Respond(context.Background(), Request{Question: "   "})
	require.Error(t, err)
}

func TestRespond_StatefulRequiresMemberID(t *testing.T) {
	mgr := newTestManager(t, config.APIModeStateful, NewMemoryStore(),
		mocks.NewMockGenerator(roundJSON("x", "")),
		mocks.NewMockRetriever())

	_, err := mgr.Respond(context.Background(), Request{Question: "what is covered?"})
	require.Error(t, err)
	assert.Equal(t, types.ErrMissingMemberID, types.GetErrorCode(err))
}

func TestRespond_StatefulContinuity(t *testing.T) {
	docs := coverageDocs()
	store := NewMemoryStore()
	generator := mocks.NewMockGenerator(
		roundJSON("first answer", ""),
		roundJSON("second answer", ""),
	)
	retriever := mocks.NewMockRetriever(
		mocks.RetrieveResult{Pre: docs, Post: docs},
		mocks.RetrieveResult{Pre: docs, Post: docs},
	)
	mgr := newTestManager(t, config.APIModeStateful, store, generator, retriever)

	first, err := mgr.Respond(context.Background(), Request{
		Question: "what is covered?",
		MemberID: "member-1",
	})
	require.NoError(t, err)

	second, err := mgr.Respond(context.Background(), Request{
		Question:  "and the deductible?",
		SessionID: first.SessionID,
		MemberID:  "member-1",
	})
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, "second answer", second.Answer)

	// 第二轮的种子检索带上了历史问题
	queries := retriever.Queries()
	require.Len(t, queries, 2)
	assert.Equal(t, []string{"what is covered?", "and the deductible?"}, queries[1])

	// 历史问答注入第二轮的生成请求
	reqs := generator.Requests()
	require.Len(t, reqs, 2)
	assert.Contains(t, reqs[1].PreviousContext, "Previous question was: what is covered?")
	assert.Contains(t, reqs[1].PreviousContext, "Previous answer was: first answer")

	// 会话已持久化，包含两轮
	conv, err := store.Load(context.Background(), "member-1", first.SessionID)
	require.NoError(t, err)
	assert.Len(t, conv.Exchanges, 2)
}

// dropAllFilter 丢弃所有历史轮。
type dropAllFilter struct{ calls int }

func (f *dropAllFilter) Filter(_ context.Context, _ string, _ []*types.QueryState) ([]*types.QueryState, error) {
	f.calls++
	return nil, nil
}

func TestRespond_TurnFilterApplied(t *testing.T) {
	docs := coverageDocs()
	store := NewMemoryStore()
	filter := &dropAllFilter{}
	generator := mocks.NewMockGenerator(
		roundJSON("first answer", ""),
		roundJSON("second answer", ""),
	)
	retriever := mocks.NewMockRetriever(
		mocks.RetrieveResult{Pre: docs, Post: docs},
		mocks.RetrieveResult{Pre: docs, Post: docs},
	)
	mgr := newTestManager(t, config.APIModeStateful, store, generator, retriever,
		WithTurnFilter(filter))

	first, err := mgr.Respond(context.Background(), Request{
		Question: "what is covered?",
		MemberID: "member-1",
	})
	require.NoError(t, err)

	_, err = mgr.Respond(context.Background(), Request{
		Question:  "unrelated new topic",
		SessionID: first.SessionID,
		MemberID:  "member-1",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, filter.calls, "有历史轮时应调用筛选器")

	// 筛选器丢弃全部历史后，第二轮不携带历史上下文
	reqs := generator.Requests()
	require.Len(t, reqs, 2)
	assert.Empty(t, reqs[1].PreviousContext)

	queries := retriever.Queries()
	assert.Equal(t, []string{"unrelated new topic"}, queries[1])
}

func TestSerializePrior_Format(t *testing.T) {
	first := types.NewQueryState("what is covered?")
	first.Answer = "dental and vision"
	first.Directive = "more about limits"

	text := serializePrior([]*types.QueryState{first})
	assert.Equal(t,
		"Previous question was: what is covered?\n"+
			"Previous answer was: dental and vision\n"+
			"Previous additional information to retrieve: more about limits",
		text)
}

func TestSerializePrior_NewestFirst(t *testing.T) {
	first := types.NewQueryState("older question")
	first.Answer = "older answer"
	second := types.NewQueryState("newer question")
	second.Answer = "newer answer"

	text := serializePrior([]*types.QueryState{first, second})

	// 最近一轮排在最前面
	newerAt := strings.Index(text, "newer question")
	olderAt := strings.Index(text, "older question")
	require.GreaterOrEqual(t, newerAt, 0)
	require.GreaterOrEqual(t, olderAt, 0)
	assert.Less(t, newerAt, olderAt)
}
