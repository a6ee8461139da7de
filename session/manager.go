// Package session 管理对话会话：会话标识分配、多轮连续性与状态持久化。
//
// stateless 模式下每次提问都是独立会话；stateful 模式下按
// (member, session) 键加载历史轮，把相关的历史问答注入当前轮。
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/answerflow/config"
	"github.com/BaSui01/answerflow/react"
	"github.com/BaSui01/answerflow/types"
)

// TurnFilter 从历史轮中筛选与当前问题相关的轮。
// 由调用方注入（通常是一次模型调用）；nil 时保留全部历史轮。
type TurnFilter interface {
	Filter(ctx context.Context, question string, prior []*types.QueryState) ([]*types.QueryState, error)
}

// Request 是一次提问请求。
type Request struct {
	Question  string
	SessionID string

	// MemberID 在 stateful 模式下必填，参与会话存储键
	MemberID string

	// MemberContext 透传给检索后端
	MemberContext map[string]string
}

// Response 是一次提问的结论。
type Response struct {
	SessionID       string
	Answer          string
	ConfidenceScore float64
	Rounds          int
	SectionsUsed    []string
	UsedArticles    []types.UsedArticle
	TimeTaken       time.Duration

	// State 是本轮的完整状态快照
	State *types.QueryState
}

// Manager 是会话编排层，把请求组装为对话轮交给状态机驱动。
type Manager struct {
	cfg        config.SessionConfig
	controller *react.Controller
	store      Store
	filter     TurnFilter
	logger     *zap.Logger
}

// Option 配置 Manager 的可选协作方。
type Option func(*Manager)

// WithTurnFilter 注入历史轮相关性筛选器。
func WithTurnFilter(filter TurnFilter) Option {
	return func(m *Manager) { m.filter = filter }
}

// WithLogger 注入日志器。
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// NewManager 创建会话管理器。
// stateful 模式要求非 nil 的 store。
func NewManager(cfg config.SessionConfig, controller *react.Controller, store Store, opts ...Option) (*Manager, error) {
	if controller == nil {
		return nil, types.NewError(types.ErrInvalidConfig, "session: controller is required")
	}
	if cfg.Mode == config.APIModeStateful && store == nil {
		return nil, types.NewError(types.ErrInvalidConfig, "session: stateful mode requires a store")
	}

	m := &Manager{
		cfg:        cfg,
		controller: controller,
		store:      store,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Respond 处理一次提问：加载（或创建）会话、注入历史上下文、
// 驱动 ReAct 循环并持久化结果。
func (m *Manager) Respond(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, fmt.Errorf("session: question is required")
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	conv, err := m.loadConversation(ctx, req, sessionID)
	if err != nil {
		return nil, err
	}

	conv.Exchanges = append(conv.Exchanges, types.NewQueryState(req.Question))
	state := conv.Active()

	turn := react.TurnContext{
		SessionID:     sessionID,
		MemberContext: req.MemberContext,
	}
	if prior := m.relevantPrior(ctx, req.Question, conv); len(prior) > 0 {
		turn.PreviousContext = serializePrior(prior)
		turn.PreviousQuestions = priorQuestions(prior)
	}

	if err := m.controller.ProcessTurn(ctx, state, turn); err != nil {
		return nil, err
	}

	if m.cfg.Mode == config.APIModeStateful {
		// 答案已产出，持久化失败降级为告警而非丢弃结论
		if err := m.store.Save(ctx, req.MemberID, sessionID, conv); err != nil {
			m.logger.Warn("saving conversation failed",
				zap.String("session_id", sessionID),
				zap.Error(err))
		}
	}

	return &Response{
		SessionID:       sessionID,
		Answer:          state.Answer,
		ConfidenceScore: state.ConfidenceScore,
		Rounds:          state.RoundCount(),
		SectionsUsed:    state.SectionsUsed,
		UsedArticles:    state.UsedArticles,
		TimeTaken:       state.TimeTaken,
		State:           state,
	}, nil
}

// loadConversation 按模式加载或创建会话。
func (m *Manager) loadConversation(ctx context.Context, req Request, sessionID string) (*types.Conversation, error) {
	fresh := &types.Conversation{
		SessionID:     sessionID,
		MemberContext: req.MemberContext,
	}

	if m.cfg.Mode != config.APIModeStateful {
		return fresh, nil
	}

	if req.MemberID == "" {
		return nil, types.NewError(types.ErrMissingMemberID,
			"session: stateful mode requires a member id")
	}

	conv, err := m.store.Load(ctx, req.MemberID, sessionID)
	if errors.Is(err, ErrNotFound) {
		return fresh, nil
	}
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// relevantPrior 返回注入当前轮的历史轮：最近 N 轮经筛选器过滤。
// 筛选器失败时退回全部历史轮。
func (m *Manager) relevantPrior(ctx context.Context, question string, conv *types.Conversation) []*types.QueryState {
	prior := conv.Prior(m.cfg.PreviousTurns)
	if len(prior) == 0 || m.filter == nil {
		return prior
	}

	filtered, err := m.filter.Filter(ctx, question, prior)
	if err != nil {
		m.logger.Warn("turn filter failed, keeping all prior turns",
			zap.Int("prior", len(prior)),
			zap.Error(err))
		return prior
	}
	return filtered
}

// serializePrior 把历史轮序列化为生成模型可读的历史对话文本，
// 逆序排列：最近的一轮排在最前面。
func serializePrior(prior []*types.QueryState) string {
	var sb strings.Builder
	for i := len(prior) - 1; i >= 0; i-- {
		turn := prior[i]
		sb.WriteString("Previous question was: ")
		sb.WriteString(turn.Question)
		sb.WriteString("\nPrevious answer was: ")
		sb.WriteString(turn.Answer)
		sb.WriteString("\nPrevious additional information to retrieve: ")
		sb.WriteString(turn.Directive)
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String())
}

func priorQuestions(prior []*types.QueryState) []string {
	questions := make([]string, 0, len(prior))
	for _, turn := range prior {
		questions = append(questions, turn.Question)
	}
	return questions
}
