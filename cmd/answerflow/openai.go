// =============================================================================
// OpenAI 兼容客户端
// =============================================================================
// 通过 OpenAI 兼容的 chat completions / embeddings 接口
// 提供生成、修复、置信度打分与查询嵌入
// =============================================================================
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/answerflow/llm"
	"github.com/BaSui01/answerflow/types"
)

const (
	defaultBaseURL    = "https://api.openai.com"
	defaultChatModel  = "gpt-4o"
	defaultEmbedModel = "text-embedding-3-small"
)

// openAIClient 是 OpenAI 兼容接口的最小客户端。
// 实现 llm.Generator、llm.Repairer 与 llm.ConfidenceScorer。
type openAIClient struct {
	baseURL    string
	apiKey     string
	chatModel  string
	embedModel string
	client     *http.Client
	logger     *zap.Logger
}

func newOpenAIClient(configModel string, logger *zap.Logger) *openAIClient {
	baseURL := os.Getenv("ANSWERFLOW_OPENAI_BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	chatModel := os.Getenv("ANSWERFLOW_OPENAI_MODEL")
	if chatModel == "" {
		chatModel = configModel
	}
	if chatModel == "" {
		chatModel = defaultChatModel
	}
	embedModel := os.Getenv("ANSWERFLOW_OPENAI_EMBED_MODEL")
	if embedModel == "" {
		embedModel = defaultEmbedModel
	}

	return &openAIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     os.Getenv("ANSWERFLOW_OPENAI_API_KEY"),
		chatModel:  chatModel,
		embedModel: embedModel,
		client:     &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
}

// --- 提示词 ---

const generateSystemPrompt = `You answer questions strictly from the provided context documents.
Respond with a single JSON object with exactly these fields:
"answer": your answer grounded in the context, or "" if the context is insufficient,
"plan_and_summaries": your reasoning plan and a summary of what the context provides,
"context_used": verbatim quotes of the context passages your answer relies on,
"additional_information_to_retrieve": what to search for next, or "" if nothing is missing.`

const repairSystemPrompt = `The following text was supposed to be a single JSON object but failed to parse.
Return only the corrected JSON object, no commentary, no code fences.`

const scoreSystemPrompt = `Rate how confidently the answer addresses the question on a 0-5 scale,
where 5 means fully answered and 0 means not answered at all.
Respond with only the number.`

// Generate 实现 llm.Generator。
func (c *openAIClient) Generate(ctx context.Context, req llm.GenerateRequest) (string, error) {
	var user strings.Builder
	if req.PreviousContext != "" {
		user.WriteString("Previous conversation:\n")
		user.WriteString(req.PreviousContext)
		user.WriteString("\n\n")
	}
	fmt.Fprintf(&user, "Round %d.\n", req.RoundNumber)
	user.WriteString("Previous rounds:\n")
	user.WriteString(req.PreviousRounds)
	user.WriteString("\n\nContext documents:\n")
	user.WriteString(req.Context)
	user.WriteString("\n\nQuestion: ")
	user.WriteString(req.Question)
	if req.FinalRoundStatement != "" {
		user.WriteString("\n\n")
		user.WriteString(req.FinalRoundStatement)
	}

	return c.chat(ctx, generateSystemPrompt, user.String())
}

// Repair 实现 llm.Repairer。
func (c *openAIClient) Repair(ctx context.Context, malformed string) (string, error) {
	return c.chat(ctx, repairSystemPrompt, malformed)
}

// Score 实现 llm.ConfidenceScorer。
func (c *openAIClient) Score(ctx context.Context, question, answer string) (float64, error) {
	raw, err := c.chat(ctx, scoreSystemPrompt,
		"Question: "+question+"\nAnswer: "+answer)
	if err != nil {
		return 0, err
	}

	score, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("parse confidence score %q: %w", raw, err)
	}
	// 量表钳制到 [0,5]
	if score < 0 {
		score = 0
	}
	if score > 5 {
		score = 5
	}
	return score, nil
}

// --- chat completions ---

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *openAIClient) chat(ctx context.Context, system, user string) (string, error) {
	body := chatRequest{
		Model: c.chatModel,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}

	var resp chatResponse
	if err := c.post(ctx, "/v1/chat/completions", body, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", types.NewError(types.ErrUpstreamError, resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", types.NewError(types.ErrUpstreamError, "chat response has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// --- embeddings ---

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed 实现 rag.EmbedFunc。
func (c *openAIClient) Embed(ctx context.Context, text string) ([]float64, error) {
	var resp embedResponse
	err := c.post(ctx, "/v1/embeddings", embedRequest{
		Model: c.embedModel,
		Input: []string{text},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, types.NewError(types.ErrUpstreamError, "embedding response has no data")
	}
	return resp.Data[0].Embedding, nil
}

// post 发送请求并按状态码映射错误分类。
func (c *openAIClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return types.NewError(types.ErrUpstreamTimeout, "upstream request failed").
			WithCause(err).WithRetryable(true)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.NewError(types.ErrUpstreamError, "read response").
			WithCause(err).WithRetryable(true)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return types.NewError(types.ErrRateLimit, "rate limited by upstream").
			WithRetryable(true)
	case resp.StatusCode >= 500:
		return types.NewError(types.ErrUpstreamError,
			fmt.Sprintf("upstream returned %d", resp.StatusCode)).
			WithRetryable(true)
	case resp.StatusCode != http.StatusOK:
		return types.NewError(types.ErrUpstreamError,
			fmt.Sprintf("upstream returned %d: %s", resp.StatusCode, truncate(string(data), 200)))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
