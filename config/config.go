// =============================================================================
// 📦 AnswerFlow 配置
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.Load("answerflow.yaml")
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// APIMode 决定会话是否跨轮保留状态。
type APIMode string

const (
	APIModeStateless APIMode = "stateless"
	APIModeStateful  APIMode = "stateful"
)

// Config 是 AnswerFlow 的完整配置结构。
type Config struct {
	// React 控制检索-生成-评估循环
	React ReactConfig `yaml:"react"`

	// Retriever 检索后端配置
	Retriever RetrieverConfig `yaml:"retriever"`

	// Tokenizer 分词配置
	Tokenizer TokenizerConfig `yaml:"tokenizer"`

	// Session 会话与多轮配置
	Session SessionConfig `yaml:"session"`

	// Redis 会话存储配置（stateful 模式）
	Redis RedisConfig `yaml:"redis"`

	// Export 轮次追踪导出配置
	Export ExportConfig `yaml:"export"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Log 日志配置
	Log LogConfig `yaml:"log"`
}

// ReactConfig 控制核心状态机。
type ReactConfig struct {
	// MaxRounds 是每轮对话允许的最大 ReAct 轮数
	MaxRounds int `yaml:"max_rounds"`

	// SufficientConfidence 是停止循环的置信度阈值
	SufficientConfidence float64 `yaml:"sufficient_confidence"`

	// FirstRoundStatement 作为首轮 previous_rounds 的前导文本
	FirstRoundStatement string `yaml:"first_round_statement"`

	// FinalRoundStatement 在最后允许轮附加的「必须作答」指令，
	// 必须在该轮的生成调用之前附加
	FinalRoundStatement string `yaml:"final_round_statement"`

	// ParallelGenerations 是 best-of-N 采样数（默认 1）
	ParallelGenerations int `yaml:"parallel_generations"`

	// BlockTokenBudget 是单个上下文块的 token 预算
	BlockTokenBudget int `yaml:"block_token_budget"`

	// UseFullDocuments 为 false 时打包元数据摘要而非全文
	UseFullDocuments bool `yaml:"use_full_documents"`

	// GenerateRatePerSecond 限制生成调用速率（0 表示不限）
	GenerateRatePerSecond float64 `yaml:"generate_rate_per_second"`
}

// RetrieverConfig 检索后端配置。
type RetrieverConfig struct {
	// Backend 是后端名称，构建时解析一次；未知名称是配置错误
	Backend string `yaml:"backend"`

	// TopK 单次检索返回的文档数
	TopK int `yaml:"top_k"`

	// ScoreThreshold 是 post-filter 的相关性分数阈值
	ScoreThreshold float64 `yaml:"score_threshold"`
}

// TokenizerConfig 分词配置。
type TokenizerConfig struct {
	// Model 是 tiktoken 模型名（如 "gpt-4o"）；空值使用估算器
	Model string `yaml:"model"`
}

// SessionConfig 会话配置。
type SessionConfig struct {
	// Mode 为 stateful 时启用多轮连续性
	Mode APIMode `yaml:"mode"`

	// PreviousTurns 是多轮模式下最多考虑的历史轮数
	PreviousTurns int `yaml:"previous_turns"`
}

// RedisConfig 会话存储配置。
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// ExportConfig 轮次追踪导出配置。
type ExportConfig struct {
	// Enabled 为 false 时不导出
	Enabled bool `yaml:"enabled"`

	// Dialect 选择 SQL 方言: sqlite / postgres / mysql
	Dialect string `yaml:"dialect"`

	// DSN 数据源
	DSN string `yaml:"dsn"`

	// Workers 后台导出协程数
	Workers int `yaml:"workers"`

	// QueueSize 导出队列长度
	QueueSize int `yaml:"queue_size"`
}

// TelemetryConfig 遥测配置。
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ServiceName  string `yaml:"service_name"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// LogConfig 日志配置。
type LogConfig struct {
	// Level: debug / info / warn / error
	Level string `yaml:"level"`

	// Development 使用开发模式编码器
	Development bool `yaml:"development"`
}

// Default 返回默认配置。
// 数值默认源自生产部署的稳定取值：3 轮上限、0–5 置信度量表阈值 5、
// post-filter 分数阈值 2。
func Default() *Config {
	return &Config{
		React: ReactConfig{
			MaxRounds:            3,
			SufficientConfidence: 5.0,
			FinalRoundStatement: "This is the final round. Commit to your best answer " +
				"using the provided context instead of requesting more information.",
			ParallelGenerations: 1,
			BlockTokenBudget:    8192,
			UseFullDocuments:    true,
		},
		Retriever: RetrieverConfig{
			Backend:        "memory",
			TopK:           4,
			ScoreThreshold: 2,
		},
		Tokenizer: TokenizerConfig{Model: ""},
		Session: SessionConfig{
			Mode:          APIModeStateless,
			PreviousTurns: 3,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			TTL:  24 * time.Hour,
		},
		Export: ExportConfig{
			Dialect:   "sqlite",
			DSN:       "answerflow.db",
			Workers:   2,
			QueueSize: 256,
		},
		Telemetry: TelemetryConfig{ServiceName: "answerflow"},
		Log:       LogConfig{Level: "info"},
	}
}

// Load 加载配置：默认值 → YAML 文件（path 为空则跳过）→ 环境变量。
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置合法性。
func (c *Config) Validate() error {
	if c.React.MaxRounds < 1 {
		return fmt.Errorf("react.max_rounds must be >= 1, got %d", c.React.MaxRounds)
	}
	if c.React.BlockTokenBudget < 1 {
		return fmt.Errorf("react.block_token_budget must be >= 1, got %d", c.React.BlockTokenBudget)
	}
	if c.React.ParallelGenerations < 1 {
		return fmt.Errorf("react.parallel_generations must be >= 1, got %d", c.React.ParallelGenerations)
	}
	if c.Session.Mode != APIModeStateless && c.Session.Mode != APIModeStateful {
		return fmt.Errorf("session.mode must be stateless or stateful, got %q", c.Session.Mode)
	}
	switch c.Export.Dialect {
	case "", "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("export.dialect must be sqlite, postgres or mysql, got %q", c.Export.Dialect)
	}
	return nil
}

// --- 环境变量覆盖 ---

const envPrefix = "ANSWERFLOW_"

// applyEnvOverrides 应用环境变量覆盖。
// 只覆盖运维上常改的字段；映射保持显式，避免反射带来的歧义。
func applyEnvOverrides(cfg *Config) {
	if v := getenv("MAX_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.React.MaxRounds = n
		}
	}
	if v := getenv("SUFFICIENT_CONFIDENCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.React.SufficientConfidence = f
		}
	}
	if v := getenv("PARALLEL_GENERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.React.ParallelGenerations = n
		}
	}
	if v := getenv("BLOCK_TOKEN_BUDGET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.React.BlockTokenBudget = n
		}
	}
	if v := getenv("RETRIEVER_BACKEND"); v != "" {
		cfg.Retriever.Backend = v
	}
	if v := getenv("SESSION_MODE"); v != "" {
		cfg.Session.Mode = APIMode(strings.ToLower(v))
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := getenv("EXPORT_DSN"); v != "" {
		cfg.Export.DSN = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

func getenv(key string) string {
	return os.Getenv(envPrefix + key)
}
