// =============================================================================
// AnswerFlow 主入口
// =============================================================================
// 命令行入口点：加载配置、组装检索-生成-评估引擎并回答问题
//
// 使用方法:
//
//	answerflow ask --question "..."                 # 回答问题
//	answerflow ask --config config.yaml --corpus corpus.json --question "..."
//	answerflow version                              # 显示版本信息
//
// 生成模型通过 OpenAI 兼容接口接入，由环境变量配置：
//
//	ANSWERFLOW_OPENAI_BASE_URL / ANSWERFLOW_OPENAI_API_KEY / ANSWERFLOW_OPENAI_MODEL
// =============================================================================

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/answerflow/config"
	"github.com/BaSui01/answerflow/export"
	"github.com/BaSui01/answerflow/internal/telemetry"
	"github.com/BaSui01/answerflow/rag"
	"github.com/BaSui01/answerflow/react"
	"github.com/BaSui01/answerflow/session"
	"github.com/BaSui01/answerflow/types"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "ask":
		runAsk(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// 🎯 ask 命令
// =============================================================================

func runAsk(args []string) {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	question := fs.String("question", "", "Question to answer")
	corpusPath := fs.String("corpus", "", "Path to corpus JSON file (memory backend)")
	sessionID := fs.String("session", "", "Session ID for multi-turn continuity")
	memberID := fs.String("member", "", "Member ID (required in stateful mode)")
	fs.Parse(args)

	if *question == "" {
		fmt.Fprintln(os.Stderr, "--question is required")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting AnswerFlow",
		zap.String("version", Version),
		zap.String("question", *question),
	)

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelProviders.Shutdown(ctx)
	}()

	client := newOpenAIClient(cfg.Tokenizer.Model, logger)

	retriever, err := rag.NewRetriever(cfg, client.Embed, logger)
	if err != nil {
		logger.Fatal("Failed to build retriever", zap.Error(err))
	}
	if *corpusPath != "" {
		if err := indexCorpus(retriever, *corpusPath, logger); err != nil {
			logger.Fatal("Failed to index corpus", zap.Error(err))
		}
	}

	deps := react.Deps{
		Retriever: retriever,
		Generator: client,
		Repairer:  client,
		Scorer:    client,
		Logger:    logger,
	}

	// 轮次追踪导出（可选）
	if cfg.Export.Enabled {
		db, err := export.OpenSQL(cfg.Export)
		if err != nil {
			logger.Fatal("Failed to open export database", zap.Error(err))
		}
		sink, err := export.NewSQLSink(db, logger)
		if err != nil {
			logger.Fatal("Failed to build export sink", zap.Error(err))
		}
		dispatcher := export.NewDispatcher(sink, cfg.Export.Workers, cfg.Export.QueueSize, logger)
		defer dispatcher.Close()
		deps.Emit = dispatcher.Emit
	}

	controller, err := react.NewController(cfg.React, deps)
	if err != nil {
		logger.Fatal("Failed to build controller", zap.Error(err))
	}

	var store session.Store
	if cfg.Session.Mode == config.APIModeStateful {
		store = session.NewRedisStore(redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}), cfg.Redis.TTL)
	}

	manager, err := session.NewManager(cfg.Session, controller, store,
		session.WithLogger(logger))
	if err != nil {
		logger.Fatal("Failed to build session manager", zap.Error(err))
	}

	resp, err := manager.Respond(context.Background(), session.Request{
		Question:  *question,
		SessionID: *sessionID,
		MemberID:  *memberID,
	})
	if err != nil {
		logger.Fatal("Failed to answer question", zap.Error(err))
	}

	printResponse(resp)
}

func printResponse(resp *session.Response) {
	fmt.Printf("Session:    %s\n", resp.SessionID)
	fmt.Printf("Rounds:     %d\n", resp.Rounds)
	fmt.Printf("Confidence: %.1f / 5\n", resp.ConfidenceScore)
	fmt.Printf("Answer:\n\n%s\n", resp.Answer)
	if len(resp.UsedArticles) > 0 {
		fmt.Println("\nSources:")
		for _, article := range resp.UsedArticles {
			fmt.Printf("  - %s (%.2f)\n", article.Label, article.Score)
		}
	}
}

// indexCorpus 从 JSON 文件加载文档并写入内存检索后端。
func indexCorpus(retriever rag.Retriever, path string, logger *zap.Logger) error {
	memory, ok := retriever.(*rag.MemoryRetriever)
	if !ok {
		return fmt.Errorf("--corpus requires the memory backend")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read corpus %s: %w", path, err)
	}

	var docs []types.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return fmt.Errorf("parse corpus %s: %w", path, err)
	}

	logger.Info("Indexing corpus", zap.Int("documents", len(docs)))
	return memory.Index(context.Background(), docs)
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("AnswerFlow %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`AnswerFlow - grounded question answering engine

Usage:
  answerflow <command> [options]

Commands:
  ask       Answer a question against the indexed corpus
  version   Show version information
  help      Show this help message

Options for 'ask':
  --config <path>    Path to configuration file (YAML)
  --question <text>  Question to answer (required)
  --corpus <path>    JSON file of documents to index (memory backend)
  --session <id>     Session ID for multi-turn continuity
  --member <id>      Member ID (required in stateful mode)

Environment:
  ANSWERFLOW_OPENAI_BASE_URL   OpenAI-compatible API base URL
  ANSWERFLOW_OPENAI_API_KEY    API key
  ANSWERFLOW_OPENAI_MODEL      Chat model name
  ANSWERFLOW_OPENAI_EMBED_MODEL Embedding model name

Examples:
  answerflow ask --question "What does the policy cover?" --corpus corpus.json
  answerflow ask --config /etc/answerflow/config.yaml --question "..."
  answerflow version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}
