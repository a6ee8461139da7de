// Package export 把每轮追踪快照落地到外部存储。
// 落地在后台 worker 池中异步执行，状态机推进不等待导出。
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/answerflow/config"
	"github.com/BaSui01/answerflow/react"
	"github.com/BaSui01/answerflow/types"
)

// Sink 是追踪快照落地契约。
type Sink interface {
	Export(ctx context.Context, snapshot react.TraceSnapshot) error
	Close() error
}

// roundTrace 是快照的数据库行。
type roundTrace struct {
	ID              uint   `gorm:"primaryKey"`
	SessionID       string `gorm:"index"`
	Question        string
	RoundNumber     int
	PlanAndSummary  string
	Answer          string
	ConfidenceScore float64
	ContextUsed     string `gorm:"type:text"`
	Directive       string

	// PreFiltered / PostFiltered 是检索文档列表的 JSON 序列化
	PreFiltered  string `gorm:"type:text"`
	PostFiltered string `gorm:"type:text"`

	TimeTakenMS int64
	CreatedAt   time.Time
}

// OpenSQL 按方言打开数据库连接。
// 未知方言是配置错误。
func OpenSQL(cfg config.ExportConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}

	switch cfg.Dialect {
	case "", "sqlite":
		return gorm.Open(sqlite.Open(cfg.DSN), gormCfg)
	case "postgres":
		return gorm.Open(postgres.Open(cfg.DSN), gormCfg)
	case "mysql":
		return gorm.Open(mysql.Open(cfg.DSN), gormCfg)
	default:
		return nil, types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("export: unknown dialect %q", cfg.Dialect))
	}
}

// SQLSink 把快照写入关系库。
type SQLSink struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSQLSink 创建 SQL 落地端并迁移表结构。
func NewSQLSink(db *gorm.DB, logger *zap.Logger) (*SQLSink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&roundTrace{}); err != nil {
		return nil, fmt.Errorf("export: migrate round traces: %w", err)
	}
	return &SQLSink{db: db, logger: logger}, nil
}

// Export 实现 Sink。
func (s *SQLSink) Export(ctx context.Context, snapshot react.TraceSnapshot) error {
	row := roundTrace{
		SessionID:       snapshot.SessionID,
		Question:        snapshot.Question,
		RoundNumber:     snapshot.RoundNumber,
		PlanAndSummary:  snapshot.PlanAndSummary,
		Answer:          snapshot.Answer,
		ConfidenceScore: snapshot.ConfidenceScore,
		ContextUsed:     snapshot.ContextUsed,
		Directive:       snapshot.Directive,
		PreFiltered:     marshalDocs(snapshot.PreFiltered),
		PostFiltered:    marshalDocs(snapshot.PostFiltered),
		TimeTakenMS:     snapshot.TimeTaken.Milliseconds(),
		CreatedAt:       snapshot.Timestamp,
	}

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("export: insert round trace: %w", err)
	}
	return nil
}

// Close 实现 Sink。
func (s *SQLSink) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func marshalDocs(docs []types.Document) string {
	if len(docs) == 0 {
		return "[]"
	}
	data, err := json.Marshal(docs)
	if err != nil {
		return "[]"
	}
	return string(data)
}
