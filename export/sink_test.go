package export

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/answerflow/config"
	"github.com/BaSui01/answerflow/react"
	"github.com/BaSui01/answerflow/types"
)

func testExportConfig(dialect string) config.ExportConfig {
	return config.ExportConfig{Dialect: dialect, DSN: ":memory:"}
}

func sampleSnapshot() react.TraceSnapshot {
	return react.TraceSnapshot{
		SessionID:       "sess-1",
		Question:        "what is covered?",
		RoundNumber:     1,
		PlanAndSummary:  "plan",
		Answer:          "the answer",
		ConfidenceScore: 4.0,
		ContextUsed:     "ctx",
		Directive:       "more about limits",
		PostFiltered: []types.Document{{
			Content: "coverage details",
			Score:   4.0,
			Metadata: map[string]string{
				types.MetaSourceID:    "doc-1",
				types.MetaSectionName: "benefits",
			},
		}},
		TimeTaken: 1200 * time.Millisecond,
		Timestamp: time.Now(),
	}
}

func TestSQLSink_Roundtrip(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"),
		&gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)

	sink, err := NewSQLSink(db, nil)
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Export(context.Background(), sampleSnapshot()))

	var rows []roundTrace
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "sess-1", rows[0].SessionID)
	assert.Equal(t, 1, rows[0].RoundNumber)
	assert.Equal(t, "the answer", rows[0].Answer)
	assert.Equal(t, int64(1200), rows[0].TimeTakenMS)
	assert.Contains(t, rows[0].PostFiltered, "coverage details")
	assert.Equal(t, "[]", rows[0].PreFiltered)
}

func TestSQLSink_InsertErrorPropagates(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}),
		&gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "round_traces"`).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	// 不经过 AutoMigrate，直接构造落地端
	sink := &SQLSink{db: db}
	err = sink.Export(context.Background(), sampleSnapshot())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert round trace")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// recordingSink 记录导出调用。
type recordingSink struct {
	mu        sync.Mutex
	snapshots []react.TraceSnapshot
	err       error
	closed    bool
}

func (s *recordingSink) Export(_ context.Context, snapshot react.TraceSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.snapshots = append(s.snapshots, snapshot)
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func TestDispatcher_AsyncExport(t *testing.T) {
	sink := &recordingSink{}
	dispatcher := NewDispatcher(sink, 2, 16, nil)

	for i := 1; i <= 5; i++ {
		snapshot := sampleSnapshot()
		snapshot.RoundNumber = i
		dispatcher.Emit(snapshot)
	}

	require.NoError(t, dispatcher.Close())

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Len(t, sink.snapshots, 5, "Close 前提交的快照应全部落地")
	assert.True(t, sink.closed)

	submitted, completed, rejected := dispatcher.Stats()
	assert.Equal(t, int64(5), submitted)
	assert.Equal(t, int64(5), completed)
	assert.Zero(t, rejected)
}

func TestDispatcher_SinkFailureAbsorbed(t *testing.T) {
	sink := &recordingSink{err: errors.New("database down")}
	dispatcher := NewDispatcher(sink, 1, 4, nil)

	dispatcher.Emit(sampleSnapshot())
	require.NoError(t, dispatcher.Close())
	// 失败仅记录告警，不向上传播
}

func TestOpenSQL_UnknownDialect(t *testing.T) {
	_, err := OpenSQL(testExportConfig("oracle"))
	require.Error(t, err)
	assert.True(t, types.IsConfigError(err))
}
