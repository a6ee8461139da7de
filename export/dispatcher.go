package export

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/answerflow/internal/pool"
	"github.com/BaSui01/answerflow/react"
)

// exportTimeout 限制单次落地的执行时间。
const exportTimeout = 10 * time.Second

// Dispatcher 把快照提交到后台 worker 池异步落地。
// Emit 立即返回；队列满时丢弃快照并告警，不阻塞状态机。
type Dispatcher struct {
	sink   Sink
	pool   *pool.GoroutinePool
	logger *zap.Logger
}

// NewDispatcher 创建异步导出分发器。
func NewDispatcher(sink Sink, workers, queueSize int, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		sink:   sink,
		pool:   pool.NewGoroutinePool(workers, queueSize),
		logger: logger,
	}
}

// Emit 提交一条快照，立即返回。适配 react.Deps.Emit。
func (d *Dispatcher) Emit(snapshot react.TraceSnapshot) {
	err := d.pool.Submit(context.Background(), func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, exportTimeout)
		defer cancel()

		if err := d.sink.Export(ctx, snapshot); err != nil {
			d.logger.Warn("exporting round trace failed",
				zap.String("session_id", snapshot.SessionID),
				zap.Int("round", snapshot.RoundNumber),
				zap.Error(err))
		}
	})
	if err != nil {
		d.logger.Warn("export queue full, dropping round trace",
			zap.String("session_id", snapshot.SessionID),
			zap.Int("round", snapshot.RoundNumber),
			zap.Error(err))
	}
}

// Close 停止接收新快照，排空队列后关闭落地端。
func (d *Dispatcher) Close() error {
	d.pool.Close()
	return d.sink.Close()
}

// Stats 返回导出计数：提交、完成、丢弃。
func (d *Dispatcher) Stats() (submitted, completed, rejected int64) {
	return d.pool.Stats()
}
