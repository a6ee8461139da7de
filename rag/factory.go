// Config → 检索后端桥接层。
//
// 后端名称是封闭的标签变体，在构建时解析一次为具体实现；
// 热路径中不再按名称分支。
package rag

import (
	"go.uber.org/zap"

	"github.com/BaSui01/answerflow/config"
	"github.com/BaSui01/answerflow/types"
)

// BackendType 标识要创建的检索后端。
type BackendType string

const (
	BackendMemory BackendType = "memory"
)

// NewRetriever 根据配置创建检索后端。
// 未知的后端名称是构建期配置错误，直接返回，从不重试。
func NewRetriever(cfg *config.Config, embed EmbedFunc, logger *zap.Logger) (Retriever, error) {
	if cfg == nil {
		return nil, types.NewError(types.ErrInvalidConfig, "config is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	switch BackendType(cfg.Retriever.Backend) {
	case BackendMemory, "":
		return NewMemoryRetriever(cfg.Retriever.TopK, cfg.Retriever.ScoreThreshold, embed, logger), nil

	default:
		return nil, types.NewError(types.ErrUnknownBackend,
			"unsupported retriever backend: "+cfg.Retriever.Backend)
	}
}
