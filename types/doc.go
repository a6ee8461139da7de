// Copyright (c) AnswerFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 AnswerFlow 引擎的全局共享类型定义。

types 是最底层的公共包，不依赖任何内部包，为 rag、llm、react、session、
export 等上层模块提供统一的类型契约。

# 核心类型

  - Document            — 不可变的检索文档（内容 + 元数据 + 去重键）
  - QueryState          — 单轮对话的完整状态（问题、答案、轮次记录、指令）
  - RoundRecord         — 单个 ReAct 轮次的只追加快照
  - Conversation        — 有序的 QueryState 列表 + 会话标识
  - ContextBlock        — token 预算内的上下文块
  - Error / ErrorCode   — 结构化错误体系，含 Retryable 标记
*/
package types
