// Copyright (c) AnswerFlow Authors.
// Licensed under the MIT License.

/*
Package rag 提供证据侧的支撑组件：跨轮次文档去重、token 预算上下文打包、
token 计数，以及按配置名解析的检索后端。

核心组件：

  - Deduplicate     — 保序合并多个文档列表，按身份键丢弃后出现的重复项
  - ContextBuilder  — 将打分文档贪心打包为 token 预算内的上下文块
  - Tokenizer       — 统一 token 计数接口（tiktoken 精确计数 / CJK 估算回退）
  - Retriever       — 检索后端契约，返回 pre/post-filter 两个文档列表
  - NewRetriever    — 后端工厂：配置名在构建时解析一次，热路径不再分支
*/
package rag
