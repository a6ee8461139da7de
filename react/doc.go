// Copyright (c) AnswerFlow Authors.
// Licensed under the MIT License.

/*
Package react 实现核心的 ReAct 状态机：

	RETRIEVE → BUILD_CONTEXT → GENERATE → EVALUATE → {CONTINUE → RETRIEVE, STOP}

每个对话轮的 QueryState 在整轮内由 Controller 独占驱动：轮次从 1 编号，指令非空时
每轮重新检索，文档列表变化时重建上下文块，每个上下文块经 best-of-N
采样生成一次，评估阶段取最高置信度记录并决定继续或停止。

停止条件（满足其一）：指令为空、置信度达到阈值、轮数达到上限。
最大轮数检查同时约束「最终轮指令」的附加与循环继续，保证无条件终止。

生成/解析层的一切失败都被吸收为降级但合法的记录；Controller 只在
构建期配置错误时向调用方返回错误。
*/
package react
