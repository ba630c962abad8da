package repository

import "context"

// AgentRunResult SQL agent 一次运行的产出。Answer 为面向用户的最终回答；
// SQLText/RowCount 来自 agent 实际执行的最后一条语句（可能为空）。
type AgentRunResult struct {
	Answer   string
	SQLText  string
	RowCount *int64
	// Executed 是否成功执行过至少一条语句
	Executed bool
	// ExecErr 最后一次执行失败的原因（如有）
	ExecErr string
}

// SQLAgent LLM 驱动的 SQL agent 黑盒接口：给定系统指令与增强后的问题，
// 自主完成库表内省、生成并执行 SQL、返回结果。编排层不依赖具体厂商实现。
type SQLAgent interface {
	Run(ctx context.Context, systemPrompt, question string) (*AgentRunResult, error)
}
