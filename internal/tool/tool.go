// Package tool 定义了 Agent 可调用的函数工具及其 HTTP 适配实现。
package tool

import (
	"context"

	"clinic-agent-go/pkg/llm"
)

// Tool 是 Agent 函数调用工具的统一接口。
// Execute 接收 LLM 产出的原始 JSON 参数串，返回会被序列化后
// 作为 tool 消息回填给 LLM 的结果。工具从不返回 error：
// 失败以 {"error": ...} 负载表达，让 LLM 自行向用户解释。
type Tool interface {
	Name() string
	Description() llm.Tool
	Execute(ctx context.Context, arguments string) map[string]interface{}
}
