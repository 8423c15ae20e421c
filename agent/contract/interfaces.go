package contract

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// ChatModel is the language-model collaborator. Generate receives the full
// ordered thread and returns one assistant message.
type ChatModel interface {
	Generate(ctx context.Context, msgs []Message) (Message, error)
	BindTools(tools []*schema.ToolInfo) (ChatModel, error)
}

// ToolExecutor runs one round of tool calls and returns one result per call
// in call order.
type ToolExecutor interface {
	Execute(ctx context.Context, calls []ToolCall) []ToolResult
}
