package contract

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role tags the kind of a Message. The set is closed; every switch over Role
// must handle all four values and reject anything else.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

func (r Role) Validate() error {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return nil
	default:
		return fmt.Errorf("%w: unknown role=%q", ErrValidation, string(r))
	}
}

// Message is one entry of a thread log. Once appended it is never mutated;
// stores hand out copies.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
}

type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Content    string `json:"content"`
	// Failed marks results whose content is an error description.
	Failed bool `json:"failed,omitempty"`
}

// VisibleMessage is the caller-facing projection of a Message.
type VisibleMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func AssistantMessage(content string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

func ToolResultMessage(res ToolResult) Message {
	return Message{
		Role:       RoleTool,
		Content:    res.Content,
		ToolCallID: res.ToolCallID,
		ToolName:   res.Name,
	}
}

// HasToolCalls reports whether m is an assistant message requesting tools.
func (m Message) HasToolCalls() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) > 0
}

// Validate checks the per-role shape of a message.
func (m Message) Validate() error {
	if err := m.Role.Validate(); err != nil {
		return err
	}
	switch m.Role {
	case RoleSystem, RoleUser:
		if len(m.ToolCalls) > 0 || m.ToolCallID != "" {
			return fmt.Errorf("%w: %s message cannot carry tool data", ErrValidation, m.Role)
		}
	case RoleAssistant:
		if m.ToolCallID != "" {
			return fmt.Errorf("%w: assistant message cannot reference a tool call", ErrValidation)
		}
		seen := make(map[string]struct{}, len(m.ToolCalls))
		for _, call := range m.ToolCalls {
			if strings.TrimSpace(call.ID) == "" {
				return fmt.Errorf("%w: tool call id is empty", ErrValidation)
			}
			if _, dup := seen[call.ID]; dup {
				return fmt.Errorf("%w: duplicate tool call id=%s", ErrValidation, call.ID)
			}
			seen[call.ID] = struct{}{}
		}
	case RoleTool:
		if strings.TrimSpace(m.ToolCallID) == "" {
			return fmt.Errorf("%w: tool result without tool_call_id", ErrValidation)
		}
		if len(m.ToolCalls) > 0 {
			return fmt.Errorf("%w: tool result cannot carry tool calls", ErrValidation)
		}
	}
	return nil
}

// Clone returns a deep copy so callers cannot alias stored slices.
func (m Message) Clone() Message {
	out := m
	if m.ToolCalls != nil {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		for i, call := range m.ToolCalls {
			out.ToolCalls[i] = call
			if call.Arguments != nil {
				out.ToolCalls[i].Arguments = append(json.RawMessage(nil), call.Arguments...)
			}
		}
	}
	return out
}

func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}
