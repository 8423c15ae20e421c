package state

import (
	"strings"

	contractx "github.com/tanpawarit/Chative-Billing-Assistant/agent/contract"
)

// ConversationState is the ordered, append-only log of one thread.
type ConversationState struct {
	ThreadID string              `json:"thread_id"`
	Messages []contractx.Message `json:"messages"`
}

func (s ConversationState) Len() int {
	return len(s.Messages)
}

func (s ConversationState) IsEmpty() bool {
	return len(s.Messages) == 0
}

// LastAssistant returns the most recent assistant message, if any.
func (s ConversationState) LastAssistant() (contractx.Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == contractx.RoleAssistant {
			return s.Messages[i], true
		}
	}
	return contractx.Message{}, false
}

// PendingToolCalls returns the tool calls of the trailing assistant message
// that have no result yet. A non-empty result means a round was interrupted
// between the model and tool phases.
func (s ConversationState) PendingToolCalls() []contractx.ToolCall {
	idx := -1
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == contractx.RoleAssistant {
			idx = i
			break
		}
	}
	if idx < 0 || !s.Messages[idx].HasToolCalls() {
		return nil
	}

	answered := make(map[string]struct{})
	for _, m := range s.Messages[idx+1:] {
		if m.Role == contractx.RoleTool {
			answered[m.ToolCallID] = struct{}{}
		}
	}
	var pending []contractx.ToolCall
	for _, call := range s.Messages[idx].ToolCalls {
		if _, ok := answered[call.ID]; !ok {
			pending = append(pending, call)
		}
	}
	return pending
}

// Visible projects messages[from:] to the caller-facing history: user
// messages and assistant messages with readable content. System prompts,
// tool results and tool-call-only assistant messages are omitted.
func (s ConversationState) Visible(from int) []contractx.VisibleMessage {
	if from < 0 {
		from = 0
	}
	if from > len(s.Messages) {
		from = len(s.Messages)
	}
	out := make([]contractx.VisibleMessage, 0, len(s.Messages)-from)
	for _, m := range s.Messages[from:] {
		switch m.Role {
		case contractx.RoleUser, contractx.RoleAssistant:
			content := strings.TrimSpace(m.Content)
			if content == "" {
				continue
			}
			out = append(out, contractx.VisibleMessage{Role: m.Role, Content: m.Content})
		case contractx.RoleSystem, contractx.RoleTool:
			continue
		}
	}
	return out
}

func (s ConversationState) clone() ConversationState {
	return ConversationState{
		ThreadID: s.ThreadID,
		Messages: contractx.CloneMessages(s.Messages),
	}
}
