package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Billing-Assistant/agent/contract"
)

// ChatModel adapts an eino tool-calling model to contract.ChatModel, adding
// error classification and rate-limit backoff.
type ChatModel struct {
	base  model.ToolCallingChatModel
	retry RetryPolicy
	newID func() string
}

var _ contractx.ChatModel = (*ChatModel)(nil)

func NewChatModel(base model.ToolCallingChatModel, retry RetryPolicy) (*ChatModel, error) {
	if base == nil {
		return nil, errors.New("base chat model is required")
	}
	return &ChatModel{base: base, retry: retry, newID: uuid.NewString}, nil
}

func (m *ChatModel) BindTools(tools []*schema.ToolInfo) (contractx.ChatModel, error) {
	bound, err := m.base.WithTools(tools)
	if err != nil {
		return nil, fmt.Errorf("bind tools: %w", err)
	}
	return &ChatModel{base: bound, retry: m.retry, newID: m.newID}, nil
}

func (m *ChatModel) Generate(ctx context.Context, msgs []contractx.Message) (contractx.Message, error) {
	in, err := toSchemaMessages(msgs)
	if err != nil {
		return contractx.Message{}, err
	}

	var out *schema.Message
	err = m.retry.Do(ctx, func(ctx context.Context) error {
		resp, err := m.base.Generate(ctx, in)
		if err != nil {
			return Classify(err)
		}
		out = resp
		return nil
	})
	if err != nil {
		return contractx.Message{}, err
	}
	if out == nil {
		return contractx.Message{}, contractx.ErrEmptyResponse
	}
	return m.fromSchemaMessage(out), nil
}

func toSchemaMessages(msgs []contractx.Message) ([]*schema.Message, error) {
	out := make([]*schema.Message, 0, len(msgs))
	for i, msg := range msgs {
		var sm *schema.Message
		switch msg.Role {
		case contractx.RoleSystem:
			sm = schema.SystemMessage(msg.Content)
		case contractx.RoleUser:
			sm = schema.UserMessage(msg.Content)
		case contractx.RoleAssistant:
			sm = &schema.Message{Role: schema.Assistant, Content: msg.Content}
			for _, call := range msg.ToolCalls {
				args := string(call.Arguments)
				if strings.TrimSpace(args) == "" {
					args = "{}"
				}
				sm.ToolCalls = append(sm.ToolCalls, schema.ToolCall{
					ID:       call.ID,
					Type:     "function",
					Function: schema.FunctionCall{Name: call.Name, Arguments: args},
				})
			}
		case contractx.RoleTool:
			sm = &schema.Message{
				Role:       schema.Tool,
				Content:    msg.Content,
				ToolCallID: msg.ToolCallID,
				ToolName:   msg.ToolName,
			}
		default:
			return nil, fmt.Errorf("%w: message %d has role %q", contractx.ErrValidation, i, msg.Role)
		}
		out = append(out, sm)
	}
	return out, nil
}

// fromSchemaMessage converts a provider reply. Tool call ids that are
// missing or repeated within the message are replaced so results can always
// be matched to their call.
func (m *ChatModel) fromSchemaMessage(sm *schema.Message) contractx.Message {
	msg := contractx.Message{Role: contractx.RoleAssistant, Content: sm.Content}
	if len(sm.ToolCalls) == 0 {
		return msg
	}

	seen := make(map[string]struct{}, len(sm.ToolCalls))
	msg.ToolCalls = make([]contractx.ToolCall, 0, len(sm.ToolCalls))
	for _, tc := range sm.ToolCalls {
		id := strings.TrimSpace(tc.ID)
		if _, dup := seen[id]; id == "" || dup {
			replacement := "call_" + m.newID()
			log.Debug().Str("tool", tc.Function.Name).Str("provider_id", id).Str("id", replacement).
				Msg("replaced missing or duplicate tool call id")
			id = replacement
		}
		seen[id] = struct{}{}

		args := json.RawMessage(strings.TrimSpace(tc.Function.Arguments))
		switch {
		case len(args) == 0:
			args = json.RawMessage("{}")
		case !json.Valid(args):
			// keep malformed arguments as a JSON string; decoding reports it
			quoted, _ := json.Marshal(string(args))
			args = quoted
		}
		msg.ToolCalls = append(msg.ToolCalls, contractx.ToolCall{
			ID:        id,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return msg
}
