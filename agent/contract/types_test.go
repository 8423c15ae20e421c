package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageValidate(t *testing.T) {
	t.Parallel()

	call := ToolCall{ID: "call_1", Name: "calculate_billing", Arguments: json.RawMessage(`{}`)}
	cases := []struct {
		name string
		msg  Message
		ok   bool
	}{
		{"user", UserMessage("hi"), true},
		{"system", SystemMessage("prompt"), true},
		{"assistant with calls", AssistantMessage("", call), true},
		{"tool result", ToolResultMessage(ToolResult{ToolCallID: "call_1", Content: "ok"}), true},
		{"unknown role", Message{Role: "critic", Content: "x"}, false},
		{"user with calls", Message{Role: RoleUser, ToolCalls: []ToolCall{call}}, false},
		{"assistant with blank id", AssistantMessage("", ToolCall{Name: "x"}), false},
		{"assistant with duplicate ids", AssistantMessage("", call, call), false},
		{"tool without call id", Message{Role: RoleTool, Content: "ok"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.msg.Validate()
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	t.Parallel()

	orig := []Message{AssistantMessage("", ToolCall{ID: "c1", Name: "n", Arguments: json.RawMessage(`{"a":1}`)})}
	cp := CloneMessages(orig)
	cp[0].ToolCalls[0].Arguments[1] = 'X'
	cp[0].ToolCalls[0].ID = "changed"

	require.Equal(t, "c1", orig[0].ToolCalls[0].ID)
	require.JSONEq(t, `{"a":1}`, string(orig[0].ToolCalls[0].Arguments))
	require.Nil(t, CloneMessages(nil))
}

func TestProviderErrorTaxonomy(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("generate: %w", ErrProviderRateLimited)
	require.ErrorIs(t, wrapped, ErrProvider)
	require.ErrorIs(t, wrapped, ErrProviderRateLimited)
	require.False(t, errors.Is(wrapped, ErrProviderTimeout))
	require.True(t, IsRetryable(wrapped))
	require.True(t, IsRetryable(ErrProviderTimeout))
	require.False(t, IsRetryable(ErrProvider))
	require.False(t, IsRetryable(ErrStorage))
}
