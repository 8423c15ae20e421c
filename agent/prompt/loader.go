package prompt

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Chative-Billing-Assistant/agent/contract"
)

//go:embed template/system.txt
var systemRaw string

// SystemPrompt renders the system message seeded into new threads.
type SystemPrompt struct {
	template einoprompt.ChatTemplate
	userID   string
}

func NewSystemPrompt(userID string) (*SystemPrompt, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("authenticated user id is required")
	}
	return &SystemPrompt{
		template: einoprompt.FromMessages(schema.FString, schema.SystemMessage(strings.TrimSpace(systemRaw))),
		userID:   userID,
	}, nil
}

func (p *SystemPrompt) UserID() string {
	return p.userID
}

// Render formats the prompt for the given clock reading.
func (p *SystemPrompt) Render(ctx context.Context, now time.Time) (contractx.Message, error) {
	msgs, err := p.template.Format(ctx, map[string]any{
		"date":    now.Format("2006-01-02"),
		"user_id": p.userID,
	})
	if err != nil {
		return contractx.Message{}, fmt.Errorf("render system prompt: %w", err)
	}
	if len(msgs) != 1 {
		return contractx.Message{}, fmt.Errorf("render system prompt: got %d messages", len(msgs))
	}
	return contractx.SystemMessage(msgs[0].Content), nil
}
