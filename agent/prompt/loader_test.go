package prompt

import (
	"context"
	"strings"
	"testing"
	"time"

	contractx "github.com/tanpawarit/Chative-Billing-Assistant/agent/contract"
)

func TestSystemPromptRendersDateAndUser(t *testing.T) {
	t.Parallel()

	p, err := NewSystemPrompt("user_123")
	if err != nil {
		t.Fatalf("NewSystemPrompt() error = %v", err)
	}
	msg, err := p.Render(context.Background(), time.Date(2026, time.February, 14, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if msg.Role != contractx.RoleSystem {
		t.Fatalf("role = %s, want system", msg.Role)
	}
	for _, want := range []string{"2026-02-14", "'user_123'", "change_subscription_plan"} {
		if !strings.Contains(msg.Content, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
	if strings.Contains(msg.Content, "{date}") || strings.Contains(msg.Content, "{user_id}") {
		t.Fatal("prompt has unrendered placeholders")
	}
}

func TestSystemPromptRequiresUser(t *testing.T) {
	t.Parallel()

	if _, err := NewSystemPrompt("  "); err == nil {
		t.Fatal("expected error for empty user id")
	}
}
