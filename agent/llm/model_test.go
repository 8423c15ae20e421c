package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Chative-Billing-Assistant/agent/contract"
)

type fakeBase struct {
	mu      sync.Mutex
	calls   int
	inputs  [][]*schema.Message
	tools   []*schema.ToolInfo
	replies []func() (*schema.Message, error)
}

func (f *fakeBase) Generate(_ context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	idx := f.calls
	f.calls++
	if idx >= len(f.replies) {
		return nil, errors.New("no scripted reply")
	}
	return f.replies[idx]()
}

func (f *fakeBase) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func (f *fakeBase) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	f.tools = tools
	return f, nil
}

func instantRetry(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: attempts,
		Backoff:     time.Second,
		MaxBackoff:  8 * time.Second,
		after: func(time.Duration) <-chan time.Time {
			ch := make(chan time.Time, 1)
			ch <- time.Time{}
			return ch
		},
	}
}

func TestChatModelConvertsMessagesAndToolCalls(t *testing.T) {
	t.Parallel()

	base := &fakeBase{replies: []func() (*schema.Message, error){
		func() (*schema.Message, error) {
			return &schema.Message{Role: schema.Assistant, ToolCalls: []schema.ToolCall{
				{ID: "a", Function: schema.FunctionCall{Name: "calculate_billing", Arguments: `{"plans":[]}`}},
				{ID: "a", Function: schema.FunctionCall{Name: "fetch_billing_history", Arguments: ``}},
				{ID: "", Function: schema.FunctionCall{Name: "analyze_overage_cause", Arguments: `{broken`}},
			}}, nil
		},
	}}
	m, err := NewChatModel(base, instantRetry(1))
	if err != nil {
		t.Fatalf("NewChatModel() error = %v", err)
	}
	n := 0
	m.newID = func() string { n++; return fmt.Sprintf("gen%d", n) }

	out, err := m.Generate(context.Background(), []contractx.Message{
		contractx.SystemMessage("sys"),
		contractx.UserMessage("hi"),
		contractx.AssistantMessage("", contractx.ToolCall{ID: "x", Name: "t", Arguments: json.RawMessage(`{}`)}),
		contractx.ToolResultMessage(contractx.ToolResult{ToolCallID: "x", Name: "t", Content: "done"}),
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	in := base.inputs[0]
	if len(in) != 4 || in[2].ToolCalls[0].Function.Name != "t" || in[3].Role != schema.Tool || in[3].ToolCallID != "x" {
		t.Fatalf("unexpected schema input: %#v", in)
	}

	if len(out.ToolCalls) != 3 {
		t.Fatalf("tool calls = %#v", out.ToolCalls)
	}
	if out.ToolCalls[0].ID != "a" || out.ToolCalls[1].ID != "call_gen1" || out.ToolCalls[2].ID != "call_gen2" {
		t.Fatalf("ids not normalized: %#v", out.ToolCalls)
	}
	if string(out.ToolCalls[1].Arguments) != "{}" {
		t.Fatalf("empty arguments = %s", out.ToolCalls[1].Arguments)
	}
	if !json.Valid(out.ToolCalls[2].Arguments) {
		t.Fatalf("malformed arguments must stay valid json, got %s", out.ToolCalls[2].Arguments)
	}
	if err := out.Validate(); err != nil {
		t.Fatalf("converted message invalid: %v", err)
	}
}

func TestChatModelRetriesRateLimitThenSucceeds(t *testing.T) {
	t.Parallel()

	rateLimited := func() (*schema.Message, error) {
		return nil, errors.New("error, status code: 429, message: Too Many Requests")
	}
	base := &fakeBase{replies: []func() (*schema.Message, error){
		rateLimited,
		rateLimited,
		func() (*schema.Message, error) { return schema.AssistantMessage("ok", nil), nil },
	}}
	m, _ := NewChatModel(base, instantRetry(3))

	out, err := m.Generate(context.Background(), []contractx.Message{contractx.UserMessage("hi")})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out.Content != "ok" || base.calls != 3 {
		t.Fatalf("content=%q calls=%d", out.Content, base.calls)
	}
}

func TestChatModelRateLimitExhaustion(t *testing.T) {
	t.Parallel()

	base := &fakeBase{}
	for range 3 {
		base.replies = append(base.replies, func() (*schema.Message, error) {
			return nil, errors.New("rate limit exceeded")
		})
	}
	m, _ := NewChatModel(base, instantRetry(2))

	_, err := m.Generate(context.Background(), []contractx.Message{contractx.UserMessage("hi")})
	if !errors.Is(err, contractx.ErrProviderRateLimited) || !errors.Is(err, contractx.ErrProvider) {
		t.Fatalf("Generate() error = %v, want rate limited provider error", err)
	}
	if base.calls != 2 {
		t.Fatalf("calls = %d, want 2", base.calls)
	}
}

func TestChatModelDoesNotRetryOtherErrors(t *testing.T) {
	t.Parallel()

	base := &fakeBase{replies: []func() (*schema.Message, error){
		func() (*schema.Message, error) { return nil, errors.New("status code: 401 invalid api key") },
	}}
	m, _ := NewChatModel(base, instantRetry(3))

	_, err := m.Generate(context.Background(), []contractx.Message{contractx.UserMessage("hi")})
	if !errors.Is(err, contractx.ErrProvider) || contractx.IsRetryable(err) {
		t.Fatalf("Generate() error = %v", err)
	}
	if base.calls != 1 {
		t.Fatalf("calls = %d, want 1", base.calls)
	}
}

func TestBindToolsKeepsPolicy(t *testing.T) {
	t.Parallel()

	base := &fakeBase{}
	m, _ := NewChatModel(base, instantRetry(2))
	bound, err := m.BindTools([]*schema.ToolInfo{{Name: "calculate_billing"}})
	if err != nil {
		t.Fatalf("BindTools() error = %v", err)
	}
	if len(base.tools) != 1 {
		t.Fatalf("tools not forwarded: %#v", base.tools)
	}
	if bound.(*ChatModel).retry.MaxAttempts != 2 {
		t.Fatal("retry policy lost on bind")
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), contractx.ErrProviderTimeout},
		{"rate limit text", errors.New("RESOURCE_EXHAUSTED: quota"), contractx.ErrProviderRateLimited},
		{"timeout text", errors.New("request timed out"), contractx.ErrProviderTimeout},
		{"other", errors.New("bad gateway"), contractx.ErrProvider},
		{"already classified", contractx.ErrProviderTimeout, contractx.ErrProviderTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); !errors.Is(got, tt.want) {
				t.Fatalf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifyLeavesCancellationAlone(t *testing.T) {
	t.Parallel()

	got := Classify(fmt.Errorf("generate: %w", context.Canceled))
	if !errors.Is(got, context.Canceled) {
		t.Fatalf("Classify() = %v, want context.Canceled", got)
	}
	if errors.Is(got, contractx.ErrProvider) {
		t.Fatalf("Classify() = %v, cancellation must not count as a provider failure", got)
	}
}

func TestRetryDelayIsCapped(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{Backoff: time.Second, MaxBackoff: 8 * time.Second}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 8 * time.Second}
	for i, w := range want {
		if got := p.delay(i + 1); got != w {
			t.Fatalf("delay(%d) = %v, want %v", i+1, got, w)
		}
	}
}
