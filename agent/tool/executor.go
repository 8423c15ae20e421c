package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"

	contractx "github.com/tanpawarit/Chative-Billing-Assistant/agent/contract"
)

type ExecutorOption func(*Executor)

// WithConcurrency bounds parallel dispatch within one round. Values <= 1 run
// calls sequentially.
func WithConcurrency(n int) ExecutorOption {
	return func(e *Executor) {
		e.concurrency = n
	}
}

// Executor runs the tool calls of one assistant message against a Registry.
// It never fails as a whole: every call yields exactly one result, in call
// order, and failures are reported as result text.
type Executor struct {
	registry    *Registry
	concurrency int
}

func NewExecutor(registry *Registry, opts ...ExecutorOption) (*Executor, error) {
	if registry == nil {
		return nil, errors.New("tool registry is required")
	}
	e := &Executor{registry: registry, concurrency: 1}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e, nil
}

func (e *Executor) Execute(ctx context.Context, calls []contractx.ToolCall) []contractx.ToolResult {
	results := make([]contractx.ToolResult, len(calls))
	if len(calls) == 0 {
		return results
	}

	if e.concurrency <= 1 || len(calls) == 1 {
		for i, call := range calls {
			results[i] = e.run(ctx, call)
		}
		return results
	}

	p := pool.New().WithMaxGoroutines(e.concurrency)
	for i, call := range calls {
		p.Go(func() {
			results[i] = e.run(ctx, call)
		})
	}
	p.Wait()
	return results
}

func (e *Executor) run(ctx context.Context, call contractx.ToolCall) contractx.ToolResult {
	res := contractx.ToolResult{ToolCallID: call.ID, Name: call.Name}
	logger := log.With().Str("tool", call.Name).Str("tool_call_id", call.ID).Logger()

	handler, ok := e.registry.Lookup(call.Name)
	if !ok {
		logger.Warn().Msg("model requested an unknown tool")
		res.Content = fmt.Sprintf("Error: %v %q. Available tools: %s.",
			contractx.ErrUnknownTool, call.Name, strings.Join(e.registry.Names(), ", "))
		res.Failed = true
		return res
	}

	var (
		out string
		err error
	)
	var catcher panics.Catcher
	catcher.Try(func() {
		out, err = handler(ctx, call.Arguments)
	})
	if rec := catcher.Recovered(); rec != nil {
		logger.Error().Interface("panic", rec.Value).Bytes("stack", rec.Stack).Msg("tool panicked")
		err = fmt.Errorf("tool crashed: %v", rec.Value)
	}

	if err != nil {
		logger.Warn().Err(err).Msg("tool call failed")
		res.Content = failureText(call.Name, err)
		res.Failed = true
		return res
	}

	logger.Debug().Int("output_len", len(out)).Msg("tool call completed")
	res.Content = out
	return res
}

func failureText(name string, err error) string {
	switch {
	case errors.Is(err, contractx.ErrInvalidArguments):
		return fmt.Sprintf("Error: %s was called with invalid arguments: %v", name, err)
	case errors.Is(err, contractx.ErrStorage):
		return fmt.Sprintf("Error: %s could not reach the billing database. Please try again later.", name)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Sprintf("Error: %s did not finish in time.", name)
	default:
		return fmt.Sprintf("Error: %s failed: %v", name, err)
	}
}
