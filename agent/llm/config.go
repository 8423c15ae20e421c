package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"

	contractx "github.com/tanpawarit/Chative-Billing-Assistant/agent/contract"
)

const (
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
)

type Config struct {
	Provider         string        `envconfig:"PROVIDER" default:"openrouter"`
	RetryMaxAttempts int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	RetryBackoff     time.Duration `envconfig:"RETRY_BACKOFF" default:"1s"`
	RetryMaxBackoff  time.Duration `envconfig:"RETRY_MAX_BACKOFF" default:"8s"`
}

func (c Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Provider)) {
	case ProviderOpenRouter, ProviderGemini:
	default:
		return fmt.Errorf("%w: unsupported llm provider %q", contractx.ErrValidation, c.Provider)
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("%w: retry attempts must be >= 1", contractx.ErrValidation)
	}
	if c.RetryBackoff < 0 || c.RetryMaxBackoff < 0 {
		return fmt.Errorf("%w: retry backoff must be >= 0", contractx.ErrValidation)
	}
	return nil
}

func (c Config) RetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: c.RetryMaxAttempts,
		Backoff:     c.RetryBackoff,
		MaxBackoff:  c.RetryMaxBackoff,
	}
}

// Builder creates a provider chat model; pkg/openrouter and pkg/gemini
// configs implement it.
type Builder interface {
	New(ctx context.Context) (model.ToolCallingChatModel, error)
}

// Select picks the builder named by c.Provider.
func (c Config) Select(builders map[string]Builder) (Builder, error) {
	name := strings.ToLower(strings.TrimSpace(c.Provider))
	b, ok := builders[name]
	if !ok || b == nil {
		return nil, fmt.Errorf("%w: llm provider %q is not configured", contractx.ErrValidation, name)
	}
	return b, nil
}

// BuilderFunc defers provider configuration until the provider is selected.
type BuilderFunc func(ctx context.Context) (model.ToolCallingChatModel, error)

func (f BuilderFunc) New(ctx context.Context) (model.ToolCallingChatModel, error) {
	return f(ctx)
}
