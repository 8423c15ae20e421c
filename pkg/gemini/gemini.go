package gemini

import (
	"context"
	"fmt"
	"strings"

	geminimodel "github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"
)

type Config struct {
	APIKey         string  `envconfig:"API_KEY" required:"true"`
	BaseURL        string  `envconfig:"BASE_URL"`
	Model          string  `envconfig:"MODEL" default:"gemini-2.5-flash"`
	Temperature    float32 `envconfig:"TEMPERATURE" default:"0.2"`
	MaxTokens      int     `envconfig:"MAX_TOKENS" default:"2000"`
	ThinkingBudget int32   `envconfig:"THINKING_BUDGET" default:"0"`
}

// New builds a Gemini chat model over the Gemini API backend.
func (c *Config) New(ctx context.Context) (model.ToolCallingChatModel, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(c.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if c.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = strings.TrimSpace(c.BaseURL)
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	conf := &geminimodel.Config{
		Client:      client,
		Model:       strings.TrimSpace(c.Model),
		Temperature: &c.Temperature,
		MaxTokens:   &c.MaxTokens,
	}
	if c.ThinkingBudget > 0 {
		conf.ThinkingConfig = &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr(c.ThinkingBudget),
		}
	}

	m, err := geminimodel.NewChatModel(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("gemini: create chat model: %w", err)
	}
	return m, nil
}
