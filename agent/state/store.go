package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Billing-Assistant/agent/contract"
)

const (
	defaultThreadKeyPrefix = "billing:thread:"
	maxResponseSizeBytes   = 4 << 20
)

// UpstashOption customizes UpstashBackend.
type UpstashOption func(*UpstashBackend)

func WithKeyPrefix(prefix string) UpstashOption {
	return func(b *UpstashBackend) {
		trimmed := strings.TrimSpace(prefix)
		if trimmed != "" {
			b.keyPrefix = trimmed
		}
	}
}

// WithTTL sets the idle expiry of a thread list. Zero keeps threads forever.
func WithTTL(ttl time.Duration) UpstashOption {
	return func(b *UpstashBackend) {
		b.ttl = ttl
	}
}

func WithHTTPClient(client *http.Client) UpstashOption {
	return func(b *UpstashBackend) {
		if client != nil {
			b.httpClient = client
		}
	}
}

// UpstashBackend stores each thread as a Redis list in Upstash via REST.
type UpstashBackend struct {
	baseURL    string
	token      string
	httpClient *http.Client
	keyPrefix  string
	ttl        time.Duration
}

type restResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

type UpstashConfig struct {
	URL     string        `envconfig:"URL" required:"true"`
	Token   string        `envconfig:"TOKEN" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"10s"`
}

func NewUpstashBackend(cfg UpstashConfig, opts ...UpstashOption) (*UpstashBackend, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("upstash url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid upstash url: %w", err)
	}
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("upstash token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	b := &UpstashBackend{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		keyPrefix:  defaultThreadKeyPrefix,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	if b.ttl < 0 {
		return nil, errors.New("ttl must be >= 0")
	}
	return b, nil
}

func (b *UpstashBackend) Load(ctx context.Context, threadID string) ([]contractx.Message, error) {
	key, err := b.listKey(threadID)
	if err != nil {
		return nil, err
	}

	resp, err := b.exec(ctx, []any{"LRANGE", key, 0, -1})
	if err != nil {
		return nil, storageErr("load thread", err)
	}

	result := bytes.TrimSpace(resp.Result)
	if len(result) == 0 || bytes.Equal(result, []byte("null")) {
		return nil, nil
	}
	var encoded []string
	if err := json.Unmarshal(result, &encoded); err != nil {
		return nil, storageErr("decode thread list", err)
	}
	return decodeMessages(encoded)
}

// Append pushes every message in one RPUSH so the batch lands atomically.
// With a TTL the push and its EXPIRE go out as one multi-exec transaction; a
// failed EXPIRE after a successful push is logged, not returned, because the
// messages are already durable.
func (b *UpstashBackend) Append(ctx context.Context, threadID string, msgs []contractx.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	key, err := b.listKey(threadID)
	if err != nil {
		return err
	}

	push := make([]any, 0, len(msgs)+2)
	push = append(push, "RPUSH", key)
	for _, m := range msgs {
		payload, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal message: %w", err)
		}
		push = append(push, string(payload))
	}

	if b.ttl <= 0 {
		if _, err := b.exec(ctx, push); err != nil {
			return storageErr("append thread", err)
		}
		return nil
	}

	results, err := b.multiExec(ctx, push, []any{"EXPIRE", key, ttlSeconds(b.ttl)})
	if err != nil {
		return storageErr("append thread", err)
	}
	if results[0].Error != "" {
		return storageErr("append thread", errors.New(results[0].Error))
	}
	if results[1].Error != "" {
		log.Warn().
			Str("thread_id", threadID).
			Str("error", results[1].Error).
			Msg("thread ttl not refreshed")
	}
	return nil
}

func (b *UpstashBackend) listKey(threadID string) (string, error) {
	if strings.TrimSpace(threadID) == "" {
		return "", ErrInvalidThread
	}
	return b.keyPrefix + threadID, nil
}

func (b *UpstashBackend) exec(ctx context.Context, command []any) (*restResponse, error) {
	raw, err := b.post(ctx, "", command)
	if err != nil {
		return nil, err
	}
	var parsed restResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != "" {
		return nil, errors.New(parsed.Error)
	}
	return &parsed, nil
}

// multiExec runs commands in one transaction. Per-command errors are left in
// the returned slice, one entry per command.
func (b *UpstashBackend) multiExec(ctx context.Context, commands ...[]any) ([]restResponse, error) {
	raw, err := b.post(ctx, "/multi-exec", commands)
	if err != nil {
		return nil, err
	}
	var parsed []restResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		var single restResponse
		if json.Unmarshal(raw, &single) == nil && single.Error != "" {
			return nil, errors.New(single.Error)
		}
		return nil, fmt.Errorf("decode transaction response: %w", err)
	}
	if len(parsed) != len(commands) {
		return nil, fmt.Errorf("transaction returned %d results for %d commands", len(parsed), len(commands))
	}
	return parsed, nil
}

func (b *UpstashBackend) post(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+b.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("http status=%d body=%s", resp.StatusCode, string(raw))
	}
	return raw, nil
}

func decodeMessages(encoded []string) ([]contractx.Message, error) {
	out := make([]contractx.Message, 0, len(encoded))
	for i, raw := range encoded {
		var m contractx.Message
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, storageErr(fmt.Sprintf("decode message %d", i), err)
		}
		out = append(out, m)
	}
	return out, nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", contractx.ErrStorage, op, err)
}

func ttlSeconds(ttl time.Duration) int64 {
	seconds := ttl / time.Second
	if seconds <= 0 {
		return 1
	}
	if ttl%time.Second != 0 {
		seconds++
	}
	return int64(seconds)
}
