package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"google.golang.org/genai"

	contractx "github.com/tanpawarit/Chative-Billing-Assistant/agent/contract"
)

// Classify maps a raw provider error onto the contract taxonomy. Errors
// already carrying a contract sentinel pass through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, contractx.ErrProvider) {
		return err
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", contractx.ErrProviderTimeout, err)
	case errors.Is(err, context.Canceled):
		// the caller went away; not a provider fault
		return err
	}

	if status := statusCode(err); status != 0 {
		switch {
		case status == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %w", contractx.ErrProviderRateLimited, err)
		case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
			return fmt.Errorf("%w: %w", contractx.ErrProviderTimeout, err)
		default:
			return fmt.Errorf("%w: status=%d: %w", contractx.ErrProvider, status, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", contractx.ErrProviderTimeout, err)
	}

	// eino-ext wraps provider SDK errors as text; fall back to the message.
	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "429", "rate limit", "too many requests", "resource_exhausted", "quota"):
		return fmt.Errorf("%w: %w", contractx.ErrProviderRateLimited, err)
	case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return fmt.Errorf("%w: %w", contractx.ErrProviderTimeout, err)
	default:
		return fmt.Errorf("%w: %w", contractx.ErrProvider, err)
	}
}

func statusCode(err error) int {
	var oaErr *openaisdk.Error
	if errors.As(err, &oaErr) {
		return oaErr.StatusCode
	}
	var gErr genai.APIError
	if errors.As(err, &gErr) {
		return gErr.Code
	}
	var gErrPtr *genai.APIError
	if errors.As(err, &gErrPtr) && gErrPtr != nil {
		return gErrPtr.Code
	}
	return 0
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
