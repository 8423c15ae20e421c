package contract

import "errors"

var (
	ErrProvider            = errors.New("model provider failed")
	ErrProviderRateLimited = &providerError{msg: "model provider rate limited"}
	ErrProviderTimeout     = &providerError{msg: "model provider timed out"}

	ErrStorage          = errors.New("storage operation failed")
	ErrUnknownTool      = errors.New("unknown tool")
	ErrInvalidArguments = errors.New("invalid tool arguments")
	ErrEmptyResponse    = errors.New("model produced no answer")
	ErrRoundLimit       = errors.New("round limit exceeded")
	ErrValidation       = errors.New("validation failed")
)

// providerError is a retryable subtype of ErrProvider.
type providerError struct {
	msg string
}

func (e *providerError) Error() string {
	return e.msg
}

func (e *providerError) Is(target error) bool {
	return target == ErrProvider
}

// IsRetryable reports whether err is a provider condition worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrProviderRateLimited) || errors.Is(err, ErrProviderTimeout)
}
