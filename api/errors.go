package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/tanpawarit/Chative-Billing-Assistant/agent/billing"
	contractx "github.com/tanpawarit/Chative-Billing-Assistant/agent/contract"
	"github.com/tanpawarit/Chative-Billing-Assistant/pkg/errx"
)

const safeMessage = "The request could not be processed. Please try again later."

// classify maps a turn failure to its public category. Internal detail stays
// in Err and is only logged.
func classify(err error) *errx.AppError {
	if appErr, ok := errx.As(err); ok {
		return appErr
	}

	switch {
	case errors.Is(err, context.Canceled):
		return errx.New(err, 499, errx.CodeProcessingError, "The request was cancelled.")
	case errors.Is(err, contractx.ErrValidation):
		return errx.New(err, http.StatusBadRequest, errx.CodeInvalidRequest, "The request is invalid.")
	case errors.Is(err, contractx.ErrProviderRateLimited):
		return errx.New(err, http.StatusTooManyRequests, errx.CodeRateLimited, "The assistant is busy. Please retry shortly.")
	case errors.Is(err, contractx.ErrProviderTimeout):
		return errx.New(err, http.StatusGatewayTimeout, errx.CodeProviderTimeout, "The assistant took too long to answer.")
	case errors.Is(err, contractx.ErrProvider):
		return errx.New(err, http.StatusBadGateway, errx.CodeAPIError, safeMessage)
	case errors.Is(err, contractx.ErrStorage), errors.Is(err, billing.ErrPartialFailure):
		return errx.New(err, http.StatusServiceUnavailable, errx.CodeDatabaseError, safeMessage)
	case errors.Is(err, contractx.ErrEmptyResponse):
		return errx.New(err, http.StatusInternalServerError, errx.CodeEmptyResponse, "The assistant did not produce an answer.")
	default:
		return errx.New(err, http.StatusInternalServerError, errx.CodeProcessingError, safeMessage)
	}
}
