package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/tanpawarit/Chative-Billing-Assistant/agent/billing"
	contractx "github.com/tanpawarit/Chative-Billing-Assistant/agent/contract"
	"github.com/tanpawarit/Chative-Billing-Assistant/agent/llm"
	"github.com/tanpawarit/Chative-Billing-Assistant/pkg/errx"
)

type fakeService struct {
	threadID string
	text     string
	reply    []contractx.VisibleMessage
	err      error
}

func (f *fakeService) HandleMessage(_ context.Context, threadID, text string) ([]contractx.VisibleMessage, error) {
	f.threadID, f.text = threadID, text
	return f.reply, f.err
}

func (f *fakeService) History(_ context.Context, threadID string) ([]contractx.VisibleMessage, error) {
	f.threadID = threadID
	return f.reply, f.err
}

func postChat(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	require.NoError(t, h.Chat(e.NewContext(req, rec)))
	return rec
}

func TestChatReturnsVisibleMessages(t *testing.T) {
	t.Parallel()

	svc := &fakeService{reply: []contractx.VisibleMessage{
		{Role: contractx.RoleUser, Content: "how much did I pay?"},
		{Role: contractx.RoleAssistant, Content: "Total billed: 14,400 KRW"},
	}}
	h := NewHandler(svc, "")

	rec := postChat(t, h, `{"message":"how much did I pay?","thread_id":"t-1"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "t-1", svc.threadID)
	require.Equal(t, "how much did I pay?", svc.text)

	var got []contractx.VisibleMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, svc.reply, got)
}

func TestChatDefaultsThreadID(t *testing.T) {
	t.Parallel()

	svc := &fakeService{}
	rec := postChat(t, NewHandler(svc, ""), `{"message":"hi"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, DefaultThreadID, svc.threadID)
	require.JSONEq(t, `[]`, rec.Body.String())

	svc = &fakeService{}
	postChat(t, NewHandler(svc, "user_123"), `{"message":"hi","thread_id":"  "}`)
	require.Equal(t, "user_123", svc.threadID)
}

func TestChatMalformedBody(t *testing.T) {
	t.Parallel()

	svc := &fakeService{}
	rec := postChat(t, NewHandler(svc, ""), `{"message":`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, svc.text)

	var body errx.Body
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, errx.CodeInvalidRequest, body.ErrorCode)
}

func TestChatErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", fmt.Errorf("%w: empty", contractx.ErrValidation), http.StatusBadRequest, errx.CodeInvalidRequest},
		{"rate limited", fmt.Errorf("%w: 429", contractx.ErrProviderRateLimited), http.StatusTooManyRequests, errx.CodeRateLimited},
		{"timeout", contractx.ErrProviderTimeout, http.StatusGatewayTimeout, errx.CodeProviderTimeout},
		{"provider", fmt.Errorf("%w: 500", contractx.ErrProvider), http.StatusBadGateway, errx.CodeAPIError},
		{"storage", fmt.Errorf("%w: redis down", contractx.ErrStorage), http.StatusServiceUnavailable, errx.CodeDatabaseError},
		{"partial", billing.ErrPartialFailure, http.StatusServiceUnavailable, errx.CodeDatabaseError},
		{"empty", contractx.ErrEmptyResponse, http.StatusInternalServerError, errx.CodeEmptyResponse},
		{"round limit", contractx.ErrRoundLimit, http.StatusInternalServerError, errx.CodeProcessingError},
		{"unknown", errors.New("boom: secret detail"), http.StatusInternalServerError, errx.CodeProcessingError},
		{"canceled model call", llm.Classify(fmt.Errorf("generate: %w", context.Canceled)), 499, errx.CodeProcessingError},
		{"canceled under provider", fmt.Errorf("%w: %w", contractx.ErrProvider, context.Canceled), 499, errx.CodeProcessingError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			rec := postChat(t, NewHandler(&fakeService{err: tc.err}, ""), `{"message":"hi"}`)
			require.Equal(t, tc.status, rec.Code)

			var body errx.Body
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Equal(t, tc.code, body.ErrorCode)
			require.NotEmpty(t, body.Message)
			require.NotContains(t, body.Message, "secret")
		})
	}
}

func TestThreadMessages(t *testing.T) {
	t.Parallel()

	svc := &fakeService{reply: []contractx.VisibleMessage{{Role: contractx.RoleUser, Content: "hi"}}}
	h := NewHandler(svc, "")

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/threads/:thread_id/messages")
	c.SetParamNames("thread_id")
	c.SetParamValues("t-9")

	require.NoError(t, h.ThreadMessages(c))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "t-9", svc.threadID)
	require.JSONEq(t, `[{"role":"user","content":"hi"}]`, rec.Body.String())
}

func TestHealthThroughServer(t *testing.T) {
	t.Parallel()

	e := NewServer(NewHandler(&fakeService{}, ""), ServerConfig{CORSOrigins: []string{"*"}})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
