package assistantnode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Billing-Assistant/agent/contract"
	statex "github.com/tanpawarit/Chative-Billing-Assistant/agent/state"
)

var (
	ErrInvalidMessage = fmt.Errorf("%w: message is empty", contractx.ErrValidation)
	ErrNoSession      = errors.New("thread session is missing")
)

// Thread is the locked thread a turn runs on. *state.Session implements it.
type Thread interface {
	ThreadID() string
	Len() int
	State() statex.ConversationState
	Append(ctx context.Context, msgs ...contractx.Message) error
}

type GraphInput struct {
	Thread Thread
	Text   string
}

type GraphOutput struct {
	ThreadID string
	Messages []contractx.VisibleMessage
	Rounds   int
}

type GraphState struct {
	Thread Thread
	Text   string
	Now    time.Time

	// StartLen is the thread length before this turn's user message.
	StartLen int
	Rounds   int
	Final    contractx.Message
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	if in.Thread == nil {
		return nil, ErrNoSession
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrInvalidMessage
	}
	return &GraphState{
		Thread: in.Thread,
		Text:   text,
		Now:    nowFn().UTC(),
	}, nil
}
