package assistantnode

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Billing-Assistant/agent/contract"
)

// SystemPrompter renders the system message of a new thread.
type SystemPrompter interface {
	Render(ctx context.Context, now time.Time) (contractx.Message, error)
}

// SeedThread writes the system prompt as the first message of a new thread.
func SeedThread(ctx context.Context, in *GraphState, prompt SystemPrompter) (*GraphState, error) {
	if in == nil || in.Thread == nil {
		return nil, fmt.Errorf("%w: graph state is incomplete", contractx.ErrValidation)
	}
	if in.Thread.Len() > 0 {
		return in, nil
	}

	sys, err := prompt.Render(ctx, in.Now)
	if err != nil {
		return nil, err
	}
	if err := in.Thread.Append(ctx, sys); err != nil {
		return nil, err
	}
	log.Debug().Str("thread_id", in.Thread.ThreadID()).Msg("new thread seeded with system prompt")
	return in, nil
}
