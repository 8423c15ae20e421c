package assistant

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Billing-Assistant/agent/contract"
	graphx "github.com/tanpawarit/Chative-Billing-Assistant/agent/graph"
	nodex "github.com/tanpawarit/Chative-Billing-Assistant/agent/nodes"
	statex "github.com/tanpawarit/Chative-Billing-Assistant/agent/state"
)

var ErrInvalidMessage = nodex.ErrInvalidMessage

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service handles one user message per call. Turns on the same thread are
// serialized by the thread store; other threads proceed in parallel.
type Service struct {
	threads *statex.ThreadStore
	graph   *graphx.Graph
	prompt  nodex.SystemPrompter

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	now func() time.Time
}

func New(threads *statex.ThreadStore, graph *graphx.Graph, prompt nodex.SystemPrompter, opts ...Option) (*Service, error) {
	if threads == nil {
		return nil, errors.New("thread store is required")
	}
	if graph == nil {
		return nil, errors.New("conversation graph is required")
	}
	if prompt == nil {
		return nil, errors.New("system prompt is required")
	}

	s := &Service{
		threads: threads,
		graph:   graph,
		prompt:  prompt,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	runner, err := s.compileHandleMessageGraph(context.Background())
	if err != nil {
		return nil, err
	}
	s.graphRunner = runner
	return s, nil
}

// HandleMessage runs one turn and returns the messages it made visible.
func (s *Service) HandleMessage(ctx context.Context, threadID, text string) ([]contractx.VisibleMessage, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrInvalidMessage
	}

	sess, err := s.threads.Acquire(ctx, threadID)
	if err != nil {
		return nil, err
	}
	defer sess.Release()

	start := s.now()
	out, err := s.graphRunner.Invoke(ctx, nodex.GraphInput{Thread: sess, Text: text})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("thread_id", out.ThreadID).
		Int("rounds", out.Rounds).
		Dur("elapsed", s.now().Sub(start)).
		Msg("turn completed")
	return out.Messages, nil
}

// History returns the whole visible history of a thread.
func (s *Service) History(ctx context.Context, threadID string) ([]contractx.VisibleMessage, error) {
	st, err := s.threads.Get(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return st.Visible(0), nil
}
