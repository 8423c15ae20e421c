package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Billing-Assistant/agent/contract"
	statex "github.com/tanpawarit/Chative-Billing-Assistant/agent/state"
)

const (
	DefaultMaxRounds    = 8
	DefaultModelTimeout = 60 * time.Second
)

type Phase int

const (
	PhaseModelTurn Phase = iota
	PhaseToolTurn
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseModelTurn:
		return "model_turn"
	case PhaseToolTurn:
		return "tool_turn"
	case PhaseDone:
		return "done"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

type Config struct {
	MaxRounds    int           `envconfig:"MAX_ROUNDS" default:"8"`
	ModelTimeout time.Duration `envconfig:"MODEL_TIMEOUT" default:"60s"`
}

// Thread is the log a run appends to. *state.Session implements it.
type Thread interface {
	ThreadID() string
	State() statex.ConversationState
	Append(ctx context.Context, msgs ...contractx.Message) error
}

// Graph drives one turn: model and tool rounds until the model answers
// without tool calls.
type Graph struct {
	model contractx.ChatModel
	tools contractx.ToolExecutor
	cfg   Config
}

func New(model contractx.ChatModel, tools contractx.ToolExecutor, cfg Config) (*Graph, error) {
	if model == nil {
		return nil, errors.New("chat model is required")
	}
	if tools == nil {
		return nil, errors.New("tool executor is required")
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}
	if cfg.ModelTimeout <= 0 {
		cfg.ModelTimeout = DefaultModelTimeout
	}
	return &Graph{model: model, tools: tools, cfg: cfg}, nil
}

// Outcome summarises a completed run.
type Outcome struct {
	Rounds int
	Final  contractx.Message
}

// Repair answers tool calls left pending by an interrupted run so the next
// model call sees one result per call. It is a no-op on healthy threads.
func (g *Graph) Repair(ctx context.Context, thread Thread) error {
	pending := thread.State().PendingToolCalls()
	if len(pending) == 0 {
		return nil
	}
	log.Warn().
		Str("thread_id", thread.ThreadID()).
		Int("pending_calls", len(pending)).
		Msg("resuming interrupted tool round")
	return g.toolTurn(ctx, thread, pending)
}

// Run starts in ModelTurn on the thread as it stands. Messages appended
// before a failure stay in the thread.
func (g *Graph) Run(ctx context.Context, thread Thread) (Outcome, error) {
	logger := log.With().Str("thread_id", thread.ThreadID()).Logger()

	phase := PhaseModelTurn
	rounds := 0
	var final contractx.Message

	for {
		switch phase {
		case PhaseModelTurn:
			if rounds >= g.cfg.MaxRounds {
				logger.Error().Int("rounds", rounds).Msg("model kept requesting tools")
				return Outcome{Rounds: rounds}, fmt.Errorf("%w: %d rounds", contractx.ErrRoundLimit, rounds)
			}
			rounds++

			reply, err := g.modelTurn(ctx, thread)
			if err != nil {
				return Outcome{Rounds: rounds}, err
			}
			logger.Debug().
				Int("round", rounds).
				Int("tool_calls", len(reply.ToolCalls)).
				Msg("model turn completed")

			if reply.HasToolCalls() {
				phase = PhaseToolTurn
			} else {
				final = reply
				phase = PhaseDone
			}

		case PhaseToolTurn:
			st := thread.State()
			last, _ := st.LastAssistant()
			if err := g.toolTurn(ctx, thread, last.ToolCalls); err != nil {
				return Outcome{Rounds: rounds}, err
			}
			phase = PhaseModelTurn

		case PhaseDone:
			return Outcome{Rounds: rounds, Final: final}, nil

		default:
			return Outcome{Rounds: rounds}, fmt.Errorf("unknown phase %s", phase)
		}
	}
}

func (g *Graph) modelTurn(ctx context.Context, thread Thread) (contractx.Message, error) {
	mctx, cancel := context.WithTimeout(ctx, g.cfg.ModelTimeout)
	defer cancel()

	reply, err := g.model.Generate(mctx, thread.State().Messages)
	if err != nil {
		if !errors.Is(err, contractx.ErrProvider) && errors.Is(mctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w: %w", contractx.ErrProviderTimeout, err)
		}
		return contractx.Message{}, err
	}

	if reply.Role != contractx.RoleAssistant {
		return contractx.Message{}, fmt.Errorf("%w: model replied with role %q", contractx.ErrProvider, reply.Role)
	}
	if !reply.HasToolCalls() && strings.TrimSpace(reply.Content) == "" {
		return contractx.Message{}, contractx.ErrEmptyResponse
	}
	if err := thread.Append(ctx, reply); err != nil {
		return contractx.Message{}, err
	}
	return reply, nil
}

func (g *Graph) toolTurn(ctx context.Context, thread Thread, calls []contractx.ToolCall) error {
	results := g.tools.Execute(ctx, calls)
	if len(results) != len(calls) {
		return fmt.Errorf("tool executor returned %d results for %d calls", len(results), len(calls))
	}

	msgs := make([]contractx.Message, len(calls))
	for i, res := range results {
		// results are matched by position; ids are pinned to the call
		res.ToolCallID = calls[i].ID
		res.Name = calls[i].Name
		msgs[i] = contractx.ToolResultMessage(res)
	}
	return thread.Append(ctx, msgs...)
}
