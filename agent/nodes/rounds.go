package assistantnode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Chative-Billing-Assistant/agent/contract"
	graphx "github.com/tanpawarit/Chative-Billing-Assistant/agent/graph"
)

// RepairThread finishes a tool round left open by an earlier failed turn.
func RepairThread(ctx context.Context, in *GraphState, g *graphx.Graph) (*GraphState, error) {
	if in == nil || in.Thread == nil {
		return nil, fmt.Errorf("%w: graph state is incomplete", contractx.ErrValidation)
	}
	if err := g.Repair(ctx, in.Thread); err != nil {
		return nil, err
	}
	return in, nil
}

func AppendUserMessage(ctx context.Context, in *GraphState) (*GraphState, error) {
	if in == nil || in.Thread == nil {
		return nil, fmt.Errorf("%w: graph state is incomplete", contractx.ErrValidation)
	}
	in.StartLen = in.Thread.Len()
	if err := in.Thread.Append(ctx, contractx.UserMessage(in.Text)); err != nil {
		return nil, err
	}
	return in, nil
}

func RunRounds(ctx context.Context, in *GraphState, g *graphx.Graph) (*GraphState, error) {
	if in == nil || in.Thread == nil {
		return nil, fmt.Errorf("%w: graph state is incomplete", contractx.ErrValidation)
	}
	out, err := g.Run(ctx, in.Thread)
	if err != nil {
		return nil, err
	}
	in.Rounds = out.Rounds
	in.Final = out.Final
	return in, nil
}
