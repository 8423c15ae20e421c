package assistant

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	nodex "github.com/tanpawarit/Chative-Billing-Assistant/agent/nodes"
)

func (s *Service) compileHandleMessageGraph(
	ctx context.Context,
) (compose.Runnable[nodex.GraphInput, nodex.GraphOutput], error) {
	graph := compose.NewGraph[nodex.GraphInput, nodex.GraphOutput]()

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(ctx context.Context, in nodex.GraphInput) (*nodex.GraphState, error) {
			return nodex.ValidateRequest(in, s.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_request: %w", err)
	}

	if err := graph.AddLambdaNode("seed_thread",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.SeedThread(ctx, in, s.prompt)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node seed_thread: %w", err)
	}

	if err := graph.AddLambdaNode("repair_thread",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.RepairThread(ctx, in, s.graph)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node repair_thread: %w", err)
	}

	if err := graph.AddLambdaNode("append_user_message",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.AppendUserMessage(ctx, in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node append_user_message: %w", err)
	}

	if err := graph.AddLambdaNode("run_rounds",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.RunRounds(ctx, in, s.graph)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node run_rounds: %w", err)
	}

	if err := graph.AddLambdaNode("finalize_reply",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (nodex.GraphOutput, error) {
			return nodex.FinalizeReply(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finalize_reply: %w", err)
	}

	edges := [][2]string{
		{compose.START, "validate_request"},
		{"validate_request", "seed_thread"},
		{"seed_thread", "repair_thread"},
		{"repair_thread", "append_user_message"},
		{"append_user_message", "run_rounds"},
		{"run_rounds", "finalize_reply"},
		{"finalize_reply", compose.END},
	}
	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("assistant.handle_message"))
	if err != nil {
		return nil, fmt.Errorf("compile assistant graph: %w", err)
	}
	return runner, nil
}
