package assistantnode

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Billing-Assistant/agent/contract"
)

// FinalizeReply returns the messages made visible by this turn.
func FinalizeReply(in *GraphState) (GraphOutput, error) {
	if in == nil || in.Thread == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if strings.TrimSpace(in.Final.Content) == "" {
		return GraphOutput{}, contractx.ErrEmptyResponse
	}

	st := in.Thread.State()
	return GraphOutput{
		ThreadID: st.ThreadID,
		Messages: st.Visible(in.StartLen),
		Rounds:   in.Rounds,
	}, nil
}
