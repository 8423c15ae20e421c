package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Publisher delivers a JSON payload to a message destination.
type Publisher interface {
	Publish(ctx context.Context, destination string, body []byte) error
}

type changeAuditEvent struct {
	Type     string           `json:"type"`
	Result   *ChangeResult    `json:"result"`
	Failures []failureSummary `json:"failures,omitempty"`
}

type failureSummary struct {
	PeriodKey string `json:"period_key"`
	Error     string `json:"error"`
}

// PublisherAudit forwards plan-change results to a Publisher.
type PublisherAudit struct {
	publisher   Publisher
	destination string
}

func NewPublisherAudit(publisher Publisher, destination string) (*PublisherAudit, error) {
	if publisher == nil {
		return nil, errors.New("audit publisher is required")
	}
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return nil, errors.New("audit destination is required")
	}
	return &PublisherAudit{publisher: publisher, destination: destination}, nil
}

func (a *PublisherAudit) PublishPlanChange(ctx context.Context, res *ChangeResult) error {
	if res == nil {
		return nil
	}
	evt := changeAuditEvent{Type: "billing.plan_change", Result: res}
	for _, o := range res.Outcomes {
		if o.Err != nil {
			evt.Failures = append(evt.Failures, failureSummary{PeriodKey: o.PeriodKey, Error: o.Err.Error()})
		}
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal plan change audit: %w", err)
	}
	return a.publisher.Publish(ctx, a.destination, body)
}
