package billing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const unknownPlan = "unknown"

// ChangeRequest asks for userID to move to TargetPlan under ApplyMode.
// FromPeriod is required for ApplyFromPeriod and ignored otherwise.
type ChangeRequest struct {
	UserID     string    `json:"user_id"`
	TargetPlan Plan      `json:"target_plan"`
	ApplyMode  ApplyMode `json:"apply_mode"`
	FromPeriod string    `json:"from_period,omitempty"`
}

// Normalize resolves TargetPlan aliases to the canonical plan, trims the
// string fields and validates the result.
func (r ChangeRequest) Normalize() (ChangeRequest, error) {
	plan, err := ParsePlan(string(r.TargetPlan))
	if err != nil {
		return r, err
	}
	r.TargetPlan = plan
	r.UserID = strings.TrimSpace(r.UserID)
	r.FromPeriod = strings.TrimSpace(r.FromPeriod)
	return r, r.Validate()
}

// Validate accepts only canonical plans; use Normalize for user input.
func (r ChangeRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user id is required")
	}
	switch r.TargetPlan {
	case PlanLite, PlanPro, PlanEnterprise:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPlan, r.TargetPlan)
	}
	switch r.ApplyMode {
	case ApplyImmediate, ApplyNextPeriod:
		return nil
	case ApplyFromPeriod:
		return ValidatePeriodKey(r.FromPeriod)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidApplyMode, r.ApplyMode)
	}
}

type UpdateKind string

const (
	// UpdatePlan moves the period to the target plan and recomputes charges.
	UpdatePlan UpdateKind = "plan"
	// UpdatePending only marks the current period as pending a change.
	UpdatePending UpdateKind = "pending"
)

type OutcomeStatus string

const (
	OutcomeApplied OutcomeStatus = "applied"
	OutcomeFailed  OutcomeStatus = "failed"
	OutcomeSkipped OutcomeStatus = "skipped"
)

// PeriodOutcome reports what happened to one selected period.
type PeriodOutcome struct {
	PeriodKey string        `json:"period_key"`
	Kind      UpdateKind    `json:"kind"`
	Status    OutcomeStatus `json:"status"`
	Charges   *Charges      `json:"charges,omitempty"`
	Err       error         `json:"-"`
}

type ChangeResult struct {
	Request       ChangeRequest   `json:"request"`
	CurrentPeriod string          `json:"current_period"`
	PreviousPlan  string          `json:"previous_plan"`
	Change        ChangeRecord    `json:"change"`
	Outcomes      []PeriodOutcome `json:"outcomes"`
}

func (r *ChangeResult) periodsWith(status OutcomeStatus) []string {
	var out []string
	for _, o := range r.Outcomes {
		if o.Status == status {
			out = append(out, o.PeriodKey)
		}
	}
	return out
}

func (r *ChangeResult) Applied() []string { return r.periodsWith(OutcomeApplied) }
func (r *ChangeResult) Failed() []string  { return r.periodsWith(OutcomeFailed) }
func (r *ChangeResult) Skipped() []string { return r.periodsWith(OutcomeSkipped) }

// AuditSink receives every plan-change result, complete or partial.
type AuditSink interface {
	PublishPlanChange(ctx context.Context, res *ChangeResult) error
}

type EngineOption func(*Engine)

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithAuditSink(sink AuditSink) EngineOption {
	return func(e *Engine) {
		e.audit = sink
	}
}

// Engine translates a ChangeRequest into per-period record updates.
type Engine struct {
	store RecordStore
	audit AuditSink
	now   func() time.Time
}

func NewEngine(store RecordStore, opts ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, errors.New("record store is required")
	}
	e := &Engine{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e, nil
}

type plannedUpdate struct {
	record Record
	kind   UpdateKind
}

// selectUpdates applies the apply-mode selection rule to records, returning
// updates in ascending period order.
func selectUpdates(records []Record, req ChangeRequest, currentPeriod string) []plannedUpdate {
	sorted := append([]Record(nil), records...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PeriodKey < sorted[j].PeriodKey })

	var out []plannedUpdate
	for _, r := range sorted {
		switch req.ApplyMode {
		case ApplyImmediate:
			if r.PeriodKey >= currentPeriod {
				out = append(out, plannedUpdate{record: r, kind: UpdatePlan})
			}
		case ApplyNextPeriod:
			switch {
			case r.PeriodKey > currentPeriod:
				out = append(out, plannedUpdate{record: r, kind: UpdatePlan})
			case r.PeriodKey == currentPeriod:
				out = append(out, plannedUpdate{record: r, kind: UpdatePending})
			}
		case ApplyFromPeriod:
			if r.PeriodKey >= req.FromPeriod {
				out = append(out, plannedUpdate{record: r, kind: UpdatePlan})
			}
		}
	}
	return out
}

// buildPatch computes the new subscription info and charges for one period.
func buildPatch(u plannedUpdate, req ChangeRequest, change ChangeRecord) RecordPatch {
	sub := u.record.Subscription
	sub.ChangeHistory = append(append([]ChangeRecord(nil), sub.ChangeHistory...), change)
	sub.UpdatedAt = change.ChangedAt

	if u.kind == UpdatePending {
		// the plan itself stays until the next period starts
		sub.Status = StatusPendingChange
		sub.ApplyMode = req.ApplyMode
		return RecordPatch{Subscription: sub}
	}

	sub.CurrentPlan = string(req.TargetPlan)
	sub.Status = StatusActive
	sub.ApplyMode = req.ApplyMode

	price, fixed := req.TargetPlan.Price()
	if !fixed {
		return RecordPatch{Subscription: sub}
	}
	charges := u.record.Charges
	charges.BaseFee = price
	charges.Total = charges.ComputedTotal()
	return RecordPatch{Subscription: sub, Charges: &charges}
}

// Apply executes req. Periods are updated one at a time in ascending order;
// the first failure stops the batch, earlier updates stay applied, and the
// returned error wraps ErrPartialFailure. The result is returned whenever
// records were loaded, including on partial failure.
func (e *Engine) Apply(ctx context.Context, req ChangeRequest) (*ChangeResult, error) {
	req, err := req.Normalize()
	if err != nil {
		return nil, err
	}

	records, err := e.store.GetRecords(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("load billing records: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: user=%s", ErrNoRecordsFound, req.UserID)
	}

	now := e.now().UTC()
	currentPeriod := PeriodKeyOf(now)

	previousPlan := unknownPlan
	for _, r := range records {
		if r.PeriodKey == currentPeriod && strings.TrimSpace(r.Subscription.CurrentPlan) != "" {
			previousPlan = r.Subscription.CurrentPlan
			break
		}
	}

	change := ChangeRecord{
		ChangedAt:    now,
		PreviousPlan: previousPlan,
		TargetPlan:   string(req.TargetPlan),
		ApplyMode:    req.ApplyMode,
	}
	res := &ChangeResult{
		Request:       req,
		CurrentPeriod: currentPeriod,
		PreviousPlan:  previousPlan,
		Change:        change,
	}

	var firstErr error
	for _, u := range selectUpdates(records, req, currentPeriod) {
		outcome := PeriodOutcome{PeriodKey: u.record.PeriodKey, Kind: u.kind}
		if firstErr != nil {
			outcome.Status = OutcomeSkipped
			res.Outcomes = append(res.Outcomes, outcome)
			continue
		}

		patch := buildPatch(u, req, change)
		if err := e.store.UpdateRecord(ctx, req.UserID, u.record.PeriodKey, patch); err != nil {
			outcome.Status = OutcomeFailed
			outcome.Err = err
			firstErr = fmt.Errorf("update period %s: %w", u.record.PeriodKey, err)
			log.Error().Err(err).
				Str("user_id", req.UserID).
				Str("period", u.record.PeriodKey).
				Msg("plan change update failed")
		} else {
			outcome.Status = OutcomeApplied
			outcome.Charges = patch.Charges
		}
		res.Outcomes = append(res.Outcomes, outcome)
	}

	e.publish(ctx, res)

	if firstErr != nil {
		return res, fmt.Errorf("%w: applied=%v: %w", ErrPartialFailure, res.Applied(), firstErr)
	}

	log.Info().
		Str("user_id", req.UserID).
		Str("target_plan", string(req.TargetPlan)).
		Str("apply_mode", string(req.ApplyMode)).
		Strs("periods", res.Applied()).
		Msg("plan change applied")
	return res, nil
}

func (e *Engine) publish(ctx context.Context, res *ChangeResult) {
	if e.audit == nil {
		return
	}
	if err := e.audit.PublishPlanChange(ctx, res); err != nil {
		log.Warn().Err(err).Str("user_id", res.Request.UserID).Msg("publish plan change audit failed")
	}
}
