package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/tanpawarit/Chative-Billing-Assistant/agent/billing"
)

const (
	ToolCalculateBilling    = "calculate_billing"
	ToolFetchBillingHistory = "fetch_billing_history"
	ToolAnalyzeOverageCause = "analyze_overage_cause"
	ToolRecommendPlan       = "recommend_plan_by_budget"
	ToolChangeSubscription  = "change_subscription_plan"
)

// BillingDeps are the collaborators of the billing tool set.
type BillingDeps struct {
	Records       billing.RecordStore
	Engine        *billing.Engine
	DefaultUserID string
}

type calculateArgs struct {
	Plans []planUsageArg `json:"plans"`
}

type planUsageArg struct {
	Plan   string `json:"plan"`
	Months int    `json:"months"`
}

func (a calculateArgs) Validate() error {
	if len(a.Plans) == 0 {
		return errors.New("plans must contain at least one entry")
	}
	for i, p := range a.Plans {
		if strings.TrimSpace(p.Plan) == "" {
			return fmt.Errorf("plans[%d].plan is required", i)
		}
		if p.Months <= 0 || p.Months > billing.MaxMonths {
			return fmt.Errorf("plans[%d].months must be between 1 and %d", i, billing.MaxMonths)
		}
	}
	return nil
}

type periodArgs struct {
	UserID string `json:"user_id"`
	Period string `json:"period"`
}

func (a periodArgs) Validate() error {
	return billing.ValidatePeriodKey(strings.TrimSpace(a.Period))
}

type recommendArgs struct {
	Budget int64 `json:"budget"`
	Months int   `json:"months"`
}

func (a recommendArgs) Validate() error {
	if a.Budget <= 0 {
		return errors.New("budget must be positive")
	}
	if a.Months < 0 || a.Months > billing.MaxMonths {
		return fmt.Errorf("months must be between 0 and %d", billing.MaxMonths)
	}
	return nil
}

type changeArgs struct {
	UserID     string `json:"user_id"`
	TargetPlan string `json:"target_plan"`
	ApplyMode  string `json:"apply_mode"`
	FromPeriod string `json:"from_period"`
}

func (a changeArgs) Validate() error {
	if strings.TrimSpace(a.TargetPlan) == "" {
		return errors.New("target_plan is required")
	}
	if strings.TrimSpace(a.ApplyMode) == "" {
		return errors.New("apply_mode is required")
	}
	return nil
}

// RegisterBillingTools registers the five billing tools on r.
func RegisterBillingTools(r *Registry, deps BillingDeps) error {
	if deps.Records == nil {
		return errors.New("billing record store is required")
	}
	if deps.Engine == nil {
		return errors.New("plan change engine is required")
	}
	t := &billingTools{deps: deps}

	if err := RegisterTyped(r, calculateInfo, t.calculate); err != nil {
		return err
	}
	if err := RegisterTyped(r, historyInfo, t.fetchHistory); err != nil {
		return err
	}
	if err := RegisterTyped(r, overageInfo, t.analyzeOverage); err != nil {
		return err
	}
	if err := RegisterTyped(r, recommendInfo, t.recommend); err != nil {
		return err
	}
	return RegisterTyped(r, changeInfo, t.changePlan)
}

type billingTools struct {
	deps BillingDeps
}

func (t *billingTools) userID(id string) string {
	if trimmed := strings.TrimSpace(id); trimmed != "" {
		return trimmed
	}
	return t.deps.DefaultUserID
}

func (t *billingTools) calculate(_ context.Context, args calculateArgs) (string, error) {
	usages := make([]billing.PlanUsage, 0, len(args.Plans))
	for _, p := range args.Plans {
		usages = append(usages, billing.PlanUsage{Plan: p.Plan, Months: p.Months})
	}
	est, err := billing.Calculate(usages)
	if err != nil {
		return "", err
	}
	return est.String(), nil
}

func (t *billingTools) loadRecord(ctx context.Context, args periodArgs) (*billing.Record, string, error) {
	userID := t.userID(args.UserID)
	period := strings.TrimSpace(args.Period)
	r, err := t.deps.Records.GetRecord(ctx, userID, period)
	if errors.Is(err, billing.ErrRecordNotFound) {
		return nil, fmt.Sprintf("No billing record was found for [%s] in %s.", userID, period), nil
	}
	if err != nil {
		return nil, "", err
	}
	return r, "", nil
}

func (t *billingTools) fetchHistory(ctx context.Context, args periodArgs) (string, error) {
	r, missing, err := t.loadRecord(ctx, args)
	if err != nil || r == nil {
		return missing, err
	}
	return billing.HistoryReport(*r), nil
}

func (t *billingTools) analyzeOverage(ctx context.Context, args periodArgs) (string, error) {
	r, missing, err := t.loadRecord(ctx, args)
	if err != nil || r == nil {
		return missing, err
	}
	return billing.OverageReport(*r), nil
}

func (t *billingTools) recommend(_ context.Context, args recommendArgs) (string, error) {
	rec, err := billing.Recommend(args.Budget, args.Months)
	if err != nil {
		return "", err
	}
	return rec.String(), nil
}

func (t *billingTools) changePlan(ctx context.Context, args changeArgs) (string, error) {
	plan, err := billing.ParsePlan(args.TargetPlan)
	if err != nil {
		return "", err
	}
	mode, err := billing.ParseApplyMode(strings.TrimSpace(args.ApplyMode))
	if err != nil {
		return "", err
	}
	req := billing.ChangeRequest{
		UserID:     t.userID(args.UserID),
		TargetPlan: plan,
		ApplyMode:  mode,
		FromPeriod: strings.TrimSpace(args.FromPeriod),
	}

	res, err := t.deps.Engine.Apply(ctx, req)
	switch {
	case errors.Is(err, billing.ErrNoRecordsFound):
		return fmt.Sprintf("No billing records exist for [%s]; the plan was not changed.", req.UserID), nil
	case errors.Is(err, billing.ErrPartialFailure) && res != nil:
		return billing.ChangeReport(res, err), nil
	case err != nil:
		return "", err
	}
	return billing.ChangeReport(res, nil), nil
}

var calculateInfo = &schema.ToolInfo{
	Name: ToolCalculateBilling,
	Desc: "Estimate the total cost of one or more plans over a number of months. Enterprise is priced by sales and excluded from the total.",
	ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
		"plans": {
			Type:     schema.Array,
			Desc:     "Plans and their usage months",
			Required: true,
			ElemInfo: &schema.ParameterInfo{
				Type: schema.Object,
				SubParams: map[string]*schema.ParameterInfo{
					"plan":   {Type: schema.String, Desc: "Plan name: Lite, Pro or Enterprise", Required: true},
					"months": {Type: schema.Integer, Desc: "Number of months", Required: true},
				},
			},
		},
	}),
}

var historyInfo = &schema.ToolInfo{
	Name: ToolFetchBillingHistory,
	Desc: "Fetch the billing breakdown of a user for one billing month.",
	ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
		"user_id": {Type: schema.String, Desc: "User id; defaults to the authenticated user"},
		"period":  {Type: schema.String, Desc: "Billing month in YYYY-MM format", Required: true},
	}),
}

var overageInfo = &schema.ToolInfo{
	Name: ToolAnalyzeOverageCause,
	Desc: "Explain why a user was charged overage or extra fees in a billing month, using usage statistics and add-ons.",
	ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
		"user_id": {Type: schema.String, Desc: "User id; defaults to the authenticated user"},
		"period":  {Type: schema.String, Desc: "Billing month in YYYY-MM format", Required: true},
	}),
}

var recommendInfo = &schema.ToolInfo{
	Name: ToolRecommendPlan,
	Desc: "Recommend a plan that fits a total budget over a number of months.",
	ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
		"budget": {Type: schema.Integer, Desc: "Total budget in KRW", Required: true},
		"months": {Type: schema.Integer, Desc: "Usage period in months, default 12"},
	}),
}

var changeInfo = &schema.ToolInfo{
	Name: ToolChangeSubscription,
	Desc: "Change a user's subscription plan. Only call this after the user explicitly confirmed the target plan and timing.",
	ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
		"user_id":     {Type: schema.String, Desc: "User id; defaults to the authenticated user"},
		"target_plan": {Type: schema.String, Desc: "Target plan", Enum: []string{"Lite", "Pro", "Enterprise"}, Required: true},
		"apply_mode": {
			Type:     schema.String,
			Desc:     "immediate: this month onward; next_billing: from next month; specific_month: from from_period",
			Enum:     []string{string(billing.ApplyImmediate), string(billing.ApplyNextPeriod), string(billing.ApplyFromPeriod)},
			Required: true,
		},
		"from_period": {Type: schema.String, Desc: "First billing month (YYYY-MM) when apply_mode is specific_month"},
	}),
}
