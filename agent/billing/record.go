package billing

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

var (
	ErrUnknownPlan      = errors.New("unknown plan")
	ErrInvalidApplyMode = errors.New("invalid apply mode")
	ErrInvalidPeriod    = errors.New("invalid period key")
	ErrNoRecordsFound   = errors.New("no billing records found")
	ErrRecordNotFound   = errors.New("billing record not found")
	ErrPartialFailure   = errors.New("plan change partially applied")
)

var periodKeyPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// ValidatePeriodKey checks the YYYY-MM form. Lexical order of valid keys is
// chronological order.
func ValidatePeriodKey(key string) error {
	if !periodKeyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q (want YYYY-MM)", ErrInvalidPeriod, key)
	}
	return nil
}

// PeriodKeyOf formats t as a period key.
func PeriodKeyOf(t time.Time) string {
	return t.Format("2006-01")
}

type SubscriptionStatus string

const (
	StatusActive        SubscriptionStatus = "active"
	StatusPendingChange SubscriptionStatus = "pending_change"
)

type ApplyMode string

const (
	ApplyImmediate  ApplyMode = "immediate"
	ApplyNextPeriod ApplyMode = "next_billing"
	ApplyFromPeriod ApplyMode = "specific_month"
)

// ParseApplyMode accepts the wire names plus a few spellings models tend to
// produce.
func ParseApplyMode(s string) (ApplyMode, error) {
	switch s {
	case "immediate", "Immediate":
		return ApplyImmediate, nil
	case "next_billing", "next_period", "NextPeriod":
		return ApplyNextPeriod, nil
	case "specific_month", "from_period", "FromPeriod":
		return ApplyFromPeriod, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidApplyMode, s)
	}
}

type ChangeRecord struct {
	ChangedAt    time.Time `json:"changed_at"`
	PreviousPlan string    `json:"previous_plan"`
	TargetPlan   string    `json:"target_plan"`
	ApplyMode    ApplyMode `json:"apply_type"`
}

type SubscriptionInfo struct {
	CurrentPlan   string             `json:"current_plan"`
	Status        SubscriptionStatus `json:"status"`
	ApplyMode     ApplyMode          `json:"apply_type,omitempty"`
	UpdatedAt     time.Time          `json:"updated_at,omitempty"`
	ChangeHistory []ChangeRecord     `json:"change_history,omitempty"`
}

// Charges are whole KRW. Discount is stored as a negative amount.
type Charges struct {
	BaseFee   int64 `json:"base_fee"`
	ExceedFee int64 `json:"exceed_fee"`
	ExtraFee  int64 `json:"extra_fee"`
	Discount  int64 `json:"discount"`
	Total     int64 `json:"total"`
}

func (c Charges) ComputedTotal() int64 {
	return c.BaseFee + c.ExceedFee + c.ExtraFee + c.Discount
}

func (c Charges) Consistent() bool {
	return c.Total == c.ComputedTotal()
}

// Usage carries the log-like details used to explain overage.
type Usage struct {
	ExceedReason string         `json:"exceed_reason,omitempty"`
	ExtraReason  string         `json:"extra_reason,omitempty"`
	UsageStats   map[string]any `json:"usage_stats,omitempty"`
	ActiveAddons []string       `json:"active_addons,omitempty"`
	BillingNotes string         `json:"billing_notes,omitempty"`
}

// Record is one user's billing period.
type Record struct {
	UserID       string           `json:"user_id"`
	PeriodKey    string           `json:"billing_month"`
	Subscription SubscriptionInfo `json:"subscription_info"`
	Charges      Charges          `json:"charges"`
	Usage        Usage            `json:"usage"`
}

func (r Record) Clone() Record {
	out := r
	if r.Subscription.ChangeHistory != nil {
		out.Subscription.ChangeHistory = append([]ChangeRecord(nil), r.Subscription.ChangeHistory...)
	}
	if r.Usage.ActiveAddons != nil {
		out.Usage.ActiveAddons = append([]string(nil), r.Usage.ActiveAddons...)
	}
	if r.Usage.UsageStats != nil {
		out.Usage.UsageStats = make(map[string]any, len(r.Usage.UsageStats))
		for k, v := range r.Usage.UsageStats {
			out.Usage.UsageStats[k] = v
		}
	}
	return out
}

// RecordPatch is the per-record mutation issued by the plan-change engine.
// A nil Charges leaves the stored charges untouched.
type RecordPatch struct {
	Subscription SubscriptionInfo
	Charges      *Charges
}
