package billing

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

const noDetail = "no detail recorded"

// HistoryReport renders one billing period for the model.
func HistoryReport(r Record) string {
	c := r.Charges
	total := c.Total
	var note string
	if !c.Consistent() {
		// components are the source of truth; recorded total drifted
		log.Warn().
			Str("user_id", r.UserID).
			Str("period", r.PeriodKey).
			Int64("recorded_total", c.Total).
			Int64("computed_total", c.ComputedTotal()).
			Msg("billing record total is inconsistent")
		total = c.ComputedTotal()
		note = fmt.Sprintf(" (recorded total %s KRW was inconsistent and has been recomputed)", won(c.Total))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[Billing details for %s, %s]\n", r.UserID, r.PeriodKey)
	if plan := strings.TrimSpace(r.Subscription.CurrentPlan); plan != "" {
		fmt.Fprintf(&b, "- Plan: %s (%s)\n", plan, r.Subscription.Status)
	}
	fmt.Fprintf(&b, "- Base fee: %s KRW\n", won(c.BaseFee))
	fmt.Fprintf(&b, "- Overage fee: %s KRW (%s)\n", won(c.ExceedFee), orDefault(r.Usage.ExceedReason, noDetail))
	fmt.Fprintf(&b, "- Add-ons / micro-payments: %s KRW (%s)\n", won(c.ExtraFee), orDefault(r.Usage.ExtraReason, noDetail))
	fmt.Fprintf(&b, "- Discount: %s KRW\n", won(c.Discount))
	fmt.Fprintf(&b, "- Total billed: %s KRW%s", won(total), note)
	return b.String()
}

// OverageReport renders the usage log of one billing period.
func OverageReport(r Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[Activity log for %s, %s]\n", r.UserID, r.PeriodKey)

	b.WriteString("- Usage stats: ")
	if len(r.Usage.UsageStats) == 0 {
		b.WriteString("none recorded\n")
	} else {
		keys := make([]string, 0, len(r.Usage.UsageStats))
		for k := range r.Usage.UsageStats {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, r.Usage.UsageStats[k]))
		}
		b.WriteString(strings.Join(parts, ", "))
		b.WriteString("\n")
	}

	b.WriteString("- Active add-ons: ")
	if len(r.Usage.ActiveAddons) == 0 {
		b.WriteString("none recorded\n")
	} else {
		b.WriteString(strings.Join(r.Usage.ActiveAddons, ", "))
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "- Billing notes: %s\n", orDefault(r.Usage.BillingNotes, "nothing unusual"))
	fmt.Fprintf(&b, "- Overage fee: %s KRW (%s)", won(r.Charges.ExceedFee), orDefault(r.Usage.ExceedReason, noDetail))
	return b.String()
}

// ChangeReport renders a plan-change result, including partial failures.
func ChangeReport(res *ChangeResult, err error) string {
	var b strings.Builder
	req := res.Request
	target := req.TargetPlan.DisplayName()

	applied := res.Applied()
	switch {
	case err != nil:
		fmt.Fprintf(&b, "Plan change for [%s] to '%s' was only partially applied.\n", req.UserID, target)
		fmt.Fprintf(&b, "- Updated periods: %s\n", listOrNone(applied))
		fmt.Fprintf(&b, "- Failed periods: %s\n", listOrNone(res.Failed()))
		fmt.Fprintf(&b, "- Not attempted: %s\n", listOrNone(res.Skipped()))
		b.WriteString("The remaining periods need to be retried; do not tell the user the change is complete.")
		return b.String()
	case len(res.Outcomes) == 0:
		fmt.Fprintf(&b, "No billing periods of [%s] matched the requested timing; nothing was changed.", req.UserID)
		return b.String()
	}

	switch req.ApplyMode {
	case ApplyImmediate:
		fmt.Fprintf(&b, "[%s]'s plan was changed immediately from '%s' to '%s' for %s and every later period.",
			req.UserID, res.PreviousPlan, target, res.CurrentPeriod)
	case ApplyFromPeriod:
		fmt.Fprintf(&b, "[%s]'s plan was changed from '%s' to '%s' starting with the %s billing period.",
			req.UserID, res.PreviousPlan, target, req.FromPeriod)
	case ApplyNextPeriod:
		fmt.Fprintf(&b, "[%s]'s plan change from '%s' to '%s' is scheduled from the next billing period; %s stays on the current plan.",
			req.UserID, res.PreviousPlan, target, res.CurrentPeriod)
	}
	fmt.Fprintf(&b, "\n- Updated periods: %s", listOrNone(applied))
	return b.String()
}

func listOrNone(xs []string) string {
	if len(xs) == 0 {
		return "none"
	}
	return strings.Join(xs, ", ")
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
