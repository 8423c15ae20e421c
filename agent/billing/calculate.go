package billing

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// MaxMonths bounds every month count so price*months cannot overflow.
const MaxMonths = 1200

type PlanUsage struct {
	Plan   string `json:"plan"`
	Months int    `json:"months"`
}

type EstimateLine struct {
	Plan         Plan  `json:"plan"`
	Months       int   `json:"months"`
	MonthlyPrice int64 `json:"monthly_price,omitempty"`
	Subtotal     int64 `json:"subtotal"`
	// Negotiated lines have no list price and are excluded from Total.
	Negotiated bool `json:"negotiated,omitempty"`
}

type Estimate struct {
	Lines []EstimateLine `json:"lines"`
	Total int64          `json:"total"`
}

// Calculate prices a list of plan usages. Total is the sum of the line
// subtotals; enterprise lines are reported but not priced.
func Calculate(usages []PlanUsage) (Estimate, error) {
	if len(usages) == 0 {
		return Estimate{}, fmt.Errorf("at least one plan usage is required")
	}
	est := Estimate{Lines: make([]EstimateLine, 0, len(usages))}
	for i, u := range usages {
		plan, err := ParsePlan(u.Plan)
		if err != nil {
			return Estimate{}, fmt.Errorf("line %d: %w", i+1, err)
		}
		if u.Months <= 0 || u.Months > MaxMonths {
			return Estimate{}, fmt.Errorf("line %d: months must be between 1 and %d, got %d", i+1, MaxMonths, u.Months)
		}
		line := EstimateLine{Plan: plan, Months: u.Months}
		if price, ok := plan.Price(); ok {
			line.MonthlyPrice = price
			line.Subtotal = price * int64(u.Months)
			est.Total += line.Subtotal
		} else {
			line.Negotiated = true
		}
		est.Lines = append(est.Lines, line)
	}
	return est, nil
}

func (e Estimate) String() string {
	var b strings.Builder
	b.WriteString("[Billing estimate]\n")
	for _, l := range e.Lines {
		if l.Negotiated {
			fmt.Fprintf(&b, "- %s %d months: contact sales (enterprise pricing)\n", l.Plan.DisplayName(), l.Months)
			continue
		}
		fmt.Fprintf(&b, "- %s (%s KRW/month) x %d months = %s KRW\n",
			l.Plan.DisplayName(), won(l.MonthlyPrice), l.Months, won(l.Subtotal))
	}
	fmt.Fprintf(&b, "\nTotal: %s KRW", won(e.Total))
	return b.String()
}

func won(v int64) string {
	return humanize.Comma(v)
}
