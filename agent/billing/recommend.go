package billing

import (
	"fmt"
	"strings"
)

const DefaultRecommendMonths = 12

type RecommendationKind string

const (
	RecommendPro          RecommendationKind = "pro"
	RecommendLite         RecommendationKind = "lite"
	RecommendPartialLite  RecommendationKind = "partial_lite"
	RecommendInsufficient RecommendationKind = "insufficient"
)

type Recommendation struct {
	Budget int64              `json:"budget"`
	Months int                `json:"months"`
	Kind   RecommendationKind `json:"kind"`
	// Total is the cost of the recommended plan over Months.
	Total int64 `json:"total,omitempty"`
	// UpgradeMonths is how many of the Lite months fit a Pro upgrade.
	UpgradeMonths int `json:"upgrade_months,omitempty"`
	// AffordableMonths is set for RecommendPartialLite.
	AffordableMonths int `json:"affordable_months,omitempty"`
}

// Recommend picks the best plan mix for budget over months.
func Recommend(budget int64, months int) (Recommendation, error) {
	if budget < 0 {
		return Recommendation{}, fmt.Errorf("budget must not be negative, got %d", budget)
	}
	if months <= 0 {
		months = DefaultRecommendMonths
	}
	if months > MaxMonths {
		return Recommendation{}, fmt.Errorf("months must be at most %d, got %d", MaxMonths, months)
	}
	lite, _ := PlanLite.Price()
	pro, _ := PlanPro.Price()
	liteTotal := lite * int64(months)
	proTotal := pro * int64(months)

	rec := Recommendation{Budget: budget, Months: months}
	switch {
	case budget >= proTotal:
		rec.Kind = RecommendPro
		rec.Total = proTotal
	case budget >= liteTotal:
		rec.Kind = RecommendLite
		rec.Total = liteTotal
		upgrade := (budget - liteTotal) / (pro - lite)
		rec.UpgradeMonths = int(min(upgrade, int64(months)))
	default:
		affordable := budget / lite
		if affordable > 0 {
			rec.Kind = RecommendPartialLite
			rec.AffordableMonths = int(affordable)
		} else {
			rec.Kind = RecommendInsufficient
		}
	}
	return rec, nil
}

func (r Recommendation) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Recommendation for a budget of %s KRW over %d months:\n", won(r.Budget), r.Months)
	switch r.Kind {
	case RecommendPro:
		fmt.Fprintf(&b, "- Pro: all advanced features for %d months (total %s KRW).", r.Months, won(r.Total))
	case RecommendLite:
		fmt.Fprintf(&b, "- Lite: stable basic features for %d months (total %s KRW).", r.Months, won(r.Total))
		if r.UpgradeMonths > 0 {
			fmt.Fprintf(&b, "\n- Hybrid: stay on Lite and upgrade to Pro for %d months during busy projects; this still fits the budget.", r.UpgradeMonths)
		}
	case RecommendPartialLite:
		fmt.Fprintf(&b, "- Lite is affordable for at most %d months; the budget does not cover all %d requested months.", r.AffordableMonths, r.Months)
	case RecommendInsufficient:
		b.WriteString("- The budget does not cover any paid plan; consider the free trial or a larger budget.")
	}
	return b.String()
}
