package billing

import (
	"fmt"
	"strings"
)

type Plan string

const (
	PlanLite       Plan = "lite"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

var planAliases = map[string]Plan{
	"lite":       PlanLite,
	"라이트":        PlanLite,
	"pro":        PlanPro,
	"프로":         PlanPro,
	"enterprise": PlanEnterprise,
	"엔터프라이즈":     PlanEnterprise,
}

// monthly list prices in KRW; enterprise is negotiated per contract.
var planPrices = map[Plan]int64{
	PlanLite: 9_900,
	PlanPro:  29_900,
}

// ParsePlan accepts English or Korean plan names, case-insensitively.
func ParsePlan(name string) (Plan, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if p, ok := planAliases[key]; ok {
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPlan, name)
}

// Price returns the monthly price of p; ok is false for plans without a
// fixed price.
func (p Plan) Price() (int64, bool) {
	price, ok := planPrices[p]
	return price, ok
}

func (p Plan) DisplayName() string {
	switch p {
	case PlanLite:
		return "Lite"
	case PlanPro:
		return "Pro"
	case PlanEnterprise:
		return "Enterprise"
	default:
		return string(p)
	}
}
