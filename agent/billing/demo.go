package billing

import "time"

// DemoRecords builds three months of history for userID ending with the
// period that contains now, plus next period's open record. It seeds the
// in-process store when no database is configured.
func DemoRecords(userID string, now time.Time) []Record {
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	period := func(offset int) string {
		return PeriodKeyOf(month.AddDate(0, offset, 0))
	}
	lite := func() SubscriptionInfo {
		return SubscriptionInfo{CurrentPlan: string(PlanLite), Status: StatusActive}
	}

	return []Record{
		{
			UserID:       userID,
			PeriodKey:    period(-2),
			Subscription: lite(),
			Charges:      Charges{BaseFee: 9_900, Total: 9_900},
			Usage: Usage{
				UsageStats:   map[string]any{"api_calls": 4_210, "storage_gb": 3},
				BillingNotes: "within plan limits",
			},
		},
		{
			UserID:       userID,
			PeriodKey:    period(-1),
			Subscription: lite(),
			Charges:      Charges{BaseFee: 9_900, ExceedFee: 4_500, ExtraFee: 2_000, Discount: -1_000, Total: 15_400},
			Usage: Usage{
				ExceedReason: "API calls exceeded the Lite quota of 10,000 by 5,230",
				ExtraReason:  "priority support add-on",
				UsageStats:   map[string]any{"api_calls": 15_230, "storage_gb": 8},
				ActiveAddons: []string{"priority_support"},
				BillingNotes: "loyalty discount applied",
			},
		},
		{
			UserID:       userID,
			PeriodKey:    period(0),
			Subscription: lite(),
			Charges:      Charges{BaseFee: 9_900, Total: 9_900},
			Usage: Usage{
				UsageStats: map[string]any{"api_calls": 6_040, "storage_gb": 9},
			},
		},
		{
			UserID:       userID,
			PeriodKey:    period(1),
			Subscription: lite(),
			Charges:      Charges{BaseFee: 9_900, Total: 9_900},
		},
	}
}
