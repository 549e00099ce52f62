package deposits

import (
	"math"
)

// GenerateSchedule builds the payment plan for a newly opened investment.
// Entries are returned unpersisted; the caller inserts them as one batch.
//
// Interest amounts are rounded to the nearest whole currency unit because
// the persisted column is integer-typed. The per-period divisor
// ceil(termDays/30/intervalMonths) is an approximation carried over for
// behavioural compatibility; settlement never reads these rows and
// recomputes interest precisely.
func GenerateSchedule(inv Investment, ratePercent float64) []ScheduleEntry {
	totalInterest := SimpleInterest(inv.Principal, ratePercent, inv.TermDays)

	var entries []ScheduleEntry
	if interval := inv.Modality.IntervalMonths(); interval > 0 {
		periods := math.Ceil(float64(inv.TermDays) / 30 / float64(interval))
		perPeriod := int64(math.Round(totalInterest / periods))
		for date := inv.OpeningDate.AddDate(0, interval, 0); date.Before(inv.MaturityDate); date = date.AddDate(0, interval, 0) {
			entries = append(entries, ScheduleEntry{
				InvestmentID:  inv.ID,
				Type:          EntryInterestPayment,
				ScheduledDate: date,
				Amount:        perPeriod,
				Status:        EntryPending,
			})
		}
	}

	entries = append(entries, ScheduleEntry{
		InvestmentID:  inv.ID,
		Type:          EntryCapitalReturn,
		ScheduledDate: inv.MaturityDate,
		Amount:        int64(math.Round(inv.Principal)),
		Status:        EntryPending,
	})

	if inv.Modality == ModalityAtMaturity {
		entries = append(entries, ScheduleEntry{
			InvestmentID:  inv.ID,
			Type:          EntryInterestPayment,
			ScheduledDate: inv.MaturityDate,
			Amount:        int64(math.Round(totalInterest)),
			Status:        EntryPending,
		})
	}

	return entries
}
