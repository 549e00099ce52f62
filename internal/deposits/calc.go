package deposits

import (
	"math"
	"time"
)

// ReferenceTerms are the longer commitments offered by Recommendations.
var ReferenceTerms = []int{90, 180, 270, 360}

// SimpleInterest computes principal * (ratePercent/100) * termDays / 360.
// The 360-day commercial-year convention is load-bearing for financial
// correctness and must not change.
func SimpleInterest(principal, ratePercent float64, termDays int) float64 {
	return principal * (ratePercent / 100) * float64(termDays) / 360
}

// MaturityDate adds termDays calendar days to the opening date. No
// banking-day adjustment.
func MaturityDate(openingDate time.Time, termDays int) time.Time {
	return openingDate.AddDate(0, 0, termDays)
}

// Round2 rounds to 2 decimal places using standard rounding.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Simulation is a client-facing preview. No persistence, no account
// mutation.
type Simulation struct {
	Principal     float64   `json:"principal"`
	TermDays      int       `json:"term_days"`
	Rate          float64   `json:"rate"`
	RateDefaulted bool      `json:"rate_defaulted"`
	Interest      float64   `json:"interest"`
	FinalAmount   float64   `json:"final_amount"`
	MaturityDate  time.Time `json:"maturity_date"`
}

// Simulate composes rate resolution and interest math for a deposit opened
// on openingDate.
func Simulate(table RateTable, principal float64, termDays int, openingDate time.Time) Simulation {
	resolved := table.Resolve(principal, termDays)
	interest := SimpleInterest(principal, resolved.Rate, termDays)
	return Simulation{
		Principal:     principal,
		TermDays:      termDays,
		Rate:          resolved.Rate,
		RateDefaulted: resolved.Defaulted,
		Interest:      interest,
		FinalAmount:   principal + interest,
		MaturityDate:  MaturityDate(openingDate, termDays),
	}
}

// Recommendation describes the outcome of committing the same principal to
// a longer reference term.
type Recommendation struct {
	TermDays    int     `json:"term_days"`
	Rate        float64 `json:"rate"`
	Interest    float64 `json:"interest"`
	FinalAmount float64 `json:"final_amount"`
}

// Recommendations returns one entry per reference term at the given
// principal. Deterministic and side-effect free.
func Recommendations(table RateTable, principal float64) []Recommendation {
	out := make([]Recommendation, 0, len(ReferenceTerms))
	for _, term := range ReferenceTerms {
		resolved := table.Resolve(principal, term)
		interest := SimpleInterest(principal, resolved.Rate, term)
		out = append(out, Recommendation{
			TermDays:    term,
			Rate:        resolved.Rate,
			Interest:    interest,
			FinalAmount: principal + interest,
		})
	}
	return out
}
