package deposits

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultRate applies when no tier matches a (principal, term) pair.
// Expressed in percent.
const DefaultRate = 2.50

// RateTier defines a rate for principals in [AmountMin, AmountMax) and
// terms in [TermMinDays, TermMaxDays]. Rate is a percentage, e.g. 2.65.
type RateTier struct {
	AmountMin   float64 `yaml:"amount_min"`
	AmountMax   float64 `yaml:"amount_max"`
	TermMinDays int     `yaml:"term_min_days"`
	TermMaxDays int     `yaml:"term_max_days"`
	Rate        float64 `yaml:"rate"`
}

// Matches reports whether the tier contains the pair. The principal range
// is closed-open, the term range closed on both ends.
func (t RateTier) Matches(principal float64, termDays int) bool {
	return principal >= t.AmountMin && principal < t.AmountMax &&
		termDays >= t.TermMinDays && termDays <= t.TermMaxDays
}

// RateTable is the injected, read-only tier configuration. Tiers must be
// mutually exclusive by construction.
type RateTable struct {
	Tiers       []RateTier `yaml:"tiers"`
	DefaultRate float64    `yaml:"default_rate"`
}

// ResolvedRate is the outcome of a rate lookup. Defaulted is set when no
// tier matched and the table default applied.
type ResolvedRate struct {
	Rate      float64
	Defaulted bool
}

// Resolve returns the rate of the first tier containing both inputs, or
// the default rate with the Defaulted flag set. Pure, no side effects;
// used by both the simulation path and the real creation flow.
func (rt RateTable) Resolve(principal float64, termDays int) ResolvedRate {
	for _, tier := range rt.Tiers {
		if tier.Matches(principal, termDays) {
			return ResolvedRate{Rate: tier.Rate}
		}
	}
	def := rt.DefaultRate
	if def == 0 {
		def = DefaultRate
	}
	return ResolvedRate{Rate: def, Defaulted: true}
}

// Validate rejects malformed ranges and overlapping tiers.
func (rt RateTable) Validate() error {
	for i, tier := range rt.Tiers {
		if tier.AmountMin < 0 || tier.AmountMax <= tier.AmountMin {
			return fmt.Errorf("deposits: tier %d: invalid amount range [%v, %v)", i, tier.AmountMin, tier.AmountMax)
		}
		if tier.TermMinDays <= 0 || tier.TermMaxDays < tier.TermMinDays {
			return fmt.Errorf("deposits: tier %d: invalid term range [%d, %d]", i, tier.TermMinDays, tier.TermMaxDays)
		}
		if tier.Rate <= 0 {
			return fmt.Errorf("deposits: tier %d: rate must be positive", i)
		}
		for j := i + 1; j < len(rt.Tiers); j++ {
			other := rt.Tiers[j]
			amountsOverlap := tier.AmountMin < other.AmountMax && other.AmountMin < tier.AmountMax
			termsOverlap := tier.TermMinDays <= other.TermMaxDays && other.TermMinDays <= tier.TermMaxDays
			if amountsOverlap && termsOverlap {
				return fmt.Errorf("deposits: tiers %d and %d overlap", i, j)
			}
		}
	}
	return nil
}

// DefaultRateTable returns the built-in tier configuration used when no
// rate table file is supplied.
func DefaultRateTable() RateTable {
	return RateTable{
		DefaultRate: DefaultRate,
		Tiers: []RateTier{
			{AmountMin: 0, AmountMax: 1000, TermMinDays: 30, TermMaxDays: 180, Rate: 2.65},
			{AmountMin: 0, AmountMax: 1000, TermMinDays: 181, TermMaxDays: 365, Rate: 2.90},
			{AmountMin: 1000, AmountMax: 10000, TermMinDays: 30, TermMaxDays: 180, Rate: 3.10},
			{AmountMin: 1000, AmountMax: 10000, TermMinDays: 181, TermMaxDays: 365, Rate: 3.35},
			{AmountMin: 10000, AmountMax: 100000, TermMinDays: 30, TermMaxDays: 180, Rate: 3.60},
			{AmountMin: 10000, AmountMax: 100000, TermMinDays: 181, TermMaxDays: 365, Rate: 3.85},
		},
	}
}

// LoadRateTable reads a YAML rate table from disk and validates it.
func LoadRateTable(path string) (RateTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RateTable{}, fmt.Errorf("deposits: read rate table: %w", err)
	}
	var table RateTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return RateTable{}, fmt.Errorf("deposits: parse rate table: %w", err)
	}
	if table.DefaultRate == 0 {
		table.DefaultRate = DefaultRate
	}
	if err := table.Validate(); err != nil {
		return RateTable{}, err
	}
	return table, nil
}
