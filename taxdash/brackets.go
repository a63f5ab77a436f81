// Package taxdash is the per-taxpayer tax dashboard aggregator (C5, spec
// §4.4): folds ledger-derived income/gains, tagged transactions, manual
// overrides, and confirmed document facts into a monthly YTD tax
// projection under an explicit source-precedence policy.
package taxdash

import (
	"backend/data"

	"github.com/shopspring/decimal"
)

// Bracket is one marginal-rate band: up to UpTo (nil = unbounded) taxed at
// Rate. Ported from original_source/src/core/taxes.py's bracket dict shape
// {"up_to": ..., "rate": ...}.
type Bracket struct {
	UpTo *decimal.Decimal
	Rate float64
}

// ApplyBrackets is a direct restatement of
// original_source/src/core/taxes.py::_apply_brackets: piecewise marginal
// tax on amount across brackets ordered ascending by UpTo.
func ApplyBrackets(amount decimal.Decimal, brackets []Bracket) decimal.Decimal {
	if amount.Sign() <= 0 {
		return decimal.Zero
	}
	taxable := amount
	prevLimit := decimal.Zero
	tax := decimal.Zero
	for _, b := range brackets {
		var chunk decimal.Decimal
		if b.UpTo == nil {
			chunk = taxable
		} else {
			capacity := b.UpTo.Sub(prevLimit)
			chunk = decimal.Min(taxable, capacity)
			if chunk.Sign() < 0 {
				chunk = decimal.Zero
			}
		}
		if chunk.Sign() <= 0 {
			if b.UpTo != nil {
				prevLimit = *b.UpTo
			}
			continue
		}
		tax = tax.Add(chunk.Mul(decimal.NewFromFloat(b.Rate)))
		taxable = taxable.Sub(chunk)
		if b.UpTo != nil {
			prevLimit = *b.UpTo
		}
		if taxable.Sign() <= 0 {
			break
		}
	}
	return tax
}

// ApplyLTCGBrackets restates
// original_source/src/core/taxes.py::_apply_ltcg_brackets: LTCG brackets
// stack ABOVE ordinary_taxable — each bracket's usable capacity is
// max(0, up_to - ordinary_taxable - already_used).
func ApplyLTCGBrackets(ordinaryTaxable, ltcgTaxable decimal.Decimal, brackets []Bracket) decimal.Decimal {
	if ltcgTaxable.Sign() <= 0 {
		return decimal.Zero
	}
	remaining := ltcgTaxable
	used := decimal.Zero
	tax := decimal.Zero
	for _, b := range brackets {
		var chunk decimal.Decimal
		if b.UpTo == nil {
			chunk = remaining
		} else {
			capacity := b.UpTo.Sub(ordinaryTaxable).Sub(used)
			if capacity.Sign() < 0 {
				capacity = decimal.Zero
			}
			chunk = decimal.Min(remaining, capacity)
		}
		if chunk.Sign() <= 0 {
			if b.UpTo == nil {
				break
			}
			continue
		}
		tax = tax.Add(chunk.Mul(decimal.NewFromFloat(b.Rate)))
		remaining = remaining.Sub(chunk)
		used = used.Add(chunk)
		if remaining.Sign() <= 0 {
			break
		}
	}
	return tax
}

// SETaxParams holds the self-employment tax constants, defaulted the same
// way original_source/src/core/taxes.py::compute_se_tax defaults a missing
// params dict.
type SETaxParams struct {
	SSRate                   float64
	MedicareRate             float64
	AdditionalMedicareRate   float64
	SSWageBase               decimal.Decimal
	AdditionalMedicareThresh decimal.Decimal
}

// DefaultSETaxParams mirrors compute_se_tax's inline defaults (2024-ish
// constants the Python original hardcodes when params omit them).
func DefaultSETaxParams() SETaxParams {
	return SETaxParams{
		SSRate:                   0.124,
		MedicareRate:             0.029,
		AdditionalMedicareRate:   0.009,
		SSWageBase:               decimal.NewFromInt(168600),
		AdditionalMedicareThresh: decimal.NewFromInt(200000),
	}
}

func bracket(upTo float64, rate float64) Bracket {
	v := decimal.NewFromFloat(upTo)
	return Bracket{UpTo: &v, Rate: rate}
}

func unboundedBracket(rate float64) Bracket {
	return Bracket{UpTo: nil, Rate: rate}
}

// singleOrdinaryBrackets and marriedOrdinaryBrackets hardcode the 2024
// federal ordinary-income brackets, the same constants
// original_source/src/core/taxes.py falls back to when no custom bracket
// table is configured for a filing status.
func singleOrdinaryBrackets() []Bracket {
	return []Bracket{
		bracket(11600, 0.10),
		bracket(47150, 0.12),
		bracket(100525, 0.22),
		bracket(191950, 0.24),
		bracket(243725, 0.32),
		bracket(609350, 0.35),
		unboundedBracket(0.37),
	}
}

func marriedOrdinaryBrackets() []Bracket {
	return []Bracket{
		bracket(23200, 0.10),
		bracket(94300, 0.12),
		bracket(201050, 0.22),
		bracket(383900, 0.24),
		bracket(487450, 0.32),
		bracket(731200, 0.35),
		unboundedBracket(0.37),
	}
}

func singleLTCGBrackets() []Bracket {
	return []Bracket{
		bracket(47025, 0.0),
		bracket(518900, 0.15),
		unboundedBracket(0.20),
	}
}

func marriedLTCGBrackets() []Bracket {
	return []Bracket{
		bracket(94050, 0.0),
		bracket(583750, 0.15),
		unboundedBracket(0.20),
	}
}

// bracketsForProfile resolves a profile's filing status into an ordinary
// and an LTCG bracket table. The second return value is false when the
// filing status is unrecognized, signaling the §4.4.4 degrade-gracefully
// path (tax projection falls back to zero marginal tax rather than
// raising).
func bracketsForProfile(p data.TaxProfile) ([]Bracket, []Bracket, bool) {
	switch p.FilingStatus {
	case "SINGLE", "HEAD_OF_HOUSEHOLD":
		return singleOrdinaryBrackets(), singleLTCGBrackets(), true
	case "MARRIED_FILING_JOINTLY":
		return marriedOrdinaryBrackets(), marriedLTCGBrackets(), true
	default:
		return nil, nil, false
	}
}

// ComputeSETax returns (se_tax, se_deduction), restating
// original_source/src/core/taxes.py::compute_se_tax.
func ComputeSETax(netProfit decimal.Decimal, params SETaxParams) (decimal.Decimal, decimal.Decimal) {
	if netProfit.Sign() <= 0 {
		return decimal.Zero, decimal.Zero
	}
	seTaxable := netProfit.Mul(decimal.NewFromFloat(0.9235))
	ssTaxable := decimal.Min(seTaxable, params.SSWageBase)
	ssTax := ssTaxable.Mul(decimal.NewFromFloat(params.SSRate))
	medicareTax := seTaxable.Mul(decimal.NewFromFloat(params.MedicareRate))
	addlBase := seTaxable.Sub(params.AdditionalMedicareThresh)
	if addlBase.Sign() < 0 {
		addlBase = decimal.Zero
	}
	addlTax := addlBase.Mul(decimal.NewFromFloat(params.AdditionalMedicareRate))
	seTax := ssTax.Add(medicareTax).Add(addlTax)
	seDeduction := seTax.Mul(decimal.NewFromFloat(0.5))
	return seTax, seDeduction
}
