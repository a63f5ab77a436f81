package taxdash

import "github.com/shopspring/decimal"

// TaxBreakdownInputs is the per-period input to ComputeTaxBreakdown, a
// direct restatement of original_source/src/core/taxes.py::compute_tax_breakdown's
// argument shape.
type TaxBreakdownInputs struct {
	OrdinaryCore     decimal.Decimal
	ST               decimal.Decimal
	LT               decimal.Decimal
	Dividends        decimal.Decimal
	QualifiedPct     float64
	Deductions       decimal.Decimal
	NetProfit        decimal.Decimal
	SEParams         SETaxParams
	NIITEnabled      bool
	NIITRate         float64
	StateRate        float64
	OrdinaryBrackets []Bracket
	LTCGBrackets     []Bracket
}

// TaxBreakdown is compute_tax_breakdown's output record.
type TaxBreakdown struct {
	QualifiedDividends    decimal.Decimal
	NonqualifiedDividends decimal.Decimal
	OrdinaryBase          decimal.Decimal
	LTCGBase              decimal.Decimal
	OrdinaryTaxable       decimal.Decimal
	LTCGTaxable           decimal.Decimal
	OrdinaryTax           decimal.Decimal
	LTCGTax               decimal.Decimal
	NIITTax               decimal.Decimal
	SETax                 decimal.Decimal
	SEDeduction           decimal.Decimal
	StateTax              decimal.Decimal
	TotalTax              decimal.Decimal
}

func maxZero(d decimal.Decimal) decimal.Decimal {
	if d.Sign() < 0 {
		return decimal.Zero
	}
	return d
}

// ComputeTaxBreakdown is a direct port of
// original_source/src/core/taxes.py::compute_tax_breakdown (§4.4.3, steps
// 1-8).
func ComputeTaxBreakdown(in TaxBreakdownInputs) TaxBreakdown {
	var out TaxBreakdown

	out.QualifiedDividends = in.Dividends.Mul(decimal.NewFromFloat(in.QualifiedPct))
	out.NonqualifiedDividends = in.Dividends.Sub(out.QualifiedDividends)

	out.OrdinaryBase = in.OrdinaryCore.Add(in.ST).Add(out.NonqualifiedDividends)
	out.LTCGBase = in.LT.Add(out.QualifiedDividends)

	seTax, seDeduction := ComputeSETax(in.NetProfit, in.SEParams)
	out.SETax = seTax
	out.SEDeduction = seDeduction

	totalDeduction := maxZero(in.Deductions.Add(seDeduction))
	out.OrdinaryTaxable = maxZero(out.OrdinaryBase.Sub(totalDeduction))
	leftover := maxZero(totalDeduction.Sub(out.OrdinaryBase))
	out.LTCGTaxable = maxZero(out.LTCGBase.Sub(leftover))

	out.OrdinaryTax = ApplyBrackets(out.OrdinaryTaxable, in.OrdinaryBrackets)
	out.LTCGTax = ApplyLTCGBrackets(out.OrdinaryTaxable, out.LTCGTaxable, in.LTCGBrackets)

	if in.NIITEnabled {
		niitBase := maxZero(in.ST.Add(in.LT).Add(in.Dividends))
		out.NIITTax = niitBase.Mul(decimal.NewFromFloat(in.NIITRate))
	}

	out.StateTax = maxZero(out.OrdinaryTaxable.Add(out.LTCGTaxable)).Mul(decimal.NewFromFloat(in.StateRate))

	out.TotalTax = out.OrdinaryTax.Add(out.LTCGTax).Add(out.NIITTax).Add(out.SETax).Add(out.StateTax)
	return out
}
