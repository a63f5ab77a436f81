package taxdash

import (
	"github.com/shopspring/decimal"
)

// Source records §4.4.1's per-category provenance.
type Source string

const (
	SourceManual       Source = "manual"
	SourceDocs         Source = "docs"
	SourceInvestor     Source = "investor"
	SourceDocsInvestor Source = "docs+investor"
)

// CategoryValue is one resolved category's monthly series plus the
// precedence rung it came from (§4.4's "source map").
type CategoryValue struct {
	Monthly [12]decimal.Decimal
	Source  Source
}

func distributeEvenly(total decimal.Decimal) [12]decimal.Decimal {
	var out [12]decimal.Decimal
	share := total.Div(decimal.NewFromInt(12))
	for i := range out {
		out[i] = share
	}
	return out
}

func sumMonths(m [12]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range m {
		total = total.Add(v)
	}
	return total
}

// ResolveCategory applies §4.4.1's three-rung precedence. manualOverride
// takes an unconditional priority; otherwise a docs total is used when
// docsPrimary is set and at least one confirmed authoritative fact backs
// it; otherwise the investor (ledger-derived) series is used as-is.
//
// An annual docs total with no monthly breakdown is distributed evenly
// across the 12 months — the same convention §4.4.1 states explicitly for
// a scalar manual override, applied here for consistency since spec.md is
// silent on monthly shape for document totals.
func ResolveCategory(investor [12]decimal.Decimal, docsTotal *decimal.Decimal, manualOverride *[12]decimal.Decimal, docsPrimary bool) CategoryValue {
	if manualOverride != nil {
		return CategoryValue{Monthly: *manualOverride, Source: SourceManual}
	}
	if docsPrimary && docsTotal != nil {
		return CategoryValue{Monthly: distributeEvenly(*docsTotal), Source: SourceDocs}
	}
	return CategoryValue{Monthly: investor, Source: SourceInvestor}
}

// materialDisagreement is §4.4.1's interest special rule threshold:
// |delta| > max(1.0, 1% of the larger value).
func materialDisagreement(a, b decimal.Decimal) bool {
	delta := a.Sub(b).Abs()
	larger := decimal.Max(a.Abs(), b.Abs())
	threshold := decimal.Max(decimal.NewFromInt(1), larger.Mul(decimal.NewFromFloat(0.01)))
	return delta.GreaterThan(threshold)
}

// ResolveInterestCategory implements §4.4.1's interest-only special rule:
// when both investor and docs totals are non-zero and materially disagree,
// the merged value is additive (docs+investor) rather than docs replacing
// investor.
func ResolveInterestCategory(investor [12]decimal.Decimal, docsTotal *decimal.Decimal, manualOverride *[12]decimal.Decimal, docsPrimary bool) CategoryValue {
	if manualOverride != nil {
		return CategoryValue{Monthly: *manualOverride, Source: SourceManual}
	}
	if !docsPrimary || docsTotal == nil {
		return CategoryValue{Monthly: investor, Source: SourceInvestor}
	}
	investorTotal := sumMonths(investor)
	if investorTotal.Sign() != 0 && docsTotal.Sign() != 0 && materialDisagreement(investorTotal, *docsTotal) {
		merged := investor
		share := docsTotal.Div(decimal.NewFromInt(12))
		for i := range merged {
			merged[i] = merged[i].Add(share)
		}
		return CategoryValue{Monthly: merged, Source: SourceDocsInvestor}
	}
	return CategoryValue{Monthly: distributeEvenly(*docsTotal), Source: SourceDocs}
}
