package taxdash

import (
	"context"
	"fmt"
	"time"

	"backend/data"

	"github.com/shopspring/decimal"
)

// Fact type keys used to group DocumentFactStore rows by category. These are
// local to taxdash since §3's TaxFact.fact_type is a free-form string the
// document-extraction pipeline populates.
const (
	FactDividend  = "DIVIDEND"
	FactInterest  = "INTEREST"
	FactCapGainST = "CAPITAL_GAINS_ST"
	FactCapGainLT = "CAPITAL_GAINS_LT"
	FactIRADist   = "IRA_DISTRIBUTION"
	FactW2Wages   = "WAGES"
)

// DocFactSource is the local view of the DocumentFactStore collaborator
// (§6): confirmed, authoritative TaxFact rows for a tax year. taxdash
// defines its own interface rather than importing a concrete store package,
// the same way lots.SecurityResolver decouples the replay engine from a
// specific data.Conn implementation.
type DocFactSource interface {
	FactsForYear(ctx context.Context, year int) ([]data.TaxFact, error)
}

// NoDocFacts is a DocFactSource that never has any facts, used when no
// document pipeline is wired up yet.
type NoDocFacts struct{}

func (NoDocFacts) FactsForYear(ctx context.Context, year int) ([]data.TaxFact, error) {
	return nil, nil
}

// MonthlyRow is one row of §4.4's monthly series: this month's own ST/LT
// gains, tax/paid/remaining YTD through the month, and this row's flags.
type MonthlyRow struct {
	Month        int // 1-12
	CapGainsST   decimal.Decimal
	CapGainsLT   decimal.Decimal
	TaxYTD       decimal.Decimal
	PaidYTD      decimal.Decimal
	RemainingDue decimal.Decimal
	Flags        []string
}

// OrdinaryBreakdown is §8 scenario 5's summary.ordinary_breakdown: the
// non-ledger-derived ordinary income components broken out individually,
// alongside the already-itemized Summary fields.
type OrdinaryBreakdown struct {
	W2Wages decimal.Decimal
}

// Summary is §4.4's top-level summary object.
type Summary struct {
	Dividends         decimal.Decimal
	Interest          decimal.Decimal
	IRADistributions  decimal.Decimal
	BusinessIncome    decimal.Decimal
	CapGainsST        decimal.Decimal
	CapGainsLT        decimal.Decimal
	Deductions        decimal.Decimal
	TaxBreakdown      TaxBreakdown
	OrdinaryBreakdown OrdinaryBreakdown
	PaidYTD           decimal.Decimal
	RemainingDue      decimal.Decimal
	SafeHarborMet     bool
	SafeHarborTarget  decimal.Decimal
	ACAMAGI           decimal.Decimal
}

// TaxDashboard is build_tax_dashboard's return value (§6).
type TaxDashboard struct {
	Year          int
	Scope         string
	AsOf          time.Time
	ApplyOverrides bool
	Summary       Summary
	Monthly       []MonthlyRow
	SourceMap     map[string]Source
	Warnings      []string
}

func yearWindow(year int) (time.Time, time.Time) {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year, time.December, 31, 23, 59, 59, 0, time.UTC)
	return start, end
}

func sumThroughMonth(m [12]decimal.Decimal, upTo int) decimal.Decimal {
	total := decimal.Zero
	for i := 0; i <= upTo && i < 12; i++ {
		total = total.Add(m[i])
	}
	return total
}

func factTotalsByType(facts []data.TaxFact) map[string]decimal.Decimal {
	out := map[string]decimal.Decimal{}
	for _, f := range facts {
		if !f.Confirmed || !f.IsAuthoritative {
			continue
		}
		out[f.FactType] = out[f.FactType].Add(f.Amount)
	}
	return out
}

func docTotalPtr(totals map[string]decimal.Decimal, key string) *decimal.Decimal {
	v, ok := totals[key]
	if !ok {
		return nil
	}
	return &v
}

func manualPtr(overrides map[string][12]decimal.Decimal, key string) *[12]decimal.Decimal {
	v, ok := overrides[key]
	if !ok {
		return nil
	}
	return &v
}

func applyTrustCutoff(txns []data.Transaction, trustAccountIDs map[int]bool, trustStart *time.Time) []data.Transaction {
	if trustStart == nil {
		return txns
	}
	out := txns[:0:0]
	for _, tx := range txns {
		if trustAccountIDs[tx.AccountID] && tx.Date.Before(*trustStart) {
			continue
		}
		out = append(out, tx)
	}
	return out
}

// BuildTaxDashboard is the §6 build_tax_dashboard entrypoint: it folds
// ledger-derived totals, tagged transactions, manual overrides, and
// confirmed document facts into a monthly YTD tax projection, following
// original_source/src/core/taxes.py::build_tax_dashboard.
func BuildTaxDashboard(ctx context.Context, conn *data.Conn, docs DocFactSource, year int, scope string, asOf time.Time, applyOverrides bool) (TaxDashboard, error) {
	if docs == nil {
		docs = NoDocFacts{}
	}
	dash := TaxDashboard{Year: year, Scope: scope, AsOf: asOf, ApplyOverrides: applyOverrides, SourceMap: map[string]Source{}}

	taxpayers, err := conn.TaxpayersByScope(ctx, scope)
	if err != nil {
		return dash, fmt.Errorf("resolving taxpayers for scope %q: %w", scope, err)
	}

	var taxableIDs, iraIDs, allIDs []int
	trustAccountIDs := map[int]bool{}
	var trustStart *time.Time

	for _, tp := range taxpayers {
		accounts, err := conn.AccountsForTaxpayer(ctx, tp.ID)
		if err != nil {
			return dash, fmt.Errorf("loading accounts for taxpayer %d: %w", tp.ID, err)
		}
		for _, a := range accounts {
			allIDs = append(allIDs, a.ID)
			if tp.Type == data.TaxpayerTrust {
				trustAccountIDs[a.ID] = true
			}
			switch a.AccountType {
			case data.AccountIRA:
				iraIDs = append(iraIDs, a.ID)
			default:
				taxableIDs = append(taxableIDs, a.ID)
			}
		}
	}

	profile, err := conn.TaxProfileForYear(ctx, year)
	if err != nil {
		return dash, fmt.Errorf("loading tax profile: %w", err)
	}
	if profile.TrustIncomeTaxableToUser {
		trustStart = profile.TrustStartDate
	} else {
		// trust income excluded entirely: treat as if the cutoff were the
		// end of time, i.e. drop every trust-sourced row.
		farFuture := time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
		trustStart = &farFuture
	}

	start, end := yearWindow(year)

	var overrides map[string][12]decimal.Decimal
	if applyOverrides {
		overrides, err = conn.ManualOverridesForYear(ctx, year)
		if err != nil {
			return dash, fmt.Errorf("loading manual overrides: %w", err)
		}
	}

	investorInputs, err := conn.InvestorIncomeInputsForYear(ctx, year)
	if err != nil {
		return dash, fmt.Errorf("loading investor income inputs: %w", err)
	}
	wagesInvestor := investorInputs["W2_WAGES"]

	var facts []data.TaxFact
	if applyOverrides {
		facts, err = docs.FactsForYear(ctx, year)
		if err != nil {
			dash.Warnings = append(dash.Warnings, fmt.Sprintf("document facts unavailable: %v", err))
		}
	}
	docTotals := factTotalsByType(facts)

	iraTxns, err := conn.TransactionsByTypeInWindow(ctx, iraIDs, []data.TxnType{data.TxnTransfer, data.TxnWithholding}, start, end)
	if err != nil {
		return dash, fmt.Errorf("loading IRA transactions: %w", err)
	}
	iraDist, iraWithh := IRAFlowsByMonth(data.AccountIRA, iraTxns)

	divTxns, err := conn.TransactionsByTypeInWindow(ctx, allIDs, []data.TxnType{data.TxnDiv}, start, end)
	if err != nil {
		return dash, fmt.Errorf("loading dividend transactions: %w", err)
	}
	divTxns = applyTrustCutoff(divTxns, trustAccountIDs, trustStart)
	divInvestor := DivIntByMonth(divTxns, data.TxnDiv, true)
	divWithh := WithholdingByMonth(divTxns)

	intTxns, err := conn.TransactionsByTypeInWindow(ctx, allIDs, []data.TxnType{data.TxnInt}, start, end)
	if err != nil {
		return dash, fmt.Errorf("loading interest transactions: %w", err)
	}
	intTxns = applyTrustCutoff(intTxns, trustAccountIDs, trustStart)
	intInvestor := DivIntByMonth(intTxns, data.TxnInt, true)
	intWithh := WithholdingByMonth(intTxns)

	st, lt, cgWarnings, err := CapitalGainsByMonth(ctx, conn, taxableIDs, start, end)
	if err != nil {
		return dash, fmt.Errorf("loading capital gains: %w", err)
	}
	dash.Warnings = append(dash.Warnings, cgWarnings...)

	w2Withh, err := conn.TaggedTransactionsByCategory(ctx, allIDs, data.TagW2Withholding, start, end)
	if err != nil {
		return dash, fmt.Errorf("loading W2 withholding: %w", err)
	}
	estPayments, err := conn.TaggedTransactionsByCategory(ctx, allIDs, data.TagEstimatedTaxPaid, start, end)
	if err != nil {
		return dash, fmt.Errorf("loading estimated payments: %w", err)
	}
	bizIncome, err := conn.TaggedTransactionsByCategory(ctx, allIDs, data.TagBusinessIncome, start, end)
	if err != nil {
		return dash, fmt.Errorf("loading business income: %w", err)
	}
	bizExpense, err := conn.TaggedTransactionsByCategory(ctx, allIDs, data.TagBusinessExpense, start, end)
	if err != nil {
		return dash, fmt.Errorf("loading business expense: %w", err)
	}

	withholdingMonthly := TaggedByMonth(w2Withh)
	for i := range withholdingMonthly {
		withholdingMonthly[i] = withholdingMonthly[i].Add(iraWithh[i]).Add(divWithh[i]).Add(intWithh[i])
	}
	estimatedMonthly := TaggedByMonth(estPayments)
	bizGrossMonthly := TaggedByMonth(bizIncome)
	bizExpenseMonthly := TaggedByMonth(bizExpense)
	businessMonthly := BusinessIncomeByMonth(profile, bizGrossMonthly, bizExpenseMonthly)

	docsPrimary := applyOverrides

	divResolved := ResolveCategory(divInvestor, docTotalPtr(docTotals, FactDividend), manualPtr(overrides, "DIVIDEND"), docsPrimary)
	intResolved := ResolveInterestCategory(intInvestor, docTotalPtr(docTotals, FactInterest), manualPtr(overrides, "INTEREST"), docsPrimary)
	iraResolved := ResolveCategory(iraDist, docTotalPtr(docTotals, FactIRADist), manualPtr(overrides, "IRA_DISTRIBUTION"), docsPrimary)
	stResolved := ResolveCategory(st, docTotalPtr(docTotals, FactCapGainST), manualPtr(overrides, "CAPITAL_GAINS_ST"), docsPrimary)
	ltResolved := ResolveCategory(lt, docTotalPtr(docTotals, FactCapGainLT), manualPtr(overrides, "CAPITAL_GAINS_LT"), docsPrimary)
	wagesResolved := ResolveCategory(wagesInvestor, docTotalPtr(docTotals, FactW2Wages), manualPtr(overrides, "W2_WAGES"), docsPrimary)

	dash.SourceMap["DIVIDEND"] = divResolved.Source
	dash.SourceMap["INTEREST"] = intResolved.Source
	dash.SourceMap["IRA_DISTRIBUTION"] = iraResolved.Source
	dash.SourceMap["CAPITAL_GAINS_ST"] = stResolved.Source
	dash.SourceMap["CAPITAL_GAINS_LT"] = ltResolved.Source
	dash.SourceMap["w2_wages_total"] = wagesResolved.Source

	ordinaryBrackets, ltcgBrackets, bracketsOK := bracketsForProfile(profile)
	if !bracketsOK {
		dash.Warnings = append(dash.Warnings, "no bracket table configured for this filing status, tax projection degraded to zero tax")
	}

	var safeHarborAnnual decimal.Decimal
	haveSafeHarbor := profile.LastYearTotalTax != nil
	if haveSafeHarbor {
		safeHarborAnnual = profile.LastYearTotalTax.Mul(profile.SafeHarborMultiplier)
	} else {
		dash.Warnings = append(dash.Warnings, "no prior-year total tax on file, safe harbor flag skipped")
	}

	asOfMonth := 11
	if asOf.Year() == year {
		asOfMonth = monthIndex(asOf)
	} else if asOf.Year() < year {
		asOfMonth = -1
	}

	dash.Monthly = make([]MonthlyRow, 12)
	for m := 0; m < 12; m++ {
		ordinaryCore := sumThroughMonth(intResolved.Monthly, m).Add(sumThroughMonth(iraResolved.Monthly, m)).Add(sumThroughMonth(businessMonthly, m)).Add(sumThroughMonth(wagesResolved.Monthly, m))
		dividendsYTD := sumThroughMonth(divResolved.Monthly, m)
		stYTD := sumThroughMonth(stResolved.Monthly, m)
		ltYTD := sumThroughMonth(ltResolved.Monthly, m)
		netProfitYTD := sumThroughMonth(businessMonthly, m)

		breakdown := ComputeTaxBreakdown(TaxBreakdownInputs{
			OrdinaryCore:     ordinaryCore,
			ST:               stYTD,
			LT:               ltYTD,
			Dividends:        dividendsYTD,
			QualifiedPct:     profile.QualifiedDividendPct,
			Deductions:       profile.Deductions,
			NetProfit:        netProfitYTD,
			SEParams:         DefaultSETaxParams(),
			NIITEnabled:      profile.NIITEnabled,
			NIITRate:         profile.NIITRate,
			StateRate:        profile.StateRate,
			OrdinaryBrackets: ordinaryBrackets,
			LTCGBrackets:     ltcgBrackets,
		})

		paidYTD := sumThroughMonth(withholdingMonthly, m).Add(sumThroughMonth(estimatedMonthly, m))
		remaining := breakdown.TotalTax.Sub(paidYTD)

		row := MonthlyRow{
			Month:        m + 1,
			CapGainsST:   stResolved.Monthly[m],
			CapGainsLT:   ltResolved.Monthly[m],
			TaxYTD:       breakdown.TotalTax,
			PaidYTD:      paidYTD,
			RemainingDue: remaining,
		}

		if haveSafeHarbor {
			target := safeHarborAnnual.Mul(decimal.NewFromFloat(float64(m+1) / 12.0))
			if paidYTD.LessThan(target) {
				row.Flags = append(row.Flags, "behind safe harbor")
			}
		}
		if breakdown.TotalTax.Sign() > 0 && paidYTD.LessThan(breakdown.TotalTax.Mul(decimal.NewFromFloat(0.9))) {
			row.Flags = append(row.Flags, "withholding shortfall")
		}
		monthGains := stResolved.Monthly[m].Add(ltResolved.Monthly[m]).Abs()
		if monthGains.GreaterThanOrEqual(decimal.NewFromInt(10000)) {
			row.Flags = append(row.Flags, "large cap gains month")
		}

		dash.Monthly[m] = row
	}

	lastIdx := 11
	if asOfMonth >= 0 && asOfMonth < 11 {
		lastIdx = asOfMonth
	}
	final := dash.Monthly[lastIdx]

	dash.Summary = Summary{
		Dividends:         sumThroughMonth(divResolved.Monthly, lastIdx),
		Interest:          sumThroughMonth(intResolved.Monthly, lastIdx),
		IRADistributions:  sumThroughMonth(iraResolved.Monthly, lastIdx),
		BusinessIncome:    sumThroughMonth(businessMonthly, lastIdx),
		CapGainsST:        sumThroughMonth(stResolved.Monthly, lastIdx),
		CapGainsLT:        sumThroughMonth(ltResolved.Monthly, lastIdx),
		Deductions:        profile.Deductions,
		OrdinaryBreakdown: OrdinaryBreakdown{W2Wages: sumThroughMonth(wagesResolved.Monthly, lastIdx)},
		PaidYTD:           final.PaidYTD,
		RemainingDue:      final.RemainingDue,
		SafeHarborTarget:  safeHarborAnnual,
	}
	dash.Summary.TaxBreakdown = ComputeTaxBreakdown(TaxBreakdownInputs{
		OrdinaryCore:     dash.Summary.Interest.Add(dash.Summary.IRADistributions).Add(dash.Summary.BusinessIncome).Add(dash.Summary.OrdinaryBreakdown.W2Wages),
		ST:               dash.Summary.CapGainsST,
		LT:               dash.Summary.CapGainsLT,
		Dividends:        dash.Summary.Dividends,
		QualifiedPct:     profile.QualifiedDividendPct,
		Deductions:       profile.Deductions,
		NetProfit:        dash.Summary.BusinessIncome,
		SEParams:         DefaultSETaxParams(),
		NIITEnabled:      profile.NIITEnabled,
		NIITRate:         profile.NIITRate,
		StateRate:        profile.StateRate,
		OrdinaryBrackets: ordinaryBrackets,
		LTCGBrackets:     ltcgBrackets,
	})
	dash.Summary.ACAMAGI = dash.Summary.Dividends.Add(dash.Summary.Interest).Add(dash.Summary.CapGainsST).Add(dash.Summary.CapGainsLT).Add(dash.Summary.BusinessIncome).Add(dash.Summary.IRADistributions).Add(dash.Summary.OrdinaryBreakdown.W2Wages)
	if haveSafeHarbor {
		dash.Summary.SafeHarborMet = !final.PaidYTD.LessThan(safeHarborAnnual)
	} else {
		dash.Summary.SafeHarborMet = true // degrade to "on track" per §4.4.4 failure semantics
	}

	return dash, nil
}
