package taxdash

import (
	"testing"
	"time"

	"backend/data"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestApplyBracketsPiecewise(t *testing.T) {
	brackets := singleOrdinaryBrackets()
	tax := ApplyBrackets(d("20000"), brackets)
	want := d("11600").Mul(d("0.10")).Add(d("8400").Mul(d("0.12")))
	if !tax.Equal(want) {
		t.Fatalf("got %s want %s", tax, want)
	}
}

func TestApplyBracketsNegativeAmountIsZero(t *testing.T) {
	if !ApplyBrackets(d("-500"), singleOrdinaryBrackets()).IsZero() {
		t.Fatal("expected zero tax on non-positive amount")
	}
}

func TestApplyLTCGBracketsStacksAboveOrdinary(t *testing.T) {
	brackets := singleLTCGBrackets()
	// ordinary taxable already fills the 0% bracket entirely.
	tax := ApplyLTCGBrackets(d("47025"), d("10000"), brackets)
	want := d("10000").Mul(d("0.15"))
	if !tax.Equal(want) {
		t.Fatalf("got %s want %s", tax, want)
	}
}

func TestComputeSETaxBelowWageBase(t *testing.T) {
	params := DefaultSETaxParams()
	seTax, seDeduction := ComputeSETax(d("50000"), params)
	seTaxable := d("50000").Mul(d("0.9235"))
	want := seTaxable.Mul(d("0.124")).Add(seTaxable.Mul(d("0.029")))
	if !seTax.Equal(want) {
		t.Fatalf("se tax got %s want %s", seTax, want)
	}
	if !seDeduction.Equal(seTax.Mul(d("0.5"))) {
		t.Fatalf("se deduction got %s want half of se tax", seDeduction)
	}
}

func TestComputeSETaxZeroOnLoss(t *testing.T) {
	seTax, seDeduction := ComputeSETax(d("-100"), DefaultSETaxParams())
	if !seTax.IsZero() || !seDeduction.IsZero() {
		t.Fatal("expected zero SE tax on a loss")
	}
}

func TestResolveCategoryManualOverrideWins(t *testing.T) {
	investor := [12]decimal.Decimal{}
	investor[0] = d("100")
	manual := [12]decimal.Decimal{}
	manual[5] = d("999")
	docs := d("50")

	got := ResolveCategory(investor, &docs, &manual, true)
	if got.Source != SourceManual {
		t.Fatalf("expected manual source, got %s", got.Source)
	}
	if !got.Monthly[5].Equal(d("999")) {
		t.Fatalf("expected manual override value preserved, got %s", got.Monthly[5])
	}
}

func TestResolveCategoryDocsOverInvestorWhenPrimary(t *testing.T) {
	investor := [12]decimal.Decimal{}
	investor[0] = d("100")
	docs := d("1200")

	got := ResolveCategory(investor, &docs, nil, true)
	if got.Source != SourceDocs {
		t.Fatalf("expected docs source, got %s", got.Source)
	}
	if !sumMonths(got.Monthly).Equal(d("1200")) {
		t.Fatalf("expected docs total distributed evenly summing to 1200, got %s", sumMonths(got.Monthly))
	}
}

func TestResolveCategoryFallsBackToInvestor(t *testing.T) {
	investor := [12]decimal.Decimal{}
	investor[0] = d("100")

	got := ResolveCategory(investor, nil, nil, true)
	if got.Source != SourceInvestor {
		t.Fatalf("expected investor source, got %s", got.Source)
	}
}

func TestResolveCategoryW2WagesDocsOverInvestorPerScenario5(t *testing.T) {
	investor := distributeEvenly(d("12000"))
	docs := d("24000")

	got := ResolveCategory(investor, &docs, nil, true)
	if got.Source != SourceDocs {
		t.Fatalf("expected docs source, got %s", got.Source)
	}
	if !sumMonths(got.Monthly).Equal(d("24000")) {
		t.Fatalf("expected w2 wages total 24000, got %s", sumMonths(got.Monthly))
	}
}

func TestResolveCategoryW2WagesFallsBackToInvestorWhenNotDocsPrimary(t *testing.T) {
	investor := distributeEvenly(d("12000"))
	docs := d("24000")

	got := ResolveCategory(investor, &docs, nil, false)
	if got.Source != SourceInvestor {
		t.Fatalf("expected investor source, got %s", got.Source)
	}
	if !sumMonths(got.Monthly).Equal(d("12000")) {
		t.Fatalf("expected w2 wages total 12000, got %s", sumMonths(got.Monthly))
	}
}

func TestResolveInterestAdditiveWhenMaterialDisagreement(t *testing.T) {
	investor := [12]decimal.Decimal{}
	investor[0] = d("1000")
	docs := d("50") // disagrees materially with 1000

	got := ResolveInterestCategory(investor, &docs, nil, true)
	if got.Source != SourceDocsInvestor {
		t.Fatalf("expected docs+investor source, got %s", got.Source)
	}
	want := d("1000").Add(d("50").Div(decimal.NewFromInt(12)))
	if !got.Monthly[0].Equal(want) {
		t.Fatalf("month 0 got %s want %s", got.Monthly[0], want)
	}
}

func TestResolveInterestDocsReplaceWhenClose(t *testing.T) {
	investor := [12]decimal.Decimal{}
	investor[0] = d("1000")
	docs := d("1005") // within 1% of 1000

	got := ResolveInterestCategory(investor, &docs, nil, true)
	if got.Source != SourceDocs {
		t.Fatalf("expected docs source when values agree, got %s", got.Source)
	}
}

func TestMaterialDisagreementThreshold(t *testing.T) {
	if materialDisagreement(d("100"), d("100.50")) {
		t.Fatal("50 cents on 100 should not be material (threshold is max(1, 1%))")
	}
	if !materialDisagreement(d("100"), d("101.50")) {
		t.Fatal("1.50 on 100 should be material")
	}
}

func TestComputeTaxBreakdownQualifiedSplit(t *testing.T) {
	in := TaxBreakdownInputs{
		OrdinaryCore:     d("50000"),
		ST:               d("0"),
		LT:               d("10000"),
		Dividends:        d("1000"),
		QualifiedPct:     0.9,
		Deductions:       d("14600"),
		NetProfit:        decimal.Zero,
		SEParams:         DefaultSETaxParams(),
		OrdinaryBrackets: singleOrdinaryBrackets(),
		LTCGBrackets:     singleLTCGBrackets(),
	}
	out := ComputeTaxBreakdown(in)
	if !out.QualifiedDividends.Equal(d("900")) {
		t.Fatalf("qualified dividends got %s want 900", out.QualifiedDividends)
	}
	if !out.NonqualifiedDividends.Equal(d("100")) {
		t.Fatalf("nonqualified dividends got %s want 100", out.NonqualifiedDividends)
	}
	if out.OrdinaryTax.Sign() <= 0 {
		t.Fatal("expected positive ordinary tax")
	}
	if out.SETax.Sign() != 0 {
		t.Fatal("expected zero SE tax with zero net profit")
	}
}

func TestComputeTaxBreakdownDeductionSpillsToLTCG(t *testing.T) {
	in := TaxBreakdownInputs{
		OrdinaryCore:     d("5000"),
		ST:               d("0"),
		LT:               d("20000"),
		Dividends:        d("0"),
		QualifiedPct:     0.9,
		Deductions:       d("14600"),
		NetProfit:        decimal.Zero,
		SEParams:         DefaultSETaxParams(),
		OrdinaryBrackets: singleOrdinaryBrackets(),
		LTCGBrackets:     singleLTCGBrackets(),
	}
	out := ComputeTaxBreakdown(in)
	if out.OrdinaryTaxable.Sign() != 0 {
		t.Fatalf("expected ordinary income fully absorbed by deduction, got %s", out.OrdinaryTaxable)
	}
	leftover := d("14600").Sub(d("5000"))
	wantLTCGTaxable := d("20000").Sub(leftover)
	if !out.LTCGTaxable.Equal(wantLTCGTaxable) {
		t.Fatalf("ltcg taxable got %s want %s", out.LTCGTaxable, wantLTCGTaxable)
	}
}

func TestIRAFlowsByMonthSplitsWithholdingFromDistribution(t *testing.T) {
	txns := []data.Transaction{
		{AccountID: 1, Date: date("2025-03-10"), Type: data.TxnTransfer, Amount: d("-2000"), Links: data.TxnLinks{Description: "IRA distribution"}},
		{AccountID: 1, Date: date("2025-03-10"), Type: data.TxnWithholding, Amount: d("-400"), Links: data.TxnLinks{Description: "federal tax withheld"}},
	}
	dist, withh := IRAFlowsByMonth(data.AccountIRA, txns)
	if !dist[2].Equal(d("2000")) {
		t.Fatalf("distribution got %s want 2000", dist[2])
	}
	if !withh[2].Equal(d("400")) {
		t.Fatalf("withholding got %s want 400", withh[2])
	}
}

func TestIRAFlowsByMonthExcludesDividendLookingRows(t *testing.T) {
	txns := []data.Transaction{
		{AccountID: 1, Date: date("2025-04-01"), Type: data.TxnTransfer, Amount: d("-300"), Links: data.TxnLinks{Description: "qualified dividend reinvest"}},
	}
	dist, withh := IRAFlowsByMonth(data.AccountIRA, txns)
	if sumMonths(dist).Sign() != 0 || sumMonths(withh).Sign() != 0 {
		t.Fatal("dividend-looking row should not count as IRA distribution or withholding")
	}
}

func TestDivIntByMonthExcludesWithholdingLikeRows(t *testing.T) {
	txns := []data.Transaction{
		{AccountID: 1, Date: date("2025-05-01"), Type: data.TxnDiv, Amount: d("200")},
		{AccountID: 1, Date: date("2025-05-02"), Type: data.TxnDiv, Amount: d("-30"), Links: data.TxnLinks{Description: "foreign tax withheld"}},
	}
	out := DivIntByMonth(txns, data.TxnDiv, true)
	if !out[4].Equal(d("200")) {
		t.Fatalf("got %s want 200 (withholding-like row excluded)", out[4])
	}
}

func TestWithholdingByMonthCountsExplicitAndImplicitRows(t *testing.T) {
	txns := []data.Transaction{
		{AccountID: 1, Date: date("2025-06-01"), Type: data.TxnWithholding, Amount: d("75")},
		{AccountID: 1, Date: date("2025-06-15"), Type: data.TxnDiv, Amount: d("-15"), Links: data.TxnLinks{Description: "backup withholding"}},
	}
	out := WithholdingByMonth(txns)
	if !out[5].Equal(d("90")) {
		t.Fatalf("got %s want 90", out[5])
	}
}

func TestBusinessIncomeByMonthUsesManualNetProfit(t *testing.T) {
	profile := data.TaxProfile{BusinessNetProfit: d("12000")}
	out := BusinessIncomeByMonth(profile, [12]decimal.Decimal{}, [12]decimal.Decimal{})
	if !sumMonths(out).Equal(d("12000")) {
		t.Fatalf("got %s want 12000 distributed evenly", sumMonths(out))
	}
}

func TestBusinessIncomeByMonthSynthesizesFromTaggedRows(t *testing.T) {
	profile := data.TaxProfile{BusinessExpenseRatio: 0.3}
	gross := [12]decimal.Decimal{}
	gross[0] = d("1000")
	expenses := [12]decimal.Decimal{}
	expenses[0] = d("200")
	out := BusinessIncomeByMonth(profile, gross, expenses)
	if !out[0].Equal(d("800")) {
		t.Fatalf("got %s want 800 (gross - tagged expenses)", out[0])
	}
}

func TestBusinessIncomeByMonthFallsBackToExpenseRatio(t *testing.T) {
	profile := data.TaxProfile{BusinessExpenseRatio: 0.25}
	gross := [12]decimal.Decimal{}
	gross[0] = d("1000")
	out := BusinessIncomeByMonth(profile, gross, [12]decimal.Decimal{})
	if !out[0].Equal(d("750")) {
		t.Fatalf("got %s want 750 (gross * (1 - expense_ratio))", out[0])
	}
}
