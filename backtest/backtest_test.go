package backtest

import (
	"testing"
	"time"

	"backend/data"
	"backend/lots"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func sampleLotsResult() lots.Result {
	return lots.Result{
		Lots: []data.TaxLot{
			{ID: 1, SecurityID: 1, AcquiredDate: date("2024-01-10"), QuantityOpen: d("5"), BasisOpen: d("500"), Source: data.LotReconstructed},
		},
		Disposals: []data.LotDisposal{
			{ID: 1, SellTxnID: 10, TaxLotID: 1, QuantitySold: d("5"), ProceedsAllocated: d("600"), BasisAllocated: dp("500"), RealizedGain: dp("100"), Term: data.TermST, AsOfDate: date("2024-06-01")},
		},
		WashAdjustments: nil,
	}
}

func TestDiffResultsIdenticalRunsProduceNoDiffs(t *testing.T) {
	r := sampleLotsResult()
	diffs := diffResults(r, r)
	if len(diffs) != 0 {
		t.Fatalf("expected no diffs for identical results, got %v", diffs)
	}
}

func TestDiffResultsCatchesLotQuantityDrift(t *testing.T) {
	a := sampleLotsResult()
	b := sampleLotsResult()
	b.Lots[0].QuantityOpen = b.Lots[0].QuantityOpen.Add(d("1"))

	diffs := diffResults(a, b)
	if len(diffs) == 0 {
		t.Fatal("expected a diff when lot quantity drifts between runs")
	}
}

func TestDiffResultsCatchesDisposalGainDrift(t *testing.T) {
	a := sampleLotsResult()
	b := sampleLotsResult()
	b.Disposals[0].RealizedGain = dp("999")

	diffs := diffResults(a, b)
	if len(diffs) == 0 {
		t.Fatal("expected a diff when a disposal's realized gain drifts between runs")
	}
}

func TestDiffResultsCatchesDisposalCountDrift(t *testing.T) {
	a := sampleLotsResult()
	b := sampleLotsResult()
	b.Disposals = append(b.Disposals, b.Disposals[0])

	diffs := diffResults(a, b)
	if len(diffs) == 0 {
		t.Fatal("expected a diff when disposal counts differ between runs")
	}
}

func TestDiffResultsCatchesDisposalTermDrift(t *testing.T) {
	a := sampleLotsResult()
	b := sampleLotsResult()
	b.Disposals[0].Term = data.TermLT

	diffs := diffResults(a, b)
	if len(diffs) == 0 {
		t.Fatal("expected a diff when a disposal's term drifts between runs")
	}
}
