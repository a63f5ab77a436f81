package lots

import (
	"context"
	"testing"
	"time"

	"backend/data"

	"github.com/shopspring/decimal"
)

type fakeResolver struct {
	bySecurityID map[string]data.Security
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{bySecurityID: map[string]data.Security{}}
}

func (f *fakeResolver) with(id int, ticker string, group *int) *fakeResolver {
	f.bySecurityID[ticker] = data.Security{ID: id, Ticker: ticker, SubstituteGroupID: group}
	return f
}

func (f *fakeResolver) Resolve(ctx context.Context, ticker string) (*data.Security, error) {
	sec, ok := f.bySecurityID[ticker]
	if !ok {
		return nil, nil
	}
	return &sec, nil
}

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

func qty(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func ticker(s string) *string { return &s }

// Scenario: simple FIFO realized gain, no wash sale, no split.
func TestReplayFIFOBasicGain(t *testing.T) {
	resolver := newFakeResolver().with(1, "AAPL", nil)
	txns := []data.Transaction{
		{ID: 1, AccountID: 10, Date: date("2024-01-10"), Type: data.TxnBuy, Ticker: ticker("AAPL"), Qty: qty("10"), Amount: d("-1000")},
		{ID: 2, AccountID: 10, Date: date("2024-06-01"), Type: data.TxnSell, Ticker: ticker("AAPL"), Qty: qty("4"), Amount: d("600")},
	}
	result, err := Replay(context.Background(), 1, txns, nil, resolver, date("2024-06-01"))
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if len(result.Disposals) != 1 {
		t.Fatalf("expected 1 disposal, got %d", len(result.Disposals))
	}
	disp := result.Disposals[0]
	if disp.Term != data.TermST {
		t.Errorf("expected ST term (under 365 days), got %s", disp.Term)
	}
	if !disp.RealizedGain.Equal(d("200")) {
		t.Errorf("expected realized gain 200, got %s", disp.RealizedGain)
	}
	if !result.Lots[0].QuantityOpen.Equal(d("6")) {
		t.Errorf("expected 6 shares remaining open, got %s", result.Lots[0].QuantityOpen)
	}
	if !result.Lots[0].BasisOpen.Equal(d("600")) {
		t.Errorf("expected 600 basis remaining open, got %s", result.Lots[0].BasisOpen)
	}
}

// Long-term/short-term boundary: exactly 365 days is LT, 364 is ST.
func TestReplayTermBoundary(t *testing.T) {
	resolver := newFakeResolver().with(1, "AAPL", nil)
	txns := []data.Transaction{
		{ID: 1, AccountID: 10, Date: date("2023-01-01"), Type: data.TxnBuy, Ticker: ticker("AAPL"), Qty: qty("10"), Amount: d("-1000")},
		{ID: 2, AccountID: 10, Date: date("2024-01-01"), Type: data.TxnSell, Ticker: ticker("AAPL"), Qty: qty("10"), Amount: d("1200")},
	}
	result, err := Replay(context.Background(), 1, txns, nil, resolver, date("2024-01-01"))
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if result.Disposals[0].Term != data.TermLT {
		t.Errorf("expected LT at exactly 365 days, got %s", result.Disposals[0].Term)
	}
}

// Scenario 3 from the end-to-end set: a 2:1 split leaves aggregate basis
// unchanged (so per-share basis halves), and a later partial sell consumes
// basis proportionally to the new per-share basis.
func TestReplaySplitPreservesAggregateBasis(t *testing.T) {
	resolver := newFakeResolver().with(1, "AAPL", nil)
	txns := []data.Transaction{
		{ID: 1, AccountID: 10, Date: date("2023-01-01"), Type: data.TxnBuy, Ticker: ticker("AAPL"), Qty: qty("10"), Amount: d("-1000")},
		{ID: 2, AccountID: 10, Date: date("2024-06-01"), Type: data.TxnSell, Ticker: ticker("AAPL"), Qty: qty("10"), Amount: d("1500")},
	}
	secID := 1
	ratio := d("2")
	corpActions := []data.CorporateActionEvent{
		{ID: 1, TaxpayerID: 1, SecurityID: &secID, ActionDate: date("2024-03-01"), ActionType: data.CorpActionSplit, Ratio: &ratio},
	}
	result, err := Replay(context.Background(), 1, txns, corpActions, resolver, date("2024-06-01"))
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	// After the split: qty_open=20, basis_open=1000 (aggregate unchanged).
	// Selling 10 of those 20 shares consumes half the basis: 500.
	if len(result.Disposals) != 1 {
		t.Fatalf("expected 1 disposal, got %d", len(result.Disposals))
	}
	if !result.Disposals[0].BasisAllocated.Equal(d("500")) {
		t.Errorf("expected basis allocated 500, got %s", result.Disposals[0].BasisAllocated)
	}
	if !result.Lots[0].QuantityOpen.Equal(d("10")) {
		t.Errorf("expected 10 shares remaining open after split+partial sell, got %s", result.Lots[0].QuantityOpen)
	}
	if !result.Lots[0].BasisOpen.Equal(d("500")) {
		t.Errorf("expected 500 basis remaining open, got %s", result.Lots[0].BasisOpen)
	}
}

// Insufficient lot history produces a placeholder lot with nil basis/gain
// and a warning, never phantom basis.
func TestReplaySellWithoutHistory(t *testing.T) {
	resolver := newFakeResolver().with(1, "AAPL", nil)
	txns := []data.Transaction{
		{ID: 1, AccountID: 10, Date: date("2024-01-01"), Type: data.TxnSell, Ticker: ticker("AAPL"), Qty: qty("5"), Amount: d("500")},
	}
	result, err := Replay(context.Background(), 1, txns, nil, resolver, date("2024-01-01"))
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if len(result.Disposals) != 1 {
		t.Fatalf("expected 1 disposal, got %d", len(result.Disposals))
	}
	disp := result.Disposals[0]
	if disp.Term != data.TermUnknown {
		t.Errorf("expected UNKNOWN term, got %s", disp.Term)
	}
	if disp.BasisAllocated != nil {
		t.Errorf("expected nil basis allocated, got %v", disp.BasisAllocated)
	}
	if len(result.Warnings) == 0 {
		t.Errorf("expected a warning about insufficient history")
	}
	if result.Lots[disp.TaxLotID].QuantityOpen.Sign() != 0 || result.Lots[disp.TaxLotID].BasisOpen.Sign() != 0 {
		t.Errorf("expected zero-qty zero-basis placeholder lot")
	}
}

// I6: lot conservation. Sum of open quantity plus sum of quantity sold
// equals sum of quantity bought, regardless of split/wash activity.
func TestInvariantLotConservation(t *testing.T) {
	resolver := newFakeResolver().with(1, "AAPL", nil)
	txns := []data.Transaction{
		{ID: 1, AccountID: 10, Date: date("2023-01-01"), Type: data.TxnBuy, Ticker: ticker("AAPL"), Qty: qty("10"), Amount: d("-1000")},
		{ID: 2, AccountID: 10, Date: date("2023-06-01"), Type: data.TxnSell, Ticker: ticker("AAPL"), Qty: qty("3"), Amount: d("250")},
		{ID: 3, AccountID: 10, Date: date("2023-07-01"), Type: data.TxnBuy, Ticker: ticker("AAPL"), Qty: qty("5"), Amount: d("450")},
		{ID: 4, AccountID: 10, Date: date("2023-12-01"), Type: data.TxnSell, Ticker: ticker("AAPL"), Qty: qty("4"), Amount: d("380")},
	}
	result, err := Replay(context.Background(), 1, txns, nil, resolver, date("2023-12-01"))
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	boughtQty := d("15")
	soldQty := decimal.Zero
	for _, disp := range result.Disposals {
		soldQty = soldQty.Add(disp.QuantitySold)
	}
	openQty := decimal.Zero
	for _, lot := range result.Lots {
		openQty = openQty.Add(lot.QuantityOpen)
	}
	if !openQty.Add(soldQty).Equal(boughtQty) {
		t.Errorf("lot conservation violated: open=%s sold=%s bought=%s", openQty, soldQty, boughtQty)
	}
}

// Scenario 2: a loss sale followed by a replacement buy inside the window
// is matched and defers the loss onto the replacement lot's basis (I7).
func TestWashSaleAppliedIncreasesReplacementBasis(t *testing.T) {
	resolver := newFakeResolver().with(1, "AAPL", nil)
	txns := []data.Transaction{
		{ID: 1, AccountID: 10, Date: date("2024-01-01"), Type: data.TxnBuy, Ticker: ticker("AAPL"), Qty: qty("10"), Amount: d("-1000")},
		{ID: 2, AccountID: 10, Date: date("2024-02-01"), Type: data.TxnSell, Ticker: ticker("AAPL"), Qty: qty("10"), Amount: d("700")},
		{ID: 3, AccountID: 10, Date: date("2024-02-15"), Type: data.TxnBuy, Ticker: ticker("AAPL"), Qty: qty("10"), Amount: d("-750")},
	}
	result, err := Replay(context.Background(), 1, txns, nil, resolver, date("2024-03-01"))
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if len(result.WashAdjustments) != 1 {
		t.Fatalf("expected 1 wash adjustment, got %d", len(result.WashAdjustments))
	}
	adj := result.WashAdjustments[0]
	if adj.Status != data.WashApplied {
		t.Errorf("expected APPLIED, got %s", adj.Status)
	}
	// loss = 1000 - 700 = 300, fully matched against the 10-share replacement buy.
	if !adj.DeferredLoss.Equal(d("300")) {
		t.Errorf("expected deferred loss 300, got %s", adj.DeferredLoss)
	}
	if adj.ReplacementLotID == nil {
		t.Fatalf("expected a resolved replacement lot index")
	}
	replacementLot := result.Lots[*adj.ReplacementLotID]
	if !replacementLot.BasisOpen.Equal(d("1050")) {
		t.Errorf("expected replacement lot basis 750+300=1050, got %s", replacementLot.BasisOpen)
	}

	totalBasisIncrease := decimal.Zero
	for _, a := range result.WashAdjustments {
		if a.Status == data.WashApplied {
			totalBasisIncrease = totalBasisIncrease.Add(a.BasisIncrease)
		}
	}
	totalDeferredLoss := decimal.Zero
	for _, a := range result.WashAdjustments {
		totalDeferredLoss = totalDeferredLoss.Add(a.DeferredLoss)
	}
	if !totalBasisIncrease.Equal(totalDeferredLoss) {
		t.Errorf("I7 violated: basis increase %s != deferred loss %s", totalBasisIncrease, totalDeferredLoss)
	}
}

// A replacement buy dated after asOf is FLAGGED, not APPLIED: informational
// only, basis must not change (keeps I7's APPLIED-only sum intact).
func TestWashSaleFlaggedWhenReplacementAfterAsOf(t *testing.T) {
	resolver := newFakeResolver().with(1, "AAPL", nil)
	txns := []data.Transaction{
		{ID: 1, AccountID: 10, Date: date("2024-01-01"), Type: data.TxnBuy, Ticker: ticker("AAPL"), Qty: qty("10"), Amount: d("-1000")},
		{ID: 2, AccountID: 10, Date: date("2024-02-01"), Type: data.TxnSell, Ticker: ticker("AAPL"), Qty: qty("10"), Amount: d("700")},
		{ID: 3, AccountID: 10, Date: date("2024-02-20"), Type: data.TxnBuy, Ticker: ticker("AAPL"), Qty: qty("10"), Amount: d("-750")},
	}
	// asOf is before the replacement buy's date: it is still in-window but
	// represents a proposed/future trade relative to "now".
	result, err := Replay(context.Background(), 1, txns, nil, resolver, date("2024-02-10"))
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if len(result.WashAdjustments) != 1 {
		t.Fatalf("expected 1 wash adjustment, got %d", len(result.WashAdjustments))
	}
	adj := result.WashAdjustments[0]
	if adj.Status != data.WashFlagged {
		t.Errorf("expected FLAGGED, got %s", adj.Status)
	}
	if !adj.BasisIncrease.IsZero() {
		t.Errorf("expected zero basis increase for FLAGGED adjustment, got %s", adj.BasisIncrease)
	}
	replacementLot := result.Lots[*adj.ReplacementLotID]
	if !replacementLot.BasisOpen.Equal(d("750")) {
		t.Errorf("expected replacement lot basis untouched at 750, got %s", replacementLot.BasisOpen)
	}
}

// Substitute-group matching: a loss sale in one ticker can be wash-matched
// against a buy in a different, substantially identical ticker.
func TestWashSaleMatchesAcrossSubstituteGroup(t *testing.T) {
	group := 5
	resolver := newFakeResolver().with(1, "VOO", &group).with(2, "IVV", &group)
	txns := []data.Transaction{
		{ID: 1, AccountID: 10, Date: date("2024-01-01"), Type: data.TxnBuy, Ticker: ticker("VOO"), Qty: qty("10"), Amount: d("-4000")},
		{ID: 2, AccountID: 10, Date: date("2024-02-01"), Type: data.TxnSell, Ticker: ticker("VOO"), Qty: qty("10"), Amount: d("3700")},
		{ID: 3, AccountID: 10, Date: date("2024-02-10"), Type: data.TxnBuy, Ticker: ticker("IVV"), Qty: qty("10"), Amount: d("-3750")},
	}
	result, err := Replay(context.Background(), 1, txns, nil, resolver, date("2024-03-01"))
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if len(result.WashAdjustments) != 1 {
		t.Fatalf("expected cross-ticker wash match within substitute group, got %d adjustments", len(result.WashAdjustments))
	}
}

// I4: rebuilding from the same inputs twice is fully deterministic.
func TestReplayDeterministic(t *testing.T) {
	resolver := newFakeResolver().with(1, "AAPL", nil)
	txns := []data.Transaction{
		{ID: 1, AccountID: 10, Date: date("2023-01-01"), Type: data.TxnBuy, Ticker: ticker("AAPL"), Qty: qty("10"), Amount: d("-1000")},
		{ID: 2, AccountID: 10, Date: date("2023-06-01"), Type: data.TxnSell, Ticker: ticker("AAPL"), Qty: qty("4"), Amount: d("300")},
	}
	r1, err := Replay(context.Background(), 1, txns, nil, resolver, date("2023-06-01"))
	if err != nil {
		t.Fatalf("replay 1 failed: %v", err)
	}
	r2, err := Replay(context.Background(), 1, txns, nil, resolver, date("2023-06-01"))
	if err != nil {
		t.Fatalf("replay 2 failed: %v", err)
	}
	if len(r1.Lots) != len(r2.Lots) || len(r1.Disposals) != len(r2.Disposals) {
		t.Fatalf("non-deterministic replay: lots %d/%d disposals %d/%d",
			len(r1.Lots), len(r2.Lots), len(r1.Disposals), len(r2.Disposals))
	}
	for i := range r1.Disposals {
		if !r1.Disposals[i].RealizedGain.Equal(*r2.Disposals[i].RealizedGain) {
			t.Errorf("disposal %d realized gain differs across replays", i)
		}
	}
}
