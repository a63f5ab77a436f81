package ingest

import (
	"testing"

	"backend/data"

	"github.com/shopspring/decimal"
)

func TestNormalizeSignBuyOK(t *testing.T) {
	qty := decimal.NewFromInt(10)
	amt := decimal.NewFromInt(-1000)
	_, _, err := NormalizeSign(data.TxnBuy, amt, &qty)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNormalizeSignBuyRejectsPositiveAmount(t *testing.T) {
	qty := decimal.NewFromInt(10)
	amt := decimal.NewFromInt(1000)
	if _, _, err := NormalizeSign(data.TxnBuy, amt, &qty); err == nil {
		t.Fatalf("expected sign mismatch error for BUY with positive amount")
	}
}

func TestNormalizeSignSellRejectsNegativeAmount(t *testing.T) {
	qty := decimal.NewFromInt(10)
	amt := decimal.NewFromInt(-500)
	if _, _, err := NormalizeSign(data.TxnSell, amt, &qty); err == nil {
		t.Fatalf("expected sign mismatch error for SELL with negative amount")
	}
}

func TestNormalizeSignSellAcceptsNegativeQtyFromSignFallback(t *testing.T) {
	// Classify's sign-fallback branch (qtySign<0, amtSign>0) is the
	// canonical SELL shape brokers actually emit; NormalizeSign must
	// accept it and store qty as a positive magnitude, not reject it.
	qty := decimal.NewFromInt(-10)
	amt := decimal.NewFromInt(500)
	_, outQty, err := NormalizeSign(data.TxnSell, amt, &qty)
	if err != nil {
		t.Fatalf("unexpected error for sign-fallback SELL: %v", err)
	}
	if outQty == nil || !outQty.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected qty normalized to positive magnitude 10, got %v", outQty)
	}
}

func TestClassifyThenNormalizeSignRoundTripsSignFallbackSell(t *testing.T) {
	qty := decimal.NewFromInt(-10)
	row := RawRow{Qty: &qty, Amount: decimal.NewFromInt(500)}
	txnType, _ := Classify(row)
	if txnType != data.TxnSell {
		t.Fatalf("expected Classify to produce SELL via sign fallback, got %v", txnType)
	}
	_, outQty, err := NormalizeSign(txnType, row.Amount, row.Qty)
	if err != nil {
		t.Fatalf("unexpected error ingesting classified SELL: %v", err)
	}
	if outQty == nil || !outQty.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected qty normalized to positive magnitude 10, got %v", outQty)
	}
}

func TestNormalizeSignWithholdingForcedPositive(t *testing.T) {
	amt := decimal.NewFromInt(-50)
	out, _, err := NormalizeSign(data.TxnWithholding, amt, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected WITHHOLDING stored as positive magnitude, got %s", out)
	}
}
