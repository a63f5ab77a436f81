package ingest

import (
	"testing"

	"backend/data"

	"github.com/shopspring/decimal"
)

func TestClassifyExplicitCategory(t *testing.T) {
	row := RawRow{ProviderCategory: "Deposit", Description: "ACH deposit"}
	got, internal := Classify(row)
	if got != data.TxnTransfer || internal {
		t.Fatalf("expected TRANSFER, got %v internal=%v", got, internal)
	}
}

func TestClassifyADRFeeOverride(t *testing.T) {
	row := RawRow{Description: "ADR FEE ADJUSTMENT"}
	got, _ := Classify(row)
	if got != data.TxnDiv {
		t.Fatalf("expected ADR FEE to classify as DIV, got %v", got)
	}
}

func TestClassifyForeignTaxWithheldOverride(t *testing.T) {
	row := RawRow{Description: "FOREIGN TAX WITHHELD ON DIVIDEND"}
	got, _ := Classify(row)
	if got != data.TxnWithholding {
		t.Fatalf("expected FOREIGN TAX WITHHELD to classify as WITHHOLDING, got %v", got)
	}
}

func TestClassifyInternalTransferFilter(t *testing.T) {
	row := RawRow{Description: "DEPOSIT SWEEP INTO MMF"}
	got, internal := Classify(row)
	if !internal || got != data.TxnOther {
		t.Fatalf("expected internal transfer classified OTHER, got %v internal=%v", got, internal)
	}
}

func TestClassifySignFallback(t *testing.T) {
	qty := decimal.NewFromInt(-10)
	row := RawRow{Description: "SOME OPAQUE CODE", Qty: &qty, Amount: decimal.NewFromInt(1000)}
	got, _ := Classify(row)
	if got != data.TxnSell {
		t.Fatalf("expected sign fallback to SELL, got %v", got)
	}
}

func TestClassifyUnrecognizedFallsToOther(t *testing.T) {
	row := RawRow{Description: "UNKNOWN ENTRY"}
	got, _ := Classify(row)
	if got != data.TxnOther {
		t.Fatalf("expected OTHER, got %v", got)
	}
}

func TestShouldReclassifyUpgradesFromOther(t *testing.T) {
	if !ShouldReclassify(data.TxnOther, data.TxnDiv) {
		t.Fatalf("expected OTHER -> DIV to be an upgrade")
	}
}

func TestShouldReclassifyNeverDowngradesToOther(t *testing.T) {
	if ShouldReclassify(data.TxnDiv, data.TxnOther) {
		t.Fatalf("specific classification must never be downgraded to OTHER")
	}
}

func TestShouldReclassifySpecificToSpecificNoop(t *testing.T) {
	if ShouldReclassify(data.TxnDiv, data.TxnInt) {
		t.Fatalf("equally-specific reclassification should not be automatic")
	}
}
