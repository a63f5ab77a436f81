package connprefs

import (
	"testing"

	"backend/data"
)

func TestSelectBrokerIBPrefersWeb(t *testing.T) {
	conns := []data.ExternalConnection{
		{ID: 1, Broker: "IB", Connector: "IB_FLEX_OFFLINE"},
		{ID: 2, Broker: "IB", Connector: "IB_FLEX_WEB"},
	}
	selected := map[int]bool{}
	selectBroker(selected, conns, func(c data.ExternalConnection) bool {
		return c.Connector == "IB_FLEX_WEB"
	})
	if len(selected) != 1 || !selected[2] {
		t.Fatalf("expected only connection 2 selected, got %v", selected)
	}
}

func TestSelectBrokerIBFallsBackWhenNoWeb(t *testing.T) {
	conns := []data.ExternalConnection{
		{ID: 1, Broker: "IB", Connector: "IB_FLEX_OFFLINE"},
	}
	selected := map[int]bool{}
	selectBroker(selected, conns, func(c data.ExternalConnection) bool {
		return c.Connector == "IB_FLEX_WEB"
	})
	if !selected[1] {
		t.Fatalf("expected fallback to include connection 1, got %v", selected)
	}
}

func TestDedupeByProviderTxn(t *testing.T) {
	pa := "U1"
	pt := "X"
	mkTxn := func(id int) data.Transaction {
		return data.Transaction{
			ID: id,
			Links: data.TxnLinks{
				ProviderAccountID: &pa,
				ProviderTxnID:     &pt,
			},
		}
	}
	txns := []data.Transaction{mkTxn(10), mkTxn(11)}
	out := DedupeByProviderTxn(txns)
	if len(out) != 1 {
		t.Fatalf("expected exactly one deduped transaction, got %d", len(out))
	}
}
