package ingest

import (
	"fmt"

	"github.com/google/uuid"
)

// providerIDNamespace anchors the deterministic synthetic provider-txn-id
// namespace (spec §4.1 step 4: "synthesize a deterministic hash over
// (account, date, type, signed amount, normalized description)").
// uuid.NewSHA1 over a fixed namespace + the tuple gives a stable,
// collision-resistant id without inventing a bespoke hash scheme.
var providerIDNamespace = uuid.MustParse("7a5e3b7e-7f0d-4c4a-9b0e-2a2d6b9f0a10")

func SynthesizeProviderTxnID(accountID int, date, txnType, signedAmount, normalizedDescription string) string {
	name := fmt.Sprintf("%d|%s|%s|%s|%s", accountID, date, txnType, signedAmount, normalizedDescription)
	return uuid.NewSHA1(providerIDNamespace, []byte(name)).String()
}

// ProviderTxnID returns the provider's own id if supplied, otherwise a
// synthesized one — the tuple (connection_id, provider_txn_id) is the
// upsert key regardless of which path produced it.
func ProviderTxnID(row RawRow, normalizedDescription string, signedAmount string) string {
	if row.ProviderTxnID != "" {
		return row.ProviderTxnID
	}
	return SynthesizeProviderTxnID(row.AccountID, row.Date, string(classifyForID(row)), signedAmount, normalizedDescription)
}

// classifyForID is a thin indirection so identity synthesis sees the same
// classification Classify would produce, without importing a cycle.
func classifyForID(row RawRow) string {
	t, _ := Classify(row)
	return string(t)
}
