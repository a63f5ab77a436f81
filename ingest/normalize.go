package ingest

import (
	"fmt"

	"backend/data"

	"github.com/shopspring/decimal"
)

// NormalizeSign enforces spec §3 I2/I3: BUY/SELL store qty as a positive
// magnitude with cash on the opposite side (qty sign is a provider detail,
// not the canonical convention), WITHHOLDING is stored as a positive
// magnitude. Classify's sign-fallback branch (§4.1 step 2) is the
// canonical source of a SELL with negative qty, so this only validates
// cash-vs-qty direction rather than requiring the provider to have
// already supplied a positive qty. Returns an error (an "invariant
// violation", §7) rather than silently flipping a sign the other way —
// the caller rejects and flags the row instead of repairing it.
func NormalizeSign(txnType data.TxnType, amount decimal.Decimal, qty *decimal.Decimal) (decimal.Decimal, *decimal.Decimal, error) {
	switch txnType {
	case data.TxnBuy:
		if qty == nil || qty.Sign() == 0 {
			return amount, qty, fmt.Errorf("BUY row missing qty")
		}
		if amount.Sign() >= 0 {
			return amount, qty, fmt.Errorf("BUY row has non-negative amount %s: sign mismatch", amount)
		}
		abs := qty.Abs()
		return amount, &abs, nil
	case data.TxnSell:
		if qty == nil || qty.Sign() == 0 {
			return amount, qty, fmt.Errorf("SELL row missing qty")
		}
		if amount.Sign() <= 0 {
			return amount, qty, fmt.Errorf("SELL row has non-positive amount %s: sign mismatch", amount)
		}
		abs := qty.Abs()
		return amount, &abs, nil
	case data.TxnWithholding:
		return amount.Abs(), qty, nil
	default:
		return amount, qty, nil
	}
}
