package lots

import (
	"fmt"

	"backend/data"

	"github.com/shopspring/decimal"
)

// applyCorpAction implements §4.3.1's SPLIT/REVERSE_SPLIT/MERGER handling
// and the §9 open-question resolution: a split/reverse-split multiplies
// every affected open lot's quantity by ratio while leaving aggregate
// basis_open unchanged, so basis-per-share scales by 1/ratio automatically.
// A merger substitutes the security id (and applies a ratio if given),
// reducing each affected lot's basis by any cash-in-lieu component. When
// that would drive basis negative, basis is clamped at zero and the excess
// is reported as a warning only; no gain or disposal row is recorded.
func (r *replayer) applyCorpAction(ev data.CorporateActionEvent) error {
	switch ev.ActionType {
	case data.CorpActionSplit, data.CorpActionReverseSplit:
		return r.applySplit(ev)
	case data.CorpActionMerger:
		return r.applyMerger(ev)
	}
	return nil
}

func (r *replayer) applySplit(ev data.CorporateActionEvent) error {
	if ev.SecurityID == nil || ev.Ratio == nil {
		r.result.Warnings = append(r.result.Warnings, fmt.Sprintf("corporate action %d missing security/ratio, skipped", ev.ID))
		return nil
	}
	ticker := r.tickerForSecurityID(*ev.SecurityID)
	if ticker == "" {
		r.result.Warnings = append(r.result.Warnings, fmt.Sprintf("corporate action %d references unresolvable security %d, skipped", ev.ID, *ev.SecurityID))
		return nil
	}
	ratio := *ev.Ratio
	for key, queue := range r.open {
		if ev.AccountID != nil && !keyHasAccount(key, *ev.AccountID) {
			continue
		}
		if !keyHasTicker(key, ticker) {
			continue
		}
		for _, lot := range queue {
			lot.qtyOpen = lot.qtyOpen.Mul(ratio)
			// basis_open left unchanged: aggregate basis is preserved across the
			// split, so per-share basis divides by ratio for free.
			r.syncLot(lot)
		}
	}
	return nil
}

func (r *replayer) applyMerger(ev data.CorporateActionEvent) error {
	if ev.SecurityID == nil {
		r.result.Warnings = append(r.result.Warnings, fmt.Sprintf("merger %d missing source security, skipped", ev.ID))
		return nil
	}
	ticker := r.tickerForSecurityID(*ev.SecurityID)
	if ticker == "" {
		r.result.Warnings = append(r.result.Warnings, fmt.Sprintf("merger %d references unresolvable security %d, skipped", ev.ID, *ev.SecurityID))
		return nil
	}

	newSecurityID, hasNewSecurity := intFromDetails(ev.Details, "new_security_id")
	newTicker := ""
	if hasNewSecurity {
		newTicker = r.tickerForSecurityID(newSecurityID)
	}
	ratio := decimal.NewFromInt(1)
	if rv, ok := floatFromDetails(ev.Details, "ratio"); ok {
		ratio = decimal.NewFromFloat(rv)
	}
	var cashInLieu decimal.Decimal
	if cv, ok := floatFromDetails(ev.Details, "cash_in_lieu"); ok {
		cashInLieu = decimal.NewFromFloat(cv)
	}

	for key, queue := range r.open {
		if ev.AccountID != nil && !keyHasAccount(key, *ev.AccountID) {
			continue
		}
		if !keyHasTicker(key, ticker) {
			continue
		}
		for _, lot := range queue {
			lot.qtyOpen = lot.qtyOpen.Mul(ratio)
			if cashInLieu.Sign() > 0 {
				remainingBasis := lot.basisOpen.Sub(cashInLieu)
				if remainingBasis.Sign() < 0 {
					gain := remainingBasis.Abs()
					r.result.Warnings = append(r.result.Warnings,
						fmt.Sprintf("merger %d: cash-in-lieu exceeded lot basis, recognized gain %s not booked as a disposal (no sell transaction backs it)", ev.ID, gain))
					remainingBasis = decimal.Zero
				}
				lot.basisOpen = remainingBasis
			}
			if newTicker != "" {
				lot.ticker = newTicker
				r.result.Lots[lot.index].SecurityID = newSecurityID
			}
			r.syncLot(lot)
		}
		if newTicker != "" {
			newKey := lotKey(accountIDFromKey(key), newTicker)
			r.open[newKey] = append(r.open[newKey], queue...)
			delete(r.open, key)
		}
	}
	return nil
}

func (r *replayer) tickerForSecurityID(id int) string {
	for ticker, cached := range r.securityIDCache {
		if cached == id {
			return ticker
		}
	}
	return ""
}

func intFromDetails(details map[string]any, key string) (int, bool) {
	v, ok := details[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64) // JSON numbers decode as float64
	if !ok {
		return 0, false
	}
	return int(f), true
}

func floatFromDetails(details map[string]any, key string) (float64, bool) {
	v, ok := details[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

func keyHasAccount(key string, accountID int) bool {
	prefix := fmt.Sprintf("%d|", accountID)
	return len(key) >= len(prefix) && key[:len(prefix)] == prefix
}

func keyHasTicker(key, ticker string) bool {
	suffix := "|" + ticker
	return len(key) >= len(suffix) && key[len(key)-len(suffix):] == suffix
}

func accountIDFromKey(key string) int {
	var accountID int
	fmt.Sscanf(key, "%d|", &accountID)
	return accountID
}
