// Package ingest is the canonical ingestion & normalization pipeline (C2,
// spec §4.1): turns heterogeneous per-connector payloads into canonical
// Transaction/HoldingSnapshot/CashBalance rows, assigns provider
// identities, and dedupes across connectors.
package ingest

import (
	"strings"

	"backend/data"

	"github.com/shopspring/decimal"
)

// RawRow is what every connector parser produces before classification:
// spec §9's "strongly-typed per-connector row structs plus a generic raw
// side-table for audit" — the side-table half lives in Links.AdditionalDetail.
type RawRow struct {
	AccountID        int
	Date             string // ISO yyyy-mm-dd, already normalized by the connector parser
	ProviderCategory string // e.g. "Deposit", "Withdrawal", "" if unknown
	Description      string
	AdditionalDetail string
	Ticker           string
	Qty              *decimal.Decimal
	Amount           decimal.Decimal
	ProviderTxnID    string // "" if the provider doesn't supply a stable id
}

// internalTransferTokens is the internal-transfer filter keyword set from
// spec §4.1 step 2, grounded verbatim on
// original_source/src/core/taxes.py::_is_internal_transfer_like_links.
var internalTransferTokens = []string{
	"DEPOSIT SWEEP",
	"SHADO",
	"REC FR SIS",
	"REC TRSF SIS",
	"TRSF SIS",
}

// IsInternalTransferLike is exported so taxdash can apply the same filter
// when deciding whether a TRANSFER/WITHHOLDING row in an IRA or trust
// account is a real distribution or just an internal cash sweep.
func IsInternalTransferLike(text string) bool {
	t := strings.ToUpper(text)
	for _, tok := range internalTransferTokens {
		if strings.Contains(t, tok) {
			return true
		}
	}
	if strings.Contains(t, "FX") && (strings.Contains(t, "SETTLEMENT") || strings.Contains(t, "TRAD")) {
		return true
	}
	return false
}

var withholdingTokens = []string{
	"WITHHOLD", "WITHHOLDING", "WITHHELD", "W/H", "FEDERAL W/H", "STATE W/H", "FOREIGN TAX", "TAX WITHHOLD",
}

// LooksLikeWithholding is exported for taxdash's IRA_WITHHOLDING tagging.
func LooksLikeWithholding(text string) bool {
	t := strings.ToUpper(text)
	for _, tok := range withholdingTokens {
		if strings.Contains(t, tok) {
			return true
		}
	}
	return false
}

var dividendTokens = []string{
	"DIV", "DIVIDEND", "CASH DIV", "FOREIGN TAX WITHHELD", "ADR",
}

// LooksLikeDividend is exported for taxdash's IRA distribution-vs-dividend
// disambiguation.
func LooksLikeDividend(text string) bool {
	t := strings.ToUpper(text)
	for _, tok := range dividendTokens {
		if strings.Contains(t, tok) {
			return true
		}
	}
	return false
}

var interestTokens = []string{"INTEREST", "INT ON", "ACCT INTEREST"}

func looksLikeInterest(text string) bool {
	t := strings.ToUpper(text)
	for _, tok := range interestTokens {
		if strings.Contains(t, tok) {
			return true
		}
	}
	return false
}

var feeTokens = []string{"FEE", "COMMISSION", "SERVICE CHARGE"}

func looksLikeFee(text string) bool {
	t := strings.ToUpper(text)
	for _, tok := range feeTokens {
		if strings.Contains(t, tok) {
			return true
		}
	}
	return false
}

// Classify applies the decision procedure of spec §4.1 step 2 in order:
// explicit provider category, description keywords (with the named
// overrides), then sign-of-qty/sign-of-cash fallback. Returns the
// canonical type and whether the row was recognized as an internal
// transfer (excluded from cashflow summaries downstream).
func Classify(row RawRow) (data.TxnType, bool) {
	text := row.Description + " " + row.AdditionalDetail

	if IsInternalTransferLike(text) {
		return data.TxnOther, true
	}

	switch strings.ToUpper(strings.TrimSpace(row.ProviderCategory)) {
	case "DEPOSIT", "WITHDRAWAL":
		return data.TxnTransfer, false
	}

	// "ADR FEE" on a dividend row is still income, not a fee.
	if strings.Contains(strings.ToUpper(text), "ADR FEE") {
		return data.TxnDiv, false
	}
	// "FOREIGN TAX WITHHELD" takes priority over the dividend keyword
	// match even though "WITHHELD" also appears in dividendTokens, per
	// spec §4.1 step 2's named override.
	if strings.Contains(strings.ToUpper(text), "FOREIGN TAX WITHHELD") {
		return data.TxnWithholding, false
	}
	if LooksLikeWithholding(text) {
		return data.TxnWithholding, false
	}
	if LooksLikeDividend(text) {
		return data.TxnDiv, false
	}
	if looksLikeInterest(text) {
		return data.TxnInt, false
	}
	if looksLikeFee(text) {
		return data.TxnFee, false
	}

	if row.Qty != nil {
		qtySign := row.Qty.Sign()
		amtSign := row.Amount.Sign()
		if qtySign < 0 && amtSign > 0 {
			return data.TxnSell, false
		}
		if qtySign > 0 && amtSign < 0 {
			return data.TxnBuy, false
		}
	}

	return data.TxnOther, false
}

// specificityRank orders classifications from least to most specific, per
// spec §4.1 step 5: "update... only if the prior classification was
// strictly less-specific (OTHER < specific)".
var specificityRank = map[data.TxnType]int{
	data.TxnOther:       0,
	data.TxnTransfer:    1,
	data.TxnFee:         1,
	data.TxnInt:         1,
	data.TxnDiv:         1,
	data.TxnWithholding: 1,
	data.TxnBuy:         1,
	data.TxnSell:        1,
}

// ShouldReclassify implements the upsert specificity rule: never
// specific -> OTHER, and only OTHER -> specific is an automatic upgrade.
func ShouldReclassify(prior, proposed data.TxnType) bool {
	return specificityRank[proposed] > specificityRank[prior]
}
