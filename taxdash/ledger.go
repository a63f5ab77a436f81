package taxdash

import (
	"context"
	"fmt"
	"time"

	"backend/data"
	"backend/ingest"

	"github.com/shopspring/decimal"
)

func monthIndex(d time.Time) int { return int(d.Month()) - 1 }

func txnText(tx data.Transaction) string {
	text := tx.Links.Description + " " + tx.Links.AdditionalDetail
	if tx.Ticker != nil {
		text += " " + *tx.Ticker
	}
	return text
}

// isDivIntWithholding restates
// original_source/src/core/taxes.py::_is_div_int_withholding_tx: a
// negative DIV/INT row whose description reads as a withholding line item
// (e.g. foreign tax withheld on a dividend) is counted as withholding, not
// income.
func isDivIntWithholding(tx data.Transaction) bool {
	if tx.Amount.Sign() >= 0 {
		return false
	}
	return ingest.LooksLikeWithholding(txnText(tx))
}

// IRAFlowsByMonth implements §4.4.2's IRA tagging rule: TRANSFER/WITHHOLDING
// rows in an IRA account are IRA_DISTRIBUTION unless they look like an
// internal transfer or withholding, in which case withholding is split out;
// dividend-looking rows are never counted as distributions.
func IRAFlowsByMonth(accountType data.AccountType, txns []data.Transaction) (dist, withh [12]decimal.Decimal) {
	for _, tx := range txns {
		text := txnText(tx)
		if ingest.LooksLikeDividend(text) {
			continue
		}
		amt := tx.Amount.Abs()
		m := monthIndex(tx.Date)
		if ingest.LooksLikeWithholding(text) {
			withh[m] = withh[m].Add(amt)
			continue
		}
		if (tx.Type == data.TxnTransfer || tx.Type == data.TxnWithholding) && !ingest.IsInternalTransferLike(text) {
			dist[m] = dist[m].Add(amt)
		}
	}
	return dist, withh
}

// DivIntByMonth sums DIV or INT transactions into a monthly series, folding
// out withholding-like rows when excludeWithholding is set (§4.4.2's
// "Dividends/Interest" rule, restated without the Python original's
// IncomeEvent dedup layer since this schema has no separate IncomeEvent
// table — Transaction rows are the sole income source here).
func DivIntByMonth(txns []data.Transaction, txnType data.TxnType, excludeWithholding bool) [12]decimal.Decimal {
	var out [12]decimal.Decimal
	for _, tx := range txns {
		if tx.Type != txnType {
			continue
		}
		if excludeWithholding && isDivIntWithholding(tx) {
			continue
		}
		out[monthIndex(tx.Date)] = out[monthIndex(tx.Date)].Add(tx.Amount)
	}
	return out
}

// WithholdingByMonth sums explicit WITHHOLDING rows plus withholding-like
// negative DIV/INT rows, per §4.4.2.
func WithholdingByMonth(txns []data.Transaction) [12]decimal.Decimal {
	var out [12]decimal.Decimal
	for _, tx := range txns {
		switch {
		case tx.Type == data.TxnWithholding:
			out[monthIndex(tx.Date)] = out[monthIndex(tx.Date)].Add(tx.Amount.Abs())
		case (tx.Type == data.TxnDiv || tx.Type == data.TxnInt) && isDivIntWithholding(tx):
			out[monthIndex(tx.Date)] = out[monthIndex(tx.Date)].Add(tx.Amount.Abs())
		}
	}
	return out
}

// TaggedByMonth sums the amount of every row in rows into its transaction
// month, used for TaxTag-categorized withholding/fees/estimated-payment/
// business-income totals (§4.4.2).
func TaggedByMonth(rows []data.Transaction) [12]decimal.Decimal {
	var out [12]decimal.Decimal
	for _, tx := range rows {
		out[monthIndex(tx.Date)] = out[monthIndex(tx.Date)].Add(tx.Amount.Abs())
	}
	return out
}

// CapitalGainsByMonth implements §4.4.2's capital-gains rule: per
// (account, ticker), AUTHORITATIVE (broker-supplied closed-lot) rows are
// used when present; RECONSTRUCTED (C4 FIFO) rows are used only for
// account/ticker pairs with no authoritative rows at all, so the two
// sources are never double counted.
func CapitalGainsByMonth(ctx context.Context, conn *data.Conn, accountIDs []int, start, end time.Time) (st, lt [12]decimal.Decimal, warnings []string, err error) {
	rows, err := conn.DisposalsForTaxpayer(ctx, accountIDs, start, end)
	if err != nil {
		return st, lt, nil, fmt.Errorf("loading disposals: %w", err)
	}

	hasAuthoritative := map[string]bool{}
	for _, r := range rows {
		if r.Source == data.LotAuthoritative {
			hasAuthoritative[fmt.Sprintf("%d|%s", r.AccountID, r.Ticker)] = true
		}
	}

	for _, r := range rows {
		key := fmt.Sprintf("%d|%s", r.AccountID, r.Ticker)
		if hasAuthoritative[key] && r.Source != data.LotAuthoritative {
			continue // a reconstructed row where an authoritative one also exists
		}
		if r.RealizedGain == nil {
			warnings = append(warnings, fmt.Sprintf("disposal %d has unresolved basis, excluded from capital gains total", r.ID))
			continue
		}
		idx := monthIndex(r.AsOfDate)
		if r.Term == data.TermLT {
			lt[idx] = lt[idx].Add(*r.RealizedGain)
		} else {
			st[idx] = st[idx].Add(*r.RealizedGain)
		}
	}
	return st, lt, warnings, nil
}

// BusinessIncomeByMonth implements §4.4.2's business-income synthesis: when
// the profile's manual net_profit is zero but tagged business income
// exists, synthesize net = gross - tagged expenses, falling back to
// gross*(1-expense_ratio) when no expenses were tagged at all.
func BusinessIncomeByMonth(profile data.TaxProfile, grossByMonth, expensesByMonth [12]decimal.Decimal) [12]decimal.Decimal {
	var out [12]decimal.Decimal
	if profile.BusinessNetProfit.Sign() != 0 {
		return distributeEvenly(profile.BusinessNetProfit)
	}
	anyGross := sumMonths(grossByMonth).Sign() != 0
	if !anyGross {
		return out
	}
	anyExpense := sumMonths(expensesByMonth).Sign() != 0
	for i := range out {
		if anyExpense {
			out[i] = grossByMonth[i].Sub(expensesByMonth[i])
		} else {
			out[i] = grossByMonth[i].Mul(decimal.NewFromFloat(1 - profile.BusinessExpenseRatio))
		}
	}
	return out
}
