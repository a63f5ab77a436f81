package lots

import (
	"sort"
	"time"

	"backend/data"

	"github.com/shopspring/decimal"
)

const washWindowDays = 30

// applyWashSales implements §4.3.2: for each loss sale, enumerate BUYs
// (taxable accounts, substantially identical ticker) within
// [sale-30d, sale+30d] and match replacement shares earliest-first,
// increasing the replacement lot's basis by the deferred loss per share.
func (r *replayer) applyWashSales(allTxns []data.Transaction) {
	for _, loss := range r.lossSales {
		windowStart := loss.date.AddDate(0, 0, -washWindowDays)
		windowEnd := loss.date.AddDate(0, 0, washWindowDays)

		candidates := r.substantiallyIdenticalBuys(allTxns, loss.ticker, windowStart, windowEnd)
		sort.SliceStable(candidates, func(i, j int) bool {
			if !candidates[i].Date.Equal(candidates[j].Date) {
				return candidates[i].Date.Before(candidates[j].Date)
			}
			return candidates[i].ID < candidates[j].ID
		})

		remainingLoss := loss.qtyAtLoss
		for _, buy := range candidates {
			if remainingLoss.Sign() <= 0 {
				break
			}
			if buy.Qty == nil {
				continue
			}
			matchedQty := decimal.Min(remainingLoss, *buy.Qty)
			if matchedQty.Sign() <= 0 {
				continue
			}
			deferredLoss := loss.lossPerShare.Mul(matchedQty)

			status := data.WashApplied
			if buy.Date.After(r.asOf) {
				status = data.WashFlagged
			}

			var replacementLotIdx *int
			basisIncrease := decimal.Zero
			if idx, ok := r.lotIndexByTxnID[buy.ID]; ok {
				i := idx
				replacementLotIdx = &i
				if status == data.WashApplied {
					r.result.Lots[idx].BasisOpen = r.result.Lots[idx].BasisOpen.Add(deferredLoss)
					basisIncrease = deferredLoss
				}
			}

			buyID := buy.ID
			r.result.WashAdjustments = append(r.result.WashAdjustments, data.WashSaleAdjustment{
				LossSaleTxnID:       loss.sellTxnID,
				ReplacementBuyTxnID: &buyID,
				ReplacementLotID:    replacementLotIdx,
				DeferredLoss:        deferredLoss,
				BasisIncrease:       basisIncrease,
				WindowStart:         windowStart,
				WindowEnd:           windowEnd,
				Status:              status,
			})

			remainingLoss = remainingLoss.Sub(matchedQty)
		}
	}
}

// substantiallyIdenticalBuys restricts to TAXABLE-account BUYs (the taxable
// filter is already applied upstream by TaxableTransactionsForTaxpayer)
// whose ticker is identical or shares a non-null substitute_group_id with
// saleTicker, ported from
// original_source/src/core/wash_sale.py::substantially_identical.
func (r *replayer) substantiallyIdenticalBuys(allTxns []data.Transaction, saleTicker string, start, end time.Time) []data.Transaction {
	saleSec, err := r.resolver.Resolve(r.ctx, saleTicker)
	var saleGroup *int
	if err == nil && saleSec != nil {
		saleGroup = saleSec.SubstituteGroupID
	}

	var out []data.Transaction
	for _, tx := range allTxns {
		if tx.Type != data.TxnBuy || tx.Ticker == nil {
			continue
		}
		if tx.Date.Before(start) || tx.Date.After(end) {
			continue
		}
		ticker := *tx.Ticker
		if ticker == saleTicker {
			out = append(out, tx)
			continue
		}
		buySec, err := r.resolver.Resolve(r.ctx, ticker)
		if err != nil || buySec == nil || saleGroup == nil {
			continue
		}
		if buySec.SubstituteGroupID != nil && *buySec.SubstituteGroupID == *saleGroup {
			out = append(out, tx)
		}
	}
	return out
}
