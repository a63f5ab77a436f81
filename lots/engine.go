// Package lots is the reconstructed tax-lot / wash-sale / corporate-action
// engine (C4, spec §4.3): replays a taxpayer's taxable transaction stream
// into FIFO open lots and realized disposals, then layers wash-sale
// deferred-loss adjustments and corporate-action basis changes on top.
package lots

import (
	"context"
	"fmt"
	"sort"
	"time"

	"backend/data"

	"github.com/shopspring/decimal"
)

// SecurityResolver looks up a ticker's Security row, including its
// substitute_group_id for wash-sale "substantially identical" matching.
// Grounded on original_source/src/core/wash_sale.py::substantially_identical.
type SecurityResolver interface {
	Resolve(ctx context.Context, ticker string) (*data.Security, error)
}

// Result is the full output of one replay: the complete lot set (including
// fully-consumed lots, kept at quantity_open=0 so disposal/wash-adjustment
// slice indices stay stable for data.ReplaceReconstructedLots), disposals,
// wash adjustments, and any non-fatal warnings (missing history, unknown
// securities).
type Result struct {
	Lots            []data.TaxLot
	Disposals       []data.LotDisposal
	WashAdjustments []data.WashSaleAdjustment
	Warnings        []string
}

type openLot struct {
	index            int
	accountID        int
	ticker           string
	acquiredDate     time.Time
	qtyOpen          decimal.Decimal
	basisOpen        decimal.Decimal
	createdFromTxnID *int
}

type lossSale struct {
	sellTxnID    int
	accountID    int
	ticker       string
	date         time.Time
	lossPerShare decimal.Decimal
	qtyAtLoss    decimal.Decimal
}

type replayer struct {
	ctx             context.Context
	taxpayerID      int
	resolver        SecurityResolver
	asOf            time.Time
	open            map[string][]*openLot
	result          Result
	lotIndexByTxnID map[int]int
	securityIDCache map[string]int
	lossSales       []lossSale
}

func lotKey(accountID int, ticker string) string {
	return fmt.Sprintf("%d|%s", accountID, ticker)
}

// Replay runs the §4.3.1 algorithm: transactions and corporate actions
// merged into one (date, then transaction-before-action, then id) ordered
// stream, then the §4.3.2 wash-sale sub-procedure over the resulting loss
// sales. asOf marks "now" for the wash-sale FLAGGED/APPLIED distinction
// (spec §4.3.2 step 3): a replacement buy dated after asOf but still in
// window is informational only.
func Replay(ctx context.Context, taxpayerID int, txns []data.Transaction, corpActions []data.CorporateActionEvent, resolver SecurityResolver, asOf time.Time) (Result, error) {
	r := &replayer{
		ctx:             ctx,
		taxpayerID:      taxpayerID,
		resolver:        resolver,
		asOf:            asOf,
		open:            map[string][]*openLot{},
		lotIndexByTxnID: map[int]int{},
		securityIDCache: map[string]int{},
	}

	type event struct {
		date time.Time
		rank int // 0 = transaction, 1 = corporate action: txns settle first on a shared date
		id   int
		txn  *data.Transaction
		corp *data.CorporateActionEvent
	}
	events := make([]event, 0, len(txns)+len(corpActions))
	for i := range txns {
		events = append(events, event{date: txns[i].Date, rank: 0, id: txns[i].ID, txn: &txns[i]})
	}
	for i := range corpActions {
		events = append(events, event{date: corpActions[i].ActionDate, rank: 1, id: corpActions[i].ID, corp: &corpActions[i]})
	}
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].date.Equal(events[j].date) {
			return events[i].date.Before(events[j].date)
		}
		if events[i].rank != events[j].rank {
			return events[i].rank < events[j].rank
		}
		return events[i].id < events[j].id
	})

	for _, ev := range events {
		var err error
		if ev.txn != nil {
			err = r.applyTxn(*ev.txn)
		} else {
			err = r.applyCorpAction(*ev.corp)
		}
		if err != nil {
			return Result{}, err
		}
	}

	r.applyWashSales(txns)
	return r.result, nil
}

func (r *replayer) resolveSecurityID(ticker string) int {
	if id, ok := r.securityIDCache[ticker]; ok {
		return id
	}
	sec, err := r.resolver.Resolve(r.ctx, ticker)
	if err != nil || sec == nil {
		r.result.Warnings = append(r.result.Warnings, fmt.Sprintf("unknown security %q: treating as untracked substitute group", ticker))
		r.securityIDCache[ticker] = 0
		return 0
	}
	r.securityIDCache[ticker] = sec.ID
	return sec.ID
}

func (r *replayer) syncLot(lot *openLot) {
	r.result.Lots[lot.index].QuantityOpen = lot.qtyOpen
	r.result.Lots[lot.index].BasisOpen = lot.basisOpen
}

func (r *replayer) applyTxn(tx data.Transaction) error {
	if tx.Ticker == nil {
		return nil
	}
	ticker := *tx.Ticker

	switch tx.Type {
	case data.TxnBuy:
		if tx.Qty == nil {
			return fmt.Errorf("BUY txn %d missing qty", tx.ID)
		}
		secID := r.resolveSecurityID(ticker)
		lot := &openLot{
			index:            len(r.result.Lots),
			accountID:        tx.AccountID,
			ticker:           ticker,
			acquiredDate:     tx.Date,
			qtyOpen:          *tx.Qty,
			basisOpen:        tx.Amount.Abs(),
			createdFromTxnID: &tx.ID,
		}
		r.result.Lots = append(r.result.Lots, data.TaxLot{
			TaxpayerID:       r.taxpayerID,
			AccountID:        tx.AccountID,
			SecurityID:       secID,
			AcquiredDate:     tx.Date,
			QuantityOpen:     lot.qtyOpen,
			BasisOpen:        lot.basisOpen,
			Source:           data.LotReconstructed,
			CreatedFromTxnID: &tx.ID,
		})
		key := lotKey(tx.AccountID, ticker)
		r.open[key] = append(r.open[key], lot)
		r.lotIndexByTxnID[tx.ID] = lot.index

	case data.TxnSell:
		if tx.Qty == nil {
			return fmt.Errorf("SELL txn %d missing qty", tx.ID)
		}
		r.applySell(tx, ticker)
	}
	return nil
}

func (r *replayer) applySell(tx data.Transaction, ticker string) {
	key := lotKey(tx.AccountID, ticker)
	queue := r.open[key]
	remaining := *tx.Qty
	totalRealized := decimal.Zero

	var consumed int
	for consumed < len(queue) && remaining.Sign() > 0 {
		lot := queue[consumed]
		sliceQty := decimal.Min(lot.qtyOpen, remaining)
		basisPerShare := lot.basisOpen.Div(lot.qtyOpen)
		proceedsAllocated := tx.Amount.Mul(sliceQty).Div(*tx.Qty)
		basisAllocated := basisPerShare.Mul(sliceQty)
		realized := proceedsAllocated.Sub(basisAllocated)
		term := data.TermST
		if tx.Date.Sub(lot.acquiredDate) >= 365*24*time.Hour {
			term = data.TermLT
		}
		r.result.Disposals = append(r.result.Disposals, data.LotDisposal{
			SellTxnID:         tx.ID,
			TaxLotID:          lot.index,
			QuantitySold:      sliceQty,
			ProceedsAllocated: proceedsAllocated,
			BasisAllocated:    &basisAllocated,
			RealizedGain:      &realized,
			Term:              term,
			AsOfDate:          tx.Date,
		})
		totalRealized = totalRealized.Add(realized)

		lot.qtyOpen = lot.qtyOpen.Sub(sliceQty)
		lot.basisOpen = lot.basisOpen.Sub(basisAllocated)
		r.syncLot(lot)
		remaining = remaining.Sub(sliceQty)
		if lot.qtyOpen.Sign() == 0 {
			consumed++
		}
	}
	r.open[key] = queue[consumed:]

	if remaining.Sign() > 0 {
		// Insufficient lot history: synthesize a zero-basis placeholder lot so
		// the disposal's NOT NULL tax_lot_id has somewhere to point without
		// contributing phantom basis (spec §4.3.1: "do NOT synthesize phantom
		// basis").
		placeholder := data.TaxLot{
			TaxpayerID:       r.taxpayerID,
			AccountID:        tx.AccountID,
			SecurityID:       r.resolveSecurityID(ticker),
			AcquiredDate:     tx.Date,
			QuantityOpen:     decimal.Zero,
			BasisOpen:        decimal.Zero,
			Source:           data.LotReconstructed,
			CreatedFromTxnID: &tx.ID,
		}
		placeholderIdx := len(r.result.Lots)
		r.result.Lots = append(r.result.Lots, placeholder)
		proceedsUnmatched := tx.Amount.Mul(remaining).Div(*tx.Qty)
		r.result.Disposals = append(r.result.Disposals, data.LotDisposal{
			SellTxnID:         tx.ID,
			TaxLotID:          placeholderIdx,
			QuantitySold:      remaining,
			ProceedsAllocated: proceedsUnmatched,
			BasisAllocated:    nil,
			RealizedGain:      nil,
			Term:              data.TermUnknown,
			AsOfDate:          tx.Date,
		})
		r.result.Warnings = append(r.result.Warnings,
			fmt.Sprintf("sell txn %d: insufficient lot history for %s shares of %s, basis left unresolved", tx.ID, remaining, ticker))
	}

	if totalRealized.Sign() < 0 {
		lossPerShare := totalRealized.Abs().Div(*tx.Qty)
		r.lossSales = append(r.lossSales, lossSale{
			sellTxnID:    tx.ID,
			accountID:    tx.AccountID,
			ticker:       ticker,
			date:         tx.Date,
			lossPerShare: lossPerShare,
			qtyAtLoss:    *tx.Qty,
		})
	}
}
