package ingest

import (
	"context"
	"fmt"
	"time"

	"backend/data"

	"github.com/shopspring/decimal"
)

// IngestHoldingUnit stores a unit's holdings as a raw (non-derived)
// snapshot. It does not derive the forward-rolled snapshot itself;
// SyncHoldings calls DeriveForwardRolledSnapshot for that afterwards.
func IngestHoldingUnit(ctx context.Context, conn *data.Conn, connectionID int, unit PayloadUnit, items []data.HoldingItem) error {
	if err := conn.InsertHoldingSnapshot(ctx, connectionID, unit.AsOf, items, false); err != nil {
		return fmt.Errorf("inserting raw snapshot: %w", err)
	}
	return nil
}

// DeriveForwardRolledSnapshot computes today's positions from the last
// known snapshot plus the canonical cashflows observed since, for
// accounts whose connector doesn't supply positions daily. Only BUY and
// SELL quantities are rolled forward; cash and TRANSFER rows are not
// applied.
//
// Duplicate-safety (spec §4.1 step 6: "a single economic SELL that was
// reclassified... must be counted once") is inherited for free here
// because the input is the canonical Transaction rows, which the upsert
// pipeline already guarantees are at most one row per economic event —
// not the raw per-connector feed.
func DeriveForwardRolledSnapshot(ctx context.Context, conn *data.Conn, connectionID, accountID int, providerAccountID string, asOf time.Time) ([]data.HoldingItem, error) {
	last, err := conn.LatestHoldingSnapshot(ctx, connectionID, asOf)
	if err != nil {
		return nil, fmt.Errorf("loading last snapshot: %w", err)
	}
	positions := map[string]decimal.Decimal{}
	var baseDate time.Time
	if last != nil {
		baseDate = last.AsOf
		for _, item := range last.Payload {
			if item.IsTotal || item.ProviderAccountID != providerAccountID {
				continue
			}
			if item.Qty != nil {
				positions[item.Symbol] = *item.Qty
			}
		}
	}

	cur := baseDate
	for !cur.After(asOf) && !cur.Equal(asOf) {
		cur = cur.AddDate(0, 0, 1)
		txns, err := conn.TransactionsOnDate(ctx, accountID, cur)
		if err != nil {
			return nil, fmt.Errorf("loading cashflows on %v: %w", cur, err)
		}
		for _, tx := range txns {
			if tx.Ticker == nil || tx.Qty == nil {
				continue
			}
			switch tx.Type {
			case data.TxnBuy:
				positions[*tx.Ticker] = positions[*tx.Ticker].Add(*tx.Qty)
			case data.TxnSell:
				positions[*tx.Ticker] = positions[*tx.Ticker].Sub(*tx.Qty)
			}
		}
		if cur.Equal(asOf) {
			break
		}
	}

	out := make([]data.HoldingItem, 0, len(positions))
	for symbol, qty := range positions {
		q := qty
		out = append(out, data.HoldingItem{
			ProviderAccountID: providerAccountID,
			Symbol:            symbol,
			Qty:               &q,
			IsTotal:           false,
		})
	}

	if err := conn.InsertHoldingSnapshot(ctx, connectionID, asOf, out, true); err != nil {
		return nil, fmt.Errorf("inserting derived snapshot: %w", err)
	}
	return out, nil
}
