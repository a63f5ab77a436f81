// Package backtest implements an I4 rebuild-determinism harness: it loads
// one taxpayer's inputs once and replays them twice, diffing the
// resulting lot/disposal/wash-adjustment sets. Restated from the
// teacher's BacktestEngine.Run()/BacktestSingleStock shape (drive a
// taxpayer's history through an engine, collect a result per run) now
// applied to lots.Replay instead of a live algo-alert scan.
package backtest

import (
	"context"
	"fmt"
	"time"

	"backend/data"
	"backend/lots"

	"github.com/shopspring/decimal"
)

// Result is one determinism check's outcome.
type Result struct {
	Identical bool
	Diffs     []string
	FirstRun  lots.Result
	SecondRun lots.Result
}

// cachingResolver adapts data.Conn to lots.SecurityResolver, mirroring
// lots/rebuild.go's unexported storeSecurityResolver so both replay calls
// in one determinism check hit the same warm cache.
type cachingResolver struct {
	conn  *data.Conn
	cache map[string]*data.Security
}

func newCachingResolver(conn *data.Conn) *cachingResolver {
	return &cachingResolver{conn: conn, cache: map[string]*data.Security{}}
}

func (r *cachingResolver) Resolve(ctx context.Context, ticker string) (*data.Security, error) {
	if sec, ok := r.cache[ticker]; ok {
		return sec, nil
	}
	sec, err := r.conn.SecurityByTicker(ctx, ticker)
	if err != nil {
		return nil, err
	}
	r.cache[ticker] = sec
	return sec, nil
}

func securityResolverFor(conn *data.Conn) lots.SecurityResolver {
	return newCachingResolver(conn)
}

// RunDeterminismCheck loads a taxpayer's taxable transactions and
// corporate actions once, replays them twice against the same resolver
// and as_of date, and diffs the two in-memory results (§8 I4). It never
// writes to the Store; a real rebuild is a separate call to
// lots.RebuildTaxLots.
func RunDeterminismCheck(ctx context.Context, conn *data.Conn, taxpayerID int, asOf time.Time) (Result, error) {
	txns, err := conn.TaxableTransactionsForTaxpayer(ctx, taxpayerID)
	if err != nil {
		return Result{}, fmt.Errorf("loading transactions: %w", err)
	}
	corpActions, err := conn.CorporateActionsForTaxpayer(ctx, taxpayerID)
	if err != nil {
		return Result{}, fmt.Errorf("loading corporate actions: %w", err)
	}

	resolver := securityResolverFor(conn)

	first, err := lots.Replay(ctx, taxpayerID, txns, corpActions, resolver, asOf)
	if err != nil {
		return Result{}, fmt.Errorf("first replay: %w", err)
	}
	second, err := lots.Replay(ctx, taxpayerID, txns, corpActions, resolver, asOf)
	if err != nil {
		return Result{}, fmt.Errorf("second replay: %w", err)
	}

	diffs := diffResults(first, second)
	return Result{
		Identical: len(diffs) == 0,
		Diffs:     diffs,
		FirstRun:  first,
		SecondRun: second,
	}, nil
}

func diffResults(a, b lots.Result) []string {
	var diffs []string
	if len(a.Lots) != len(b.Lots) {
		diffs = append(diffs, fmt.Sprintf("lot count differs: %d vs %d", len(a.Lots), len(b.Lots)))
	}
	if len(a.Disposals) != len(b.Disposals) {
		diffs = append(diffs, fmt.Sprintf("disposal count differs: %d vs %d", len(a.Disposals), len(b.Disposals)))
	}
	if len(a.WashAdjustments) != len(b.WashAdjustments) {
		diffs = append(diffs, fmt.Sprintf("wash adjustment count differs: %d vs %d", len(a.WashAdjustments), len(b.WashAdjustments)))
	}

	n := min(len(a.Lots), len(b.Lots))
	for i := 0; i < n; i++ {
		if !a.Lots[i].QuantityOpen.Equal(b.Lots[i].QuantityOpen) || !a.Lots[i].BasisOpen.Equal(b.Lots[i].BasisOpen) {
			diffs = append(diffs, fmt.Sprintf("lot[%d] differs: qty %s/%s basis %s/%s",
				i, a.Lots[i].QuantityOpen, b.Lots[i].QuantityOpen, a.Lots[i].BasisOpen, b.Lots[i].BasisOpen))
		}
	}

	n = min(len(a.Disposals), len(b.Disposals))
	for i := 0; i < n; i++ {
		ga, gb := realizedOrZero(a.Disposals[i].RealizedGain), realizedOrZero(b.Disposals[i].RealizedGain)
		if !ga.Equal(gb) || a.Disposals[i].Term != b.Disposals[i].Term {
			diffs = append(diffs, fmt.Sprintf("disposal[%d] differs: gain %s/%s term %s/%s",
				i, ga, gb, a.Disposals[i].Term, b.Disposals[i].Term))
		}
	}

	totalGainA := sumRealizedGains(a.Disposals)
	totalGainB := sumRealizedGains(b.Disposals)
	if !totalGainA.Equal(totalGainB) {
		diffs = append(diffs, fmt.Sprintf("total realized gain differs: %s vs %s", totalGainA, totalGainB))
	}

	return diffs
}

func realizedOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

func sumRealizedGains(disposals []data.LotDisposal) decimal.Decimal {
	total := decimal.Zero
	for _, d := range disposals {
		total = total.Add(realizedOrZero(d.RealizedGain))
	}
	return total
}
