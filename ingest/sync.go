package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"backend/data"

	"github.com/cenkalti/backoff/v4"
)

type RunStatus string

const (
	RunSuccess RunStatus = "SUCCESS"
	RunPartial RunStatus = "PARTIAL"
	RunError   RunStatus = "ERROR"
)

type SyncRun struct {
	Status         RunStatus
	Actor          string
	ConnectionID   int
	TransactionsIn int
	TransactionsUp int
	ParseFailCount int
	Warnings       []string
}

// Sync is the §6 inbound entrypoint: sync(connection_id, mode, start?,
// end?, actor, reprocess=false) -> SyncRun. Idempotent across repeated
// calls with the same inputs (§8 I1) because every write goes through the
// content-hash ledger and the upsert-by-specificity rule.
func Sync(ctx context.Context, conn *data.Conn, adapter ConnectorAdapter, connection data.ExternalConnection, mode SyncMode, start, end *time.Time, actor string, reprocess bool) (SyncRun, error) {
	run := SyncRun{Status: RunSuccess, Actor: actor, ConnectionID: connection.ID}

	units, err := fetchWithBackoff(ctx, adapter, mode, start, end)
	if err != nil {
		if ae, ok := err.(*AdapterError); ok {
			switch ae.Kind {
			case ErrUnauthorized, ErrFatal:
				run.Status = RunError
				run.Warnings = append(run.Warnings, ae.Error())
				return run, nil
			case ErrRateLimited:
				run.Status = RunPartial
				run.Warnings = append(run.Warnings, "rate limited, resumable: "+ae.Error())
				return run, nil
			}
		}
		run.Status = RunError
		run.Warnings = append(run.Warnings, err.Error())
		return run, nil
	}

	for _, unit := range units {
		alreadyDone, err := conn.PayloadAlreadyIngested(ctx, connection.ID, unit.Hash)
		if err != nil {
			return run, fmt.Errorf("checking payload hash: %w", err)
		}
		if alreadyDone && !reprocess {
			continue
		}
		for _, row := range unit.Rows {
			run.TransactionsIn++
			updated, err := ingestRow(ctx, conn, connection.ID, row, reprocess)
			if err != nil {
				run.ParseFailCount++
				run.Warnings = append(run.Warnings, fmt.Sprintf("row parse failure: %v", err))
				continue
			}
			if updated {
				run.TransactionsUp++
			}
		}
		if err := conn.MarkPayloadIngested(ctx, connection.ID, unit.Hash); err != nil {
			return run, fmt.Errorf("marking payload ingested: %w", err)
		}
	}

	if run.ParseFailCount > 0 && run.Status == RunSuccess {
		run.Status = RunPartial
	}
	return run, nil
}

// fetchWithBackoff retries RATE_LIMITED adapter errors up to 3 times on an
// exponential backoff; every other error is returned at once. The
// AdapterError.RetryAfter value is not read, so the wait between tries
// does not follow the adapter's hint.
func fetchWithBackoff(ctx context.Context, adapter ConnectorAdapter, mode SyncMode, start, end *time.Time) ([]PayloadUnit, error) {
	var units []PayloadUnit
	op := func() error {
		u, err := adapter.FetchTransactionUnits(ctx, mode, start, end)
		if ae, ok := err.(*AdapterError); ok && ae.Kind == ErrRateLimited {
			return err // retryable
		}
		units = u
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	err := backoff.Retry(op, b)
	if err != nil {
		if perm, ok := err.(*backoff.PermanentError); ok {
			return units, perm.Err
		}
		return units, err
	}
	return units, nil
}

// ingestRow classifies, normalizes, and upserts a single row, returning
// whether it resulted in a write (new row or reclassification).
func ingestRow(ctx context.Context, conn *data.Conn, connectionID int, row RawRow, reprocess bool) (bool, error) {
	txnType, isInternalTransfer := Classify(row)
	if isInternalTransfer {
		txnType = data.TxnOther
	}

	date, err := parseISODate(row.Date)
	if err != nil {
		return false, fmt.Errorf("parsing date %q: %w", row.Date, err)
	}

	amount, qty, err := NormalizeSign(txnType, row.Amount, row.Qty)
	if err != nil {
		return false, fmt.Errorf("invariant violation for row %q: %w", row.Description, err)
	}

	normalizedDesc := strings.ToUpper(strings.TrimSpace(row.Description))
	providerTxnID := ProviderTxnID(row, normalizedDesc, amount.String())

	links := data.TxnLinks{
		ProviderTxnID:    &providerTxnID,
		Description:      row.Description,
		AdditionalDetail: row.AdditionalDetail,
		Source:           "ingest",
	}

	var ticker *string
	if row.Ticker != "" {
		t := row.Ticker
		ticker = &t
	}

	existingID, found, err := conn.ExternalTxnMapping(ctx, connectionID, providerTxnID)
	if err != nil {
		return false, fmt.Errorf("checking existing mapping: %w", err)
	}
	if !found {
		_, err := conn.InsertTransaction(ctx, connectionID, providerTxnID, data.Transaction{
			AccountID: row.AccountID,
			Date:      date,
			Type:      txnType,
			Ticker:    ticker,
			Qty:       qty,
			Amount:    amount,
			Links:     links,
		})
		if err != nil {
			return false, fmt.Errorf("inserting transaction: %w", err)
		}
		return true, nil
	}

	existing, err := conn.TransactionByID(ctx, existingID)
	if err != nil || existing == nil {
		return false, fmt.Errorf("loading existing transaction %d: %w", existingID, err)
	}

	if reprocess {
		if err := conn.UpdateTransactionClassification(ctx, existingID, txnType, amount, qty, links); err != nil {
			return false, err
		}
		return true, nil
	}

	// Spec §4.1 step 5: update classification/amount only if strictly
	// less specific previously; never flip specific -> OTHER.
	if ShouldReclassify(existing.Type, txnType) {
		if err := conn.UpdateTransactionClassification(ctx, existingID, txnType, amount, qty, links); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

func parseISODate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

// SyncHoldings pulls the current holdings view for connectors that expose
// one and persists both the raw feed and a forward-rolled snapshot for any
// provider account it maps (spec §4.1 step 6).
func SyncHoldings(ctx context.Context, conn *data.Conn, adapter ConnectorAdapter, connection data.ExternalConnection, asOf time.Time) ([]string, error) {
	var warnings []string
	units, err := adapter.FetchHoldingUnits(ctx, asOf)
	if err != nil {
		if ae, ok := err.(*AdapterError); ok {
			return append(warnings, ae.Error()), nil
		}
		return nil, fmt.Errorf("fetching holding units: %w", err)
	}

	for _, unit := range units {
		if len(unit.Holdings) == 0 {
			continue
		}
		if err := IngestHoldingUnit(ctx, conn, connection.ID, unit, unit.Holdings); err != nil {
			return nil, fmt.Errorf("ingesting holding unit: %w", err)
		}
		seen := map[string]bool{}
		for _, item := range unit.Holdings {
			if seen[item.ProviderAccountID] {
				continue
			}
			seen[item.ProviderAccountID] = true
			accountID, err := conn.AccountForProvider(ctx, connection.ID, item.ProviderAccountID)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("no account mapping for %s: %v", item.ProviderAccountID, err))
				continue
			}
			if _, err := DeriveForwardRolledSnapshot(ctx, conn, connection.ID, accountID, item.ProviderAccountID, unit.AsOf); err != nil {
				return nil, fmt.Errorf("deriving forward-rolled snapshot: %w", err)
			}
		}
	}
	return warnings, nil
}
