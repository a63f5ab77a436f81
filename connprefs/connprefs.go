// Package connprefs is the connection-preference resolver (C3, spec §4.2):
// given a scope and taxpayer set, returns exactly the connection ids
// downstream computations should read from, so the same brokerage account
// imported by two connectors is never double counted.
//
// Directly grounded in original_source/src/core/connection_preference.py —
// the rule bodies below are a restatement of that module's
// preferred_active_connection_ids_for_taxpayers/_for_scope in Go.
package connprefs

import (
	"context"
	"fmt"
	"strings"

	"backend/data"
)

// PreferredConnectionIDs selects ACTIVE connections for the given
// taxpayers, applying the broker-specific rules (§4.2): IB prefers
// IB_FLEX_WEB, Chase prefers CHASE_OFFLINE (otherwise every Chase
// connection except CHASE_YODLEE), and other brokers keep every ACTIVE
// connection. Pure given its inputs (§8 I5): the
// only I/O is the one Store read of ACTIVE connections.
func PreferredConnectionIDs(ctx context.Context, conn *data.Conn, taxpayerIDs []int) (map[int]bool, error) {
	if len(taxpayerIDs) == 0 {
		return map[int]bool{}, nil
	}
	conns, err := conn.ActiveConnectionsForTaxpayers(ctx, taxpayerIDs)
	if err != nil {
		return nil, fmt.Errorf("loading active connections: %w", err)
	}

	byTaxpayer := map[int][]data.ExternalConnection{}
	for _, c := range conns {
		byTaxpayer[c.TaxpayerID] = append(byTaxpayer[c.TaxpayerID], c)
	}

	selected := map[int]bool{}
	for _, cs := range byTaxpayer {
		byBroker := map[string][]data.ExternalConnection{}
		for _, c := range cs {
			byBroker[strings.ToUpper(c.Broker)] = append(byBroker[strings.ToUpper(c.Broker)], c)
		}
		for broker, bs := range byBroker {
			switch broker {
			case "IB":
				selectBroker(selected, bs, func(c data.ExternalConnection) bool {
					return strings.ToUpper(c.Connector) == "IB_FLEX_WEB"
				})
			case "CHASE":
				chaseOffline := filterConns(bs, func(c data.ExternalConnection) bool {
					return strings.ToUpper(c.Connector) == "CHASE_OFFLINE"
				})
				if len(chaseOffline) > 0 {
					markAll(selected, chaseOffline)
				} else {
					markAll(selected, filterConns(bs, func(c data.ExternalConnection) bool {
						return strings.ToUpper(c.Connector) != "CHASE_YODLEE"
					}))
				}
			default:
				markAll(selected, bs)
			}
		}
	}
	return selected, nil
}

// selectBroker prefers the subset matching preferFn; falls back to the
// full set when nothing matches (IB's "prefer web when ACTIVE, else all").
func selectBroker(selected map[int]bool, conns []data.ExternalConnection, preferFn func(data.ExternalConnection) bool) {
	preferred := filterConns(conns, preferFn)
	if len(preferred) > 0 {
		markAll(selected, preferred)
		return
	}
	markAll(selected, conns)
}

func filterConns(conns []data.ExternalConnection, pred func(data.ExternalConnection) bool) []data.ExternalConnection {
	var out []data.ExternalConnection
	for _, c := range conns {
		if pred(c) {
			out = append(out, c)
		}
	}
	return out
}

func markAll(selected map[int]bool, conns []data.ExternalConnection) {
	for _, c := range conns {
		selected[c.ID] = true
	}
}

// PreferredConnectionIDsForScope filters taxpayers by scope first
// (household | trust | personal), then resolves preferences.
func PreferredConnectionIDsForScope(ctx context.Context, conn *data.Conn, scope string) (map[int]bool, error) {
	taxpayers, err := conn.TaxpayersByScope(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("resolving taxpayers for scope %q: %w", scope, err)
	}
	ids := make([]int, 0, len(taxpayers))
	for _, tp := range taxpayers {
		ids = append(ids, tp.ID)
	}
	return PreferredConnectionIDs(ctx, conn, ids)
}

// DedupeByProviderTxn dedupes transactions within a preferred-connection
// set by (provider_account_id, provider_txn_id), per spec §4.2: "Downstream
// code must also dedupe within a returned set... to handle the transient
// state where both connectors still hold a row."
func DedupeByProviderTxn(txns []data.Transaction) []data.Transaction {
	seen := map[string]bool{}
	out := make([]data.Transaction, 0, len(txns))
	for _, tx := range txns {
		var key string
		if tx.Links.ProviderAccountID != nil && tx.Links.ProviderTxnID != nil {
			key = *tx.Links.ProviderAccountID + "|" + *tx.Links.ProviderTxnID
		} else {
			// No provider identity to dedupe on; keep the row (e.g.
			// manually entered or derived-snapshot transactions).
			out = append(out, tx)
			continue
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, tx)
	}
	return out
}
