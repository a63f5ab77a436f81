// Package jobs runs the daily sync -> rebuild -> alert cycle, restated
// from the teacher's StartScheduler/eventLoop ticker shape but supervised
// by a gopkg.in/tomb.v2 tomb instead of a bare quit channel, so a panic or
// fatal error in the loop is observable via Tomb.Err() / Wait() the way
// the rest of the pack's long-running goroutines are meant to be.
package jobs

import (
	"context"
	"log"
	"time"

	"backend/alerts"
	"backend/data"
	"backend/ingest"
	"backend/lots"
	"backend/taxdash"

	"gopkg.in/tomb.v2"
)

// AdapterResolver constructs the connector adapter for one active
// connection. Scheduling only knows how to drive sync/rebuild against the
// Store; it has no opinion on how a connection's credentials turn into a
// live ConnectorAdapter, the same separation ingest.ConnectorAdapter
// itself draws between the sync algorithm and a concrete provider.
type AdapterResolver func(conn data.ExternalConnection) (ingest.ConnectorAdapter, error)

// Scheduler owns the daily sync -> rebuild -> alert cycle for every
// taxpayer in the household scope.
type Scheduler struct {
	t        tomb.Tomb
	conn     *data.Conn
	resolve  AdapterResolver
	docs     taxdash.DocFactSource
	notifier alerts.Notifier
	actor    string
}

func NewScheduler(conn *data.Conn, resolve AdapterResolver, docs taxdash.DocFactSource, notifier alerts.Notifier, actor string) *Scheduler {
	return &Scheduler{conn: conn, resolve: resolve, docs: docs, notifier: notifier, actor: actor}
}

// Start launches the cycle on the given interval, supervised by the
// Scheduler's tomb.
func (s *Scheduler) Start(interval time.Duration) {
	s.t.Go(func() error {
		return s.run(interval)
	})
}

// Stop signals the tomb to die and waits for the loop to exit.
func (s *Scheduler) Stop() error {
	s.t.Kill(nil)
	return s.t.Wait()
}

func (s *Scheduler) run(interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.t.Dying():
			return nil
		case <-ticker.C:
			s.runOnce(context.Background())
		}
	}
}

// runOnce drives one sync -> rebuild -> alert pass across every taxpayer
// in household scope. A single connection's sync failure is logged and
// skipped; it never aborts the other connections or the rebuild step
// (§7's PARTIAL semantics applied at the scheduler level).
func (s *Scheduler) runOnce(ctx context.Context) {
	taxpayers, err := s.conn.TaxpayersByScope(ctx, "household")
	if err != nil {
		log.Printf("scheduler: listing taxpayers: %v", err)
		return
	}

	for _, tp := range taxpayers {
		conns, err := s.conn.ActiveConnectionsForTaxpayers(ctx, []int{tp.ID})
		if err != nil {
			log.Printf("scheduler: listing connections for taxpayer %d: %v", tp.ID, err)
			continue
		}
		for _, c := range conns {
			adapter, err := s.resolve(c)
			if err != nil {
				log.Printf("scheduler: resolving adapter for connection %d: %v", c.ID, err)
				continue
			}
			if _, err := ingest.Sync(ctx, s.conn, adapter, c, ingest.ModeIncremental, nil, nil, s.actor, false); err != nil {
				log.Printf("scheduler: sync failed for connection %d: %v", c.ID, err)
			}
		}

		result, err := lots.RebuildTaxLots(ctx, s.conn, tp.ID, s.actor, time.Now())
		if err != nil {
			log.Printf("scheduler: rebuild failed for taxpayer %d: %v", tp.ID, err)
			continue
		}
		alerts.NotifyRebuildResult(s.notifier, tp.ID, result)

		dash, err := taxdash.BuildTaxDashboard(ctx, s.conn, s.docs, time.Now().Year(), "household", time.Now(), true)
		if err != nil {
			log.Printf("scheduler: dashboard build failed for taxpayer %d: %v", tp.ID, err)
			continue
		}
		alerts.NotifyDashboardFlags(s.notifier, tp.ID, dash)
	}
}
