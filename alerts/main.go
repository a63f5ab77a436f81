// Package alerts watches rebuild results and tax-dashboard projections for
// tax-relevant events (wash-sale adjustments, safe-harbor/withholding
// flags) and pushes notifications, restated from the teacher's
// sync.Map-registry + ticker-loop shape (AddAlert/processAlerts/alertLoop)
// now driven by C4/C5 results instead of live price crosses.
package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"backend/data"
	"backend/lots"
	"backend/taxdash"
)

// Notifier is the minimal surface alerts needs from a message sink; the
// telegram package's *Bot satisfies it.
type Notifier interface {
	SendMessage(msg string, chatID int64)
}

// Watch is one taxpayer's subscription to tax-event notifications.
type Watch struct {
	TaxpayerID int
	ChatID     int64
}

var watches sync.Map // taxpayerID -> Watch

func Register(w Watch) {
	watches.Store(w.TaxpayerID, w)
}

func Unregister(taxpayerID int) {
	watches.Delete(taxpayerID)
}

func watchFor(taxpayerID int) (Watch, bool) {
	v, ok := watches.Load(taxpayerID)
	if !ok {
		return Watch{}, false
	}
	return v.(Watch), true
}

// NotifyRebuildResult reports a completed rebuild's wash-sale adjustment
// count and any warnings to the taxpayer's watch, if registered.
func NotifyRebuildResult(n Notifier, taxpayerID int, result data.RebuildResult) {
	w, ok := watchFor(taxpayerID)
	if !ok {
		return
	}
	if result.WashAdjustmentsCreated > 0 {
		n.SendMessage(fmt.Sprintf("rebuild: %d wash-sale adjustment(s) applied", result.WashAdjustmentsCreated), w.ChatID)
	}
	for _, warning := range result.Warnings {
		n.SendMessage(fmt.Sprintf("rebuild warning: %s", warning), w.ChatID)
	}
}

// NotifyWashRisk reports a non-NONE wash-sale risk finding for a proposed
// loss sale (§6 wash_risk_for_loss_sale).
func NotifyWashRisk(n Notifier, taxpayerID int, ticker string, risk lots.WashRisk, matches []lots.WashMatch) {
	if risk == lots.RiskNone {
		return
	}
	w, ok := watchFor(taxpayerID)
	if !ok {
		return
	}
	n.SendMessage(fmt.Sprintf("wash-sale risk on %s: %s (%d candidate match(es))", ticker, risk, len(matches)), w.ChatID)
}

// NotifyDashboardFlags reports every flag on the tax dashboard's current
// row (§4.4.4).
func NotifyDashboardFlags(n Notifier, taxpayerID int, dash taxdash.TaxDashboard) {
	w, ok := watchFor(taxpayerID)
	if !ok || len(dash.Monthly) == 0 {
		return
	}
	row := dash.Monthly[len(dash.Monthly)-1]
	for _, flag := range row.Flags {
		n.SendMessage(fmt.Sprintf("%d tax dashboard: %s (month %d)", dash.Year, flag, row.Month), w.ChatID)
	}
}

// RunWatchLoop periodically rebuilds the dashboard for every registered
// taxpayer and notifies on flags, the same ticker-driven shape as the
// teacher's alertLoop.
func RunWatchLoop(ctx context.Context, conn *data.Conn, docs taxdash.DocFactSource, n Notifier, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			watches.Range(func(key, value interface{}) bool {
				w := value.(Watch)
				dash, err := taxdash.BuildTaxDashboard(ctx, conn, docs, time.Now().Year(), "household", time.Now(), true)
				if err != nil {
					n.SendMessage(fmt.Sprintf("dashboard build failed: %v", err), w.ChatID)
					return true
				}
				NotifyDashboardFlags(n, w.TaxpayerID, dash)
				return true
			})
		}
	}
}
