package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"backend/alerts"
	"backend/data"
	"backend/docfacts"
	"backend/ingest"
	"backend/jobs"
	"backend/pricing"
	"backend/server"
	"backend/telegram"
	"backend/utils"

	"github.com/shopspring/decimal"
)

// priceAdapter satisfies holdings.Pricer over pricing.Store, the only
// translation needed because holdings stays decoupled from the pricing
// package's richer PricePoint return shape.
type priceAdapter struct {
	store *pricing.Store
}

func (p priceAdapter) LatestPrice(ctx context.Context, ticker string, asOf time.Time, baseCCY string) (decimal.Decimal, error) {
	point, err := p.store.LatestPrice(ctx, ticker, asOf, baseCCY)
	if err != nil {
		return decimal.Zero, err
	}
	return point.Price, nil
}

// noAdapterResolver is the default jobs.AdapterResolver/server.Deps
// resolver: none of the connector adapters in ingest/adapters is registered
// here, so resolving one always fails loudly instead of silently no-op'ing
// a sync.
func noAdapterResolver(conn data.ExternalConnection) (ingest.ConnectorAdapter, error) {
	return nil, fmt.Errorf("no connector adapter registered for connector %q (connection %d)", conn.Connector, conn.ID)
}

// noopNotifier is the default alerts.Notifier when no Telegram token is
// configured, so scheduler/watch-loop notification calls are harmless
// rather than requiring a nil check at every call site.
type noopNotifier struct{}

func (noopNotifier) SendMessage(msg string, chatID int64) {}

func main() {
	cfg := utils.LoadConfig(true)

	conn, cleanup := data.InitConn(cfg)
	defer cleanup()

	ctx := context.Background()
	if err := data.EnsureSchema(ctx, conn); err != nil {
		log.Fatalf("ensuring schema: %v", err)
	}

	docs, err := docfacts.NewStore(cfg.DocFactsURL)
	if err != nil {
		log.Fatalf("connecting to document fact store: %v", err)
	}
	defer docs.Close()

	priceStore := pricing.NewStore(cfg.PolygonAPIKey, conn.Cache)
	pricer := priceAdapter{store: priceStore}

	var notifier alerts.Notifier = noopNotifier{}
	if cfg.TelegramBotToken != "" {
		bot, err := telegram.NewBot(cfg.TelegramBotToken)
		if err != nil {
			log.Fatalf("starting telegram bot: %v", err)
		}
		notifier = bot
	}

	scheduler := jobs.NewScheduler(conn, noAdapterResolver, docs, notifier, "scheduler")
	scheduler.Start(24 * time.Hour)
	defer scheduler.Stop()

	go alerts.RunWatchLoop(ctx, conn, docs, notifier, time.Hour)

	srv := server.New(server.Deps{
		Conn:           conn,
		Docs:           docs,
		Pricer:         pricer,
		ResolveAdapter: noAdapterResolver,
		Notifier:       notifier,
		SigningKey:     cfg.JWTSigningKey,
	})
	if err := srv.Start(":5057"); err != nil {
		log.Fatalf("server: %v", err)
	}
}
