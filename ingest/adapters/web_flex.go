package adapters

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"backend/data"
	"backend/ingest"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
)

// WebFlexAdapter is the IB_FLEX_WEB connector: a resty client authenticates
// via client-credentials oauth2 against the broker's flex-query REST API
// for transaction history, and opens a gorilla/websocket session to stream
// current holdings for the forward-roll baseline (spec §4.1 step 6,
// scenario 4 in §8). Retries on RATE_LIMITED follow cenkalti/backoff at the
// Sync call site; this adapter only classifies the error kind.
type WebFlexAdapter struct {
	BaseURL      string
	OAuthConfig  *oauth2.Config
	TokenSource  oauth2.TokenSource
	AccountID    int
	WSURL        string
	HTTPClient   *resty.Client
}

func NewWebFlexAdapter(baseURL, wsURL string, cfg *oauth2.Config, accountID int) *WebFlexAdapter {
	client := resty.New().SetBaseURL(baseURL).SetTimeout(30 * time.Second)
	return &WebFlexAdapter{
		BaseURL:     baseURL,
		OAuthConfig: cfg,
		AccountID:   accountID,
		WSURL:       wsURL,
		HTTPClient:  client,
	}
}

type flexTransactionRow struct {
	Date             string  `json:"date"`
	Description      string  `json:"description"`
	Symbol           string  `json:"symbol"`
	Quantity         *string `json:"quantity"`
	Amount           string  `json:"amount"`
	Category         string  `json:"category"`
	TransactionID    string  `json:"transactionId"`
	AccountReference string  `json:"accountRef"`
}

func (a *WebFlexAdapter) FetchTransactionUnits(ctx context.Context, mode ingest.SyncMode, start, end *time.Time) ([]ingest.PayloadUnit, error) {
	token, err := a.authenticate(ctx)
	if err != nil {
		return nil, &ingest.AdapterError{Kind: ingest.ErrUnauthorized, Err: err}
	}

	req := a.HTTPClient.R().SetContext(ctx).SetAuthToken(token.AccessToken)
	if start != nil {
		req.SetQueryParam("from", start.Format("2006-01-02"))
	}
	if end != nil {
		req.SetQueryParam("to", end.Format("2006-01-02"))
	}

	resp, err := req.Get("/flex/transactions")
	if err != nil {
		return nil, &ingest.AdapterError{Kind: ingest.ErrTransient, Err: err}
	}
	switch resp.StatusCode() {
	case 429:
		return nil, &ingest.AdapterError{Kind: ingest.ErrRateLimited, Body: resp.String()}
	case 401, 403:
		return nil, &ingest.AdapterError{Kind: ingest.ErrUnauthorized, Body: resp.String()}
	}
	if resp.IsError() {
		return nil, &ingest.AdapterError{Kind: ingest.ErrFatal, Body: resp.String()}
	}

	var flexRows []flexTransactionRow
	if err := json.Unmarshal(resp.Body(), &flexRows); err != nil {
		return nil, &ingest.AdapterError{Kind: ingest.ErrFatal, Err: fmt.Errorf("decoding flex response: %w", err)}
	}

	rows, err := toRawRows(a.AccountID, flexRows)
	if err != nil {
		return nil, &ingest.AdapterError{Kind: ingest.ErrFatal, Err: err}
	}
	sum := sha256.Sum256(resp.Body())
	return []ingest.PayloadUnit{{Hash: hex.EncodeToString(sum[:]), Rows: rows}}, nil
}

func toRawRows(accountID int, flexRows []flexTransactionRow) ([]ingest.RawRow, error) {
	rows := make([]ingest.RawRow, 0, len(flexRows))
	for _, fr := range flexRows {
		amt, err := decimal.NewFromString(fr.Amount)
		if err != nil {
			return nil, fmt.Errorf("bad amount %q on txn %s: %w", fr.Amount, fr.TransactionID, err)
		}
		var qty *decimal.Decimal
		if fr.Quantity != nil && *fr.Quantity != "" {
			q, err := decimal.NewFromString(*fr.Quantity)
			if err != nil {
				return nil, fmt.Errorf("bad quantity %q on txn %s: %w", *fr.Quantity, fr.TransactionID, err)
			}
			qty = &q
		}
		rows = append(rows, ingest.RawRow{
			AccountID:        accountID,
			Date:             fr.Date,
			ProviderCategory: fr.Category,
			Description:      fr.Description,
			Ticker:           fr.Symbol,
			Qty:              qty,
			Amount:           amt,
			ProviderTxnID:    fr.TransactionID,
		})
	}
	return rows, nil
}

// authenticate refreshes a client-credentials token for the flex API — a
// connector service account, never an end-user login (auth is a non-goal).
func (a *WebFlexAdapter) authenticate(ctx context.Context) (*oauth2.Token, error) {
	if a.TokenSource == nil {
		cc := &oauth2.Config{
			ClientID:     a.OAuthConfig.ClientID,
			ClientSecret: a.OAuthConfig.ClientSecret,
			Endpoint:     a.OAuthConfig.Endpoint,
		}
		tok, err := cc.Exchange(ctx, "client_credentials")
		if err != nil {
			return nil, fmt.Errorf("flex oauth exchange: %w", err)
		}
		a.TokenSource = cc.TokenSource(ctx, tok)
	}
	return a.TokenSource.Token()
}

// FetchHoldingUnits opens a websocket session to the flex holdings feed and
// reads one snapshot frame, mirroring the push-then-read shape of the
// teacher's client pump (backend/utils/websocket.go) but as an outbound
// client rather than a server-side fan-out.
func (a *WebFlexAdapter) FetchHoldingUnits(ctx context.Context, asOf time.Time) ([]ingest.PayloadUnit, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, a.WSURL, nil)
	if err != nil {
		return nil, &ingest.AdapterError{Kind: ingest.ErrTransient, Err: fmt.Errorf("dialing flex ws: %w", err)}
	}
	defer conn.Close()

	var payload []byte
	op := func() error {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		payload = msg
		return nil
	}
	if err := backoff.Retry(op, backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Second), 2)); err != nil {
		return nil, &ingest.AdapterError{Kind: ingest.ErrTransient, Err: fmt.Errorf("reading flex ws frame: %w", err)}
	}

	var holdings []struct {
		AccountRef string  `json:"accountRef"`
		Symbol     string  `json:"symbol"`
		Quantity   string  `json:"quantity"`
		MktValue   *string `json:"marketValue"`
	}
	if err := json.Unmarshal(payload, &holdings); err != nil {
		return nil, &ingest.AdapterError{Kind: ingest.ErrFatal, Err: fmt.Errorf("decoding flex holdings frame: %w", err)}
	}

	items := make([]data.HoldingItem, 0, len(holdings))
	for _, h := range holdings {
		q, err := decimal.NewFromString(h.Quantity)
		if err != nil {
			return nil, &ingest.AdapterError{Kind: ingest.ErrFatal, Err: fmt.Errorf("bad quantity %q for %s: %w", h.Quantity, h.Symbol, err)}
		}
		item := data.HoldingItem{ProviderAccountID: h.AccountRef, Symbol: h.Symbol, Qty: &q}
		if h.MktValue != nil {
			mv, err := decimal.NewFromString(*h.MktValue)
			if err == nil {
				item.MarketValue = &mv
			}
		}
		items = append(items, item)
	}
	log.Printf("web flex: received %d holding rows over websocket as of %s", len(items), asOf.Format("2006-01-02"))

	sum := sha256.Sum256(payload)
	return []ingest.PayloadUnit{{Hash: hex.EncodeToString(sum[:]), AsOf: asOf, Holdings: items}}, nil
}
