// Package server is the thinnest possible inbound boundary over the five
// §6 operations (sync, rebuild_tax_lots, build_tax_dashboard,
// build_holdings_view, wash_risk_for_loss_sale), keeping the teacher's
// dispatch-table HTTP shape (backend/server/api.go's
// publicFunc/public_handler) but dropping the Signup/Login/JWT-issuing
// handlers around it — authentication is out of scope here.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"backend/actor"
	"backend/alerts"
	"backend/data"
	"backend/holdings"
	"backend/ingest"
	"backend/jobs"
	"backend/lots"
	"backend/taxdash"
)

// Deps are the collaborators every dispatch target needs. server owns no
// state of its own beyond this bundle.
type Deps struct {
	Conn           *data.Conn
	Docs           taxdash.DocFactSource
	Pricer         holdings.Pricer
	ResolveAdapter jobs.AdapterResolver
	Notifier       alerts.Notifier
	SigningKey     []byte
}

// Server exposes Deps as HTTP dispatch tables over two endpoints (/public
// and /private), both using the teacher's {func, args} request envelope.
type Server struct {
	deps    Deps
	public  map[string]func(json.RawMessage) (interface{}, error)
	private map[string]func(actor.Actor, json.RawMessage) (interface{}, error)
}

// Request mirrors the teacher's {func, args} envelope.
type Request struct {
	Function  string          `json:"func"`
	Arguments json.RawMessage `json:"args"`
}

func New(deps Deps) *Server {
	s := &Server{deps: deps}
	s.public = map[string]func(json.RawMessage) (interface{}, error){
		"build_tax_dashboard": s.buildTaxDashboard,
		"build_holdings_view": s.buildHoldingsView,
	}
	s.private = map[string]func(actor.Actor, json.RawMessage) (interface{}, error){
		"sync":                    s.sync,
		"rebuild_tax_lots":        s.rebuildTaxLots,
		"wash_risk_for_loss_sale": s.washRiskForLossSale,
	}
	return s
}

func addCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}

func handleError(w http.ResponseWriter, err error, context string) bool {
	if err != nil {
		log.Printf("server: error in %s: %v", context, err)
		http.Error(w, fmt.Sprintf("%s: %v", context, err), http.StatusBadRequest)
		return true
	}
	return false
}

// publicHandler serves read-only operations that need no actor
// attribution (dashboard/holdings views).
func (s *Server) publicHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		addCORSHeaders(w)
		if r.Method == http.MethodOptions {
			return
		}
		var req Request
		if handleError(w, json.NewDecoder(r.Body).Decode(&req), "decoding request") {
			return
		}
		fn, ok := s.public[req.Function]
		if !ok {
			http.Error(w, fmt.Sprintf("invalid function: %s", req.Function), http.StatusBadRequest)
			return
		}
		result, err := fn(req.Arguments)
		if handleError(w, err, fmt.Sprintf("executing %s", req.Function)) {
			return
		}
		if handleError(w, json.NewEncoder(w).Encode(result), "encoding response") {
			return
		}
	}
}

// privateHandler serves the actor-attributed operations (sync and rebuild,
// which write to the Store, plus the read-only wash-risk query), decoding
// the actor from the Authorization header the
// same way the teacher's private_handler decodes user_id.
func (s *Server) privateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		addCORSHeaders(w)
		if r.Method != http.MethodPost {
			return
		}
		a, err := actor.Parse(s.deps.SigningKey, r.Header.Get("Authorization"))
		if handleError(w, err, "validating actor token") {
			return
		}
		var req Request
		if handleError(w, json.NewDecoder(r.Body).Decode(&req), "decoding request") {
			return
		}
		fn, ok := s.private[req.Function]
		if !ok {
			http.Error(w, fmt.Sprintf("invalid function: %s", req.Function), http.StatusBadRequest)
			return
		}
		result, err := fn(a, req.Arguments)
		if handleError(w, err, fmt.Sprintf("executing %s", req.Function)) {
			return
		}
		if handleError(w, json.NewEncoder(w).Encode(result), "encoding response") {
			return
		}
	}
}

// Start registers the two endpoints and blocks serving HTTP, the same
// shape as the teacher's StartServer.
func (s *Server) Start(addr string) error {
	http.HandleFunc("/public", s.publicHandler())
	http.HandleFunc("/private", s.privateHandler())
	log.Printf("server listening on %s", addr)
	return http.ListenAndServe(addr, nil)
}

// --- dispatch targets ---

type syncRequest struct {
	ConnectionID int        `json:"connection_id"`
	Mode         string     `json:"mode"`
	Start        *time.Time `json:"start"`
	End          *time.Time `json:"end"`
	Reprocess    bool       `json:"reprocess"`
}

func (s *Server) sync(a actor.Actor, raw json.RawMessage) (interface{}, error) {
	var req syncRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("decoding sync args: %w", err)
	}
	conn, err := s.deps.Conn.ConnectionByID(context.Background(), req.ConnectionID)
	if err != nil {
		return nil, err
	}
	adapter, err := s.deps.ResolveAdapter(conn)
	if err != nil {
		return nil, fmt.Errorf("resolving adapter: %w", err)
	}
	return ingest.Sync(context.Background(), s.deps.Conn, adapter, conn, ingest.SyncMode(req.Mode), req.Start, req.End, a.String(), req.Reprocess)
}

type rebuildRequest struct {
	TaxpayerID int `json:"taxpayer_id"`
}

func (s *Server) rebuildTaxLots(a actor.Actor, raw json.RawMessage) (interface{}, error) {
	var req rebuildRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("decoding rebuild_tax_lots args: %w", err)
	}
	result, err := lots.RebuildTaxLots(context.Background(), s.deps.Conn, req.TaxpayerID, a.String(), time.Now())
	if err != nil {
		return nil, err
	}
	alerts.NotifyRebuildResult(s.deps.Notifier, req.TaxpayerID, result)
	return result, nil
}

type dashboardRequest struct {
	Year           int       `json:"year"`
	Scope          string    `json:"scope"`
	AsOf           time.Time `json:"as_of"`
	ApplyOverrides *bool     `json:"apply_overrides"`
}

func (s *Server) buildTaxDashboard(raw json.RawMessage) (interface{}, error) {
	var req dashboardRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("decoding build_tax_dashboard args: %w", err)
	}
	applyOverrides := true
	if req.ApplyOverrides != nil {
		applyOverrides = *req.ApplyOverrides
	}
	return taxdash.BuildTaxDashboard(context.Background(), s.deps.Conn, s.deps.Docs, req.Year, req.Scope, req.AsOf, applyOverrides)
}

type holdingsRequest struct {
	Scope     string    `json:"scope"`
	AccountID *int      `json:"account_id"`
	Today     time.Time `json:"today"`
	PricesDir string    `json:"prices_dir"`
}

func (s *Server) buildHoldingsView(raw json.RawMessage) (interface{}, error) {
	var req holdingsRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("decoding build_holdings_view args: %w", err)
	}
	return holdings.Build(context.Background(), s.deps.Conn, s.deps.Pricer, req.Scope, req.AccountID, req.Today, req.PricesDir)
}

type proposedBuyRequest struct {
	Ticker    string     `json:"ticker"`
	Date      *time.Time `json:"date"`
	AccountID *int       `json:"account_id"`
}

type washRiskRequest struct {
	TaxpayerID   int                  `json:"taxpayer_id"`
	SaleTicker   string               `json:"sale_ticker"`
	SaleDate     time.Time            `json:"sale_date"`
	ProposedBuys []proposedBuyRequest `json:"proposed_buys"`
	WindowDays   int                  `json:"window_days"`
}

func (s *Server) washRiskForLossSale(_ actor.Actor, raw json.RawMessage) (interface{}, error) {
	var req washRiskRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("decoding wash_risk_for_loss_sale args: %w", err)
	}
	buys := make([]lots.ProposedBuy, 0, len(req.ProposedBuys))
	for _, b := range req.ProposedBuys {
		buys = append(buys, lots.ProposedBuy{Ticker: b.Ticker, Date: b.Date, AccountID: b.AccountID})
	}
	risk, matches, err := lots.WashRiskForLossSale(context.Background(), s.deps.Conn, req.TaxpayerID, req.SaleTicker, req.SaleDate, buys, req.WindowDays)
	if err != nil {
		return nil, err
	}
	alerts.NotifyWashRisk(s.deps.Notifier, req.TaxpayerID, req.SaleTicker, risk, matches)
	return map[string]interface{}{"risk": risk, "matches": matches}, nil
}
