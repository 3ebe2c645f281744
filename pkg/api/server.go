package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/openclob/tally/pkg/crypto"
	"github.com/openclob/tally/pkg/events"
	"github.com/openclob/tally/pkg/ledger"
	"github.com/openclob/tally/pkg/util"
	"github.com/openclob/tally/pkg/venue"
)

// Server handles REST API and WebSocket connections
type Server struct {
	registry *ledger.Registry
	venue    venue.Venue
	bus      *events.Bus
	clock    util.Clock
	router   *mux.Router
	hub      *Hub
}

// NewServer creates a new API server
func NewServer(registry *ledger.Registry, vn venue.Venue, bus *events.Bus, clock util.Clock) *Server {
	s := &Server{
		registry: registry,
		venue:    vn,
		bus:      bus,
		clock:    clock,
		router:   mux.NewRouter(),
		hub:      NewHub(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Ledger endpoints
	api.HandleFunc("/ledgers", s.handleCreateLedger).Methods("POST")
	api.HandleFunc("/ledgers/{address}", s.handleGetLedger).Methods("GET")
	api.HandleFunc("/ledgers/{address}/orders/{id}", s.handleGetOrder).Methods("GET")

	// Order lifecycle
	api.HandleFunc("/orders", s.handlePlaceOrder).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/orders/modify", s.handleModifyOrder).Methods("POST")
	api.HandleFunc("/orders/cancel-batch", s.handleCancelBatch).Methods("POST")
	api.HandleFunc("/orders/oco", s.handlePlaceOCO).Methods("POST")
	api.HandleFunc("/orders/tif", s.handlePlaceTIF).Methods("POST")

	// Venue fill callback
	api.HandleFunc("/fills", s.handleFillStatus).Methods("POST")

	// Receipt tokens
	api.HandleFunc("/receipts/detach", s.handleDetach).Methods("POST")
	api.HandleFunc("/receipts/cancel", s.handleTokenCancel).Methods("POST")
	api.HandleFunc("/receipts/transfer", s.handleTokenTransfer).Methods("POST")
	api.HandleFunc("/receipts/{id}", s.handleGetReceipt).Methods("GET")

	// Admin
	api.HandleFunc("/admin/pause", s.handlePause).Methods("POST")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start starts the API server and the fact fan-out loop.
func (s *Server) Start(addr string) error {
	go s.hub.Run()
	go s.pumpFacts()

	// CORS configuration
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	handler := c.Handler(s.router)

	log.Printf("[api] server starting on %s", addr)
	return http.ListenAndServe(addr, handler)
}

// pumpFacts relays bus facts to websocket clients subscribed to the fact's
// kind (or to "*").
func (s *Server) pumpFacts() {
	ch, cancel := s.bus.Subscribe(1024)
	defer cancel()
	for fact := range ch {
		s.hub.BroadcastToChannel(fact.Kind, fact)
		s.hub.BroadcastToChannel("*", fact)
	}
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleCreateLedger(w http.ResponseWriter, r *http.Request) {
	var req CreateLedgerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	addr, ok := parseAddress(w, req.Address)
	if !ok {
		return
	}

	if err := s.registry.CreateLedger(addr, util.NowMillis(s.clock)); err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "created", "owner": addr.Hex()})
}

func (s *Server) handleGetLedger(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, mux.Vars(r)["address"])
	if !ok {
		return
	}
	l, err := s.registry.Ledger(addr)
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, LedgerInfo{
		Owner:          l.Owner().Hex(),
		CreatedAt:      l.CreatedAt(),
		TotalCreated:   l.TotalCreated(),
		Paused:         l.Paused(),
		ActiveOrderIDs: l.ActiveOrderIDs(),
	})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	addr, ok := parseAddress(w, vars["address"])
	if !ok {
		return
	}
	id, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id", err.Error())
		return
	}
	rec, err := s.registry.Order(addr, id)
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, orderInfo(rec))
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	addr, ok := parseAddress(w, req.Address)
	if !ok {
		return
	}
	side, err := ledger.ParseSide(req.Side)
	if err != nil {
		respondLedgerError(w, err)
		return
	}

	orderID, err := s.registry.Place(addr, req.PoolID, req.Price, req.Quantity, side, util.NowMillis(s.clock))
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, PlaceOrderResponse{Status: "placed", OrderID: orderID})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	addr, ok := parseAddress(w, req.Address)
	if !ok {
		return
	}

	if err := s.registry.Cancel(addr, req.OrderID, util.NowMillis(s.clock)); err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "cancelled"})
}

func (s *Server) handleModifyOrder(w http.ResponseWriter, r *http.Request) {
	var req ModifyOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	addr, ok := parseAddress(w, req.Address)
	if !ok {
		return
	}

	if err := s.registry.Modify(addr, req.OrderID, req.NewPrice, req.NewQuantity, util.NowMillis(s.clock)); err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "modified"})
}

func (s *Server) handleCancelBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchCancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	addr, ok := parseAddress(w, req.Address)
	if !ok {
		return
	}

	result, err := s.registry.CancelBatch(addr, req.OrderIDs, util.NowMillis(s.clock))
	if err != nil {
		respondLedgerError(w, err)
		return
	}

	failed := make(map[string]string, len(result.Failed))
	for id, ferr := range result.Failed {
		failed[strconv.FormatUint(id, 10)] = ferr.Error()
	}
	respondJSON(w, BatchCancelResponse{Succeeded: result.Succeeded, Failed: failed})
}

func (s *Server) handlePlaceOCO(w http.ResponseWriter, r *http.Request) {
	var req PlaceOCORequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	addr, ok := parseAddress(w, req.Address)
	if !ok {
		return
	}
	leg1, err := parseLeg(req.Leg1)
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	leg2, err := parseLeg(req.Leg2)
	if err != nil {
		respondLedgerError(w, err)
		return
	}

	groupID, ids, err := s.registry.PlaceOCO(addr, req.PoolID, leg1, leg2, util.NowMillis(s.clock))
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, PlaceOCOResponse{Status: "placed", GroupID: groupID, OrderIDs: ids})
}

func (s *Server) handlePlaceTIF(w http.ResponseWriter, r *http.Request) {
	var req PlaceTIFRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	addr, ok := parseAddress(w, req.Address)
	if !ok {
		return
	}
	side, err := ledger.ParseSide(req.Side)
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	tif, err := ledger.ParseTimeInForce(req.TimeInForce)
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	if tif == ledger.GTC {
		respondError(w, http.StatusBadRequest, "invalid time in force", "immediate placement requires IOC or FOK")
		return
	}

	// One synchronous venue round trip; the ledger then resolves the
	// outcome from what the venue reports.
	result, err := s.venue.Place(r.Context(), venue.PlacementRequest{
		PoolID:   req.PoolID,
		Price:    req.Price,
		Quantity: req.Quantity,
		Side:     side.String(),
	})
	if err != nil {
		respondError(w, http.StatusBadGateway, "venue placement failed", err.Error())
		return
	}

	outcome, err := s.registry.PlaceTIF(addr, req.PoolID, req.Price, req.Quantity, side, tif,
		ledger.ExecutionReport{ExternalOrderID: result.ExternalOrderID, FilledQuantity: result.FilledQuantity},
		req.PostedBase, req.PostedQuote, util.NowMillis(s.clock))
	if err != nil {
		respondLedgerError(w, err)
		return
	}

	status := "rejected"
	if outcome.Stored {
		status = "partial"
		if outcome.FullyFilled {
			status = "filled"
		}
	}
	respondJSON(w, PlaceTIFResponse{
		Status:        status,
		OrderID:       outcome.OrderID,
		Stored:        outcome.Stored,
		FullyFilled:   outcome.FullyFilled,
		RefundedBase:  outcome.RefundedBase,
		RefundedQuote: outcome.RefundedQuote,
	})
}

func (s *Server) handleFillStatus(w http.ResponseWriter, r *http.Request) {
	var req FillStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if err := s.registry.NotifyFillStatus(req.OrderID, req.IsActive, util.NowMillis(s.clock)); err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "applied"})
}

func (s *Server) handleDetach(w http.ResponseWriter, r *http.Request) {
	var req DetachRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	addr, ok := parseAddress(w, req.Address)
	if !ok {
		return
	}

	tok, err := s.registry.Detach(addr, req.OrderID, util.NowMillis(s.clock))
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, receiptInfo(tok))
}

func (s *Server) handleTokenCancel(w http.ResponseWriter, r *http.Request) {
	var req TokenCancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	caller, ok := parseAddress(w, req.Caller)
	if !ok {
		return
	}

	base, quote, err := s.registry.CancelWithToken(caller, req.OrderID, util.NowMillis(s.clock))
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, TokenCancelResponse{Status: "cancelled", RefundedBase: base, RefundedQuote: quote})
}

func (s *Server) handleTokenTransfer(w http.ResponseWriter, r *http.Request) {
	var req TokenTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	caller, ok := parseAddress(w, req.Caller)
	if !ok {
		return
	}
	newOwner, ok := parseAddress(w, req.NewOwner)
	if !ok {
		return
	}

	if err := s.registry.TransferToken(caller, req.OrderID, newOwner, util.NowMillis(s.clock)); err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "transferred"})
}

func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id", err.Error())
		return
	}
	tok, err := s.registry.Receipt(id)
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, receiptInfo(tok))
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var req PauseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	caller, ok := parseAddress(w, req.Caller)
	if !ok {
		return
	}
	owner, ok := parseAddress(w, req.LedgerOwner)
	if !ok {
		return
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(req.CapabilitySig, "0x"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid capability signature", err.Error())
		return
	}

	cap := crypto.Capability{Holder: caller, Signature: sig}
	if err := s.registry.TogglePause(cap, caller, owner, req.Paused, util.NowMillis(s.clock)); err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "ok", "paused": fmt.Sprintf("%t", req.Paused)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helper Functions
// ==============================

func parseAddress(w http.ResponseWriter, addressStr string) (common.Address, bool) {
	if !common.IsHexAddress(addressStr) {
		respondError(w, http.StatusBadRequest, "invalid address", addressStr)
		return common.Address{}, false
	}
	return common.HexToAddress(addressStr), true
}

func parseLeg(req OCOLegRequest) (ledger.OCOLeg, error) {
	side, err := ledger.ParseSide(req.Side)
	if err != nil {
		return ledger.OCOLeg{}, err
	}
	return ledger.OCOLeg{Price: req.Price, Quantity: req.Quantity, Side: side}, nil
}

func orderInfo(rec *ledger.OrderRecord) OrderInfo {
	return OrderInfo{
		OrderID:         rec.OrderID,
		ExternalOrderID: rec.ExternalOrderID,
		PoolID:          rec.PoolID,
		Price:           rec.Price,
		Quantity:        rec.Quantity,
		OriginalQty:     rec.OriginalQuantity,
		Side:            rec.Side.String(),
		Kind:            rec.Kind.String(),
		TimeInForce:     rec.TimeInForce.String(),
		CreatedAt:       rec.CreatedAt,
		IsActive:        rec.IsActive,
		IsFullyFilled:   rec.IsFullyFilled,
		CancelledAt:     rec.CancelledAt,
		OCOGroupID:      rec.OCOGroupID,
	}
}

func receiptInfo(tok *ledger.ReceiptToken) ReceiptInfo {
	return ReceiptInfo{
		Order:       orderInfo(tok.Record),
		Owner:       tok.Owner.Hex(),
		LedgerOwner: tok.LedgerOwner.Hex(),
		Consumed:    tok.Consumed,
	}
}

// respondLedgerError maps ledger sentinel errors to HTTP status codes.
func respondLedgerError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, ledger.ErrLedgerNotFound),
		errors.Is(err, ledger.ErrOCOGroupNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrInvalidInput),
		errors.Is(err, ledger.ErrTimestampInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, ledger.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, ledger.ErrPaused),
		errors.Is(err, ledger.ErrAlreadyCancelled),
		errors.Is(err, ledger.ErrAlreadyFilled),
		errors.Is(err, ledger.ErrLedgerExists),
		errors.Is(err, ledger.ErrReceiptConsumed):
		status = http.StatusConflict
	}
	respondError(w, status, "operation failed", err.Error())
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
