package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/coopgrid/energy-ledger/internal/domain"
	"github.com/coopgrid/energy-ledger/internal/usecase"
	"go.uber.org/zap"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// writeError maps ledger sentinels onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrTerminalOrder),
		errors.Is(err, domain.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidPrice),
		errors.Is(err, domain.ErrInvalidEfficiency),
		errors.Is(err, domain.ErrInvalidWindow),
		errors.Is(err, domain.ErrOverFill),
		errors.Is(err, domain.ErrInvariantViolation):
		status = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

type createOrderRequest struct {
	Number       string         `json:"order_number"`
	Trader       string         `json:"trader"`
	Pool         string         `json:"pool"`
	Counterparty string         `json:"counterparty"`
	Side         string         `json:"side"`
	Type         string         `json:"order_type"`
	Quantity     float64        `json:"quantity"`
	PricePerUnit float64        `json:"price_per_unit"`
	Currency     string         `json:"currency"`
	ValidFrom    *time.Time     `json:"valid_from"`
	ValidUntil   *time.Time     `json:"valid_until"`
	ExpiryTime   *time.Time     `json:"expiry_time"`
	ApprovedBy   string         `json:"approved_by"`
	Tags         map[string]any `json:"tags"`
	Metadata     map[string]any `json:"metadata"`
	Conditions   map[string]any `json:"order_conditions"`
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	order, err := s.orders.CreateOrder(r.Context(), usecase.CreateOrderCommand{
		Number:       req.Number,
		Trader:       req.Trader,
		Pool:         req.Pool,
		Counterparty: req.Counterparty,
		Side:         domain.OrderSide(req.Side),
		Type:         domain.OrderType(req.Type),
		Quantity:     req.Quantity,
		PricePerUnit: req.PricePerUnit,
		Currency:     req.Currency,
		ValidFrom:    req.ValidFrom,
		ValidUntil:   req.ValidUntil,
		ExpiryTime:   req.ExpiryTime,
		ApprovedBy:   req.ApprovedBy,
		Tags:         req.Tags,
		Metadata:     req.Metadata,
		Conditions:   req.Conditions,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, order)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.orders.GetOrder(r.Context(), r.PathValue("number"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	orders, err := s.orders.ListOrders(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list orders", zap.Error(err))
		http.Error(w, "Failed to list orders", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, orders)
}

func (s *Server) handleApplyFill(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity float64 `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	order, err := s.orders.ApplyFill(r.Context(), r.PathValue("number"), req.Quantity)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.orders.CancelOrder(r.Context(), r.PathValue("number"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleExpireOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Now *time.Time `json:"now"`
	}
	// Body is optional; an empty body means "expire as of now".
	_ = json.NewDecoder(r.Body).Decode(&req)
	now := time.Now()
	if req.Now != nil {
		now = *req.Now
	}
	order, err := s.orders.ExpireOrder(r.Context(), r.PathValue("number"), now)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, order)
}

type scheduleTransferRequest struct {
	Number         string          `json:"transfer_number"`
	Source         domain.PartyRef `json:"source"`
	Destination    domain.PartyRef `json:"destination"`
	AmountKWh      float64         `json:"transfer_amount_kwh"`
	TransferRateKW float64         `json:"transfer_rate_kw"`
	EfficiencyPct  float64         `json:"efficiency_percentage"`
	CostPerUnit    float64         `json:"cost_per_unit"`
	Currency       string          `json:"currency"`
	ScheduledStart time.Time       `json:"scheduled_start"`
	ScheduledEnd   time.Time       `json:"scheduled_end"`
	Confirmed      bool            `json:"confirmed"`
	Tags           map[string]any  `json:"tags"`
	Metadata       map[string]any  `json:"metadata"`
}

func (s *Server) handleScheduleTransfer(w http.ResponseWriter, r *http.Request) {
	var req scheduleTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	transfer, err := s.transfers.ScheduleTransfer(r.Context(), usecase.ScheduleTransferCommand{
		Number:         req.Number,
		Source:         req.Source,
		Destination:    req.Destination,
		AmountKWh:      req.AmountKWh,
		TransferRateKW: req.TransferRateKW,
		EfficiencyPct:  req.EfficiencyPct,
		CostPerUnit:    req.CostPerUnit,
		Currency:       req.Currency,
		ScheduledStart: req.ScheduledStart,
		ScheduledEnd:   req.ScheduledEnd,
		Confirmed:      req.Confirmed,
		Tags:           req.Tags,
		Metadata:       req.Metadata,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, transfer)
}

func (s *Server) handleGetTransfer(w http.ResponseWriter, r *http.Request) {
	transfer, err := s.transfers.GetTransfer(r.Context(), r.PathValue("number"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, transfer)
}

func (s *Server) handleListTransfers(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	transfers, err := s.transfers.ListTransfers(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list transfers", zap.Error(err))
		http.Error(w, "Failed to list transfers", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, transfers)
}

func (s *Server) decodeTimestamp(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	var req struct {
		Timestamp time.Time `json:"timestamp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Timestamp.IsZero() {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return time.Time{}, false
	}
	return req.Timestamp, true
}

func (s *Server) handleRecordStart(w http.ResponseWriter, r *http.Request) {
	ts, ok := s.decodeTimestamp(w, r)
	if !ok {
		return
	}
	transfer, err := s.transfers.RecordActualStart(r.Context(), r.PathValue("number"), ts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, transfer)
}

func (s *Server) handleRecordEnd(w http.ResponseWriter, r *http.Request) {
	ts, ok := s.decodeTimestamp(w, r)
	if !ok {
		return
	}
	transfer, err := s.transfers.RecordActualEnd(r.Context(), r.PathValue("number"), ts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, transfer)
}

func (s *Server) decodeReason(r *http.Request) string {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	return req.Reason
}

func (s *Server) handleFailTransfer(w http.ResponseWriter, r *http.Request) {
	transfer, err := s.transfers.Fail(r.Context(), r.PathValue("number"), s.decodeReason(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, transfer)
}

func (s *Server) handleHoldTransfer(w http.ResponseWriter, r *http.Request) {
	transfer, err := s.transfers.Hold(r.Context(), r.PathValue("number"), s.decodeReason(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, transfer)
}

func (s *Server) handleCancelTransfer(w http.ResponseWriter, r *http.Request) {
	transfer, err := s.transfers.Cancel(r.Context(), r.PathValue("number"), s.decodeReason(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, transfer)
}

func (s *Server) handleResumeTransfer(w http.ResponseWriter, r *http.Request) {
	transfer, err := s.transfers.Resume(r.Context(), r.PathValue("number"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, transfer)
}

func (s *Server) handleRecomputeTransfer(w http.ResponseWriter, r *http.Request) {
	transfer, err := s.transfers.Recompute(r.Context(), r.PathValue("number"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, transfer)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
