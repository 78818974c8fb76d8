package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coopgrid/energy-ledger/internal/usecase"
	"go.uber.org/zap"
)

type Server struct {
	router    *http.ServeMux
	server    *http.Server
	orders    *usecase.OrderLedger
	transfers *usecase.TransferLedger
	hub       *EventHub
	logger    *zap.Logger
}

func NewServer(
	port int,
	orders *usecase.OrderLedger,
	transfers *usecase.TransferLedger,
	hub *EventHub,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:    http.NewServeMux(),
		orders:    orders,
		transfers: transfers,
		hub:       hub,
		logger:    logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	// Orders
	s.router.HandleFunc("POST /orders", s.handleCreateOrder)
	s.router.HandleFunc("GET /orders", s.handleListOrders)
	s.router.HandleFunc("GET /orders/{number}", s.handleGetOrder)
	s.router.HandleFunc("POST /orders/{number}/fills", s.handleApplyFill)
	s.router.HandleFunc("POST /orders/{number}/cancel", s.handleCancelOrder)
	s.router.HandleFunc("POST /orders/{number}/expire", s.handleExpireOrder)

	// Transfers
	s.router.HandleFunc("POST /transfers", s.handleScheduleTransfer)
	s.router.HandleFunc("GET /transfers", s.handleListTransfers)
	s.router.HandleFunc("GET /transfers/{number}", s.handleGetTransfer)
	s.router.HandleFunc("POST /transfers/{number}/start", s.handleRecordStart)
	s.router.HandleFunc("POST /transfers/{number}/end", s.handleRecordEnd)
	s.router.HandleFunc("POST /transfers/{number}/fail", s.handleFailTransfer)
	s.router.HandleFunc("POST /transfers/{number}/hold", s.handleHoldTransfer)
	s.router.HandleFunc("POST /transfers/{number}/cancel", s.handleCancelTransfer)
	s.router.HandleFunc("POST /transfers/{number}/resume", s.handleResumeTransfer)
	s.router.HandleFunc("POST /transfers/{number}/recompute", s.handleRecomputeTransfer)

	// Event feed
	s.router.HandleFunc("GET /ws/events", s.hub.handleWS)

	// Status
	s.router.HandleFunc("GET /status", s.handleStatus)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
