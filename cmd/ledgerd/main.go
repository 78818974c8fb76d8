package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coopgrid/energy-ledger/internal/config"
	"github.com/coopgrid/energy-ledger/internal/infrastructure/logger"
	"github.com/coopgrid/energy-ledger/internal/infrastructure/storage"
	"github.com/coopgrid/energy-ledger/internal/usecase"
	"github.com/coopgrid/energy-ledger/internal/web"
	"go.uber.org/zap"
)

func main() {
	// 1. Load Config
	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	log, err := logger.NewLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 3. Init Storage
	store, err := storage.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	// 4. Init Ledgers
	opts := usecase.Options{
		LockWait:          cfg.LockWait(),
		LockRetries:       cfg.Ledger.LockRetries,
		ScheduleTolerance: cfg.ScheduleTolerance(),
	}
	bus := usecase.NewEventBus()
	clock := usecase.SystemClock{}
	orderLedger := usecase.NewOrderLedger(store, bus, clock, log, opts)
	transferLedger := usecase.NewTransferLedger(store, bus, clock, log, opts)

	// 5. Settlement audit log: every status transition lands in the file.
	auditPath := cfg.Logging.AuditLogPath
	if auditPath == "" {
		auditPath = "settlement_audit.log"
	}
	auditLog, err := logger.NewFileLogger(auditPath, "info")
	if err != nil {
		log.Error("Failed to init audit logger, using default", zap.Error(err))
		auditLog = log
	}
	bus.Subscribe(func(e usecase.StatusEvent) {
		auditLog.Info("status transition",
			zap.String("entity", e.Entity),
			zap.String("number", e.Number),
			zap.String("from", e.From),
			zap.String("to", e.To),
			zap.String("reason", e.Reason),
			zap.Time("at", e.At))
	})

	// 6. Init Web Server + WS event feed
	hub := web.NewEventHub(bus, log)
	server := web.NewServer(cfg.Server.Port, orderLedger, transferLedger, hub, log)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// 7. Wait for Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down...")
	server.Shutdown(context.Background())
}
