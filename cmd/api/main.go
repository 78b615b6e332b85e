package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/mcclellann/fredBills/pkg/config"
	"github.com/mcclellann/fredBills/pkg/forecast"
	"github.com/mcclellann/fredBills/pkg/ledger"
	"github.com/mcclellann/fredBills/pkg/logging"
	"github.com/mcclellann/fredBills/pkg/notify"
	"github.com/mcclellann/fredBills/pkg/scheduler"
	"github.com/mcclellann/fredBills/pkg/store"
)

// Server holds the ledger, forecast engine and scheduler behind the HTTP API.
type Server struct {
	ledger    *ledger.Ledger
	forecast  *forecast.Engine
	scheduler *scheduler.Scheduler
	storage   store.Storage // Keep a reference to the storage to close it
	log       *logrus.Logger
	loc       *time.Location
	now       func() time.Time
}

func NewServer(s store.Storage, sched *scheduler.Scheduler, logger *logrus.Logger, loc *time.Location, now func() time.Time) *Server {
	if now == nil {
		now = time.Now
	}
	clock := func() time.Time { return now().In(loc) }
	return &Server{
		ledger:    ledger.NewLedger(s, logger, clock),
		forecast:  forecast.NewEngine(s, s, logger, loc),
		scheduler: sched,
		storage:   s,
		log:       logger,
		loc:       loc,
		now:       clock,
	}
}

func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/bills", s.listBillsHandler).Methods("GET")
	router.HandleFunc("/bills", s.createBillHandler).Methods("POST")
	router.HandleFunc("/bills/{id}", s.getBillHandler).Methods("GET")
	router.HandleFunc("/bills/{id}", s.updateBillHandler).Methods("PUT")
	router.HandleFunc("/bills/{id}", s.deleteBillHandler).Methods("DELETE")
	router.HandleFunc("/bills/{id}/archive", s.archiveBillHandler).Methods("POST")
	router.HandleFunc("/bills/{id}/payments", s.listPaymentsHandler).Methods("GET")
	router.HandleFunc("/bills/{id}/payments", s.recordPaymentHandler).Methods("POST")
	router.HandleFunc("/bills/{id}/skip", s.skipPaymentHandler).Methods("POST")

	router.HandleFunc("/payments/{id}", s.updatePaymentHandler).Methods("PUT")
	router.HandleFunc("/payments/{id}", s.deletePaymentHandler).Methods("DELETE")

	router.HandleFunc("/forecast", s.forecastRangeHandler).Methods("GET")
	router.HandleFunc("/forecast/{month}", s.forecastMonthHandler).Methods("GET")
	router.HandleFunc("/forecast/{month}/summary", s.forecastSummaryHandler).Methods("GET")
	router.HandleFunc("/history", s.paymentHistoryHandler).Methods("GET")

	router.HandleFunc("/jobs", s.jobStatusHandler).Methods("GET")
	router.HandleFunc("/jobs/"+scheduler.DailyBillCheckJob, s.runBillCheckHandler).Methods("POST")
	router.HandleFunc("/jobs/"+scheduler.AutoPayJob, s.runAutoPayHandler).Methods("POST")

	return router
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	logger := logging.New(cfg.Log.Level)

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatalf("Failed to load timezone: %v", err)
	}

	sqlStore, err := store.NewSQLStore(cfg.Database.Driver, cfg.Database.DSN, store.WithLocation(loc))
	if err != nil {
		logger.Fatalf("Failed to initialize %s store: %v", cfg.Database.Driver, err)
	}
	defer sqlStore.Close()

	now := func() time.Time { return time.Now().In(loc) }

	var notifier scheduler.Notifier
	if cfg.SMTP.Enabled() {
		notifier = notify.NewSender(cfg.SMTP, logger)
	}
	sched := scheduler.New(scheduler.Deps{
		Store:    sqlStore,
		Log:      logger,
		Now:      now,
		Notifier: notifier,
	}, scheduler.Options{
		Location:           loc,
		DailyBillCheckSpec: cfg.Schedule.DailyBillCheck,
		AutoPaySpec:        cfg.Schedule.AutoPay,
	})
	if err := sched.Init(); err != nil {
		logger.Fatalf("Failed to start scheduler: %v", err)
	}

	server := NewServer(sqlStore, sched, logger, loc, now)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Infof("Server starting on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("HTTP shutdown: %v", err)
	}
	if err := sched.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Scheduler shutdown: %v", err)
	}
}
