package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"database/sql"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/mdbxhq/mdbx-backend/internal/config"
	"github.com/mdbxhq/mdbx-backend/internal/handler"
	"github.com/mdbxhq/mdbx-backend/internal/integrations/paystack"
	"github.com/mdbxhq/mdbx-backend/internal/ledger"
	"github.com/mdbxhq/mdbx-backend/internal/middleware"
	"github.com/mdbxhq/mdbx-backend/internal/repository"
	"github.com/mdbxhq/mdbx-backend/internal/service"
	"github.com/mdbxhq/mdbx-backend/internal/utils/email"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logLevel, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database
	db, err := sql.Open("postgres", cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	// Initialize layers
	repo := repository.NewRepository(db)
	led := ledger.NewPostgres(db, cfg.AdminAccountID, logger)
	gateway := paystack.NewClient(cfg, logger)
	var mailer service.Mailer
	if cfg.SMTPHost != "" {
		mailer = email.NewSender(cfg, logger)
	}
	svc := service.NewService(repo, led, gateway, mailer, cfg, logger)
	h := handler.NewHandler(svc, gateway, cfg.AdminAccountID, logger)

	// Setup router
	r := mux.NewRouter()
	// Public routes
	r.HandleFunc("/register", h.Register).Methods("POST")
	r.HandleFunc("/login", h.Login).Methods("POST")
	r.HandleFunc("/payments/webhook", h.PaymentWebhook).Methods("POST")
	// Protected routes
	authRouter := r.PathPrefix("/").Subrouter()
	authRouter.Use(middleware.AuthMiddleware(cfg))
	authRouter.HandleFunc("/contributions/preview", h.PreviewContribution).Methods("GET")
	authRouter.HandleFunc("/contributions", h.SubmitContribution).Methods("POST")
	authRouter.HandleFunc("/payments/verify", h.VerifyPayment).Methods("GET")
	authRouter.HandleFunc("/me/balances", h.Balances).Methods("GET")
	authRouter.HandleFunc("/me/export", h.ExportData).Methods("GET")
	authRouter.HandleFunc("/me", h.EraseMember).Methods("DELETE")
	authRouter.HandleFunc("/admin/interest", h.ApplyInterest).Methods("POST")

	// Scheduled interest runs. The schedule is the invocation-frequency
	// control; the job itself does not dedupe repeated runs.
	if cfg.InterestCron != "" && cfg.InterestRate != "" {
		rate, err := decimal.NewFromString(cfg.InterestRate)
		if err != nil {
			logger.Fatalf("Invalid INTEREST_RATE: %v", err)
		}
		c := cron.New()
		if _, err := c.AddFunc(cfg.InterestCron, func() {
			result, err := svc.ApplyInterest(context.Background(), rate)
			if err != nil {
				logger.Errorf("Scheduled interest run failed: %v", err)
				return
			}
			logger.Infof("Scheduled interest run: %s across %d members, %d failures",
				result.TotalInterest, result.MembersAffected, len(result.Failures))
		}); err != nil {
			logger.Fatalf("Invalid INTEREST_CRON: %v", err)
		}
		c.Start()
		defer c.Stop()
	}

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	logger.Infof("Starting server on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("Server failed: %v", err)
	}
}
