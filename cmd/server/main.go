// Command server runs the MediTrace provenance API: unit registration,
// custody appends, public verification and chain status.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"meditrace/internal/anomaly"
	"meditrace/internal/ledger"
	ledgerstore "meditrace/internal/ledger/store"
	"meditrace/internal/platform/config"
	"meditrace/internal/platform/database"
	"meditrace/internal/platform/httpserver"
	"meditrace/internal/platform/logger"
	platformmetrics "meditrace/internal/platform/metrics"
	"meditrace/internal/stream"
	httptransport "meditrace/internal/transport/http"
	unithandler "meditrace/internal/unit/handler"
	unitservice "meditrace/internal/unit/service"
	unitstore "meditrace/internal/unit/store"
	verificationhandler "meditrace/internal/verification/handler"
	verificationservice "meditrace/internal/verification/service"
	verificationstore "meditrace/internal/verification/store"
	"meditrace/internal/verification/trust"
)

func main() {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.FromEnv()
	log := logger.New()
	m := platformmetrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		blocks   ledger.Store
		units    unitservice.Store
		attempts verificationservice.AttemptStore
	)
	if cfg.PostgresDSN != "" {
		db, err := database.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Error("database connect failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := database.EnsureSchema(ctx, db); err != nil {
			log.Error("schema apply failed", "error", err)
			os.Exit(1)
		}
		blocks = ledgerstore.NewPostgres(db)
		units = unitstore.NewPostgres(db)
		attempts = verificationstore.NewPostgres(db)
		log.Info("using postgres stores")
	} else {
		blocks = ledgerstore.NewInMemory()
		units = unitstore.NewInMemory()
		attempts = verificationstore.NewInMemory()
		log.Warn("using in-memory stores; data is lost on restart")
	}

	ledgerOpts := []ledger.Option{ledger.WithLogger(log), ledger.WithMetrics(m)}
	if len(cfg.KafkaBrokers) > 0 {
		publisher, err := stream.NewBlockPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		if err != nil {
			log.Error("kafka connect failed", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		ledgerOpts = append(ledgerOpts, ledger.WithPublisher(publisher))
		log.Info("block stream enabled", "topic", cfg.KafkaTopic)
	}
	chain := ledger.NewService(blocks, ledgerOpts...)

	registry := unitservice.NewService(units, chain, cfg.FingerprintNamespace,
		unitservice.WithLogger(log),
		unitservice.WithMetrics(m),
	)

	detector := anomaly.NewDetector(chain, cfg.Anomaly,
		anomaly.WithLogger(log),
		anomaly.WithMetrics(m),
	)

	var signals []trust.Signal
	if cfg.PackagingCheckURL != "" {
		signals = append(signals, trust.NewHTTPSignal("packaging", cfg.PackagingCheckURL, nil))
	}
	if cfg.BehaviorCheckURL != "" {
		signals = append(signals, trust.NewHTTPSignal("behavior", cfg.BehaviorCheckURL, nil))
	}
	verifier := verificationservice.NewService(units, chain, detector, attempts,
		verificationservice.WithLogger(log),
		verificationservice.WithMetrics(m),
		verificationservice.WithTrustSignals(cfg.TrustSignalTimeout, signals...),
	)

	router := httptransport.NewRouter(httptransport.Deps{
		Units:        unithandler.New(registry, log),
		Verification: verificationhandler.New(verifier, log),
		AdminToken:   cfg.AdminToken,
		Logger:       log,
	})

	srv := httpserver.New(cfg.Addr, router)
	go func() {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
