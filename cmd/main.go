package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/tealbook/ledgerd/internal/config"
	"github.com/tealbook/ledgerd/internal/httpapi"
	"github.com/tealbook/ledgerd/internal/ledger"
	"github.com/tealbook/ledgerd/internal/storage/memory"
	pgstore "github.com/tealbook/ledgerd/internal/storage/postgres"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logger := buildLogger(cfg.Log)
	slog.SetDefault(logger)

	var store httpapi.Store
	var closeFn func()

	if dsn := strings.TrimSpace(cfg.Database.URL); dsn != "" {
		pg, err := pgstore.Open(ctx, dsn)
		if err != nil {
			logger.Error("failed to connect to postgres", "err", err)
			os.Exit(1)
		}
		closeFn = pg.Close
		store = pg
		logger.Info("storage backend: postgres")
	} else {
		mem := memory.New()
		if devSeed() {
			seedDev(mem, logger)
		}
		store = mem
		logger.Info("storage backend: memory")
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           httpapi.New(store, logger).Handler(),
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeout) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:       time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ledgerd listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		ctxShutdown, cancel := context.WithTimeout(context.Background(),
			time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctxShutdown); err != nil {
			logger.Error("server shutdown error", "err", err)
		}
	case err := <-errCh:
		logger.Error("server error", "err", err)
	}
	if closeFn != nil {
		closeFn()
	}
}

func devSeed() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LEDGERD_DEV_SEED"))) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// seedDev loads a minimal chart of accounts so a fresh memory store is usable
// from compose/local without any setup calls.
func seedDev(store *memory.Store, logger *slog.Logger) {
	cash := ledger.Account{ID: uuid.New(), Name: "Cash", Type: ledger.AccountTypeAsset, Unit: ledger.DefaultUnit, Active: true}
	salary := ledger.Account{ID: uuid.New(), Name: "Salary", Type: ledger.AccountTypeIncome, Unit: ledger.DefaultUnit, Active: true}
	groceries := ledger.Account{ID: uuid.New(), Name: "Groceries", Type: ledger.AccountTypeExpense, Unit: ledger.DefaultUnit, Active: true}
	store.SeedAccount(cash)
	store.SeedAccount(salary)
	store.SeedAccount(groceries)
	logger.Info("dev seed loaded",
		"cash_account_id", cash.ID.String(),
		"salary_account_id", salary.ID.String(),
		"groceries_account_id", groceries.ID.String())
}

func parseLogLevel(s string) slog.Leveler {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "err":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildLogger(cfg config.LogConfig) *slog.Logger {
	level := parseLogLevel(cfg.Level)
	if strings.ToLower(cfg.Format) == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
