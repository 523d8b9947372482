package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/MrJamesThe3rd/blockbill/internal/app"
	"github.com/MrJamesThe3rd/blockbill/internal/config"
	bbHttp "github.com/MrJamesThe3rd/blockbill/internal/http"
	auditHandler "github.com/MrJamesThe3rd/blockbill/internal/http/audit"
	"github.com/MrJamesThe3rd/blockbill/internal/http/auth"
	invoiceHandler "github.com/MrJamesThe3rd/blockbill/internal/http/invoice"
	statementHandler "github.com/MrJamesThe3rd/blockbill/internal/http/statement"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logger(os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		slog.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	// Archive writes must outlive the signal so Close can drain the queue.
	a.Start(context.WithoutCancel(ctx))

	var (
		invoiceH   = invoiceHandler.NewHandler(a.Invoices, a.Query, a.Importer)
		statementH = statementHandler.NewHandler(a.Statements)
		auditH     = auditHandler.NewHandler(a.Verifier, a.Archiver)
	)

	authn := auth.New(auth.Config{
		Secret:   cfg.Auth.JWTSecret,
		Issuer:   cfg.Auth.JWTIssuer,
		Audience: cfg.Auth.JWTAudience,
	})

	router := bbHttp.New(
		bbHttp.Config{AllowedOrigins: cfg.CORS.AllowedOrigins, Timeout: cfg.Server.Timeout},
		authn,
		a.Metrics.Handler(),
		invoiceH,
		statementH,
		auditH,
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.Timeout,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout + cfg.Server.Timeout/2,
		IdleTimeout:       2 * cfg.Server.Timeout,
	}

	errCh := make(chan error, 1)

	go func() {
		slog.Info("starting server", "port", srv.Addr, "store", cfg.Store.Driver, "archive", cfg.Archive.Driver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
		}
	case <-ctx.Done():
		slog.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}

	if err := a.Close(); err != nil {
		slog.Error("failed to close", "error", err)
	}
}
