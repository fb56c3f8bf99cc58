package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ovaphlow/pitchfork/service-tube-go/internal/app"
	"github.com/ovaphlow/pitchfork/service-tube-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-tube-go/pkg/utilities"
)

func main() {
	// .env is optional; real environment variables win
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	lg, err := utilities.Init(cfg.Logger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Infow("starting service-tube-go", "env", cfg.AppEnv, "store", cfg.Store.Driver, "base_path", cfg.BasePath)

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, sugar)
	if err != nil {
		sugar.Fatalf("init: %v", err)
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           a.Handler,
		ReadHeaderTimeout: cfg.RequestTimeout,
	}

	go func() {
		sugar.Infow("http server listening", "addr", cfg.AppAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
	if err := a.Ping(doneCtx); err != nil {
		sugar.Warnf("db ping on shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}
