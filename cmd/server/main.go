// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/mailcampaign-backend/internal/app"
	"github.com/unclebandit/mailcampaign-backend/internal/config"
	"github.com/unclebandit/mailcampaign-backend/internal/controller"
	"github.com/unclebandit/mailcampaign-backend/internal/handler"
	"github.com/unclebandit/mailcampaign-backend/internal/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}
	defer a.Close()

	// Without a broker nobody else will consume resend jobs.
	if !a.Distributed {
		if err := a.StartResendWorker(ctx); err != nil {
			log.Fatal("start resend worker", zap.Error(err))
		}
	}

	router := handler.NewRouter(handler.RouterDeps{
		Campaigns: &controller.CampaignController{
			CampaignService: a.Service,
			Logger:          log,
			MaxUploadBytes:  int64(cfg.Server.MaxUploadMB) << 20,
		},
		Datasets: &controller.DatasetController{
			DatasetService: a.DatasetService,
			Logger:         log,
			MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
		},
		SMTP: &controller.SMTPController{
			Configs:  a.SMTPConfigs,
			Accounts: a.Accounts,
			Tester:   a.Selector,
			Logger:   log,
		},
		Auth:        &handler.Authenticator{Secret: []byte(cfg.Auth.JWTSecret)},
		CORSOrigins: cfg.Server.CORSOrigins,
		Logger:      log,
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	<-done
	log.Info("shutting down")

	// Dispatches already running finish before the process exits.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", zap.Error(err))
	}
	cancel()
	log.Info("server stopped")
}
