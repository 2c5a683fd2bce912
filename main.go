package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatrelay/config"
	"chatrelay/db"
	"chatrelay/server"
	"chatrelay/token"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("configuration", zap.Error(err))
	}

	database, err := db.New(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer database.Close()

	tokens := token.NewService(cfg.TokenSecret, cfg.TokenTTL)

	srv := server.New(database, tokens, &server.Config{
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		CORSOrigin:   cfg.CORSOrigin,
	}, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{cfg.CORSOrigin},
		AllowMethods: []string{http.MethodGet, http.MethodPost},
	}))
	srv.Register(e)

	// Periodic sweep keeping durable online flags consistent with the
	// live session map.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@every 1m", srv.ReconcilePresence); err != nil {
		logger.Fatal("failed to schedule presence sweep", zap.Error(err))
	}
	scheduler.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("shutting down", zap.String("signal", sig.String()))

		scheduler.Stop()
		srv.Shutdown()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.Shutdown(ctx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
	}()

	logger.Info("relay listening", zap.String("addr", cfg.Addr))
	if err := e.Start(cfg.Addr); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server", zap.Error(err))
	}
}
