package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/callroom/config"
	"github.com/mossy-p/callroom/internal/handlers"
	"github.com/mossy-p/callroom/internal/logging"
	"github.com/mossy-p/callroom/internal/presence"
	"github.com/mossy-p/callroom/internal/signaling"
)

func main() {
	logger := logging.Init(slog.LevelInfo)

	// Load configuration
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var recorder presence.Recorder = presence.Nop{}
	var counter presence.Counter
	if cfg.Redis.Enabled {
		client, err := presence.Connect(ctx, cfg.Redis)
		if err != nil {
			logger.Error("redis unavailable", "error", err)
			os.Exit(1)
		}
		mirror := presence.NewRedis(client, logger)
		defer mirror.Close()
		go mirror.Run(ctx)

		recorder, counter = mirror, mirror
		logger.Info("redis presence mirror enabled", "host", cfg.Redis.Host)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	hub := signaling.NewHub(recorder, logger)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handlers.NewRouter(cfg, hub, counter),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("starting signaling server", "port", cfg.Port, "admin", cfg.AdminEnabled())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
