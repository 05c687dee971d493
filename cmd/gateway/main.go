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

	"github.com/rs/zerolog"

	"agentgate/internal/app"
	"agentgate/internal/config"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	path, loaded, err := loadEnvFile()
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("load env file failed")
	}
	if loaded > 0 {
		log.Info().Str("path", path).Int("loaded", loaded).Msg("env file applied")
	}

	cfg := config.Load()
	srv, err := app.NewServer(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("init server failed")
	}
	defer srv.Close()

	addr := fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv.Handler(),
	}

	go func() {
		log.Info().Str("addr", addr).Msg("gateway listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("shutdown incomplete")
	}
}
