package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sl "github.com/14kear/sso-prettyslog/slogpretty/errors"

	"github.com/ayosleepy/polls/internal/app"
	"github.com/ayosleepy/polls/internal/config"
	"github.com/ayosleepy/polls/utils"
)

func main() {
	cfg := config.MustLoad()

	log := utils.New(cfg.Env)

	application := app.NewApp(log, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := application.HTTPServer.Run(); err != nil {
			if errors.Is(err, http.ErrServerClosed) {
				log.Info("HTTP server closed gracefully")
				return
			}
			log.Error("failed to run HTTP server", sl.Err(err))
			os.Exit(1)
		}
	}()

	log.Info("polls service started", slog.String("env", cfg.Env), slog.Int("port", cfg.HTTP.Port), slog.String("storage", cfg.Storage))

	<-ctx.Done()

	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := application.Stop(shutdownCtx); err != nil {
		log.Error("failed to stop application", sl.Err(err))
		os.Exit(1)
	}

	log.Info("application stopped")
}
