package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/devcapsules/codecapsules-sub003/internal/infra"
	"github.com/devcapsules/codecapsules-sub003/internal/middleware"
	"github.com/devcapsules/codecapsules-sub003/internal/pipeline"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	generator := pipeline.NewSyntheticGenerator(os.Getenv("PIPELINE_MODEL"))
	handler := pipeline.NewHandler(generator, logger)

	r := chi.NewRouter()
	r.Use(chimw.RealIP, chimw.Recoverer)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.TunnelAuth(cfg.WorkerSharedSecret, cfg.WorkerAllowedCallers, "", logger))

	r.Get("/internal/health", handler.Health)
	r.Post("/internal/generate", handler.Generate)

	server := infra.NewHTTPServer(cfg, r)

	go func() {
		logger.Info().Msgf("pipeline listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("pipeline stopped")
}
