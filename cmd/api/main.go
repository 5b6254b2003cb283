package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/devcapsules/codecapsules-sub003/internal/admission"
	"github.com/devcapsules/codecapsules-sub003/internal/http/handlers"
	httpapi "github.com/devcapsules/codecapsules-sub003/internal/http/httpapi"
	"github.com/devcapsules/codecapsules-sub003/internal/infra"
	"github.com/devcapsules/codecapsules-sub003/internal/kv"
	"github.com/devcapsules/codecapsules-sub003/internal/progress"
	"github.com/devcapsules/codecapsules-sub003/internal/queue"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	redisClient, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: redis connection failed")
	}
	defer redisClient.Close()

	store := kv.NewRedis(redisClient)
	app := handlers.NewApp(
		admission.NewController(store),
		queue.NewRedisQueue(redisClient),
		progress.NewStore(store, cfg.ProgressTTL),
		logger,
	)

	router := httpapi.NewRouter(app, cfg, logger)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
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
	logger.Info().Msg("server stopped")
}
