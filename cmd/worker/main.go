package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/devcapsules/codecapsules-sub003/internal/admission"
	"github.com/devcapsules/codecapsules-sub003/internal/cache"
	"github.com/devcapsules/codecapsules-sub003/internal/consumer"
	"github.com/devcapsules/codecapsules-sub003/internal/guard"
	"github.com/devcapsules/codecapsules-sub003/internal/infra"
	"github.com/devcapsules/codecapsules-sub003/internal/kv"
	"github.com/devcapsules/codecapsules-sub003/internal/ledger"
	"github.com/devcapsules/codecapsules-sub003/internal/metrics"
	"github.com/devcapsules/codecapsules-sub003/internal/progress"
	"github.com/devcapsules/codecapsules-sub003/internal/queue"
	"github.com/devcapsules/codecapsules-sub003/internal/tunnel"
)

const promoteInterval = 2 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: redis connection failed")
	}
	defer redisClient.Close()

	store := kv.NewRedis(redisClient)
	jobQueue := queue.NewRedisQueue(redisClient)

	var costLedger consumer.CostLedger
	if cfg.DatabaseURL != "" {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: db connection failed")
		}
		defer pool.Close()
		costLedger = ledger.New(infra.NewSQLRunner(pool, logger))
	} else {
		logger.Warn().Msg("worker: DATABASE_URL not set, cost ledger disabled")
	}

	tunnelClient := tunnel.NewClient(tunnel.Options{
		BaseURL:  cfg.PipelineBaseURL,
		Secret:   cfg.WorkerSharedSecret,
		CallerID: cfg.WorkerCallerID,
		Logger:   &logger,
	})

	c := consumer.New(consumer.Deps{
		Queue: jobQueue,
		Store: store,
		Guard: guard.New(store, guard.Options{
			FailureThreshold: cfg.BreakerThreshold,
			FailureWindow:    cfg.BreakerWindow,
			Cooldown:         cfg.BreakerCooldown,
			DailyBudgetUSD:   cfg.DailyBudgetUSD,
			BudgetPause:      cfg.BudgetPause,
		}),
		Cache:    cache.New(store, cfg.CacheTTL),
		Progress: progress.NewStore(store, cfg.ProgressTTL),
		Remote:   tunnelClient,
		Ledger:   costLedger,
		Quota:    admission.NewController(store),
		Logger:   logger,
	}, consumer.Options{
		MaxAttempts:    cfg.MaxAttempts,
		RetryBaseDelay: cfg.RetryBaseDelay,
		RemoteTimeout:  cfg.RemoteTimeout,
	})

	if !tunnelClient.Health(ctx) {
		logger.Warn().Str("base_url", cfg.PipelineBaseURL).Msg("worker: pipeline health check failed at startup")
	}

	g, runCtx := errgroup.WithContext(ctx)

	for i := 0; i < cfg.Concurrency; i++ {
		g.Go(func() error {
			return c.Run(runCtx)
		})
	}

	// Promote due retries back into the ready list and keep the backlog
	// gauge fresh.
	g.Go(func() error {
		ticker := time.NewTicker(promoteInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return runCtx.Err()
			case <-ticker.C:
				if _, err := jobQueue.PromoteDue(runCtx); err != nil && runCtx.Err() == nil {
					logger.Error().Err(err).Msg("worker: promote due retries failed")
				}
				if depth, err := jobQueue.Depth(runCtx); err == nil {
					metrics.QueueDepth.Set(float64(depth))
				}
			}
		}
	})

	// Liveness and metrics endpoint for the worker process.
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g.Go(func() error {
		logger.Info().Msgf("worker metrics listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-runCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	logger.Info().Int("concurrency", cfg.Concurrency).Msg("worker: started")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}
