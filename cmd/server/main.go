package main

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oggyb/fritter-graph/internal/app"
	"github.com/oggyb/fritter-graph/internal/cache"
	"github.com/oggyb/fritter-graph/internal/config"
	"github.com/oggyb/fritter-graph/internal/db"
	"github.com/oggyb/fritter-graph/internal/engine"
	"github.com/oggyb/fritter-graph/internal/logger"
	"github.com/oggyb/fritter-graph/internal/repository"
	"github.com/oggyb/fritter-graph/internal/server"
	"github.com/oggyb/fritter-graph/internal/service/graph"
)

func main() {
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L() // slog.Logger pointer

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		return
	}

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	if err := redisCache.Ping(ctx); err != nil {
		log.Error("failed to connect to redis", "err", err)
		return
	}
	defer redisCache.Close()

	// Inject logger into app context
	appCtx := app.New(database, redisCache, log)

	if cfg.IsDevelopment() {
		if err := seed(ctx, appCtx); err != nil {
			log.Error("failed to seed", "err", err)
		}
	}

	metricsSrv := newMetricsServer(cfg.Metrics.Addr)
	if metricsSrv != nil {
		go func() {
			log.Info("starting metrics server", "addr", metricsSrv.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", "err", err)
			}
		}()
	} else {
		log.Info("metrics endpoint disabled")
	}

	registrars := []server.Registrar{
		graph.NewRegistrar(appCtx),
	}

	addr := cfg.GRPC.Host + ":" + cfg.GRPC.Port
	log.Info("starting gRPC server", "addr", addr)

	if err := server.StartGRPCServer(ctx, cfg, log, registrars...); err != nil {
		log.Error("failed to start gRPC server", "err", err)
	}

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Error("metrics server shutdown error", "err", err)
		}
	}
	log.Info("server stopped")
}

// newMetricsServer returns the Prometheus scrape server, or nil when addr is empty.
func newMetricsServer(addr string) *http.Server {
	if addr == "" {
		return nil
	}
	return &http.Server{
		Addr:              addr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// seed resets the database with demo users and content and builds a graph over them.
func seed(ctx context.Context, appCtx *app.AppContext) error {
	ids, err := db.SeedTestData(appCtx.DB)
	if err != nil {
		return err
	}
	eng := engine.New(appCtx,
		repository.NewUserRepository(appCtx.DB),
		repository.NewContentRepository(appCtx.DB),
	)
	_, err = eng.SeedGraph(ctx, ids, rand.New(rand.NewSource(time.Now().UnixNano())))
	return err
}
