package main

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/oggyb/fritter-graph/internal/app"
	"github.com/oggyb/fritter-graph/internal/cache"
	"github.com/oggyb/fritter-graph/internal/config"
	"github.com/oggyb/fritter-graph/internal/db"
	"github.com/oggyb/fritter-graph/internal/engine"
	"github.com/oggyb/fritter-graph/internal/logger"
	"github.com/oggyb/fritter-graph/internal/repository"
)

func main() {
	// Load configuration
	cfg := config.New()
	logger.InitFromConfig(cfg)
	ctx := context.Background()

	database, err := db.NewDB(cfg)
	if err != nil {
		log.Fatalf("failed to init db: %v", err)
	}

	ids, err := db.SeedTestData(database)
	if err != nil {
		log.Fatalf("failed to seed: %v", err)
	}

	// view counters are optional while seeding
	redisCache := cache.NewRedisCache(cfg)
	if err := redisCache.Ping(ctx); err != nil {
		log.Printf("redis unavailable, seeding without view counters: %v", err)
		redisCache = nil
	}

	appCtx := app.New(database, redisCache, logger.L())
	eng := engine.New(appCtx,
		repository.NewUserRepository(database),
		repository.NewContentRepository(database),
	)

	stats, err := eng.SeedGraph(ctx, ids, rand.New(rand.NewSource(time.Now().UnixNano())))
	if err != nil {
		log.Fatalf("failed to seed graph: %v", err)
	}

	log.Printf("Seeding completed: %d follows, %d views, %d votes.", stats.Follows, stats.Views, stats.Votes)
}
