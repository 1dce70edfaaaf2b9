package app

import (
	"log/slog"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"

	"github.com/oggyb/fritter-graph/internal/cache"
)

// AppContext holds shared dependencies (DB, Redis, Logger, Clock)
type AppContext struct {
	DB         *gorm.DB
	RedisCache *cache.RedisCache
	Logger     *slog.Logger
	Clock      clockwork.Clock
}

// New creates a new AppContext backed by the wall clock.
func New(db *gorm.DB, rdb *cache.RedisCache, logger *slog.Logger) *AppContext {
	return NewWithClock(db, rdb, logger, clockwork.NewRealClock())
}

// NewWithClock creates a new AppContext with an explicit clock; tests pass a fake one.
func NewWithClock(db *gorm.DB, rdb *cache.RedisCache, logger *slog.Logger, clock clockwork.Clock) *AppContext {
	return &AppContext{
		DB:         db,
		RedisCache: rdb,
		Logger:     logger,
		Clock:      clock,
	}
}
