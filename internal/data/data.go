package data

import (
	"context"
	"fmt"

	"github.com/adscope/adscope-backend/internal/conf"
	"github.com/adscope/adscope-backend/internal/pkg/database"
	"github.com/adscope/adscope-backend/internal/pkg/logger"
	searchdata "github.com/adscope/adscope-backend/internal/searchcache/data"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Data bundles the shared infrastructure connections
type Data struct {
	DB          *database.DB
	RedisClient *redis.Client
	Logger      *logger.Logger
}

// NewData connects to PostgreSQL and Redis and runs schema migration.
// The returned cleanup function closes both connections.
func NewData(config *conf.Config, log *logger.Logger) (*Data, func(), error) {
	db, err := database.New(config.Database, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init database: %w", err)
	}

	if err := db.AutoMigrate(
		&searchdata.SearchResultPO{},
		&searchdata.HistoryEntryPO{},
	); err != nil {
		db.Close()
		return nil, nil, err
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     config.Redis.RedisAddr(),
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	d := &Data{
		DB:          db,
		RedisClient: redisClient,
		Logger:      log,
	}

	cleanup := func() {
		log.Info("cleaning up data resources")

		if err := redisClient.Close(); err != nil {
			log.Warn("failed to close redis client", zap.Error(err))
		}
		if err := db.Close(); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
	}

	return d, cleanup, nil
}
