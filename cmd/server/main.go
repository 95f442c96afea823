package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adscope/adscope-backend/internal/conf"
	"github.com/adscope/adscope-backend/internal/data"
	"github.com/adscope/adscope-backend/internal/pkg/logger"
	"github.com/adscope/adscope-backend/internal/pkg/workerpool"
	"github.com/adscope/adscope-backend/internal/searchcache/biz"
	searchdata "github.com/adscope/adscope-backend/internal/searchcache/data"
	"github.com/adscope/adscope-backend/internal/searchcache/service"
	"github.com/adscope/adscope-backend/internal/server"
	"go.uber.org/zap"
)

var (
	configFile = flag.String("config", "config.yaml", "config file path")
)

func main() {
	flag.Parse()

	config, err := conf.LoadConfig(*configFile)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := logger.New(config.Log)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	log.Info("config loaded successfully")

	d, cleanup, err := data.NewData(config, log)
	if err != nil {
		log.Fatal("failed to initialize data layer", zap.Error(err))
	}
	defer cleanup()

	sweepPool, err := workerpool.New(config.Cache.SweepWorkers, log.Logger)
	if err != nil {
		log.Fatal("failed to create sweep worker pool", zap.Error(err))
	}
	defer sweepPool.Shutdown()

	// Repositories
	resultRepo := searchdata.NewSearchResultRepo(d.DB)
	historyRepo := searchdata.NewHistoryRepo(d.DB)
	resetter := searchdata.NewStorageResetter(d.DB)
	sessionStore := searchdata.NewSessionStore(d.RedisClient, config.Cache.SessionPrefix, log.Logger)

	// Use case
	cacheUseCase := biz.NewSearchCacheUseCase(
		resultRepo,
		historyRepo,
		resetter,
		sessionStore,
		sweepPool,
		&biz.Config{
			HistoryLimit: config.Cache.HistoryLimit,
			Retention:    config.Cache.Retention,
		},
		log.Logger,
	)

	// Service and server
	cacheService := service.NewSearchCacheService(cacheUseCase, log.Logger)
	httpServer := server.NewHTTPServer(config, log, cacheService, d.DB, d.RedisClient)

	go func() {
		if err := httpServer.Start(); err != nil {
			log.Fatal("failed to start HTTP server", zap.Error(err))
		}
	}()

	log.Info("server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Stop(ctx); err != nil {
		log.Error("HTTP server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}
