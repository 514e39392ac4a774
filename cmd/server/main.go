package main

import (
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"go.uber.org/zap"

	"github.com/qs-lzh/movie-booking/config"
	"github.com/qs-lzh/movie-booking/internal/app"
	"github.com/qs-lzh/movie-booking/internal/cache"
	"github.com/qs-lzh/movie-booking/internal/handler"
	"github.com/qs-lzh/movie-booking/internal/mq"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		logger.Fatal("failed to connect database", zap.Error(err))
	}

	redisCache, err := cache.NewRedisCache(cfg.CacheURL)
	if err != nil {
		logger.Fatal("failed to connect cache", zap.Error(err))
	}

	mqConn, err := mq.NewMQConn(cfg.MQURL)
	if err != nil {
		logger.Fatal("failed to connect message queue", zap.Error(err))
	}
	defer mqConn.Close()

	application := app.New(cfg, db, redisCache, mqConn, logger)
	if err := application.Init(); err != nil {
		logger.Fatal("failed to init app", zap.Error(err))
	}
	defer application.Close()

	router := handler.NewRouter(application)
	if err := router.Run(cfg.Addr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
