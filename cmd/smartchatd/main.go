package main

import (
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"smartchat/internal/api"
	"smartchat/internal/auth"
	"smartchat/internal/config"
	"smartchat/internal/redis"
	"smartchat/internal/service/ai"
	"smartchat/internal/service/chat"
	"smartchat/internal/storage"
	"smartchat/internal/worker"
	"smartchat/pkg/logger"
)

func main() {
	cfgPath := os.Getenv("SMARTCHAT_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)

	dbType := os.Getenv("SMARTCHAT_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	logger.Infof("opening %s database", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer db.Close()
	if err := storage.Migrate(db, dbType); err != nil {
		logger.Fatalf("migrate database: %v", err)
	}

	cache := redis.NewClient(cfg)
	defer cache.Close()

	responder, err := ai.NewResponder(cfg.AI)
	if err != nil {
		logger.Fatalf("init responder: %v", err)
	}

	workers := worker.NewDispatcher(worker.DispatcherConfig{
		MinWorkers: cfg.Server.MinWorkers,
		MaxWorkers: cfg.Server.MaxWorkers,
		QueueSize:  cfg.Server.QueueSize,
	})
	defer workers.Stop()
	logger.Infof("dispatcher ready with %d workers", workers.Running())

	tokenTTL := 24 * time.Hour
	if cfg.Server.TokenTTLHours > 0 {
		tokenTTL = time.Duration(cfg.Server.TokenTTLHours) * time.Hour
	}
	authService := auth.NewService(db, tokenTTL)
	chatService := chat.NewService(db, cache, cfg.Redis.CacheTTL(), responder, workers)
	handlers := api.NewHandler(chatService, authService)

	router := gin.Default()
	if len(cfg.Server.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.Server.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-CSRF-Token"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	handlers.RegisterRoutes(router)

	addr := cfg.Server.Address
	if addr == "" {
		addr = ":8090"
	}
	logger.Infof("listening on %s", addr)
	if err := router.Run(addr); err != nil {
		logger.Fatalf("server stopped: %v", err)
	}
}
