package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/veilchat/whispermatch/internal/cache"
	"github.com/veilchat/whispermatch/internal/config"
	"github.com/veilchat/whispermatch/internal/database"
	"github.com/veilchat/whispermatch/internal/handlers"
	"github.com/veilchat/whispermatch/internal/logger"
	"github.com/veilchat/whispermatch/internal/match"
	"github.com/veilchat/whispermatch/internal/metrics"
	"github.com/veilchat/whispermatch/internal/middleware"
	"github.com/veilchat/whispermatch/internal/websocket"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	if err := logger.Initialize(cfg.LogLevel, cfg.LogFile); err != nil {
		panic(err)
	}
	defer logger.Close()

	metrics.Initialize()

	logger.Log.Info("Starting whisper match service",
		zap.String("environment", cfg.Environment),
		zap.String("port", cfg.Port),
		zap.Duration("session_ttl", cfg.SessionTTL),
	)

	// Session store: Redis when configured, in-memory otherwise
	var store match.SessionStore
	var redisClient *cache.RedisClient
	if cfg.RedisHost != "" {
		redisClient, err = cache.NewRedisClient(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword)
		if err != nil {
			logger.Log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		store = match.NewRedisSessionStore(redisClient.Client(), cfg.MessageCap)
		logger.Log.Info("Using Redis session store", zap.String("host", cfg.RedisHost))
	} else {
		store = match.NewMemorySessionStore(cfg.MessageCap)
		logger.Log.Info("Using in-memory session store")
	}

	// Terminal session archive is optional
	var archiver match.Archiver
	if cfg.DatabaseURL != "" {
		if err := database.Initialize(cfg.DatabaseURL, cfg.Environment); err != nil {
			logger.Log.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer database.Close()
		if err := database.Migrate(); err != nil {
			logger.Log.Fatal("Failed to run migrations", zap.Error(err))
		}
		archiver = match.NewGormArchiver(database.DB)
		logger.Log.Info("Session archiving enabled")
	}

	hub := websocket.NewHub()
	go hub.Run()

	svc := match.NewService(store, match.NewWaitPool(), websocket.NewMatchNotifier(hub), cfg.SessionTTL)
	defer svc.Close()

	sweeper := match.NewSweeper(svc, archiver, cfg.SweepInterval, cfg.WaitTimeout, cfg.TerminalRetention)
	sweeper.Start()
	defer sweeper.Stop()

	wsHandler := websocket.NewHandler(hub, cfg.JWTSecret, svc)
	wsHandler.RegisterDefaultHandlers()

	router := setupRouter(cfg, svc, wsHandler)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := hub.Shutdown(ctx); err != nil {
		logger.Log.Warn("WebSocket hub shutdown incomplete", zap.Error(err))
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("HTTP server shutdown failed", zap.Error(err))
	}

	logger.Log.Info("Shutdown complete")
}

func setupRouter(cfg *config.Config, svc *match.Service, wsHandler *websocket.Handler) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	mh := handlers.NewMatchHandlers(svc)

	api := router.Group("/api/v1")
	api.GET("/ws", wsHandler.HandleWebSocket)

	wm := api.Group("/whisper-match")
	wm.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	{
		wm.POST("/join",
			middleware.NewRateLimiter(middleware.JoinRateLimitConfig(cfg.JoinRateLimit)),
			mh.Join)
		wm.POST("/message",
			middleware.NewRateLimiter(middleware.MessageRateLimitConfig()),
			mh.Message)
		wm.POST("/leave", mh.Leave)
		wm.GET("/current", mh.Current)
	}

	admin := api.Group("/admin")
	admin.Use(middleware.AuthMiddleware(cfg.JWTSecret), middleware.AdminOnly())
	{
		admin.GET("/match/status", mh.AdminStatus)
		admin.GET("/match/sessions", mh.AdminSessions)
		admin.GET("/ws/metrics", wsHandler.HandleMetrics)
	}

	return router
}
