package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agromarket-notifier/internal/api/handlers"
	"agromarket-notifier/internal/config"
	"agromarket-notifier/internal/domain"
	"agromarket-notifier/internal/infrastructure/marketapi"
	"agromarket-notifier/internal/infrastructure/marketws"
	redisinfra "agromarket-notifier/internal/infrastructure/redis"
	"agromarket-notifier/internal/services"
	"agromarket-notifier/pkg/logger"

	redisClient "github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	log := logger.New()
	log.Info("Starting notifier gateway")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize Redis
	rdb := redisClient.NewClient(&redisClient.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	log.Info("Connected to Redis", "address", cfg.Redis.Address)

	// Initialize stores
	sessionStore := redisinfra.NewRedisSessionStore(rdb, cfg.Session.TTL)
	listingCache := redisinfra.NewRedisListingCache(rdb, cfg.Notifier.ListingTTL)

	// Initialize marketplace client
	market := marketapi.NewClient(cfg.Market.BaseURL, cfg.Market.APIKey,
		cfg.Market.RequestTimeout, log)

	// Initialize the notification pipeline
	bus := services.NewMemoryBus(log)
	feeds := services.NewFeedManager(cfg.Notifier.FeedBuffer, log)
	dispatcher := services.NewDispatcher(feeds, bus, cfg.Notifier.RevealDelay, log)

	newStream := func(session *domain.Session) domain.EventStream {
		return marketws.NewClient(cfg.Market.StreamURL, log)
	}

	sessionManager := services.NewSessionManager(sessionStore, feeds, bus,
		dispatcher, newStream, cfg.Session.TTL, log)

	// Initialize listing service
	listings := services.NewListingService(market, listingCache, bus, log)
	listings.Start(context.Background())

	// Initialize janitor
	janitor := services.NewJanitor(sessionManager, sessionStore, log)
	if err := janitor.Start(context.Background()); err != nil {
		log.Error("Failed to start janitor", "error", err)
		os.Exit(1)
	}

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{
			echo.GET, echo.HEAD, echo.PUT, echo.PATCH,
			echo.POST, echo.DELETE, echo.OPTIONS,
		},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			echo.HeaderXRequestedWith,
		},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Initialize handlers
	sessionHandler := handlers.NewSessionHandler(sessionManager, log)
	auctionHandler := handlers.NewAuctionHandler(listings, market, sessionManager, log)
	feedHandler := handlers.NewFeedHandler(sessionManager, feeds, bus, log)

	// API routes
	api := e.Group("/api/v1")
	api.POST("/sessions", sessionHandler.Login)
	api.DELETE("/sessions/:id", sessionHandler.Logout)
	api.GET("/sessions/:id/feed", feedHandler.StreamFeed)
	api.GET("/auctions", auctionHandler.ListOpenAuctions)
	api.GET("/auctions/:id", auctionHandler.GetAuction)
	api.GET("/auctions/:id/bids", auctionHandler.ListBids)
	api.POST("/auctions/:id/accept", auctionHandler.AcceptBid)

	// Health check endpoint
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"service":   "notifier-gateway",
			"timestamp": time.Now().Format(time.RFC3339),
			"sessions":  len(sessionManager.ActiveSessions()),
		})
	})

	// Metrics endpoint
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Start server
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Info("Starting notifier gateway server", "address", serverAddr)

	go func() {
		if err := e.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down notifier gateway...")

	// Graceful shutdown
	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := janitor.Stop(); err != nil {
		log.Error("Failed to stop janitor", "error", err)
	}
	listings.Stop()
	sessionManager.StopAll(ctx)

	if err := e.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Notifier gateway stopped")
}
