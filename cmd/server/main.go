package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/poolfund/poolfund-api/internal/auth"
	"github.com/poolfund/poolfund-api/internal/broadcast"
	"github.com/poolfund/poolfund-api/internal/config"
	"github.com/poolfund/poolfund-api/internal/database"
	"github.com/poolfund/poolfund-api/internal/governance"
	"github.com/poolfund/poolfund-api/internal/ledger"
	"github.com/poolfund/poolfund-api/internal/session"
	"github.com/poolfund/poolfund-api/internal/swap"
	"github.com/poolfund/poolfund-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the group trading API server with graceful
// shutdown support
func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.DatabasePath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	authService := auth.NewService(cfg.JWTSecret)
	authHandlers := auth.NewGinHandlers(authService)
	// Register test credentials
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret)

	executor := broadcast.NewService()
	quoteBuilder := swap.NewMockQuoteBuilder()

	sessionStore := session.NewStore(cfg.SessionTTL)
	swapService := swap.NewService(sessionStore, quoteBuilder, executor)
	swapHandlers := swap.NewGinHandlers(swapService)

	ledgerService := ledger.NewService(db)
	ledgerHandlers := ledger.NewGinHandlers(ledgerService)

	governanceService := governance.NewService(db, ledgerService, quoteBuilder, executor, cfg.ConsensusThresholdPct)
	governanceHandlers := governance.NewGinHandlers(governanceService, cfg.PollExpiry)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, cfg.JWTSecret, authHandlers, swapHandlers, ledgerHandlers, governanceHandlers)

	// Create server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for authentication
// - Order routes: Individual swap sessions, protected by JWT
// - Group/poll routes: Pooled funds and governance, protected by JWT
// - Internal routes: Poll execution, protected by internal network auth
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	swapHandlers *swap.GinHandlers,
	ledgerHandlers *ledger.GinHandlers,
	governanceHandlers *governance.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authRoutes := v1.Group("/auth")
		{
			authRoutes.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Individual swap order routes
		orders := v1.Group("/orders")
		orders.Use(middleware.JWTAuth(jwtSecret))
		{
			orders.POST("/quote", swapHandlers.QuoteHandler())
			orders.POST("/approve", swapHandlers.ApproveHandler())
			orders.POST("/decline", swapHandlers.DeclineHandler())
		}

		// Group routes
		groups := v1.Group("/groups")
		groups.Use(middleware.JWTAuth(jwtSecret))
		{
			groups.POST("", ledgerHandlers.CreateGroupHandler())
			groups.POST("/:group_id/join", ledgerHandlers.JoinGroupHandler())
			groups.POST("/:group_id/deposit", ledgerHandlers.DepositHandler())
			groups.GET("/:group_id/summary", ledgerHandlers.GroupSummaryHandler())
			groups.GET("/:group_id/me", ledgerHandlers.MemberSummaryHandler())
			groups.GET("/:group_id/trades", ledgerHandlers.TradesHandler())
			groups.POST("/:group_id/polls", governanceHandlers.CreatePollHandler())
			groups.GET("/:group_id/polls", governanceHandlers.ListPollsHandler())
		}

		// Poll routes
		polls := v1.Group("/polls")
		polls.Use(middleware.JWTAuth(jwtSecret))
		{
			polls.GET("/:poll_id", governanceHandlers.GetPollHandler())
			polls.POST("/:poll_id/votes", governanceHandlers.CastVoteHandler())
			polls.POST("/:poll_id/cancel", governanceHandlers.CancelPollHandler())
		}

		// Internal routes (should be protected by internal network)
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(jwtSecret))
		{
			internal.POST("/polls/:poll_id/execute", governanceHandlers.ExecutePollHandler())
		}
	}
}
