package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/ksred/exec-engine/internal/auth"
	"github.com/ksred/exec-engine/internal/config"
	"github.com/ksred/exec-engine/internal/database"
	"github.com/ksred/exec-engine/internal/emergency"
	"github.com/ksred/exec-engine/internal/engine"
	"github.com/ksred/exec-engine/internal/execution"
	"github.com/ksred/exec-engine/internal/gateway"
	"github.com/ksred/exec-engine/internal/ledger"
	"github.com/ksred/exec-engine/internal/risk"
	"github.com/ksred/exec-engine/internal/scheduler"
	"github.com/ksred/exec-engine/pkg/middleware"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main wires the execution core and runs the API server with graceful
// shutdown. The emergency monitor runs on its own background worker.
func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := scheduler.NewRealClock()

	// Gateways: the broker bridge and market-data services are separate
	// processes; the simulation gateways stand in until they register.
	orderGW := gateway.NewSimGateway()
	marketGW := gateway.NewSimMarketData()
	calendar := gateway.NewUSEquityCalendar()
	notifier := gateway.LogSink{}

	riskCtrl, err := risk.NewController(risk.DefaultModeConfigs(), cfg.Risk.Limits, cfg.Account.InitialCapital, clock)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize risk controller")
	}

	led := ledger.New()
	ledgerDB := ledger.NewDatabase(db)
	execDB := execution.NewDatabase(db)
	emergencyDB := emergency.NewDatabase(db)

	breaker := emergency.NewCircuitBreaker(clock)

	exec := execution.NewEngine(
		cfg.Execution, orderGW, calendar, notifier,
		led, ledgerDB, execDB, riskCtrl, riskCtrl, breaker, clock,
	)

	monitor := emergency.NewMonitor(
		cfg.Emergency, led, exec, marketGW, riskCtrl,
		breaker, emergencyDB, notifier, clock,
	)

	service := engine.NewService(
		baseCtx, cfg.Splitter, riskCtrl, led, ledgerDB,
		exec, execDB, emergencyDB, monitor, marketGW,
	)

	if err := service.Resume(); err != nil {
		zlog.Fatal().Err(err).Msg("Failed to resume persisted state")
	}

	go monitor.Start(baseCtx)

	authService := auth.NewService(cfg.Auth.JWTSecret)
	if cfg.Auth.APIKey != "" {
		authService.RegisterAPICredentials(cfg.Auth.APIKey, cfg.Auth.APISecret)
	}
	authHandlers := auth.NewGinHandlers(authService)
	engineHandlers := engine.NewGinHandlers(service)

	router := gin.Default()
	router.Use(middleware.RateLimit())
	setupRoutes(router, cfg.Auth.JWTSecret, authHandlers, engineHandlers)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

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

	// Stop the monitor and in-flight group schedules first.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers:
// - Auth routes: public endpoints for authentication
// - Signal/order/portfolio routes: protected by JWT authentication
// - Internal routes: operator endpoints, protected by internal auth
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	engineHandlers *engine.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		trading := v1.Group("")
		trading.Use(middleware.JWTAuth(jwtSecret))
		{
			trading.POST("/signals", engineHandlers.SubmitSignalHandler())
			trading.GET("/orders/:group_id", engineHandlers.GetOrderGroupHandler())
			trading.DELETE("/orders/:group_id", engineHandlers.CancelOrderGroupHandler())
			trading.GET("/portfolio", engineHandlers.PortfolioHandler())
			trading.GET("/emergencies", engineHandlers.EmergencyLogHandler())
		}

		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(jwtSecret))
		{
			internal.POST("/liquidate", engineHandlers.LiquidateHandler())
			internal.PUT("/risk-mode", engineHandlers.RiskModeHandler())
		}
	}
}
