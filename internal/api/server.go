package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"smc-trading-bot/config"
	"smc-trading-bot/internal/backtest"
	"smc-trading-bot/internal/database"
	"smc-trading-bot/internal/events"
	"smc-trading-bot/internal/logging"
)

// RunStore reads persisted backtest runs
type RunStore interface {
	HealthCheck(ctx context.Context) error
	GetRun(ctx context.Context, runID string) (*database.RunSummary, error)
	ListRuns(ctx context.Context, symbol string, limit int) ([]database.RunSummary, error)
	GetTrades(ctx context.Context, runID string) ([]backtest.Trade, error)
}

// BotStatus is what the API needs from the live bot
type BotStatus interface {
	Status() map[string]interface{}
}

// Server represents the HTTP API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     config.ServerConfig
	defaults   config.BacktestConfig
	runs       *RunManager
	store      RunStore
	bot        BotStatus
	hub        *WSHub
	hubCancel  context.CancelFunc
	startedAt  time.Time
	logger     zerolog.Logger
}

// NewServer creates the API server and starts its websocket hub. defaults
// fills every field a backtest request leaves out.
func NewServer(cfg config.ServerConfig, defaults config.BacktestConfig, runs *RunManager, bus *events.EventBus, logger zerolog.Logger) *Server {
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.GinMiddleware(logger))
	router.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	hubCtx, hubCancel := context.WithCancel(context.Background())
	s := &Server{
		router:    router,
		config:    cfg,
		defaults:  defaults,
		runs:      runs,
		hub:       NewWSHub(logger),
		hubCancel: hubCancel,
		startedAt: time.Now(),
		logger:    logger.With().Str("component", "api").Logger(),
	}
	go s.hub.Run(hubCtx)

	if bus != nil {
		bus.SubscribeAll(s.hub.BroadcastEvent)
	}

	s.setupRoutes()
	return s
}

func corsConfig(allowed string) cors.Config {
	c := cors.DefaultConfig()
	c.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	c.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Trace-ID"}
	c.ExposeHeaders = []string{"Content-Length", "X-Trace-ID"}

	var origins []string
	for _, o := range strings.Split(allowed, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = origins
	c.AllowCredentials = true
	return c
}

// SetStore enables reads of persisted runs
func (s *Server) SetStore(store RunStore) {
	s.store = store
}

// SetBot exposes the live bot status
func (s *Server) SetBot(bot BotStatus) {
	s.bot = bot
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	{
		api.GET("/health", s.handleHealth)
		api.GET("/variations", s.handleGetVariations)
		api.POST("/calculator", s.handleCalculator)
		api.GET("/bot/status", s.handleBotStatus)

		backtests := api.Group("/backtests")
		{
			backtests.GET("", s.handleListBacktests)
			backtests.POST("", s.handleCreateBacktest)
			backtests.GET("/:id", s.handleGetBacktest)
			backtests.GET("/:id/trades", s.handleGetBacktestTrades)
			backtests.DELETE("/:id", s.handleCancelBacktest)
		}
	}

	s.router.GET("/ws", s.handleWebSocket)
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP until Shutdown is called
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.config.Addr(),
		Handler:      s.router,
		ReadTimeout:  seconds(s.config.ReadTimeout, 15),
		WriteTimeout: seconds(s.config.WriteTimeout, 15),
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", s.config.Addr()).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server and the websocket hub
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server")
	s.hubCancel()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func seconds(v, fallback int) time.Duration {
	if v <= 0 {
		v = fallback
	}
	return time.Duration(v) * time.Second
}

// errorResponse is a helper to send error responses
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

// successResponse is a helper to send success responses
func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
