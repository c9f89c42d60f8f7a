package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/EdsonSilvaCastro/trading-bot-three/internal/analysis"
	"github.com/EdsonSilvaCastro/trading-bot-three/internal/bias"
	"github.com/EdsonSilvaCastro/trading-bot-three/internal/bot"
	"github.com/EdsonSilvaCastro/trading-bot-three/internal/database"
	"github.com/EdsonSilvaCastro/trading-bot-three/internal/execution"
	"github.com/EdsonSilvaCastro/trading-bot-three/internal/risk"
)

// BotAPI is the read/control surface the bot exposes to the HTTP layer.
type BotAPI interface {
	Symbol() string
	Status() bot.Status
	Bias() bias.DailyBias
	Levels() []analysis.LiquidityLevel
	Gaps() []analysis.FairValueGap
	Sweeps() []analysis.Sweep
	Trades() []execution.Trade
	RiskState() risk.Snapshot
	CloseOpenTrade() bool
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int
	AllowedOrigins string
	JWTSecret      string
	AuthEnabled    bool
	ProductionMode bool
}

// Server serves bot state over HTTP.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     ServerConfig
	botAPI     BotAPI
	repo       *database.Repository
	tokens     *TokenManager
	logger     zerolog.Logger
}

// NewServer builds the router. Repo may be nil; the health check then
// reports only process liveness.
func NewServer(config ServerConfig, botAPI BotAPI, repo *database.Repository, logger zerolog.Logger) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if config.AllowedOrigins == "*" || config.AllowedOrigins == "" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(config.AllowedOrigins, ",")
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router: router,
		config: config,
		botAPI: botAPI,
		repo:   repo,
		logger: logger.With().Str("component", "api").Logger(),
	}
	if config.AuthEnabled {
		s.tokens = NewTokenManager(config.JWTSecret, 0)
	}
	s.setupRoutes()
	return s
}

// Tokens returns the token manager, nil when auth is disabled.
func (s *Server) Tokens() *TokenManager { return s.tokens }

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	if s.tokens != nil {
		api.Use(authMiddleware(s.tokens))
	}
	api.GET("/status", s.handleStatus)
	api.GET("/bias", s.handleBias)
	api.GET("/levels", s.handleLevels)
	api.GET("/gaps", s.handleGaps)
	api.GET("/sweeps", s.handleSweeps)
	api.GET("/trades", s.handleTrades)
	api.GET("/risk", s.handleRisk)
	api.POST("/trades/close", s.handleCloseTrade)
}

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.logger.Info().Str("addr", addr).Msg("http server starting")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleHealth(c *gin.Context) {
	resp := gin.H{"status": "healthy"}
	if s.repo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.repo.HealthCheck(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": "unhealthy"})
			return
		}
		resp["database"] = "healthy"
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.botAPI.Status())
}

func (s *Server) handleBias(c *gin.Context) {
	c.JSON(http.StatusOK, s.botAPI.Bias())
}

func (s *Server) handleLevels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"symbol": s.botAPI.Symbol(), "levels": s.botAPI.Levels()})
}

func (s *Server) handleGaps(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"symbol": s.botAPI.Symbol(), "gaps": s.botAPI.Gaps()})
}

func (s *Server) handleSweeps(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"symbol": s.botAPI.Symbol(), "sweeps": s.botAPI.Sweeps()})
}

func (s *Server) handleTrades(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"symbol": s.botAPI.Symbol(), "trades": s.botAPI.Trades()})
}

func (s *Server) handleRisk(c *gin.Context) {
	c.JSON(http.StatusOK, s.botAPI.RiskState())
}

func (s *Server) handleCloseTrade(c *gin.Context) {
	if !s.botAPI.CloseOpenTrade() {
		c.JSON(http.StatusConflict, gin.H{"error": "no open position"})
		return
	}
	s.logger.Info().Msg("open position closed by operator")
	c.JSON(http.StatusOK, gin.H{"closed": true})
}
