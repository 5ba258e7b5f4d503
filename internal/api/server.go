// Package api exposes the trading engine over HTTP. The surface is a thin
// shell; all decisions live in the engine and its components.
package api

import (
	"context"
	"net/http"
	"time"

	"futures-trading-engine/config"
	"futures-trading-engine/internal/engine"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Server wraps the gin router around the engine.
type Server struct {
	router *gin.Engine
	engine *engine.Engine
	cfg    config.ServerConfig
	log    zerolog.Logger

	httpServer *http.Server
}

// NewServer builds the HTTP layer.
func NewServer(cfg config.ServerConfig, eng *engine.Engine, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router: router,
		engine: eng,
		cfg:    cfg,
		log:    logger.With().Str("component", "api").Logger(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	{
		api.GET("/symbols", s.handleSymbols)
		api.POST("/symbols/:symbol/start", s.handleStart)
		api.POST("/symbols/:symbol/stop", s.handleStop)
		api.GET("/symbols/:symbol/status", s.handleStatus)
		api.PUT("/symbols/:symbol/strategy", s.handleSetStrategy)
		api.PUT("/symbols/:symbol/config", s.handleUpdateConfig)
		api.GET("/symbols/:symbol/analysis", s.handleAnalyze)
		api.GET("/symbols/:symbol/signal", s.handleSignal)
		api.POST("/symbols/:symbol/backtest", s.handleBacktest)
	}
}

// Run starts the HTTP server and blocks until it exits.
func (s *Server) Run() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Address,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	s.log.Info().Str("address", s.cfg.Address).Msg("http server listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
