package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"futures-trading-engine/config"
	"futures-trading-engine/internal/engine"
	"futures-trading-engine/internal/exchange"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

func (s *Server) handleSymbols(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"symbols": s.engine.Symbols()})
}

type startRequest struct {
	Timeframe string                 `json:"timeframe"`
	Strategy  *config.StrategyConfig `json:"strategy,omitempty"`
}

func (s *Server) handleStart(c *gin.Context) {
	symbol := c.Param("symbol")

	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Strategy != nil {
		merged := req.Strategy.Merge(config.DefaultStrategyConfig())
		req.Strategy = &merged
	}

	if err := s.engine.Start(c.Request.Context(), symbol, req.Timeframe, req.Strategy); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, engine.ErrAlreadyRunning) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "status": "started"})
}

func (s *Server) handleStop(c *gin.Context) {
	symbol := c.Param("symbol")
	if err := s.engine.Stop(symbol); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, engine.ErrNotRunning) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "status": "stopped"})
}

func (s *Server) handleStatus(c *gin.Context) {
	symbol := c.Param("symbol")
	status, err := s.engine.GetStatus(symbol)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

type strategyRequest struct {
	Strategy string `json:"strategy" binding:"required"`
}

func (s *Server) handleSetStrategy(c *gin.Context) {
	symbol := c.Param("symbol")

	var req strategyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.engine.SetStrategy(symbol, req.Strategy); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, engine.ErrNotRunning) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "strategy": req.Strategy})
}

type updateConfigRequest struct {
	Strategy config.StrategyConfig `json:"strategy"`
	Signals  config.SignalSettings `json:"signals"`
}

func (s *Server) handleUpdateConfig(c *gin.Context) {
	symbol := c.Param("symbol")

	var req updateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	merged := req.Strategy.Merge(config.DefaultStrategyConfig())
	settings := req.Signals.Merge(config.DefaultSignalSettings())

	if err := s.engine.UpdateConfig(symbol, merged, settings); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, engine.ErrNotRunning) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "status": "updated"})
}

func (s *Server) handleAnalyze(c *gin.Context) {
	symbol := c.Param("symbol")
	timeframe := c.Query("timeframe")

	assessment := s.engine.AnalyzeMarket(c.Request.Context(), symbol, timeframe)
	c.JSON(http.StatusOK, assessment)
}

func (s *Server) handleSignal(c *gin.Context) {
	symbol := c.Param("symbol")
	timeframe := c.Query("timeframe")

	sig, err := s.engine.GenerateSignal(c.Request.Context(), symbol, timeframe)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sig)
}

type backtestRequest struct {
	Timeframe string            `json:"timeframe"`
	Limit     int               `json:"limit"`
	Candles   []exchange.Candle `json:"candles,omitempty"`
}

func (s *Server) handleBacktest(c *gin.Context) {
	symbol := c.Param("symbol")

	var req backtestRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Limit == 0 {
		req.Limit, _ = strconv.Atoi(c.Query("limit"))
	}

	result, err := s.engine.Backtest(c.Request.Context(), symbol, req.Timeframe, req.Candles, req.Limit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}
