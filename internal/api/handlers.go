package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"smc-trading-bot/config"
	"smc-trading-bot/internal/backtest"
	"smc-trading-bot/internal/database"
	"smc-trading-bot/internal/risk"
	"smc-trading-bot/internal/strategy"
)

// handleHealth returns server health status
func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status":            "healthy",
		"uptime":            time.Since(s.startedAt).Round(time.Second).String(),
		"running_backtests": s.runs.Running(),
		"ws_clients":        s.hub.GetClientCount(),
	}

	if s.store != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.HealthCheck(ctx); err != nil {
			body["status"] = "unhealthy"
			body["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
		body["database"] = "healthy"
	}

	c.JSON(http.StatusOK, body)
}

// handleGetVariations lists the strategy presets
// GET /api/variations
func (s *Server) handleGetVariations(c *gin.Context) {
	successResponse(c, strategy.Variations())
}

// handleCreateBacktest starts a backtest in the background
// POST /api/backtests
// Body: {"symbol": "XAUUSD", "start_date": "2024-01-01", "end_date": "2024-03-01", "variation": "OB70_KZ"}
func (s *Server) handleCreateBacktest(c *gin.Context) {
	req := s.defaults
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	cfg, err := req.ToBacktest()
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	runID, err := s.runs.Submit(cfg)
	switch {
	case errors.Is(err, ErrTooManyRuns):
		errorResponse(c, http.StatusTooManyRequests, err.Error())
		return
	case errors.Is(err, backtest.ErrInvalidConfig), errors.Is(err, config.ErrInvalidConfig):
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		errorResponse(c, http.StatusInternalServerError, "Failed to start backtest: "+err.Error())
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"data": gin.H{
			"runId":  runID,
			"status": RunRunning,
		},
	})
}

// handleListBacktests lists in-memory runs and, when persistence is on,
// stored runs
// GET /api/backtests?symbol=XAUUSD&limit=20
func (s *Server) handleListBacktests(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 500 {
		errorResponse(c, http.StatusBadRequest, "limit must be between 1 and 500")
		return
	}
	symbol := strings.ToUpper(c.Query("symbol"))

	active := s.runs.List()
	if symbol != "" {
		filtered := active[:0]
		for _, r := range active {
			if r.Symbol == symbol {
				filtered = append(filtered, r)
			}
		}
		active = filtered
	}

	data := gin.H{"runs": active}
	if s.store != nil {
		stored, err := s.store.ListRuns(c.Request.Context(), symbol, limit)
		if err != nil {
			errorResponse(c, http.StatusInternalServerError, "Failed to fetch backtest runs: "+err.Error())
			return
		}
		data["stored"] = stored
	}
	successResponse(c, data)
}

// handleGetBacktest returns a run: live state first, then the stored summary
// GET /api/backtests/:id
func (s *Server) handleGetBacktest(c *gin.Context) {
	id := c.Param("id")
	if state, ok := s.runs.Get(id); ok {
		successResponse(c, state)
		return
	}

	if s.store == nil {
		errorResponse(c, http.StatusNotFound, "Backtest not found")
		return
	}
	summary, err := s.store.GetRun(c.Request.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		errorResponse(c, http.StatusNotFound, "Backtest not found")
		return
	}
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "Failed to fetch backtest: "+err.Error())
		return
	}
	successResponse(c, summary)
}

// handleGetBacktestTrades returns the closed trades of a finished run
// GET /api/backtests/:id/trades
func (s *Server) handleGetBacktestTrades(c *gin.Context) {
	id := c.Param("id")
	if state, ok := s.runs.Get(id); ok {
		switch {
		case state.Status == RunRunning:
			errorResponse(c, http.StatusConflict, "Backtest is still running")
		case state.Result == nil:
			errorResponse(c, http.StatusConflict, "Backtest finished without a result: "+state.Error)
		default:
			successResponse(c, state.Result.Trades)
		}
		return
	}

	if s.store == nil {
		errorResponse(c, http.StatusNotFound, "Backtest not found")
		return
	}
	if _, err := s.store.GetRun(c.Request.Context(), id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			errorResponse(c, http.StatusNotFound, "Backtest not found")
			return
		}
		errorResponse(c, http.StatusInternalServerError, "Failed to fetch backtest: "+err.Error())
		return
	}
	trades, err := s.store.GetTrades(c.Request.Context(), id)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "Failed to fetch backtest trades: "+err.Error())
		return
	}
	successResponse(c, trades)
}

// handleCancelBacktest cancels a running backtest
// DELETE /api/backtests/:id
func (s *Server) handleCancelBacktest(c *gin.Context) {
	if err := s.runs.Cancel(c.Param("id")); err != nil {
		errorResponse(c, http.StatusNotFound, "Backtest not found")
		return
	}
	successResponse(c, gin.H{"runId": c.Param("id"), "cancelled": true})
}

// CalculatorRequest is the body of the lot size calculator
type CalculatorRequest struct {
	Symbol      string  `json:"symbol" binding:"required"`
	Direction   string  `json:"direction" binding:"required"`
	Balance     float64 `json:"balance" binding:"required"`
	RiskPercent float64 `json:"risk_percent" binding:"required"`
	Entry       float64 `json:"entry" binding:"required"`
	StopLoss    float64 `json:"stop_loss" binding:"required"`
	TakeProfit  float64 `json:"take_profit"`
}

// CalculatorResponse sizes one trade idea
type CalculatorResponse struct {
	Symbol          string          `json:"symbol"`
	Direction       risk.Side       `json:"direction"`
	LotSize         float64         `json:"lotSize"`
	RiskAmount      float64         `json:"riskAmount"`
	PotentialLoss   float64         `json:"potentialLoss"`
	PotentialProfit float64         `json:"potentialProfit"`
	RiskReward      risk.RiskReward `json:"riskReward"`
	Spec            risk.SymbolSpec `json:"spec"`
}

// handleCalculator sizes a position without touching any state
// POST /api/calculator
func (s *Server) handleCalculator(c *gin.Context) {
	var req CalculatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	side := risk.Side(strings.ToUpper(req.Direction))
	if side != risk.Buy && side != risk.Sell {
		errorResponse(c, http.StatusBadRequest, "direction must be BUY or SELL")
		return
	}

	spec := risk.LookupSymbol(req.Symbol)
	lots, err := risk.CalculateLotSize(req.Balance, req.RiskPercent, req.Entry, req.StopLoss, spec)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	resp := CalculatorResponse{
		Symbol:        spec.Symbol,
		Direction:     side,
		LotSize:       lots,
		RiskAmount:    req.Balance * req.RiskPercent / 100,
		PotentialLoss: risk.CalculatePotentialPnL(side, req.Entry, req.StopLoss, lots, spec),
		Spec:          spec,
	}
	if req.TakeProfit > 0 {
		resp.PotentialProfit = risk.CalculatePotentialPnL(side, req.Entry, req.TakeProfit, lots, spec)
		resp.RiskReward = risk.CalculateRiskReward(side, req.Entry, req.StopLoss, req.TakeProfit)
	}
	successResponse(c, resp)
}

// handleBotStatus reports the live bot, when one runs
// GET /api/bot/status
func (s *Server) handleBotStatus(c *gin.Context) {
	if s.bot == nil {
		successResponse(c, gin.H{"running": false})
		return
	}
	status := s.bot.Status()
	status["running"] = true
	successResponse(c, status)
}
