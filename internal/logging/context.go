package logging

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const traceIDKey contextKey = "trace_id"

// GenerateTraceID generates a new trace ID
func GenerateTraceID() string {
	return uuid.NewString()
}

// FromContext retrieves the logger from context, falling back to Default
func FromContext(ctx context.Context) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return *l
	}
	return Default()
}

// NewContext creates a new context with the logger
func NewContext(ctx context.Context, l zerolog.Logger) context.Context {
	return l.WithContext(ctx)
}

// WithTraceContext adds a trace ID to the context and returns a logger with it
func WithTraceContext(ctx context.Context) (context.Context, zerolog.Logger) {
	traceID := GenerateTraceID()
	l := FromContext(ctx).With().Str("trace_id", traceID).Logger()
	ctx = context.WithValue(ctx, traceIDKey, traceID)
	return NewContext(ctx, l), l
}

// TraceID returns the trace ID stored by WithTraceContext
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey).(string)
	return id
}

// BacktestContext creates a logger context for a backtest run
func BacktestContext(l zerolog.Logger, runID, symbol string, startDate, endDate time.Time) zerolog.Logger {
	return l.With().
		Str("component", "backtest").
		Str("run_id", runID).
		Str("symbol", symbol).
		Str("start_date", startDate.Format("2006-01-02")).
		Str("end_date", endDate.Format("2006-01-02")).
		Logger()
}

// SignalContext creates a logger context for signal handling
func SignalContext(l zerolog.Logger, signalID, symbol, direction string, confidence float64) zerolog.Logger {
	return l.With().
		Str("component", "signal").
		Str("signal_id", signalID).
		Str("symbol", symbol).
		Str("direction", direction).
		Float64("confidence", confidence).
		Logger()
}

// RiskContext creates a logger context for risk management
func RiskContext(l zerolog.Logger, symbol string, riskPercent, lotSize float64) zerolog.Logger {
	return l.With().
		Str("component", "risk").
		Str("symbol", symbol).
		Float64("risk_percent", riskPercent).
		Float64("lot_size", lotSize).
		Logger()
}

// SessionContext creates a logger context for a live trading session
func SessionContext(l zerolog.Logger, symbol, strategy string) zerolog.Logger {
	return l.With().
		Str("component", "bot").
		Str("symbol", symbol).
		Str("strategy", strategy).
		Logger()
}

// DatabaseContext creates a logger context for database operations
func DatabaseContext(l zerolog.Logger, operation, table string) zerolog.Logger {
	return l.With().
		Str("component", "database").
		Str("operation", operation).
		Str("table", table).
		Logger()
}

// GinMiddleware logs every request and stores a request-scoped logger in the
// request context
func GinMiddleware(base zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		traceID := c.GetHeader("X-Trace-ID")
		if traceID == "" {
			traceID = GenerateTraceID()
		}

		l := base.With().
			Str("component", "http").
			Str("trace_id", traceID).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Logger()

		ctx := context.WithValue(c.Request.Context(), traceIDKey, traceID)
		c.Request = c.Request.WithContext(NewContext(ctx, l))
		c.Header("X-Trace-ID", traceID)

		c.Next()

		event := l.Info()
		if c.Writer.Status() >= 500 {
			event = l.Error()
		}
		event.Int("status_code", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request completed")
	}
}
