package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"smc-trading-bot/internal/backtest"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventBacktestProgress EventType = "BACKTEST_PROGRESS"
	EventBacktestComplete EventType = "BACKTEST_COMPLETE"
	EventBacktestError    EventType = "BACKTEST_ERROR"
	EventSignalGenerated  EventType = "SIGNAL_GENERATED"
	EventSignalResolved   EventType = "SIGNAL_RESOLVED"
	EventTradeOpened      EventType = "TRADE_OPENED"
	EventTradeClosed      EventType = "TRADE_CLOSED"
	EventBotStarted       EventType = "BOT_STARTED"
	EventBotStopped       EventType = "BOT_STOPPED"
	EventError            EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events. It runs on the publisher's
// goroutine and must not block.
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
	logger      zerolog.Logger
}

// NewEventBus creates a new event bus
func NewEventBus(logger zerolog.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
		logger:      logger,
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers in registration order
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	subs := append([]Subscriber(nil), eb.subscribers[event.Type]...)
	subs = append(subs, eb.allSubs...)
	eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	for _, sub := range subs {
		eb.deliver(sub, event)
	}
}

func (eb *EventBus) deliver(sub Subscriber, event Event) {
	defer func() {
		if r := recover(); r != nil {
			eb.logger.Error().Interface("panic", r).Str("event", string(event.Type)).Msg("Event subscriber panicked")
		}
	}()
	sub(event)
}

// PublishProgress maps a backtest progress event onto the bus
func (eb *EventBus) PublishProgress(p backtest.Progress) {
	eventType := EventBacktestProgress
	switch p.Phase {
	case backtest.PhaseComplete:
		eventType = EventBacktestComplete
	case backtest.PhaseError:
		eventType = EventBacktestError
	}

	data := map[string]interface{}{
		"run_id":    p.RunID,
		"phase":     string(p.Phase),
		"processed": p.Processed,
		"total":     p.Total,
		"percent":   p.Percent,
		"balance":   p.Balance,
		"pnl":       p.PnL,
		"trades":    p.Trades,
		"win_rate":  p.WinRate,
		"drawdown":  p.Drawdown,
	}
	if p.Message != "" {
		data["message"] = p.Message
	}
	if p.Error != "" {
		data["error"] = p.Error
		data["failed_phase"] = string(p.FailedPhase)
	}
	eb.Publish(Event{Type: eventType, Timestamp: p.Time, Data: data})
}

// ProgressSink returns a backtest progress sink publishing to the bus
func (eb *EventBus) ProgressSink() backtest.ProgressSink {
	return backtest.ProgressFunc(eb.PublishProgress)
}

// PublishSignal publishes a signal generated event
func (eb *EventBus) PublishSignal(symbol, direction, reason string, entry, stopLoss, takeProfit, confidence float64) {
	eb.Publish(Event{
		Type: EventSignalGenerated,
		Data: map[string]interface{}{
			"symbol":      symbol,
			"direction":   direction,
			"reason":      reason,
			"entry_price": entry,
			"stop_loss":   stopLoss,
			"take_profit": takeProfit,
			"confidence":  confidence,
		},
	})
}

// PublishSignalResolved publishes the terminal status of a signal
func (eb *EventBus) PublishSignalResolved(id, symbol, status, note string) {
	eb.Publish(Event{
		Type: EventSignalResolved,
		Data: map[string]interface{}{
			"signal_id": id,
			"symbol":    symbol,
			"status":    status,
			"note":      note,
		},
	})
}

// PublishTradeOpened publishes a trade opened event
func (eb *EventBus) PublishTradeOpened(symbol, side string, entryPrice, lotSize float64) {
	eb.Publish(Event{
		Type: EventTradeOpened,
		Data: map[string]interface{}{
			"symbol":      symbol,
			"side":        side,
			"entry_price": entryPrice,
			"lot_size":    lotSize,
		},
	})
}

// PublishTradeClosed publishes a trade closed event
func (eb *EventBus) PublishTradeClosed(symbol, exitReason string, entryPrice, exitPrice, lotSize, pnl float64) {
	eb.Publish(Event{
		Type: EventTradeClosed,
		Data: map[string]interface{}{
			"symbol":      symbol,
			"exit_reason": exitReason,
			"entry_price": entryPrice,
			"exit_price":  exitPrice,
			"lot_size":    lotSize,
			"pnl":         pnl,
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}
