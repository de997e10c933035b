package candles

import (
	"fmt"
	"sort"
	"time"
)

// Timeframe represents a candle interval
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF30m Timeframe = "30m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

var timeframeDurations = map[Timeframe]time.Duration{
	TF1m:  time.Minute,
	TF5m:  5 * time.Minute,
	TF15m: 15 * time.Minute,
	TF30m: 30 * time.Minute,
	TF1h:  time.Hour,
	TF4h:  4 * time.Hour,
	TF1d:  24 * time.Hour,
}

// Duration returns the length of one candle, or 0 for an unknown timeframe
func (tf Timeframe) Duration() time.Duration {
	return timeframeDurations[tf]
}

// Valid reports whether tf is a supported interval
func (tf Timeframe) Valid() bool {
	_, ok := timeframeDurations[tf]
	return ok
}

// ParseTimeframe validates and converts a string interval
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if !tf.Valid() {
		return "", fmt.Errorf("unknown timeframe %q", s)
	}
	return tf, nil
}

// Candle is one OHLCV bar. Time is the open time in UTC.
type Candle struct {
	Time      time.Time `json:"time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
}

// CloseTime returns the moment the candle is complete
func (c Candle) CloseTime() time.Time {
	return c.Time.Add(c.Timeframe.Duration())
}

// Body returns the absolute open-close distance
func (c Candle) Body() float64 {
	if c.Close > c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// Range returns high minus low
func (c Candle) Range() float64 {
	return c.High - c.Low
}

func (c Candle) IsBullish() bool { return c.Close > c.Open }
func (c Candle) IsBearish() bool { return c.Close < c.Open }

// Tick is a single traded price, used to resolve intra-candle exit order
type Tick struct {
	Time  time.Time `json:"time"`
	Price float64   `json:"price"`
}

// Dedupe removes duplicate timestamps (last value wins) and sorts ascending.
// The input slice is not modified.
func Dedupe(in []Candle) []Candle {
	if len(in) == 0 {
		return nil
	}

	byTime := make(map[int64]Candle, len(in))
	for _, c := range in {
		byTime[c.Time.Unix()] = c
	}

	out := make([]Candle, 0, len(byTime))
	for _, c := range byTime {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Time.Before(out[j].Time)
	})
	return out
}

// ClosedBy returns the trailing window (at most max candles, 0 = unbounded) of a
// sorted series whose candles have fully closed at or before t.
func ClosedBy(series []Candle, t time.Time, max int) []Candle {
	n := sort.Search(len(series), func(i int) bool {
		return series[i].CloseTime().After(t)
	})
	start := 0
	if max > 0 && n > max {
		start = n - max
	}
	return series[start:n]
}

// Upto returns the trailing window ending at index i inclusive
func Upto(series []Candle, i, max int) []Candle {
	if i < 0 {
		return nil
	}
	if i >= len(series) {
		i = len(series) - 1
	}
	start := 0
	if max > 0 && i+1 > max {
		start = i + 1 - max
	}
	return series[start : i+1]
}

// TicksBetween returns ticks with from <= Time < to from a sorted slice
func TicksBetween(ticks []Tick, from, to time.Time) []Tick {
	lo := sort.Search(len(ticks), func(i int) bool { return !ticks[i].Time.Before(from) })
	hi := sort.Search(len(ticks), func(i int) bool { return !ticks[i].Time.Before(to) })
	if lo >= hi {
		return nil
	}
	return ticks[lo:hi]
}
