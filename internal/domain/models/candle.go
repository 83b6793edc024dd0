package models

import (
	"fmt"
	"time"
)

// Candle represents an OHLCV record.
type Candle struct {
	Bucket time.Time
	Symbol string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// CandleChannels are the channel names a candle can contribute to a chart.
var CandleChannels = []string{"close", "high", "low", "open", "volume"}

// Channel returns the candle value for a channel name.
func (c Candle) Channel(name string) (float64, bool) {
	switch name {
	case "open":
		return c.Open, true
	case "high":
		return c.High, true
	case "low":
		return c.Low, true
	case "close":
		return c.Close, true
	case "volume":
		return c.Volume, true
	default:
		return 0, false
	}
}

// CandlesToChart picks channels out of time-ascending candles.
func CandlesToChart(candles []Candle, channels []string) (*Chart, error) {
	if len(channels) == 0 {
		return nil, &ConfigError{Field: "channels", Reason: "at least one channel is required"}
	}
	points := make([]ChartPoint, len(candles))
	for i, c := range candles {
		p := make(ChartPoint, len(channels))
		for _, ch := range channels {
			v, ok := c.Channel(ch)
			if !ok {
				return nil, &ConfigError{Field: "channels", Reason: fmt.Sprintf("unknown candle channel %q", ch)}
			}
			p[ch] = v
		}
		points[i] = p
	}
	return NewChart(points)
}
