package repository

import (
	"fmt"
	"time"
)

// Step is the width of one candle.
func (tf Timeframe) Step() time.Duration {
	switch tf {
	case TF1s:
		return time.Second
	case TF1m:
		return time.Minute
	case TF5m:
		return 5 * time.Minute
	}
	return 0
}

// ParseTimeframe maps "" to 1m and rejects anything the chart store cannot
// serve.
func ParseTimeframe(s string) (Timeframe, error) {
	if s == "" {
		return TF1m, nil
	}
	tf := Timeframe(s)
	if tf.Step() == 0 {
		return "", fmt.Errorf("unsupported timeframe %q", s)
	}
	return tf, nil
}
