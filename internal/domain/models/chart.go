package models

import (
	"fmt"
	"sort"

	"FinCast/pkg/linalg"
)

// ChartPoint maps a channel name ("open", "close", ...) to its value at one
// instant.
type ChartPoint map[string]float64

// Clone returns a copy of the point.
func (p ChartPoint) Clone() ChartPoint {
	out := make(ChartPoint, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Chart is a time-ascending series of points that all share the same key set.
// Keys are kept in lexicographic order so every flattening of a chart is
// deterministic.
type Chart struct {
	keys   []string
	points []ChartPoint
}

// NewChart validates and copies points into a Chart. Every point must carry
// exactly the key set of the first one.
func NewChart(points []ChartPoint) (*Chart, error) {
	c := &Chart{points: make([]ChartPoint, len(points))}
	if len(points) == 0 {
		return c, nil
	}
	if len(points[0]) == 0 {
		return nil, &ConfigError{Field: "chart", Reason: "point 0 has no channels"}
	}
	c.keys = sortedKeys(points[0])
	for i, p := range points {
		if len(p) != len(c.keys) {
			return nil, &ConfigError{Field: "chart", Reason: fmt.Sprintf("point %d has %d channels, want %d", i, len(p), len(c.keys))}
		}
		for _, k := range c.keys {
			if _, ok := p[k]; !ok {
				return nil, &ConfigError{Field: "chart", Reason: fmt.Sprintf("point %d is missing channel %q", i, k)}
			}
		}
		c.points[i] = p.Clone()
	}
	return c, nil
}

func sortedKeys(p ChartPoint) []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of points.
func (c *Chart) Len() int { return len(c.points) }

// Keys returns the channel names in lexicographic order.
func (c *Chart) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// HasKey reports whether the chart carries the channel.
func (c *Chart) HasKey(key string) bool {
	i := sort.SearchStrings(c.keys, key)
	return i < len(c.keys) && c.keys[i] == key
}

// At returns a copy of point i.
func (c *Chart) At(i int) ChartPoint { return c.points[i].Clone() }

// Value returns channel key of point i.
func (c *Chart) Value(i int, key string) float64 { return c.points[i][key] }

// First returns a copy of the earliest point.
func (c *Chart) First() ChartPoint { return c.At(0) }

// Last returns a copy of the most recent point.
func (c *Chart) Last() ChartPoint { return c.At(len(c.points) - 1) }

// Slice returns points [from, to) as a new chart sharing no state.
func (c *Chart) Slice(from, to int) *Chart {
	out := &Chart{keys: c.keys, points: make([]ChartPoint, 0, to-from)}
	for _, p := range c.points[from:to] {
		out.points = append(out.points, p.Clone())
	}
	return out
}

// Series returns one channel as a time-ordered slice.
func (c *Chart) Series(key string) []float64 {
	out := make([]float64, len(c.points))
	for i, p := range c.points {
		out[i] = p[key]
	}
	return out
}

// Flatten lays the chart out point-major: all channels of point 0 in key
// order, then point 1, and so on.
func (c *Chart) Flatten() linalg.Vector {
	out := make(linalg.Vector, 0, len(c.points)*len(c.keys))
	for _, p := range c.points {
		for _, k := range c.keys {
			out = append(out, p[k])
		}
	}
	return out
}

// Map returns a chart of the same shape with f applied to every value.
func (c *Chart) Map(f func(key string, v float64) float64) *Chart {
	out := &Chart{keys: c.keys, points: make([]ChartPoint, len(c.points))}
	for i, p := range c.points {
		np := make(ChartPoint, len(p))
		for k, v := range p {
			np[k] = f(k, v)
		}
		out.points[i] = np
	}
	return out
}

// WithPoints returns a chart with the receiver's keys and the given points.
// Callers guarantee the key sets match.
func (c *Chart) WithPoints(points []ChartPoint) *Chart {
	return &Chart{keys: c.keys, points: points}
}
