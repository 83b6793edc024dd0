package util

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseIntDefault parses string to int or returns def if empty/invalid.
func ParseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// ParseIntList parses a comma separated list such as "3, 4" into [3 4].
// Blank input yields an empty list.
func ParseIntList(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return []int{}, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("element %d %q: %w", i, p, err)
		}
		out = append(out, v)
	}
	return out, nil
}
