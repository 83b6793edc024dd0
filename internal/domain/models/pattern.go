package models

import "FinCast/pkg/linalg"

// DataPattern is one training example. Priority is the number of times the
// pattern is replayed per epoch.
type DataPattern struct {
	Input    linalg.Vector
	Target   linalg.Vector
	Priority int
}

// PriorityFunc weights pattern i of n for a network that looks
// estimateLength points back.
type PriorityFunc func(i, n, estimateLength int) int

// DefaultPriority replays later patterns more often:
// max(1, 2·estimateLength / (n-i)) with integer division.
func DefaultPriority(i, n, estimateLength int) int {
	p := 2 * estimateLength / (n - i)
	if p < 1 {
		return 1
	}
	return p
}

// Progress is a snapshot of a training run.
type Progress struct {
	Epoch     int
	MaxEpochs int
	Running   bool
}

// Fraction returns Epoch/MaxEpochs, or 0 before any run.
func (p Progress) Fraction() float64 {
	if p.MaxEpochs <= 0 {
		return 0
	}
	return float64(p.Epoch) / float64(p.MaxEpochs)
}
