package network

import "FinCast/pkg/linalg"

// HistoryDepth is the number of gradient matrices a layer remembers.
const HistoryDepth = 3

// GradientHistory is a fixed-depth ring of gradient matrices, newest first.
// Current is the accumulator of the running epoch, Previous and TwoBack are
// the accumulators of the two epochs before it. Pushing evicts the oldest.
type GradientHistory struct {
	slots [HistoryDepth]*linalg.Matrix
	head  int
	size  int
}

// NewGradientHistory returns a history holding one zero accumulator.
func NewGradientHistory(rows, cols int) (*GradientHistory, error) {
	m, err := linalg.NewMatrix(rows, cols)
	if err != nil {
		return nil, err
	}
	h := &GradientHistory{}
	h.Push(m)
	return h, nil
}

// Push makes m the current accumulator.
func (h *GradientHistory) Push(m *linalg.Matrix) {
	h.head = (h.head + HistoryDepth - 1) % HistoryDepth
	h.slots[h.head] = m
	if h.size < HistoryDepth {
		h.size++
	}
}

// Len returns how many slots are populated.
func (h *GradientHistory) Len() int { return h.size }

func (h *GradientHistory) at(back int) (*linalg.Matrix, bool) {
	if back >= h.size {
		return nil, false
	}
	return h.slots[(h.head+back)%HistoryDepth], true
}

// Current returns the accumulator of the running epoch.
func (h *GradientHistory) Current() *linalg.Matrix {
	m, _ := h.at(0)
	return m
}

// Previous returns the gradient of the last finished epoch.
func (h *GradientHistory) Previous() (*linalg.Matrix, bool) { return h.at(1) }

// TwoBack returns the gradient of the epoch before Previous.
func (h *GradientHistory) TwoBack() (*linalg.Matrix, bool) { return h.at(2) }
