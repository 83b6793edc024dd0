// Package network implements a fixed chain of fully connected sigmoid
// layers. Forward state lives in the layers, so every pass runs under the
// network's lock.
package network

import (
	"fmt"
	"math/rand"
	"sync"

	"FinCast/internal/domain/models"
	"FinCast/pkg/linalg"
)

// Network is an ordered stack of layers shaped [E·channels, hidden..., 1].
type Network struct {
	mu             sync.Mutex
	layers         []*Layer
	structure      []int
	estimateLength int
	channels       int
}

// New builds a network for windows of estimateLength points with channels
// values each.
func New(estimateLength, channels int, hidden []int, rnd *rand.Rand) (*Network, error) {
	if estimateLength <= 0 {
		return nil, &models.ConfigError{Field: "estimate length", Reason: fmt.Sprintf("must be positive, got %d", estimateLength)}
	}
	if channels <= 0 {
		return nil, &models.ConfigError{Field: "channel count", Reason: fmt.Sprintf("must be positive, got %d", channels)}
	}
	structure := make([]int, 0, len(hidden)+2)
	structure = append(structure, estimateLength*channels)
	for i, h := range hidden {
		if h <= 0 {
			return nil, &models.ConfigError{Field: "hidden layers", Reason: fmt.Sprintf("layer %d has size %d", i, h)}
		}
		structure = append(structure, h)
	}
	structure = append(structure, 1)

	n := &Network{
		structure:      structure,
		estimateLength: estimateLength,
		channels:       channels,
	}
	for i := 1; i < len(structure); i++ {
		l, err := NewLayer(structure[i], structure[i-1], rnd)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i-1, err)
		}
		n.layers = append(n.layers, l)
	}
	return n, nil
}

// Structure returns the unit count of every stage, input first.
func (n *Network) Structure() []int { return append([]int(nil), n.structure...) }

func (n *Network) EstimateLength() int { return n.estimateLength }

func (n *Network) Channels() int { return n.channels }

// InputSize is the length of the vector Feed expects.
func (n *Network) InputSize() int { return n.structure[0] }

// Feed runs one forward pass and returns the output layer's activations.
func (n *Network) Feed(in linalg.Vector) (linalg.Vector, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.feed(in)
}

func (n *Network) feed(in linalg.Vector) (linalg.Vector, error) {
	out := in
	for i, l := range n.layers {
		var err error
		if out, err = l.Feed(out); err != nil {
			return nil, fmt.Errorf("feed layer %d: %w", i, err)
		}
	}
	return out, nil
}

// Session is exclusive access to the layers, valid only inside Exclusive.
type Session struct {
	n *Network
}

// Feed runs a forward pass without taking the lock again.
func (s Session) Feed(in linalg.Vector) (linalg.Vector, error) { return s.n.feed(in) }

// Layers returns the layers input side first.
func (s Session) Layers() []*Layer { return s.n.layers }

// Exclusive runs fn while holding the network lock. The trainer uses it to
// keep a forward pass and its backward pass together.
func (n *Network) Exclusive(fn func(Session) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return fn(Session{n: n})
}

// Weights returns copies of every layer's weight matrix.
func (n *Network) Weights() []*linalg.Matrix {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*linalg.Matrix, len(n.layers))
	for i, l := range n.layers {
		out[i] = l.Weights()
	}
	return out
}
