// Package objective provides the class-imbalance weights, the weighted
// cross-entropy loss and the F1 metric that a trained model is compiled with.
// Every function here is pure.
package objective

import (
	"errors"
	"fmt"
	"math"

	"github.com/jamesainslie/go-metaphor/labels"
)

var (
	// ErrInvalidSmoothing indicates a smoothing factor outside [0, 1].
	ErrInvalidSmoothing = errors.New("objective: smoothing must be in [0, 1]")

	// ErrUnknownLabel indicates a label occurrence that is not in the label set.
	ErrUnknownLabel = errors.New("objective: unknown label")

	// ErrShapeMismatch indicates distributions whose dimensions disagree.
	ErrShapeMismatch = errors.New("objective: shape mismatch")
)

// Weights holds one strictly positive weight per label, indexed by label index.
type Weights []float64

// Map returns the weights keyed by label name.
func (w Weights) Map(set labels.Set) map[string]float64 {
	m := make(map[string]float64, len(w))
	for i, v := range w {
		m[set.Name(i)] = v
	}
	return m
}

// ComputeWeights derives smoothed inverse-frequency weights from label
// occurrences:
//
//	weight(L) = (1 - smoothing) * total/count(L) + smoothing
//
// A label that never occurs is counted once. With no occurrences at all every
// base weight is 1.
func ComputeWeights(occurrences []string, set labels.Set, smoothing float64) (Weights, error) {
	if !set.Valid() {
		return nil, labels.ErrInvalidLabelSet
	}
	if math.IsNaN(smoothing) || smoothing < 0 || smoothing > 1 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidSmoothing, smoothing)
	}

	counts := make([]int, set.Len())
	for _, l := range occurrences {
		i, ok := set.Index(l)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownLabel, l)
		}
		counts[i]++
	}

	total := float64(len(occurrences))
	w := make(Weights, set.Len())
	for i, c := range counts {
		base := 1.0
		if total > 0 {
			base = total / float64(max(c, 1))
		}
		w[i] = (1-smoothing)*base + smoothing
	}
	return w, nil
}
