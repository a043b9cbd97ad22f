package objective

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Probability clip bounds applied before taking logarithms.
const (
	Epsilon        = 1e-7
	MaxProbability = 1 - Epsilon
)

// LossFunc returns the loss of every row of yPred against the matching row of
// yTrue. Rows are sequence positions, columns are labels.
type LossFunc func(yTrue, yPred mat.Matrix) ([]float64, error)

// NewWeightedLoss returns a categorical cross-entropy loss whose per-label
// terms are scaled by w.
func NewWeightedLoss(w Weights) LossFunc {
	weights := append(Weights(nil), w...)
	return func(yTrue, yPred mat.Matrix) ([]float64, error) {
		rows, cols := yPred.Dims()
		tr, tc := yTrue.Dims()
		if rows != tr || cols != tc {
			return nil, fmt.Errorf("%w: true %dx%d, predicted %dx%d", ErrShapeMismatch, tr, tc, rows, cols)
		}
		if cols != len(weights) {
			return nil, fmt.Errorf("%w: %d labels, %d weights", ErrShapeMismatch, cols, len(weights))
		}

		out := make([]float64, rows)
		t := make([]float64, cols)
		p := make([]float64, cols)
		for r := 0; r < rows; r++ {
			mat.Row(t, r, yTrue)
			mat.Row(p, r, yPred)
			out[r] = WeightedCrossEntropy(weights, t, p)
		}
		return out, nil
	}
}

// WeightedCrossEntropy computes -Σ w[l] * yTrue[l] * log(yPred[l]) for one
// position. yPred is scaled to sum to 1 when its sum is positive and then
// clipped to [Epsilon, MaxProbability]. The slices must share one length.
func WeightedCrossEntropy(w Weights, yTrue, yPred []float64) float64 {
	var sum float64
	for _, v := range yPred {
		sum += v
	}

	var loss float64
	for l, t := range yTrue {
		if t == 0 {
			continue
		}
		p := yPred[l]
		if sum > 0 {
			p /= sum
		}
		p = min(max(p, Epsilon), MaxProbability)
		loss -= w[l] * t * math.Log(p)
	}
	return loss
}

// MeanLoss averages loss over every row of every (yTrue, yPred) pair whose
// target row is not all zero.
func MeanLoss(loss LossFunc, yTrue, yPred []*mat.Dense) (float64, error) {
	if len(yTrue) != len(yPred) {
		return 0, fmt.Errorf("%w: %d targets, %d predictions", ErrShapeMismatch, len(yTrue), len(yPred))
	}

	var total float64
	var n int
	for i := range yPred {
		rows, err := loss(yTrue[i], yPred[i])
		if err != nil {
			return 0, fmt.Errorf("sentence %d: %w", i, err)
		}
		for r, v := range rows {
			if isMasked(yTrue[i].RawRowView(r)) {
				continue
			}
			total += v
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return total / float64(n), nil
}
