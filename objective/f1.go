package objective

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/jamesainslie/go-metaphor/labels"
)

// Aggregation selects how a Metric combines successive updates.
type Aggregation int

const (
	// Running accumulates counts over every update, giving a corpus-level F1.
	Running Aggregation = iota

	// PerBatch reports the F1 of the most recent update only.
	PerBatch
)

// String returns the configuration name of the aggregation policy.
func (a Aggregation) String() string {
	switch a {
	case Running:
		return "running"
	case PerBatch:
		return "batch"
	default:
		return fmt.Sprintf("Aggregation(%d)", int(a))
	}
}

// ParseAggregation parses "running" or "batch".
func ParseAggregation(s string) (Aggregation, error) {
	switch s {
	case "running", "":
		return Running, nil
	case "batch":
		return PerBatch, nil
	default:
		return 0, fmt.Errorf("objective: unknown aggregation %q", s)
	}
}

// Counts is a confusion count against one positive label.
type Counts struct {
	TruePositives  int
	FalsePositives int
	FalseNegatives int
	TrueNegatives  int
}

// Add returns the element-wise sum of c and o.
func (c Counts) Add(o Counts) Counts {
	return Counts{
		TruePositives:  c.TruePositives + o.TruePositives,
		FalsePositives: c.FalsePositives + o.FalsePositives,
		FalseNegatives: c.FalseNegatives + o.FalseNegatives,
		TrueNegatives:  c.TrueNegatives + o.TrueNegatives,
	}
}

// Observe records one decision.
func (c *Counts) Observe(truth, predicted, positive int) {
	switch {
	case predicted == positive && truth == positive:
		c.TruePositives++
	case predicted == positive:
		c.FalsePositives++
	case truth == positive:
		c.FalseNegatives++
	default:
		c.TrueNegatives++
	}
}

// Precision returns TP / (TP + FP), or 0 when nothing was predicted positive.
func (c Counts) Precision() float64 {
	if c.TruePositives+c.FalsePositives == 0 {
		return 0
	}
	return float64(c.TruePositives) / float64(c.TruePositives+c.FalsePositives)
}

// Recall returns TP / (TP + FN), or 0 when the positive label never occurs.
func (c Counts) Recall() float64 {
	if c.TruePositives+c.FalseNegatives == 0 {
		return 0
	}
	return float64(c.TruePositives) / float64(c.TruePositives+c.FalseNegatives)
}

// F1 returns the harmonic mean of precision and recall, or 0 when both are 0.
func (c Counts) F1() float64 {
	return HarmonicMean(c.Precision(), c.Recall())
}

// HarmonicMean returns 2pr/(p+r), or 0 when p+r is 0.
func HarmonicMean(p, r float64) float64 {
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// Count compares arg-max decisions of yTrue and yPred row by row. Rows whose
// target is all zero are padding or non-target tokens and are skipped.
func Count(yTrue, yPred mat.Matrix, positive int) (Counts, error) {
	rows, cols := yPred.Dims()
	tr, tc := yTrue.Dims()
	if rows != tr || cols != tc {
		return Counts{}, fmt.Errorf("%w: true %dx%d, predicted %dx%d", ErrShapeMismatch, tr, tc, rows, cols)
	}
	if positive < 0 || positive >= cols {
		return Counts{}, fmt.Errorf("%w: positive label %d outside %d labels", ErrShapeMismatch, positive, cols)
	}

	var c Counts
	t := make([]float64, cols)
	p := make([]float64, cols)
	for r := 0; r < rows; r++ {
		mat.Row(t, r, yTrue)
		if isMasked(t) {
			continue
		}
		mat.Row(p, r, yPred)
		c.Observe(labels.ArgMax(t), labels.ArgMax(p), positive)
	}
	return c, nil
}

// F1 returns the F1 score of yPred against yTrue for the positive label.
func F1(yTrue, yPred mat.Matrix, positive int) (float64, error) {
	c, err := Count(yTrue, yPred, positive)
	if err != nil {
		return 0, err
	}
	return c.F1(), nil
}

// Metric is an F1 accumulator fed batch by batch.
type Metric struct {
	positive    int
	aggregation Aggregation
	counts      Counts
}

// NewMetric returns a Metric for the given positive label index.
func NewMetric(positive int, aggregation Aggregation) *Metric {
	return &Metric{positive: positive, aggregation: aggregation}
}

// Update folds one batch of sentences into the metric.
func (m *Metric) Update(yTrue, yPred []*mat.Dense) error {
	if len(yTrue) != len(yPred) {
		return fmt.Errorf("%w: %d targets, %d predictions", ErrShapeMismatch, len(yTrue), len(yPred))
	}

	var batch Counts
	for i := range yPred {
		c, err := Count(yTrue[i], yPred[i], m.positive)
		if err != nil {
			return fmt.Errorf("sentence %d: %w", i, err)
		}
		batch = batch.Add(c)
	}

	if m.aggregation == PerBatch {
		m.counts = batch
	} else {
		m.counts = m.counts.Add(batch)
	}
	return nil
}

// Counts returns the counts behind the current result.
func (m *Metric) Counts() Counts { return m.counts }

// Result returns the current F1 score.
func (m *Metric) Result() float64 { return m.counts.F1() }

// Reset clears accumulated counts.
func (m *Metric) Reset() { m.counts = Counts{} }

func isMasked(row []float64) bool {
	for _, v := range row {
		if v != 0 {
			return false
		}
	}
	return true
}
