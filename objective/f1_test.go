package objective

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// oneHot builds an n x 2 matrix from label indices; -1 marks a masked row.
func oneHot(idx ...int) *mat.Dense {
	m := mat.NewDense(len(idx), 2, nil)
	for r, i := range idx {
		if i >= 0 {
			m.Set(r, i, 1)
		}
	}
	return m
}

func TestCounts(t *testing.T) {
	tests := []struct {
		name          string
		c             Counts
		wantPrecision float64
		wantRecall    float64
		wantF1        float64
	}{
		{name: "zero", c: Counts{}, wantPrecision: 0, wantRecall: 0, wantF1: 0},
		{name: "perfect", c: Counts{TruePositives: 3}, wantPrecision: 1, wantRecall: 1, wantF1: 1},
		{name: "half precision", c: Counts{TruePositives: 1, FalsePositives: 1}, wantPrecision: 0.5, wantRecall: 1, wantF1: 2.0 / 3.0},
		{name: "no true positives", c: Counts{FalsePositives: 2, FalseNegatives: 1}, wantPrecision: 0, wantRecall: 0, wantF1: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.Precision(); math.Abs(got-tt.wantPrecision) > 1e-12 {
				t.Errorf("Precision() = %v, want %v", got, tt.wantPrecision)
			}
			if got := tt.c.Recall(); math.Abs(got-tt.wantRecall) > 1e-12 {
				t.Errorf("Recall() = %v, want %v", got, tt.wantRecall)
			}
			if got := tt.c.F1(); math.Abs(got-tt.wantF1) > 1e-12 {
				t.Errorf("F1() = %v, want %v", got, tt.wantF1)
			}
		})
	}
}

func TestF1(t *testing.T) {
	tests := []struct {
		name  string
		yTrue *mat.Dense
		yPred *mat.Dense
		want  float64
	}{
		{
			name:  "perfect match with positives",
			yTrue: oneHot(1, 0, 1),
			yPred: oneHot(1, 0, 1),
			want:  1,
		},
		{
			name:  "positive never occurs",
			yTrue: oneHot(0, 0, 0),
			yPred: oneHot(0, 0, 0),
			want:  0,
		},
		{
			name:  "one false positive",
			yTrue: oneHot(1, 0, 0),
			yPred: oneHot(1, 1, 0),
			want:  2.0 / 3.0,
		},
		{
			name:  "masked rows ignored",
			yTrue: oneHot(1, -1, -1),
			yPred: oneHot(1, 1, 1),
			want:  1,
		},
		{
			name:  "soft scores use arg-max",
			yTrue: oneHot(1, 0),
			yPred: mat.NewDense(2, 2, []float64{0.4, 0.6, 0.7, 0.3}),
			want:  1,
		},
		{
			name:  "tie resolves to lowest index",
			yTrue: oneHot(1),
			yPred: mat.NewDense(1, 2, []float64{0.5, 0.5}),
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := F1(tt.yTrue, tt.yPred, 1)
			if err != nil {
				t.Fatalf("F1() error = %v", err)
			}
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("F1() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestF1_ConsistentRelabeling(t *testing.T) {
	yTrue := oneHot(1, 0, 0, 1, 0)
	yPred := oneHot(1, 1, 0, 0, 0)

	// Swap label columns in both and score against the swapped positive label.
	swap := func(m *mat.Dense) *mat.Dense {
		r, _ := m.Dims()
		out := mat.NewDense(r, 2, nil)
		for i := 0; i < r; i++ {
			out.Set(i, 0, m.At(i, 1))
			out.Set(i, 1, m.At(i, 0))
		}
		return out
	}

	a, err := F1(yTrue, yPred, 1)
	if err != nil {
		t.Fatal(err)
	}
	b, err := F1(swap(yTrue), swap(yPred), 0)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("F1 after consistent relabeling = %v, want %v", b, a)
	}
}

func TestMetric_Aggregation(t *testing.T) {
	batch1True := []*mat.Dense{oneHot(1, 0)}
	batch1Pred := []*mat.Dense{oneHot(1, 0)}
	batch2True := []*mat.Dense{oneHot(1, 1)}
	batch2Pred := []*mat.Dense{oneHot(0, 0)}

	running := NewMetric(1, Running)
	perBatch := NewMetric(1, PerBatch)
	for _, m := range []*Metric{running, perBatch} {
		if err := m.Update(batch1True, batch1Pred); err != nil {
			t.Fatal(err)
		}
		if err := m.Update(batch2True, batch2Pred); err != nil {
			t.Fatal(err)
		}
	}

	// Running: TP=1, FN=2 -> P=1, R=1/3, F1=0.5.
	if got := running.Result(); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("running Result() = %v, want 0.5", got)
	}
	// Per batch: last batch has TP=0 -> 0.
	if got := perBatch.Result(); got != 0 {
		t.Errorf("batch Result() = %v, want 0", got)
	}

	running.Reset()
	if running.Counts() != (Counts{}) {
		t.Errorf("Reset() left counts %+v", running.Counts())
	}
}

func TestParseAggregation(t *testing.T) {
	for _, a := range []Aggregation{Running, PerBatch} {
		got, err := ParseAggregation(a.String())
		if err != nil || got != a {
			t.Errorf("ParseAggregation(%q) = %v, %v", a.String(), got, err)
		}
	}
	if _, err := ParseAggregation("epoch"); err == nil {
		t.Error("expected error for unknown aggregation")
	}
}
