// Package tensor holds the model input batch and the padded prediction tensor
// exchanged with a trained sequence-labeling model.
package tensor

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrShape indicates data whose length does not match the declared shape.
var ErrShape = errors.New("tensor: data does not match shape")

// Input is a [Batch, MaxLen, Dim] float32 batch in row-major order, the layout
// an ONNX model consumes.
type Input struct {
	Data   []float32
	Batch  int
	MaxLen int
	Dim    int
}

// NewInput allocates a zeroed input batch.
func NewInput(batch, maxLen, dim int) *Input {
	return &Input{
		Data:   make([]float32, batch*maxLen*dim),
		Batch:  batch,
		MaxLen: maxLen,
		Dim:    dim,
	}
}

// Vector returns the writable embedding slot for sentence b at position p.
func (in *Input) Vector(b, p int) []float32 {
	off := (b*in.MaxLen + p) * in.Dim
	return in.Data[off : off+in.Dim]
}

// Slice returns sentences [from, to) as a new Input sharing the backing data.
func (in *Input) Slice(from, to int) *Input {
	stride := in.MaxLen * in.Dim
	return &Input{
		Data:   in.Data[from*stride : to*stride],
		Batch:  to - from,
		MaxLen: in.MaxLen,
		Dim:    in.Dim,
	}
}

// Tensor is a batch of per-sentence score matrices, each MaxLen rows by
// NumLabels columns. Rows past a sentence's length are padding.
type Tensor struct {
	Sentences []*mat.Dense
	MaxLen    int
	NumLabels int
}

// FromFlat builds a Tensor from [batch, maxLen, numLabels] row-major scores.
func FromFlat(data []float32, batch, maxLen, numLabels int) (*Tensor, error) {
	if batch < 0 || maxLen <= 0 || numLabels <= 0 {
		return nil, fmt.Errorf("%w: shape [%d %d %d]", ErrShape, batch, maxLen, numLabels)
	}
	if len(data) != batch*maxLen*numLabels {
		return nil, fmt.Errorf("%w: %d values for shape [%d %d %d]", ErrShape, len(data), batch, maxLen, numLabels)
	}

	t := &Tensor{
		Sentences: make([]*mat.Dense, batch),
		MaxLen:    maxLen,
		NumLabels: numLabels,
	}
	stride := maxLen * numLabels
	for b := 0; b < batch; b++ {
		vals := make([]float64, stride)
		for i, v := range data[b*stride : (b+1)*stride] {
			vals[i] = float64(v)
		}
		t.Sentences[b] = mat.NewDense(maxLen, numLabels, vals)
	}
	return t, nil
}

// Len returns the number of sentences.
func (t *Tensor) Len() int { return len(t.Sentences) }

// Scores returns the label scores of sentence b at position p. The slice
// aliases the tensor.
func (t *Tensor) Scores(b, p int) []float64 {
	return t.Sentences[b].RawRowView(p)
}

// Append adds the sentences of o to t. Shapes must agree.
func (t *Tensor) Append(o *Tensor) error {
	if o.MaxLen != t.MaxLen || o.NumLabels != t.NumLabels {
		return fmt.Errorf("%w: appending [%d %d] to [%d %d]", ErrShape, o.MaxLen, o.NumLabels, t.MaxLen, t.NumLabels)
	}
	t.Sentences = append(t.Sentences, o.Sentences...)
	return nil
}
