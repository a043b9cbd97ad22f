package inference

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/go-metaphor/tensor"
)

// ErrNoInput is returned when a prediction is requested for an empty batch.
var ErrNoInput = errors.New("inference: empty input")

// Model produces per-token label scores for a batch of embedded sentences.
type Model interface {
	// Predict returns one MaxLen x labels score matrix per input sentence,
	// in input order. Sentences are run batchSize at a time.
	Predict(ctx context.Context, x *tensor.Input, batchSize int) (*tensor.Tensor, error)
}

// ONNXModel is a Model backed by a pool of ONNX Runtime sessions.
type ONNXModel struct {
	pool      *Pool
	signature *Signature
}

// NewONNXModel loads the model at modelPath into poolSize sessions. The first
// graph input and output are used.
func NewONNXModel(modelPath string, poolSize int) (*ONNXModel, error) {
	sig, err := ReadSignature(modelPath)
	if err != nil {
		return nil, err
	}
	if len(sig.Inputs) == 0 || len(sig.Outputs) == 0 {
		return nil, fmt.Errorf("%w: %s has no graph input or output", ErrSignatureMismatch, modelPath)
	}

	pool, err := NewPool(modelPath, sig.Inputs[0].Name, sig.Outputs[0].Name, poolSize)
	if err != nil {
		return nil, fmt.Errorf("creating session pool: %w", err)
	}

	return &ONNXModel{pool: pool, signature: sig}, nil
}

// Signature returns the model's graph signature.
func (m *ONNXModel) Signature() *Signature {
	return m.signature
}

// Predict implements Model. Batches run concurrently, at most one per pooled
// session.
func (m *ONNXModel) Predict(ctx context.Context, x *tensor.Input, batchSize int) (*tensor.Tensor, error) {
	return predictBatches(ctx, x, batchSize, m.pool.Size(), func(ctx context.Context, in *tensor.Input) (*tensor.Tensor, error) {
		data, shape, err := m.pool.Run(ctx, in)
		if err != nil {
			return nil, err
		}
		if len(shape) != 3 || shape[0] != int64(in.Batch) || shape[1] != int64(in.MaxLen) {
			return nil, fmt.Errorf("%w: output shape %v for input [%d %d %d]",
				tensor.ErrShape, shape, in.Batch, in.MaxLen, in.Dim)
		}
		return tensor.FromFlat(data, in.Batch, in.MaxLen, int(shape[2]))
	})
}

// Close releases all sessions.
func (m *ONNXModel) Close() error {
	return m.pool.Close()
}

type batchFunc func(ctx context.Context, in *tensor.Input) (*tensor.Tensor, error)

// predictBatches splits x into batches of batchSize sentences, runs them with
// at most limit in flight and concatenates the results in input order.
func predictBatches(ctx context.Context, x *tensor.Input, batchSize, limit int, run batchFunc) (*tensor.Tensor, error) {
	if x == nil || x.Batch == 0 {
		return nil, ErrNoInput
	}
	if batchSize <= 0 {
		batchSize = x.Batch
	}
	if limit <= 0 {
		limit = 1
	}

	numBatches := (x.Batch + batchSize - 1) / batchSize
	results := make([]*tensor.Tensor, numBatches)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := 0; i < numBatches; i++ {
		from := i * batchSize
		to := min(from+batchSize, x.Batch)
		g.Go(func() error {
			out, err := run(gctx, x.Slice(from, to))
			if err != nil {
				return fmt.Errorf("batch %d: %w", i, err)
			}
			if out.Len() != to-from {
				return fmt.Errorf("%w: batch %d returned %d sentences, want %d", tensor.ErrShape, i, out.Len(), to-from)
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := &tensor.Tensor{MaxLen: results[0].MaxLen, NumLabels: results[0].NumLabels}
	for _, r := range results {
		if err := merged.Append(r); err != nil {
			return nil, err
		}
	}
	return merged, nil
}
