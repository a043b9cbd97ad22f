package inference

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jamesainslie/go-metaphor/tensor"
)

// ErrPoolClosed is returned for work submitted after Close.
var ErrPoolClosed = errors.New("inference: pool is closed")

// Runner executes a model on one input batch. Session is the ONNX Runtime
// implementation.
type Runner interface {
	Infer(ctx context.Context, in *tensor.Input) ([]float32, []int64, error)
	Close() error
}

// Pool shares a fixed set of runners between concurrent batches. Each runner
// serves one batch at a time.
type Pool struct {
	idle   chan Runner
	size   int
	mu     sync.Mutex
	closed bool
}

// NewPool creates a pool of size ONNX sessions bound to the given input and
// output tensor names. A size below 1 means 1.
func NewPool(modelPath, inputName, outputName string, size int) (*Pool, error) {
	return NewPoolFunc(size, func() (Runner, error) {
		return NewSession(modelPath, inputName, outputName)
	})
}

// NewPoolFunc creates a pool of size runners built by open.
func NewPoolFunc(size int, open func() (Runner, error)) (*Pool, error) {
	size = max(size, 1)
	p := &Pool{
		idle: make(chan Runner, size),
		size: size,
	}

	for i := 0; i < size; i++ {
		r, err := open()
		if err != nil {
			_ = p.Close() // Best-effort cleanup; open error takes precedence
			return nil, fmt.Errorf("creating session %d: %w", i, err)
		}
		p.idle <- r
	}
	return p, nil
}

// Run infers in on the next idle runner, waiting for one if all are busy.
func (p *Pool) Run(ctx context.Context, in *tensor.Input) ([]float32, []int64, error) {
	r, err := p.acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer p.release(r)

	return r.Infer(ctx, in)
}

func (p *Pool) acquire(ctx context.Context) (Runner, error) {
	select {
	case r, ok := <-p.idle:
		if !ok {
			return nil, ErrPoolClosed
		}
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// release hands r back, or closes it once the pool is closed.
func (p *Pool) release(r Runner) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		_ = r.Close() // Pool closed; nothing left to return it to
		return
	}
	p.idle <- r
}

// Close closes idle runners now and busy ones when their batch finishes.
// It is idempotent.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.idle)
	p.mu.Unlock()

	var errs []error
	for r := range p.idle {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Size returns the number of runners.
func (p *Pool) Size() int {
	return p.size
}
