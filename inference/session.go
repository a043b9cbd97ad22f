// Package inference runs a trained sequence-labeling model exported to ONNX.
package inference

import (
	"context"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/jamesainslie/go-metaphor/tensor"
)

var (
	ortEnvOnce sync.Once
	ortEnvErr  error
)

// SetLibraryPath sets the onnxruntime shared library location. It must be
// called before the first session is created.
func SetLibraryPath(path string) {
	if path != "" {
		ort.SetSharedLibraryPath(path)
	}
}

// initORT initializes ONNX Runtime environment once.
func initORT() error {
	ortEnvOnce.Do(func() {
		ortEnvErr = ort.InitializeEnvironment()
	})
	return ortEnvErr
}

// Session wraps an ONNX Runtime session for a model taking one
// [batch, maxLen, dim] float32 input and producing one
// [batch, maxLen, labels] float32 output.
type Session struct {
	session *ort.DynamicAdvancedSession
	mu      sync.Mutex
	closed  bool
}

// NewSession creates a new ONNX session from a model file.
func NewSession(modelPath, inputName, outputName string) (*Session, error) {
	// Check file exists
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}

	if err := initORT(); err != nil {
		return nil, fmt.Errorf("initializing ONNX runtime: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("creating session options: %w", err)
	}
	defer func() { _ = options.Destroy() }() // Cleanup error doesn't affect success

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{inputName},
		[]string{outputName},
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	return &Session{session: session}, nil
}

// Infer runs the model on one input batch and returns the flat output scores
// with their shape.
func (s *Session) Infer(ctx context.Context, in *tensor.Input) ([]float32, []int64, error) {
	// Check context before expensive operation
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, nil, fmt.Errorf("session is closed")
	}

	input, err := ort.NewTensor(
		ort.NewShape(int64(in.Batch), int64(in.MaxLen), int64(in.Dim)),
		in.Data,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("creating input tensor: %w", err)
	}
	defer func() { _ = input.Destroy() }()

	// nil entries are allocated by Run
	outputs := []ort.Value{nil}
	if err := s.session.Run([]ort.Value{input}, outputs); err != nil {
		return nil, nil, fmt.Errorf("running inference: %w", err)
	}
	if outputs[0] == nil {
		return nil, nil, fmt.Errorf("no output produced")
	}
	defer func() { _ = outputs[0].Destroy() }()

	scores, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, nil, fmt.Errorf("unexpected output tensor type")
	}

	shape := scores.GetShape()
	data := make([]float32, shape.FlattenedSize())
	copy(data, scores.GetData())

	return data, append([]int64(nil), shape...), nil
}

// Close releases ONNX resources.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	if s.session != nil {
		return s.session.Destroy()
	}
	return nil
}

var _ Runner = (*Session)(nil)
