package metaphor

import (
	"log/slog"

	"github.com/jamesainslie/go-metaphor/embedding"
	"github.com/jamesainslie/go-metaphor/labels"
	"github.com/jamesainslie/go-metaphor/objective"
	"github.com/jamesainslie/go-metaphor/records"
	"github.com/jamesainslie/go-metaphor/score"
)

// Option configures an Evaluator.
type Option func(*settings)

type settings struct {
	cfg            Config
	logger         *slog.Logger
	embeddings     embedding.Provider
	runtimeLibrary string
}

func defaultSettings() settings {
	return settings{
		cfg:    DefaultConfig(),
		logger: slog.Default(),
	}
}

// WithConfig replaces every evaluation parameter at once. Options after it
// still apply.
func WithConfig(cfg Config) Option {
	return func(s *settings) {
		s.cfg = cfg
	}
}

// WithMaxSentenceLength sets the model input length (default: 50).
func WithMaxSentenceLength(n int) Option {
	return func(s *settings) {
		s.cfg.MaxSentenceLength = n
	}
}

// WithEmbeddingDim sets the token vector size (default: 300).
func WithEmbeddingDim(n int) Option {
	return func(s *settings) {
		s.cfg.EmbeddingDim = n
	}
}

// WithBatchSize sets the number of sentences per model call (default: 32).
func WithBatchSize(n int) Option {
	return func(s *settings) {
		s.cfg.BatchSize = n
	}
}

// WithWeightSmoothing sets the class weight smoothing factor (default: 0.1).
func WithWeightSmoothing(f float64) Option {
	return func(s *settings) {
		s.cfg.WeightSmoothing = f
	}
}

// WithPoolSize sets the ONNX session pool size (default: runtime.NumCPU()).
func WithPoolSize(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.cfg.PoolSize = n
		}
	}
}

// WithLabels sets the label set (default: literal, metaphor).
func WithLabels(set labels.Set) Option {
	return func(s *settings) {
		s.cfg.Labels = set
	}
}

// WithAveraging sets the scoring policy (default: score.Binary).
func WithAveraging(a score.Averaging) Option {
	return func(s *settings) {
		s.cfg.Averaging = a
	}
}

// WithAggregation sets how the model F1 metric combines batches
// (default: objective.Running).
func WithAggregation(a objective.Aggregation) Option {
	return func(s *settings) {
		s.cfg.Aggregation = a
	}
}

// WithFormats sets the prediction and gold table layouts
// (default: records.FormatTriple, records.FormatVUAMC).
func WithFormats(predictions, gold records.Format) Option {
	return func(s *settings) {
		s.cfg.PredictionsFormat = predictions
		s.cfg.GoldFormat = gold
	}
}

// WithEmbeddings sets the token vector provider (default: embedding.Dummy of
// the configured dimension).
func WithEmbeddings(p embedding.Provider) Option {
	return func(s *settings) {
		if p != nil {
			s.embeddings = p
		}
	}
}

// WithRuntimeLibrary sets the onnxruntime shared library path used by
// NewFromFile.
func WithRuntimeLibrary(path string) Option {
	return func(s *settings) {
		s.runtimeLibrary = path
	}
}

// WithLogger sets the logger (default: slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}
