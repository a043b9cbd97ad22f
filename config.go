package metaphor

import (
	"fmt"
	"math"
	"runtime"

	"github.com/go-playground/validator/v10"

	"github.com/jamesainslie/go-metaphor/labels"
	"github.com/jamesainslie/go-metaphor/objective"
	"github.com/jamesainslie/go-metaphor/records"
	"github.com/jamesainslie/go-metaphor/score"
)

var validate = validator.New()

// Config holds the evaluation parameters. The zero value is not usable; start
// from DefaultConfig.
type Config struct {
	// MaxSentenceLength is the fixed input length of the model. Longer
	// sentences are truncated.
	MaxSentenceLength int `mapstructure:"max_sentence_length" validate:"gt=0"`

	// EmbeddingDim is the size of each token vector.
	EmbeddingDim int `mapstructure:"embedding_dim" validate:"gt=0"`

	// BatchSize is the number of sentences per model call.
	BatchSize int `mapstructure:"batch_size" validate:"gt=0"`

	// WeightSmoothing blends inverse-frequency class weights toward 1.
	WeightSmoothing float64 `mapstructure:"weight_smoothing" validate:"gte=0,lte=1"`

	// PoolSize is the number of model sessions run concurrently.
	PoolSize int `mapstructure:"pool_size" validate:"gt=0"`

	Labels      labels.Set            `mapstructure:"-"`
	Averaging   score.Averaging       `mapstructure:"-"`
	Aggregation objective.Aggregation `mapstructure:"-"`

	PredictionsFormat records.Format `mapstructure:"-"`
	GoldFormat        records.Format `mapstructure:"-"`
}

// DefaultConfig returns the parameters the reference model was trained with.
func DefaultConfig() Config {
	return Config{
		MaxSentenceLength: 50,
		EmbeddingDim:      300,
		BatchSize:         32,
		WeightSmoothing:   0.1,
		PoolSize:          runtime.NumCPU(),
		Labels:            labels.Default(),
		Averaging:         score.Binary,
		Aggregation:       objective.Running,
		PredictionsFormat: records.FormatTriple,
		GoldFormat:        records.FormatVUAMC,
	}
}

// Validate reports the first invalid parameter, wrapped in ErrConfiguration.
func (c Config) Validate() error {
	if math.IsNaN(c.WeightSmoothing) || c.WeightSmoothing < 0 || c.WeightSmoothing > 1 {
		return fmt.Errorf("%w: %w: got %v", ErrConfiguration, objective.ErrInvalidSmoothing, c.WeightSmoothing)
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if !c.Labels.Valid() {
		return fmt.Errorf("%w: %w", ErrConfiguration, labels.ErrInvalidLabelSet)
	}
	if c.Averaging != score.Binary && c.Averaging != score.Macro {
		return fmt.Errorf("%w: averaging %v", ErrConfiguration, c.Averaging)
	}
	if c.Aggregation != objective.Running && c.Aggregation != objective.PerBatch {
		return fmt.Errorf("%w: aggregation %v", ErrConfiguration, c.Aggregation)
	}
	return nil
}
