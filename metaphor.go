package metaphor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"

	"github.com/jamesainslie/go-metaphor/align"
	"github.com/jamesainslie/go-metaphor/corpus"
	"github.com/jamesainslie/go-metaphor/embedding"
	"github.com/jamesainslie/go-metaphor/inference"
	"github.com/jamesainslie/go-metaphor/objective"
	"github.com/jamesainslie/go-metaphor/records"
	"github.com/jamesainslie/go-metaphor/score"
	"github.com/jamesainslie/go-metaphor/tensor"
)

// Result is the outcome of one evaluation run.
type Result struct {
	// Report scores the written predictions against the gold table.
	Report *score.Report

	// Weights are the class weights derived from the corpus labels.
	Weights objective.Weights

	// Loss is the mean weighted cross-entropy over labeled verb positions.
	Loss float64

	// ModelF1 is the token-level F1 the model's compiled metric reports,
	// aggregated per Config.Aggregation.
	ModelF1     float64
	ModelCounts objective.Counts

	// Predictions are the aligned prediction rows in corpus order.
	Predictions []records.Record

	// Dropped lists verbs beyond the maximum sentence length.
	Dropped []*align.AlignmentError
}

// signed is implemented by models that can describe their input and output.
type signed interface {
	Signature() *inference.Signature
}

// Evaluator runs a trained model over a corpus and scores its predictions.
// It is safe for concurrent use.
type Evaluator struct {
	model      inference.Model
	owned      io.Closer
	cfg        Config
	embeddings embedding.Provider
	logger     *slog.Logger
}

// New creates an Evaluator around a caller-owned model.
func New(model inference.Model, opts ...Option) (*Evaluator, error) {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return newEvaluator(model, s)
}

// NewFromFile loads an ONNX model and creates an Evaluator that owns it.
func NewFromFile(modelPath string, opts ...Option) (*Evaluator, error) {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}

	if _, err := os.Stat(modelPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, modelPath)
		}
		return nil, fmt.Errorf("checking model file: %w", err)
	}

	inference.SetLibraryPath(s.runtimeLibrary)
	m, err := inference.NewONNXModel(modelPath, s.cfg.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidModel, err)
	}

	ev, err := newEvaluator(m, s)
	if err != nil {
		_ = m.Close() // Best-effort cleanup; configuration error takes precedence
		return nil, err
	}
	ev.owned = m
	return ev, nil
}

func newEvaluator(model inference.Model, s settings) (*Evaluator, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: nil model", ErrConfiguration)
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}

	emb := s.embeddings
	if emb == nil {
		emb = embedding.NewDummy(s.cfg.EmbeddingDim)
	}
	if emb.Dim() != s.cfg.EmbeddingDim {
		return nil, fmt.Errorf("%w: %w: provider has %d dimensions, configured %d",
			ErrConfiguration, embedding.ErrDimension, emb.Dim(), s.cfg.EmbeddingDim)
	}

	if sm, ok := model.(signed); ok && sm.Signature() != nil {
		if err := sm.Signature().Check(s.cfg.MaxSentenceLength, s.cfg.EmbeddingDim, s.cfg.Labels.Len()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
	}

	return &Evaluator{
		model:      model,
		cfg:        s.cfg,
		embeddings: emb,
		logger:     s.logger,
	}, nil
}

// Config returns the evaluation parameters.
func (e *Evaluator) Config() Config {
	return e.cfg
}

// Evaluate runs the full pipeline over c. Predictions are written to
// predictionsPath and scored against goldPath. An empty goldPath scores
// against the corpus's own verb labels; an empty predictionsPath skips the
// write.
func (e *Evaluator) Evaluate(ctx context.Context, c *corpus.Corpus, goldPath, predictionsPath string) (*Result, error) {
	set := e.cfg.Labels
	if err := c.Validate(set, false); err != nil {
		return nil, err
	}

	weights, err := objective.ComputeWeights(c.LabelOccurrences(), set, e.cfg.WeightSmoothing)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	e.logger.Info("class weights", "weights", weights.Map(set), "smoothing", e.cfg.WeightSmoothing)

	pred, targets, err := e.predict(ctx, c)
	if err != nil {
		return nil, err
	}

	res := &Result{Weights: weights}
	if err := e.objectives(res, weights, targets, pred); err != nil {
		return nil, err
	}

	aligned, err := align.Align(c, pred, e.cfg.MaxSentenceLength, set)
	if err != nil {
		return nil, err
	}
	for _, d := range aligned.Dropped {
		e.logger.Warn("verb beyond max sentence length not scored",
			"sentence", d.SentenceID, "position", d.Position, "max_length", d.MaxLength)
	}
	res.Predictions = aligned.Records
	res.Dropped = aligned.Dropped

	if predictionsPath != "" {
		codec := records.Codec{Format: e.cfg.PredictionsFormat, Labels: set}
		if err := codec.WriteFile(predictionsPath, aligned.Records); err != nil {
			return nil, fmt.Errorf("writing predictions: %w", err)
		}
		e.logger.Debug("predictions written", "path", predictionsPath, "rows", len(aligned.Records))
	}

	scoreCfg := score.Config{
		Labels:    set,
		Averaging: e.cfg.Averaging,
		Excluded:  aligned.DroppedKeys(),
	}
	switch {
	case goldPath == "":
		gold, err := GoldRecords(c)
		if err != nil {
			return nil, err
		}
		res.Report, err = score.Score(aligned.Records, gold, scoreCfg)
		if err != nil {
			return nil, err
		}
	case predictionsPath == "":
		gold, err := records.Codec{Format: e.cfg.GoldFormat, Labels: set}.ReadFile(goldPath)
		if err != nil {
			return nil, fmt.Errorf("reading gold: %w", err)
		}
		res.Report, err = score.Score(aligned.Records, gold, scoreCfg)
		if err != nil {
			return nil, err
		}
	default:
		res.Report, err = score.ScoreFiles(score.Files{
			Predictions:       predictionsPath,
			PredictionsFormat: e.cfg.PredictionsFormat,
			Gold:              goldPath,
			GoldFormat:        e.cfg.GoldFormat,
		}, scoreCfg)
		if err != nil {
			return nil, err
		}
	}
	// Drops count against the corpus, whether or not gold lists them.
	res.Report.Dropped = len(aligned.Dropped)

	e.logger.Info("evaluation complete",
		"precision", res.Report.Precision,
		"recall", res.Report.Recall,
		"f1", res.Report.F1,
		"dropped", res.Report.Dropped)
	return res, nil
}

// predict embeds c and runs the model, returning the score tensor and the
// one-hot targets it is measured against.
func (e *Evaluator) predict(ctx context.Context, c *corpus.Corpus) (*tensor.Tensor, []*mat.Dense, error) {
	set := e.cfg.Labels
	in, targets, err := embedding.Encode(c, e.embeddings, e.cfg.MaxSentenceLength, set)
	if err != nil {
		return nil, nil, err
	}
	if in.Batch == 0 {
		return &tensor.Tensor{MaxLen: e.cfg.MaxSentenceLength, NumLabels: set.Len()}, targets, nil
	}

	e.logger.Debug("running model",
		"sentences", in.Batch, "max_length", in.MaxLen, "batch_size", e.cfg.BatchSize)
	pred, err := e.model.Predict(ctx, in, e.cfg.BatchSize)
	if err != nil {
		return nil, nil, fmt.Errorf("model prediction: %w", err)
	}

	if pred.NumLabels != set.Len() {
		return nil, nil, fmt.Errorf("%w: model produces %d labels, label set has %d",
			ErrConfiguration, pred.NumLabels, set.Len())
	}
	if pred.Len() != in.Batch || pred.MaxLen != in.MaxLen {
		return nil, nil, fmt.Errorf("%w: model returned %d sentences of length %d for %d of length %d",
			tensor.ErrShape, pred.Len(), pred.MaxLen, in.Batch, in.MaxLen)
	}
	return pred, targets, nil
}

// objectives applies the weighted loss and the F1 metric the model was
// compiled with. The metric is fed one model batch at a time.
func (e *Evaluator) objectives(res *Result, w objective.Weights, targets []*mat.Dense, pred *tensor.Tensor) error {
	loss, err := objective.MeanLoss(objective.NewWeightedLoss(w), targets, pred.Sentences)
	if err != nil {
		return fmt.Errorf("computing loss: %w", err)
	}
	res.Loss = loss

	metric := objective.NewMetric(e.cfg.Labels.Positive(), e.cfg.Aggregation)
	for from := 0; from < len(targets); from += e.cfg.BatchSize {
		to := min(from+e.cfg.BatchSize, len(targets))
		if err := metric.Update(targets[from:to], pred.Sentences[from:to]); err != nil {
			return fmt.Errorf("computing f1: %w", err)
		}
	}
	res.ModelF1 = metric.Result()
	res.ModelCounts = metric.Counts()

	e.logger.Debug("model objectives", "loss", res.Loss, "f1", res.ModelF1)
	return nil
}

// GoldRecords returns one record per verb of c carrying its gold label, in
// corpus order.
func GoldRecords(c *corpus.Corpus) ([]records.Record, error) {
	out := make([]records.Record, 0, c.NumVerbs())
	for _, s := range c.Sentences {
		for _, v := range s.Verbs {
			if v.Label == "" {
				return nil, fmt.Errorf("%w: sentence %s: verb %d has no gold label", corpus.ErrInvalidCorpus, s.ID, v.Position)
			}
			out = append(out, records.Record{SentenceID: s.ID, Position: v.Position, Label: v.Label})
		}
	}
	return out, nil
}

// Close releases the model if the Evaluator owns it.
func (e *Evaluator) Close() error {
	var errs []error

	if e.owned != nil {
		if err := e.owned.Close(); err != nil {
			errs = append(errs, err)
		}
		e.owned = nil
	}

	return errors.Join(errs...)
}

// LabelCounts returns how often each label occurs among the verbs of c.
func LabelCounts(c *corpus.Corpus) map[string]int {
	return lo.CountValues(c.LabelOccurrences())
}
