// Package cliconfig merges command-line flags, METAPHOR_* environment
// variables and an optional YAML file into evaluation settings.
package cliconfig

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jamesainslie/go-metaphor"
	"github.com/jamesainslie/go-metaphor/labels"
	"github.com/jamesainslie/go-metaphor/objective"
	"github.com/jamesainslie/go-metaphor/records"
	"github.com/jamesainslie/go-metaphor/score"
)

// EnvPrefix prefixes every environment variable, e.g. METAPHOR_BATCH_SIZE.
const EnvPrefix = "METAPHOR"

// Keys, as used in the config file. Flags use the same names with dashes.
const (
	KeyMaxSentenceLength = "max_sentence_length"
	KeyEmbeddingDim      = "embedding_dim"
	KeyBatchSize         = "batch_size"
	KeyWeightSmoothing   = "weight_smoothing"
	KeyPoolSize          = "pool_size"
	KeyLabels            = "labels"
	KeyPositiveLabel     = "positive_label"
	KeyAveraging         = "averaging"
	KeyAggregation       = "aggregation"
	KeyPredictionsFormat = "predictions_format"
	KeyGoldFormat        = "gold_format"
	KeyRuntimeLibrary    = "runtime_library"
)

// Settings is the resolved CLI configuration.
type Settings struct {
	Config         metaphor.Config
	RuntimeLibrary string
}

// Options returns the evaluator options for s.
func (s Settings) Options() []metaphor.Option {
	return []metaphor.Option{
		metaphor.WithConfig(s.Config),
		metaphor.WithRuntimeLibrary(s.RuntimeLibrary),
	}
}

func flagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

// RegisterFlags adds one flag per key to fs, defaulting to
// metaphor.DefaultConfig.
func RegisterFlags(fs *pflag.FlagSet) {
	d := metaphor.DefaultConfig()

	fs.Int(flagName(KeyMaxSentenceLength), d.MaxSentenceLength, "Model input length; longer sentences are truncated")
	fs.Int(flagName(KeyEmbeddingDim), d.EmbeddingDim, "Token embedding dimension")
	fs.Int(flagName(KeyBatchSize), d.BatchSize, "Sentences per model call")
	fs.Float64(flagName(KeyWeightSmoothing), d.WeightSmoothing, "Class weight smoothing in [0, 1]")
	fs.Int(flagName(KeyPoolSize), d.PoolSize, "Concurrent model sessions")
	fs.String(flagName(KeyLabels), strings.Join(d.Labels.Names(), ","), "Comma-separated labels in model output order")
	fs.String(flagName(KeyPositiveLabel), d.Labels.PositiveName(), "Label scored as the positive class")
	fs.String(flagName(KeyAveraging), d.Averaging.String(), "Scoring policy: binary or macro")
	fs.String(flagName(KeyAggregation), d.Aggregation.String(), "Model F1 aggregation: running or batch")
	fs.String(flagName(KeyPredictionsFormat), d.PredictionsFormat.String(), "Predictions table layout: triple or vuamc")
	fs.String(flagName(KeyGoldFormat), d.GoldFormat.String(), "Gold table layout: triple or vuamc")
	fs.String(flagName(KeyRuntimeLibrary), "", "Path to the onnxruntime shared library")
}

// Load resolves settings with precedence flags (when changed) over
// environment over config file over defaults. configFile may be empty.
func Load(fs *pflag.FlagSet, configFile string) (Settings, error) {
	v := viper.New()

	d := metaphor.DefaultConfig()
	v.SetDefault(KeyMaxSentenceLength, d.MaxSentenceLength)
	v.SetDefault(KeyEmbeddingDim, d.EmbeddingDim)
	v.SetDefault(KeyBatchSize, d.BatchSize)
	v.SetDefault(KeyWeightSmoothing, d.WeightSmoothing)
	v.SetDefault(KeyPoolSize, d.PoolSize)
	v.SetDefault(KeyLabels, strings.Join(d.Labels.Names(), ","))
	v.SetDefault(KeyPositiveLabel, d.Labels.PositiveName())
	v.SetDefault(KeyAveraging, d.Averaging.String())
	v.SetDefault(KeyAggregation, d.Aggregation.String())
	v.SetDefault(KeyPredictionsFormat, d.PredictionsFormat.String())
	v.SetDefault(KeyGoldFormat, d.GoldFormat.String())
	v.SetDefault(KeyRuntimeLibrary, "")

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		var errs []error
		fs.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if isKey(key) {
				errs = append(errs, v.BindPFlag(key, f))
			}
		})
		if err := errors.Join(errs...); err != nil {
			return Settings{}, fmt.Errorf("binding flags: %w", err)
		}
	}

	var cfg metaphor.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Settings{}, fmt.Errorf("decoding config: %w", err)
	}

	set, err := labels.New(splitList(v.GetString(KeyLabels)), strings.TrimSpace(v.GetString(KeyPositiveLabel)))
	if err != nil {
		return Settings{}, fmt.Errorf("%w: %w", metaphor.ErrConfiguration, err)
	}
	cfg.Labels = set

	if cfg.Averaging, err = score.ParseAveraging(v.GetString(KeyAveraging)); err != nil {
		return Settings{}, fmt.Errorf("%w: %w", metaphor.ErrConfiguration, err)
	}
	if cfg.Aggregation, err = objective.ParseAggregation(v.GetString(KeyAggregation)); err != nil {
		return Settings{}, fmt.Errorf("%w: %w", metaphor.ErrConfiguration, err)
	}
	if cfg.PredictionsFormat, err = records.ParseFormat(v.GetString(KeyPredictionsFormat)); err != nil {
		return Settings{}, fmt.Errorf("%w: %w", metaphor.ErrConfiguration, err)
	}
	if cfg.GoldFormat, err = records.ParseFormat(v.GetString(KeyGoldFormat)); err != nil {
		return Settings{}, fmt.Errorf("%w: %w", metaphor.ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return Settings{}, err
	}

	return Settings{
		Config:         cfg,
		RuntimeLibrary: v.GetString(KeyRuntimeLibrary),
	}, nil
}

func isKey(key string) bool {
	switch key {
	case KeyMaxSentenceLength, KeyEmbeddingDim, KeyBatchSize, KeyWeightSmoothing, KeyPoolSize,
		KeyLabels, KeyPositiveLabel, KeyAveraging, KeyAggregation,
		KeyPredictionsFormat, KeyGoldFormat, KeyRuntimeLibrary:
		return true
	}
	return false
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
