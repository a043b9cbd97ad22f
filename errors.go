package metaphor

import "errors"

// Sentinel errors for conditions callers may need to handle differently.
var (
	// ErrConfiguration indicates invalid evaluation parameters, such as a
	// smoothing factor outside [0, 1] or a label set the model cannot produce.
	ErrConfiguration = errors.New("metaphor: invalid configuration")

	// ErrModelNotFound indicates the model file does not exist.
	ErrModelNotFound = errors.New("metaphor: model file not found")

	// ErrInvalidModel indicates the model file exists but cannot be loaded.
	ErrInvalidModel = errors.New("metaphor: invalid model")
)
