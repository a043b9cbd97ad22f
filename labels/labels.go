// Package labels defines the ordered label set shared by weighting, loss,
// metric and output encoding, and the arg-max decision every component uses
// to turn a score vector into a hard label.
package labels

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/floats"
)

// ErrInvalidLabelSet indicates a label set that cannot be used for scoring.
var ErrInvalidLabelSet = errors.New("labels: invalid label set")

// Default label names used by the metaphor detection task.
const (
	Literal  = "literal"
	Metaphor = "metaphor"
)

// Set is an ordered, fixed set of label names. The position of a name is its
// label index in model output, class weights and VUAMC label files.
type Set struct {
	names    []string
	index    map[string]int
	positive int
}

// New creates a label set from ordered names. positive names the label that
// counts as the positive class for binary scoring.
func New(names []string, positive string) (Set, error) {
	if len(names) < 2 {
		return Set{}, fmt.Errorf("%w: need at least 2 labels, got %d", ErrInvalidLabelSet, len(names))
	}
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			return Set{}, fmt.Errorf("%w: empty label name", ErrInvalidLabelSet)
		}
		if strings.ContainsAny(n, ",\n\r") {
			return Set{}, fmt.Errorf("%w: label %q contains a delimiter", ErrInvalidLabelSet, n)
		}
	}
	if dups := lo.FindDuplicates(names); len(dups) > 0 {
		return Set{}, fmt.Errorf("%w: duplicate labels %v", ErrInvalidLabelSet, dups)
	}

	index := make(map[string]int, len(names))
	for i, n := range names {
		index[n] = i
	}
	pos, ok := index[positive]
	if !ok {
		return Set{}, fmt.Errorf("%w: positive label %q not in %v", ErrInvalidLabelSet, positive, names)
	}

	return Set{
		names:    append([]string(nil), names...),
		index:    index,
		positive: pos,
	}, nil
}

// Default returns the {literal, metaphor} set with metaphor as positive class.
func Default() Set {
	s, err := New([]string{Literal, Metaphor}, Metaphor)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of labels.
func (s Set) Len() int { return len(s.names) }

// Names returns a copy of the label names in index order.
func (s Set) Names() []string { return append([]string(nil), s.names...) }

// Name returns the label name at index i.
func (s Set) Name(i int) string { return s.names[i] }

// Index returns the index of a label name.
func (s Set) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Positive returns the index of the positive label.
func (s Set) Positive() int { return s.positive }

// PositiveName returns the name of the positive label.
func (s Set) PositiveName() string { return s.names[s.positive] }

// Valid reports whether the set was built by New.
func (s Set) Valid() bool { return len(s.names) >= 2 }

// ArgMax returns the index of the largest score. Ties go to the lowest index.
// It returns -1 for an empty slice.
func ArgMax(scores []float64) int {
	if len(scores) == 0 {
		return -1
	}
	return floats.MaxIdx(scores)
}
