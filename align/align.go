// Package align maps a padded prediction tensor back onto the verb tokens of
// the corpus it was computed from.
package align

import (
	"errors"
	"fmt"

	"github.com/jamesainslie/go-metaphor/corpus"
	"github.com/jamesainslie/go-metaphor/labels"
	"github.com/jamesainslie/go-metaphor/records"
	"github.com/jamesainslie/go-metaphor/tensor"
)

var (
	// ErrPositionOutOfRange is wrapped by every AlignmentError.
	ErrPositionOutOfRange = errors.New("align: verb position beyond maximum sentence length")

	// ErrShapeMismatch indicates a tensor that does not fit the corpus or label set.
	ErrShapeMismatch = errors.New("align: tensor does not match corpus")
)

// AlignmentError reports a verb token that cannot be scored because it lies
// at or beyond the model's fixed input length.
type AlignmentError struct {
	SentenceID string
	Position   int
	MaxLength  int
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("align: sentence %s: verb position %d >= max length %d", e.SentenceID, e.Position, e.MaxLength)
}

func (e *AlignmentError) Unwrap() error {
	return ErrPositionOutOfRange
}

// Key returns the records key of the dropped token.
func (e *AlignmentError) Key() records.Key {
	return records.Key{SentenceID: e.SentenceID, Position: e.Position}
}

// Result holds the aligned prediction rows and the tokens that were dropped.
type Result struct {
	Records []records.Record
	Dropped []*AlignmentError
}

// DroppedKeys returns the keys of dropped tokens.
func (r Result) DroppedKeys() []records.Key {
	keys := make([]records.Key, len(r.Dropped))
	for i, d := range r.Dropped {
		keys[i] = d.Key()
	}
	return keys
}

// Align emits one record per verb token, in corpus order, labeled with the
// arg-max of the tensor row at the verb's position. Sentence i of the corpus
// reads sentence i of the tensor. Rows are truncated to maxLength; verbs at or
// beyond it are reported in Result.Dropped and produce no record.
func Align(c *corpus.Corpus, t *tensor.Tensor, maxLength int, set labels.Set) (Result, error) {
	if maxLength <= 0 {
		return Result{}, fmt.Errorf("%w: max length %d", ErrShapeMismatch, maxLength)
	}
	if t.Len() != len(c.Sentences) {
		return Result{}, fmt.Errorf("%w: %d predicted sentences for %d corpus sentences",
			ErrShapeMismatch, t.Len(), len(c.Sentences))
	}
	if t.NumLabels != set.Len() {
		return Result{}, fmt.Errorf("%w: tensor has %d labels, label set has %d",
			ErrShapeMismatch, t.NumLabels, set.Len())
	}

	limit := min(maxLength, t.MaxLen)
	res := Result{Records: make([]records.Record, 0, c.NumVerbs())}

	for i, s := range c.Sentences {
		for _, v := range s.Verbs {
			if v.Position < 0 || v.Position >= len(s.Tokens) {
				return Result{}, fmt.Errorf("%w: sentence %s: verb position %d outside %d tokens",
					corpus.ErrInvalidCorpus, s.ID, v.Position, len(s.Tokens))
			}
			if v.Position >= limit {
				res.Dropped = append(res.Dropped, &AlignmentError{
					SentenceID: s.ID,
					Position:   v.Position,
					MaxLength:  limit,
				})
				continue
			}

			label := labels.ArgMax(t.Scores(i, v.Position))
			res.Records = append(res.Records, records.Record{
				SentenceID: s.ID,
				Position:   v.Position,
				Label:      set.Name(label),
			})
		}
	}
	return res, nil
}
