// Package corpus models sentences with designated verb tokens, the
// classification targets of metaphor detection.
package corpus

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/jamesainslie/go-metaphor/labels"
)

// ErrInvalidCorpus indicates a corpus that violates its structural invariants.
var ErrInvalidCorpus = errors.New("corpus: invalid corpus")

// VerbToken is a target token within a sentence.
type VerbToken struct {
	Position int    // 0-based token index in the sentence
	Label    string // gold label; empty when the corpus is unlabeled
}

// Sentence is an ordered token sequence with its verb tokens.
type Sentence struct {
	ID     string
	Tokens []string
	Verbs  []VerbToken
}

// Corpus is an ordered sequence of sentences. It is read-only once built.
type Corpus struct {
	Sentences []Sentence
}

// LabelOccurrences returns every gold verb label in corpus order.
func (c *Corpus) LabelOccurrences() []string {
	var out []string
	for _, s := range c.Sentences {
		for _, v := range s.Verbs {
			if v.Label != "" {
				out = append(out, v.Label)
			}
		}
	}
	return out
}

// NumVerbs returns the number of verb tokens in the corpus.
func (c *Corpus) NumVerbs() int {
	return lo.SumBy(c.Sentences, func(s Sentence) int { return len(s.Verbs) })
}

// NumTokens returns the number of tokens in the corpus.
func (c *Corpus) NumTokens() int {
	return lo.SumBy(c.Sentences, func(s Sentence) int { return len(s.Tokens) })
}

// Validate checks that sentence ids are unique, that verb positions lie inside
// their sentence and are strictly increasing, and, when requireLabels is set,
// that every verb carries a label from set.
func (c *Corpus) Validate(set labels.Set, requireLabels bool) error {
	ids := lo.Map(c.Sentences, func(s Sentence, _ int) string { return s.ID })
	if dups := lo.FindDuplicates(ids); len(dups) > 0 {
		return fmt.Errorf("%w: duplicate sentence ids %v", ErrInvalidCorpus, dups)
	}

	for _, s := range c.Sentences {
		if s.ID == "" {
			return fmt.Errorf("%w: sentence without id", ErrInvalidCorpus)
		}
		if strings.TrimSpace(s.ID) != s.ID {
			return fmt.Errorf("%w: sentence id %q has surrounding whitespace", ErrInvalidCorpus, s.ID)
		}
		prev := -1
		for _, v := range s.Verbs {
			if v.Position < 0 || v.Position >= len(s.Tokens) {
				return fmt.Errorf("%w: sentence %s: verb position %d outside %d tokens",
					ErrInvalidCorpus, s.ID, v.Position, len(s.Tokens))
			}
			if v.Position <= prev {
				return fmt.Errorf("%w: sentence %s: verb positions not increasing at %d",
					ErrInvalidCorpus, s.ID, v.Position)
			}
			prev = v.Position

			if v.Label == "" {
				if requireLabels {
					return fmt.Errorf("%w: sentence %s: verb %d has no label", ErrInvalidCorpus, s.ID, v.Position)
				}
				continue
			}
			if _, ok := set.Index(v.Label); !ok {
				return fmt.Errorf("%w: sentence %s: verb %d has unknown label %q",
					ErrInvalidCorpus, s.ID, v.Position, v.Label)
			}
		}
	}
	return nil
}
