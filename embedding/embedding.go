// Package embedding turns a corpus into the padded input batch and one-hot
// targets a sequence-labeling model is evaluated on.
package embedding

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"

	"golang.org/x/text/cases"
	"gonum.org/v1/gonum/mat"

	"github.com/jamesainslie/go-metaphor/corpus"
	"github.com/jamesainslie/go-metaphor/labels"
	"github.com/jamesainslie/go-metaphor/tensor"
)

// ErrDimension indicates a provider whose vectors do not match the configured size.
var ErrDimension = errors.New("embedding: vector dimension mismatch")

// Provider returns a fixed-dimension vector per token.
type Provider interface {
	Dim() int
	Vector(token string) []float32
}

// Dummy is a placeholder Provider. Each case-folded token maps to a
// deterministic pseudo-random vector in [-1, 1).
type Dummy struct {
	dim int
}

// NewDummy returns a Dummy provider of the given dimension.
func NewDummy(dim int) *Dummy {
	return &Dummy{dim: dim}
}

// Dim returns the vector dimension.
func (d *Dummy) Dim() int { return d.dim }

// Vector returns the vector for token.
func (d *Dummy) Vector(token string) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(cases.Fold().String(token))) // hash.Hash never returns an error
	seed := h.Sum64()

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	v := make([]float32, d.dim)
	for i := range v {
		v[i] = rng.Float32()*2 - 1
	}
	return v
}

// Encode builds the [sentences, maxLen, dim] model input and one target
// matrix of maxLen x len(set) per sentence. Sentences longer than maxLen are
// truncated; padding positions hold zero vectors. Target rows are one-hot at
// labeled verb positions below maxLen and zero everywhere else.
func Encode(c *corpus.Corpus, p Provider, maxLen int, set labels.Set) (*tensor.Input, []*mat.Dense, error) {
	if maxLen <= 0 {
		return nil, nil, fmt.Errorf("embedding: max length must be positive, got %d", maxLen)
	}
	dim := p.Dim()
	in := tensor.NewInput(len(c.Sentences), maxLen, dim)
	targets := make([]*mat.Dense, len(c.Sentences))

	for b, s := range c.Sentences {
		for pos, tok := range s.Tokens[:min(len(s.Tokens), maxLen)] {
			v := p.Vector(tok)
			if len(v) != dim {
				return nil, nil, fmt.Errorf("%w: token %q has %d values, want %d", ErrDimension, tok, len(v), dim)
			}
			copy(in.Vector(b, pos), v)
		}

		y := mat.NewDense(maxLen, set.Len(), nil)
		for _, verb := range s.Verbs {
			if verb.Position >= maxLen || verb.Label == "" {
				continue
			}
			l, ok := set.Index(verb.Label)
			if !ok {
				return nil, nil, fmt.Errorf("%w: sentence %s: unknown label %q", corpus.ErrInvalidCorpus, s.ID, verb.Label)
			}
			y.Set(verb.Position, l, 1)
		}
		targets[b] = y
	}
	return in, targets, nil
}
