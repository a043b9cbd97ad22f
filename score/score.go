// Package score computes corpus-level precision, recall and F1 of predicted
// verb labels against gold labels.
package score

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/jamesainslie/go-metaphor/labels"
	"github.com/jamesainslie/go-metaphor/objective"
	"github.com/jamesainslie/go-metaphor/records"
)

// ErrGoldPredictionMismatch is wrapped by MismatchError.
var ErrGoldPredictionMismatch = errors.New("score: gold and prediction keys differ")

// MismatchError lists the keys that prevent a trustworthy join.
type MismatchError struct {
	MissingPredictions []records.Key // gold rows without a prediction
	MissingGold        []records.Key // prediction rows without a gold label
	Duplicates         []records.Key // keys appearing more than once in one file
}

func (e *MismatchError) Error() string {
	var parts []string
	add := func(what string, keys []records.Key) {
		if len(keys) == 0 {
			return
		}
		parts = append(parts, fmt.Sprintf("%d %s (first: %s)", len(keys), what, keyList(keys, 5)))
	}
	add("gold tokens without prediction", e.MissingPredictions)
	add("predictions without gold token", e.MissingGold)
	add("duplicate keys", e.Duplicates)
	return "score: gold/prediction mismatch: " + strings.Join(parts, "; ")
}

func (e *MismatchError) Unwrap() error {
	return ErrGoldPredictionMismatch
}

func keyList(keys []records.Key, n int) string {
	shown := lo.Map(keys[:min(n, len(keys))], func(k records.Key, _ int) string { return k.String() })
	return strings.Join(shown, ", ")
}

// Averaging selects how per-label scores combine into the report.
type Averaging int

const (
	// Binary scores the positive label only.
	Binary Averaging = iota

	// Macro averages precision, recall and F1 over every label.
	Macro
)

func (a Averaging) String() string {
	switch a {
	case Binary:
		return "binary"
	case Macro:
		return "macro"
	default:
		return fmt.Sprintf("Averaging(%d)", int(a))
	}
}

// ParseAveraging parses "binary" or "macro".
func ParseAveraging(s string) (Averaging, error) {
	switch strings.ToLower(s) {
	case "binary", "":
		return Binary, nil
	case "macro":
		return Macro, nil
	default:
		return 0, fmt.Errorf("score: unknown averaging %q", s)
	}
}

// Config holds scoring parameters.
type Config struct {
	Labels    labels.Set
	Averaging Averaging

	// Excluded keys are removed from both sides before the join and counted
	// in Report.Dropped. Used for tokens the aligner could not score.
	Excluded []records.Key
}

// LabelScore holds one-vs-rest scores for a single label.
type LabelScore struct {
	Counts    objective.Counts
	Precision float64
	Recall    float64
	F1        float64
	Support   int // gold occurrences
}

// Report is the result of one evaluation run.
type Report struct {
	Averaging     Averaging
	PositiveLabel string

	Precision float64
	Recall    float64
	F1        float64

	// Counts against the positive label.
	TruePositives  int
	FalsePositives int
	FalseNegatives int
	TrueNegatives  int

	Scored   int // joined tokens
	Dropped  int // excluded gold tokens
	PerLabel map[string]LabelScore
}

func (r *Report) String() string {
	s := fmt.Sprintf("precision=%.4f recall=%.4f f1=%.4f (tp=%d fp=%d fn=%d tn=%d, scored=%d",
		r.Precision, r.Recall, r.F1, r.TruePositives, r.FalsePositives, r.FalseNegatives, r.TrueNegatives, r.Scored)
	if r.Dropped > 0 {
		s += fmt.Sprintf(", dropped=%d", r.Dropped)
	}
	return s + ")"
}

// Score joins predictions and gold on (sentence id, position) and scores the
// predicted labels. Every gold row must have exactly one prediction and vice
// versa, otherwise a *MismatchError is returned and no report is produced.
func Score(predictions, gold []records.Record, cfg Config) (*Report, error) {
	if !cfg.Labels.Valid() {
		return nil, labels.ErrInvalidLabelSet
	}

	excluded := make(map[records.Key]bool, len(cfg.Excluded))
	for _, k := range cfg.Excluded {
		excluded[k] = true
	}

	var mismatch MismatchError
	predicted := make(map[records.Key]string, len(predictions))
	for _, p := range predictions {
		k := p.Key()
		if excluded[k] {
			continue
		}
		if _, dup := predicted[k]; dup {
			mismatch.Duplicates = append(mismatch.Duplicates, k)
			continue
		}
		predicted[k] = p.Label
	}

	n := cfg.Labels.Len()
	perLabel := make([]objective.Counts, n)
	support := make([]int, n)
	seen := make(map[records.Key]bool, len(gold))
	var dropped, scored int

	for _, g := range gold {
		k := g.Key()
		if seen[k] {
			mismatch.Duplicates = append(mismatch.Duplicates, k)
			continue
		}
		seen[k] = true
		if excluded[k] {
			dropped++
			continue
		}

		p, ok := predicted[k]
		if !ok {
			mismatch.MissingPredictions = append(mismatch.MissingPredictions, k)
			continue
		}
		ti, ok := cfg.Labels.Index(g.Label)
		if !ok {
			return nil, fmt.Errorf("%w: gold %s: unknown label %q", records.ErrMalformed, k, g.Label)
		}
		pi, ok := cfg.Labels.Index(p)
		if !ok {
			return nil, fmt.Errorf("%w: prediction %s: unknown label %q", records.ErrMalformed, k, p)
		}

		support[ti]++
		for l := range perLabel {
			perLabel[l].Observe(ti, pi, l)
		}
		scored++
	}

	for _, p := range predictions {
		if k := p.Key(); !seen[k] && !excluded[k] {
			mismatch.MissingGold = append(mismatch.MissingGold, k)
		}
	}

	if len(mismatch.MissingPredictions)+len(mismatch.MissingGold)+len(mismatch.Duplicates) > 0 {
		return nil, &mismatch
	}

	return buildReport(cfg, perLabel, support, scored, dropped), nil
}

func buildReport(cfg Config, perLabel []objective.Counts, support []int, scored, dropped int) *Report {
	pos := cfg.Labels.Positive()
	c := perLabel[pos]

	r := &Report{
		Averaging:      cfg.Averaging,
		PositiveLabel:  cfg.Labels.PositiveName(),
		TruePositives:  c.TruePositives,
		FalsePositives: c.FalsePositives,
		FalseNegatives: c.FalseNegatives,
		TrueNegatives:  c.TrueNegatives,
		Scored:         scored,
		Dropped:        dropped,
		PerLabel:       make(map[string]LabelScore, len(perLabel)),
	}

	for l, lc := range perLabel {
		r.PerLabel[cfg.Labels.Name(l)] = LabelScore{
			Counts:    lc,
			Precision: lc.Precision(),
			Recall:    lc.Recall(),
			F1:        lc.F1(),
			Support:   support[l],
		}
	}

	switch cfg.Averaging {
	case Macro:
		n := float64(len(perLabel))
		for _, lc := range perLabel {
			r.Precision += lc.Precision() / n
			r.Recall += lc.Recall() / n
			r.F1 += lc.F1() / n
		}
	default:
		r.Precision = c.Precision()
		r.Recall = c.Recall()
		r.F1 = c.F1()
	}
	return r
}
