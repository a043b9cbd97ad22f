package align

import (
	"errors"
	"fmt"
	"slices"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/jamesainslie/go-metaphor/corpus"
	"github.com/jamesainslie/go-metaphor/labels"
	"github.com/jamesainslie/go-metaphor/records"
	"github.com/jamesainslie/go-metaphor/tensor"
)

// uniformTensor returns a tensor whose every row predicts label.
func uniformTensor(sentences, maxLen, label int) *tensor.Tensor {
	t := &tensor.Tensor{MaxLen: maxLen, NumLabels: 2}
	for i := 0; i < sentences; i++ {
		m := mat.NewDense(maxLen, 2, nil)
		for r := 0; r < maxLen; r++ {
			m.Set(r, label, 0.9)
			m.Set(r, 1-label, 0.1)
		}
		t.Sentences = append(t.Sentences, m)
	}
	return t
}

func tokens(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("w%d", i)
	}
	return out
}

func TestAlign(t *testing.T) {
	set := labels.Default()
	c := &corpus.Corpus{Sentences: []corpus.Sentence{
		{ID: "A", Tokens: tokens(6), Verbs: []corpus.VerbToken{{Position: 2}, {Position: 5}}},
		{ID: "B", Tokens: tokens(3), Verbs: []corpus.VerbToken{{Position: 1}}},
	}}

	tt := uniformTensor(2, 8, 0)
	// A.2 -> metaphor, A.5 -> metaphor, B.1 -> literal
	tt.Sentences[0].SetRow(2, []float64{0.2, 0.8})
	tt.Sentences[0].SetRow(5, []float64{0.4, 0.6})
	// Non-verb position with a metaphor score must be ignored.
	tt.Sentences[1].SetRow(0, []float64{0, 1})

	res, err := Align(c, tt, 8, set)
	if err != nil {
		t.Fatalf("Align() error = %v", err)
	}

	want := []records.Record{
		{SentenceID: "A", Position: 2, Label: labels.Metaphor},
		{SentenceID: "A", Position: 5, Label: labels.Metaphor},
		{SentenceID: "B", Position: 1, Label: labels.Literal},
	}
	if !slices.Equal(res.Records, want) {
		t.Errorf("Records = %+v, want %+v", res.Records, want)
	}
	if len(res.Dropped) != 0 {
		t.Errorf("Dropped = %v, want none", res.Dropped)
	}
}

func TestAlign_OnlyVerbTokensInCorpusOrder(t *testing.T) {
	set := labels.Default()
	c := &corpus.Corpus{}
	for i := 0; i < 100; i++ {
		s := corpus.Sentence{ID: fmt.Sprintf("s%03d", i), Tokens: tokens(12)}
		if i%10 == 0 {
			s.Verbs = []corpus.VerbToken{{Position: i % 12}}
		}
		c.Sentences = append(c.Sentences, s)
	}

	res, err := Align(c, uniformTensor(100, 20, 1), 20, set)
	if err != nil {
		t.Fatalf("Align() error = %v", err)
	}
	if len(res.Records) != 10 {
		t.Fatalf("got %d records, want 10", len(res.Records))
	}
	for i, r := range res.Records {
		wantID := fmt.Sprintf("s%03d", i*10)
		if r.SentenceID != wantID || r.Position != (i*10)%12 {
			t.Errorf("record %d = %+v, want sentence %s position %d", i, r, wantID, (i*10)%12)
		}
	}
}

func TestAlign_PositionBeyondMaxLength(t *testing.T) {
	set := labels.Default()
	c := &corpus.Corpus{Sentences: []corpus.Sentence{
		{ID: "long", Tokens: tokens(60), Verbs: []corpus.VerbToken{{Position: 3}, {Position: 50}, {Position: 59}}},
	}}

	res, err := Align(c, uniformTensor(1, 50, 1), 50, set)
	if err != nil {
		t.Fatalf("Align() error = %v", err)
	}
	if len(res.Records) != 1 || res.Records[0].Position != 3 {
		t.Errorf("Records = %+v, want only position 3", res.Records)
	}
	if len(res.Dropped) != 2 {
		t.Fatalf("Dropped = %d, want 2", len(res.Dropped))
	}

	var alignErr *AlignmentError
	if !errors.As(error(res.Dropped[0]), &alignErr) || alignErr.Position != 50 || alignErr.MaxLength != 50 {
		t.Errorf("first drop = %+v", res.Dropped[0])
	}
	if !errors.Is(res.Dropped[1], ErrPositionOutOfRange) {
		t.Errorf("drop should wrap ErrPositionOutOfRange")
	}

	keys := res.DroppedKeys()
	want := []records.Key{{SentenceID: "long", Position: 50}, {SentenceID: "long", Position: 59}}
	if !slices.Equal(keys, want) {
		t.Errorf("DroppedKeys() = %v, want %v", keys, want)
	}
}

func TestAlign_TruncatesToSmallerTensor(t *testing.T) {
	set := labels.Default()
	c := &corpus.Corpus{Sentences: []corpus.Sentence{
		{ID: "s", Tokens: tokens(10), Verbs: []corpus.VerbToken{{Position: 4}}},
	}}

	res, err := Align(c, uniformTensor(1, 4, 0), 50, set)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Dropped) != 1 || res.Dropped[0].MaxLength != 4 {
		t.Errorf("Dropped = %+v, want one drop at max length 4", res.Dropped)
	}
}

func TestAlign_TieBreak(t *testing.T) {
	set := labels.Default()
	c := &corpus.Corpus{Sentences: []corpus.Sentence{
		{ID: "s", Tokens: tokens(2), Verbs: []corpus.VerbToken{{Position: 0}}},
	}}
	tt := uniformTensor(1, 2, 1)
	tt.Sentences[0].SetRow(0, []float64{0.5, 0.5})

	res, err := Align(c, tt, 2, set)
	if err != nil {
		t.Fatal(err)
	}
	if res.Records[0].Label != labels.Literal {
		t.Errorf("tie resolved to %s, want %s", res.Records[0].Label, labels.Literal)
	}
}

func TestAlign_Errors(t *testing.T) {
	set := labels.Default()
	c := &corpus.Corpus{Sentences: []corpus.Sentence{
		{ID: "s", Tokens: tokens(3), Verbs: []corpus.VerbToken{{Position: 1}}},
	}}

	tests := []struct {
		name    string
		c       *corpus.Corpus
		tensor  *tensor.Tensor
		maxLen  int
		wantErr error
	}{
		{"sentence count", c, uniformTensor(2, 5, 0), 5, ErrShapeMismatch},
		{"zero max length", c, uniformTensor(1, 5, 0), 0, ErrShapeMismatch},
		{"label count", c, &tensor.Tensor{Sentences: []*mat.Dense{mat.NewDense(5, 3, nil)}, MaxLen: 5, NumLabels: 3}, 5, ErrShapeMismatch},
		{
			"verb outside sentence",
			&corpus.Corpus{Sentences: []corpus.Sentence{{ID: "s", Tokens: tokens(1), Verbs: []corpus.VerbToken{{Position: 2}}}}},
			uniformTensor(1, 5, 0), 5, corpus.ErrInvalidCorpus,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Align(tt.c, tt.tensor, tt.maxLen, set)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Align() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
