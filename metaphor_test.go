package metaphor

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jamesainslie/go-metaphor/corpus"
	"github.com/jamesainslie/go-metaphor/embedding"
	"github.com/jamesainslie/go-metaphor/inference"
	"github.com/jamesainslie/go-metaphor/labels"
	"github.com/jamesainslie/go-metaphor/objective"
	"github.com/jamesainslie/go-metaphor/records"
	"github.com/jamesainslie/go-metaphor/score"
	"github.com/jamesainslie/go-metaphor/tensor"
)

const (
	lit = labels.Literal
	met = labels.Metaphor

	testMaxLen = 10
	testDim    = 8
)

// fakeModel predicts literal everywhere except at the listed
// (sentence index, position) pairs, where it predicts metaphor.
type fakeModel struct {
	metaphors map[[2]int]bool
	numLabels int
	err       error
	calls     int
}

func (m *fakeModel) Predict(_ context.Context, x *tensor.Input, _ int) (*tensor.Tensor, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	n := m.numLabels
	if n == 0 {
		n = 2
	}
	data := make([]float32, x.Batch*x.MaxLen*n)
	for b := 0; b < x.Batch; b++ {
		for p := 0; p < x.MaxLen; p++ {
			row := data[(b*x.MaxLen+p)*n : (b*x.MaxLen+p+1)*n]
			row[0] = 0.9
			row[1] = 0.1
			if m.metaphors[[2]int{b, p}] {
				row[0], row[1] = 0.2, 0.8
			}
		}
	}
	return tensor.FromFlat(data, x.Batch, x.MaxLen, n)
}

// signedModel adds a fixed signature to fakeModel.
type signedModel struct {
	fakeModel
	sig *inference.Signature
}

func (m *signedModel) Signature() *inference.Signature { return m.sig }

func tokens(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "w" + string(rune('a'+i))
	}
	return out
}

// scenarioCorpus: sentence A has verbs at 2 (metaphor) and 5 (literal),
// sentence B a verb at 1 (literal).
func scenarioCorpus() *corpus.Corpus {
	return &corpus.Corpus{Sentences: []corpus.Sentence{
		{ID: "txt_A", Tokens: tokens(7), Verbs: []corpus.VerbToken{{Position: 2, Label: met}, {Position: 5, Label: lit}}},
		{ID: "txt_B", Tokens: tokens(3), Verbs: []corpus.VerbToken{{Position: 1, Label: lit}}},
	}}
}

// scenarioModel predicts metaphor at A.2 and A.5.
func scenarioModel() *fakeModel {
	return &fakeModel{metaphors: map[[2]int]bool{{0, 2}: true, {0, 5}: true}}
}

func testOptions(extra ...Option) []Option {
	opts := []Option{
		WithMaxSentenceLength(testMaxLen),
		WithEmbeddingDim(testDim),
		WithBatchSize(4),
		WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))),
	}
	return append(opts, extra...)
}

func writeGold(t *testing.T, path string, recs []records.Record) {
	t.Helper()
	codec := records.Codec{Format: records.FormatVUAMC, Labels: labels.Default()}
	if err := codec.WriteFile(path, recs); err != nil {
		t.Fatalf("writing gold: %v", err)
	}
}

func checkScenarioReport(t *testing.T, r *score.Report) {
	t.Helper()
	if r.TruePositives != 1 || r.FalsePositives != 1 || r.FalseNegatives != 0 || r.TrueNegatives != 1 {
		t.Errorf("counts = tp %d fp %d fn %d tn %d, want 1 1 0 1",
			r.TruePositives, r.FalsePositives, r.FalseNegatives, r.TrueNegatives)
	}
	if r.Precision != 0.5 || r.Recall != 1 {
		t.Errorf("precision = %v recall = %v, want 0.5 1", r.Precision, r.Recall)
	}
	if math.Abs(r.F1-2.0/3.0) > 1e-12 {
		t.Errorf("F1 = %v, want 0.667", r.F1)
	}
}

func TestEvaluate_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	goldPath := filepath.Join(dir, "gold.csv")
	predPath := filepath.Join(dir, "predictions.csv")
	c := scenarioCorpus()

	gold, err := GoldRecords(c)
	if err != nil {
		t.Fatalf("GoldRecords failed: %v", err)
	}
	writeGold(t, goldPath, gold)

	ev, err := New(scenarioModel(), testOptions()...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = ev.Close() }()

	res, err := ev.Evaluate(context.Background(), c, goldPath, predPath)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	checkScenarioReport(t, res.Report)
	if res.Report.Dropped != 0 || len(res.Dropped) != 0 {
		t.Errorf("unexpected drops: %v", res.Dropped)
	}

	want := []records.Record{
		{SentenceID: "txt_A", Position: 2, Label: met},
		{SentenceID: "txt_A", Position: 5, Label: met},
		{SentenceID: "txt_B", Position: 1, Label: lit},
	}
	got, err := records.Codec{Format: records.FormatTriple, Labels: labels.Default()}.ReadFile(predPath)
	if err != nil {
		t.Fatalf("reading predictions: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("predictions file has %d rows, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] || res.Predictions[i] != want[i] {
			t.Errorf("row %d = %+v (file) %+v (result), want %+v", i, got[i], res.Predictions[i], want[i])
		}
	}

	// One metaphor, two literal: w(met) = 0.9*3 + 0.1, w(lit) = 0.9*1.5 + 0.1.
	if math.Abs(res.Weights[1]-2.8) > 1e-12 || math.Abs(res.Weights[0]-1.45) > 1e-12 {
		t.Errorf("weights = %v, want [1.45 2.8]", res.Weights)
	}

	// The model metric sees the same verb rows as the scorer.
	if res.ModelCounts.TruePositives != 1 || res.ModelCounts.FalsePositives != 1 || res.ModelCounts.TrueNegatives != 1 {
		t.Errorf("model counts = %+v", res.ModelCounts)
	}
	if math.Abs(res.ModelF1-2.0/3.0) > 1e-12 {
		t.Errorf("model F1 = %v, want 0.667", res.ModelF1)
	}

	wantLoss := (-2.8*math.Log(0.8) - 1.45*math.Log(0.2) - 1.45*math.Log(0.9)) / 3
	if math.Abs(res.Loss-wantLoss) > 1e-6 {
		t.Errorf("loss = %v, want %v", res.Loss, wantLoss)
	}
}

func TestEvaluate_GoldFromCorpus(t *testing.T) {
	ev, err := New(scenarioModel(), testOptions()...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	res, err := ev.Evaluate(context.Background(), scenarioCorpus(), "", "")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	checkScenarioReport(t, res.Report)
}

func TestEvaluate_DroppedTokens(t *testing.T) {
	dir := t.TempDir()
	goldPath := filepath.Join(dir, "gold.csv")
	predPath := filepath.Join(dir, "predictions.csv")

	// Verb A.5 lies beyond a max length of 4.
	c := scenarioCorpus()
	gold, _ := GoldRecords(c)
	writeGold(t, goldPath, gold)

	var logs bytes.Buffer
	ev, err := New(scenarioModel(),
		WithMaxSentenceLength(4),
		WithEmbeddingDim(testDim),
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	res, err := ev.Evaluate(context.Background(), c, goldPath, predPath)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if len(res.Dropped) != 1 || res.Dropped[0].SentenceID != "txt_A" || res.Dropped[0].Position != 5 {
		t.Fatalf("dropped = %v, want txt_A#5", res.Dropped)
	}
	if res.Report.Dropped != 1 || res.Report.Scored != 2 {
		t.Errorf("scored = %d dropped = %d, want 2 1", res.Report.Scored, res.Report.Dropped)
	}
	if res.Report.TruePositives != 1 || res.Report.FalsePositives != 0 || res.Report.TrueNegatives != 1 {
		t.Errorf("report = %v", res.Report)
	}
	if !strings.Contains(logs.String(), "level=WARN") || !strings.Contains(logs.String(), "txt_A") {
		t.Errorf("expected a warning for the dropped verb, got logs:\n%s", logs.String())
	}
}

func TestEvaluate_DroppedTokenMissingFromGold(t *testing.T) {
	dir := t.TempDir()
	goldPath := filepath.Join(dir, "gold.csv")

	// Gold omits A.5, which lies beyond a max length of 4.
	c := scenarioCorpus()
	gold, _ := GoldRecords(c)
	var kept []records.Record
	for _, g := range gold {
		if g.SentenceID != "txt_A" || g.Position != 5 {
			kept = append(kept, g)
		}
	}
	writeGold(t, goldPath, kept)

	ev, err := New(scenarioModel(),
		WithMaxSentenceLength(4),
		WithEmbeddingDim(testDim),
		WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	res, err := ev.Evaluate(context.Background(), c, goldPath, filepath.Join(dir, "predictions.csv"))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(res.Dropped) != 1 {
		t.Fatalf("dropped = %v, want one token", res.Dropped)
	}
	if res.Report.Dropped != 1 || res.Report.Scored != 2 {
		t.Errorf("scored = %d dropped = %d, want 2 1", res.Report.Scored, res.Report.Dropped)
	}
	if !strings.Contains(res.Report.String(), "dropped=1") {
		t.Errorf("report %q does not mention the dropped token", res.Report.String())
	}
}

func TestEvaluate_GoldMismatch(t *testing.T) {
	dir := t.TempDir()
	goldPath := filepath.Join(dir, "gold.csv")
	c := scenarioCorpus()

	gold, _ := GoldRecords(c)
	gold = append(gold, records.Record{SentenceID: "txt_C", Position: 0, Label: lit})
	writeGold(t, goldPath, gold)

	ev, err := New(scenarioModel(), testOptions()...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	res, err := ev.Evaluate(context.Background(), c, goldPath, filepath.Join(dir, "predictions.csv"))
	if !errors.Is(err, score.ErrGoldPredictionMismatch) {
		t.Fatalf("expected ErrGoldPredictionMismatch, got %v", err)
	}
	if res != nil {
		t.Error("expected no result on mismatch")
	}

	var mismatch *score.MismatchError
	if !errors.As(err, &mismatch) || len(mismatch.MissingPredictions) != 1 {
		t.Errorf("expected one missing prediction, got %v", err)
	}
}

func TestEvaluate_Aggregation(t *testing.T) {
	tests := []struct {
		name string
		agg  objective.Aggregation
		want float64
	}{
		// Batch size 1: the last batch holds only sentence B, a true negative.
		{"running", objective.Running, 2.0 / 3.0},
		{"per batch", objective.PerBatch, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := New(scenarioModel(), testOptions(WithBatchSize(1), WithAggregation(tt.agg))...)
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			res, err := ev.Evaluate(context.Background(), scenarioCorpus(), "", "")
			if err != nil {
				t.Fatalf("Evaluate failed: %v", err)
			}
			if math.Abs(res.ModelF1-tt.want) > 1e-12 {
				t.Errorf("model F1 = %v, want %v", res.ModelF1, tt.want)
			}
			// Scoring is corpus level regardless of metric aggregation.
			checkScenarioReport(t, res.Report)
		})
	}
}

func TestEvaluate_EmptyCorpus(t *testing.T) {
	m := scenarioModel()
	ev, err := New(m, testOptions()...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	res, err := ev.Evaluate(context.Background(), &corpus.Corpus{}, "", "")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if m.calls != 0 {
		t.Errorf("model called %d times for an empty corpus", m.calls)
	}
	if res.Report.Scored != 0 || res.Report.F1 != 0 {
		t.Errorf("report = %v", res.Report)
	}
}

func TestEvaluate_Errors(t *testing.T) {
	boom := errors.New("boom")

	t.Run("model failure", func(t *testing.T) {
		ev, err := New(&fakeModel{err: boom}, testOptions()...)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if _, err := ev.Evaluate(context.Background(), scenarioCorpus(), "", ""); !errors.Is(err, boom) {
			t.Errorf("expected model error, got %v", err)
		}
	})

	t.Run("label count mismatch", func(t *testing.T) {
		ev, err := New(&fakeModel{numLabels: 3}, testOptions()...)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if _, err := ev.Evaluate(context.Background(), scenarioCorpus(), "", ""); !errors.Is(err, ErrConfiguration) {
			t.Errorf("expected ErrConfiguration, got %v", err)
		}
	})

	t.Run("invalid corpus", func(t *testing.T) {
		ev, err := New(scenarioModel(), testOptions()...)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		c := scenarioCorpus()
		c.Sentences[1].Verbs[0].Position = 3
		if _, err := ev.Evaluate(context.Background(), c, "", ""); !errors.Is(err, corpus.ErrInvalidCorpus) {
			t.Errorf("expected ErrInvalidCorpus, got %v", err)
		}
	})

	t.Run("unlabeled corpus without gold file", func(t *testing.T) {
		ev, err := New(scenarioModel(), testOptions()...)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		c := scenarioCorpus()
		c.Sentences[1].Verbs[0].Label = ""
		if _, err := ev.Evaluate(context.Background(), c, "", ""); !errors.Is(err, corpus.ErrInvalidCorpus) {
			t.Errorf("expected ErrInvalidCorpus, got %v", err)
		}
	})

	t.Run("unwritable predictions", func(t *testing.T) {
		ev, err := New(scenarioModel(), testOptions()...)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		path := filepath.Join(t.TempDir(), "missing", "predictions.csv")
		if _, err := ev.Evaluate(context.Background(), scenarioCorpus(), "", path); err == nil {
			t.Error("expected error writing into a missing directory")
		}
		if _, statErr := os.Stat(path); !errors.Is(statErr, os.ErrNotExist) {
			t.Errorf("expected no predictions file, stat returned %v", statErr)
		}
	})
}

func TestNew_Configuration(t *testing.T) {
	threeLabels, err := labels.New([]string{"literal", "metaphor", "simile"}, "metaphor")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		model   inference.Model
		opts    []Option
		wantErr error
	}{
		{"smoothing above one", scenarioModel(), testOptions(WithWeightSmoothing(1.5)), objective.ErrInvalidSmoothing},
		{"negative smoothing", scenarioModel(), testOptions(WithWeightSmoothing(-0.1)), objective.ErrInvalidSmoothing},
		{"zero batch size", scenarioModel(), testOptions(WithBatchSize(0)), ErrConfiguration},
		{"zero max length", scenarioModel(), testOptions(WithMaxSentenceLength(0)), ErrConfiguration},
		{"empty label set", scenarioModel(), testOptions(WithLabels(labels.Set{})), labels.ErrInvalidLabelSet},
		{"embedding dimension", scenarioModel(), testOptions(WithEmbeddings(embedding.NewDummy(3))), embedding.ErrDimension},
		{"nil model", nil, testOptions(), ErrConfiguration},
		{
			"signature label count",
			&signedModel{sig: &inference.Signature{
				Inputs:  []inference.TensorInfo{{Name: "embeddings", Dims: []int64{-1, testMaxLen, testDim}}},
				Outputs: []inference.TensorInfo{{Name: "scores", Dims: []int64{-1, testMaxLen, 2}}},
			}},
			testOptions(WithLabels(threeLabels)),
			inference.ErrSignatureMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.model, tt.opts...)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if !errors.Is(err, ErrConfiguration) {
				t.Errorf("expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestNew_SignatureMatch(t *testing.T) {
	m := &signedModel{
		fakeModel: *scenarioModel(),
		sig: &inference.Signature{
			Inputs:  []inference.TensorInfo{{Name: "embeddings", Dims: []int64{-1, testMaxLen, testDim}}},
			Outputs: []inference.TensorInfo{{Name: "scores", Dims: []int64{-1, testMaxLen, 2}}},
		},
	}
	ev, err := New(m, testOptions()...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	res, err := ev.Evaluate(context.Background(), scenarioCorpus(), "", "")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	checkScenarioReport(t, res.Report)
}

func TestNewFromFile_ModelNotFound(t *testing.T) {
	_, err := NewFromFile("nonexistent/model.onnx", testOptions()...)
	if !errors.Is(err, ErrModelNotFound) {
		t.Errorf("expected ErrModelNotFound, got: %v", err)
	}
}

func TestNewFromFile_InvalidConfig(t *testing.T) {
	_, err := NewFromFile("nonexistent/model.onnx", testOptions(WithWeightSmoothing(2))...)
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected ErrConfiguration before touching the model, got: %v", err)
	}
}

func TestNewFromFile_InvalidModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.onnx")
	if err := os.WriteFile(path, []byte("not a model"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := NewFromFile(path, testOptions()...)
	if !errors.Is(err, ErrInvalidModel) {
		t.Errorf("expected ErrInvalidModel, got: %v", err)
	}
}

func TestLabelCounts(t *testing.T) {
	got := LabelCounts(scenarioCorpus())
	if got[met] != 1 || got[lit] != 2 {
		t.Errorf("LabelCounts() = %v", got)
	}
}
