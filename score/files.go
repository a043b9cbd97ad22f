package score

import (
	"fmt"

	"github.com/jamesainslie/go-metaphor/records"
)

// Files names the two label tables of a scoring run and their formats.
type Files struct {
	Predictions       string
	PredictionsFormat records.Format
	Gold              string
	GoldFormat        records.Format
}

// ScoreFiles reads both tables and scores them with Score.
func ScoreFiles(files Files, cfg Config) (*Report, error) {
	pred, err := records.Codec{Format: files.PredictionsFormat, Labels: cfg.Labels}.ReadFile(files.Predictions)
	if err != nil {
		return nil, fmt.Errorf("reading predictions: %w", err)
	}
	gold, err := records.Codec{Format: files.GoldFormat, Labels: cfg.Labels}.ReadFile(files.Gold)
	if err != nil {
		return nil, fmt.Errorf("reading gold: %w", err)
	}
	return Score(pred, gold, cfg)
}
