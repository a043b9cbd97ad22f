package main

import (
	"fmt"
	"io"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/go-metaphor/score"
)

func (c *CLI) newScoreCommand() *cobra.Command {
	var predictions, gold string

	cmd := &cobra.Command{
		Use:     "score",
		Short:   "Score a predictions table against a gold table",
		Example: `  metaphor score --predictions predictions.csv --gold verb_tokens_test_gold_labels.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.settings(cmd)
			if err != nil {
				return err
			}

			report, err := score.ScoreFiles(score.Files{
				Predictions:       predictions,
				PredictionsFormat: s.Config.PredictionsFormat,
				Gold:              gold,
				GoldFormat:        s.Config.GoldFormat,
			}, score.Config{
				Labels:    s.Config.Labels,
				Averaging: s.Config.Averaging,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Scored: %s\n", humanize.Comma(int64(report.Scored)))
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}

	cmd.Flags().StringVar(&predictions, "predictions", "predictions.csv", "Predictions table")
	cmd.Flags().StringVar(&gold, "gold", "", "Gold label table")
	_ = cmd.MarkFlagRequired("gold")
	return cmd
}

// printReport prints the headline scores and a per-label breakdown.
func printReport(w io.Writer, r *score.Report) {
	fmt.Fprintf(w, "Averaging: %s (positive label %q)\n", r.Averaging, r.PositiveLabel)
	fmt.Fprintf(w, "Precision: %.4f  Recall: %.4f  F1: %.4f\n", r.Precision, r.Recall, r.F1)
	fmt.Fprintf(w, "TP: %s  FP: %s  FN: %s  TN: %s\n",
		humanize.Comma(int64(r.TruePositives)),
		humanize.Comma(int64(r.FalsePositives)),
		humanize.Comma(int64(r.FalseNegatives)),
		humanize.Comma(int64(r.TrueNegatives)))

	if len(r.PerLabel) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%10s  %6s  %6s  %6s  %8s\n", "label", "prec", "recall", "f1", "support")
	for _, name := range sortedLabels(r) {
		ls := r.PerLabel[name]
		fmt.Fprintf(w, "%10s  %5.1f%%  %5.1f%%  %5.1f%%  %8s\n",
			name, ls.Precision*100, ls.Recall*100, ls.F1*100, humanize.Comma(int64(ls.Support)))
	}
}

func sortedLabels(r *score.Report) []string {
	names := lo.Keys(r.PerLabel)
	slices.Sort(names)
	return names
}
