package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/go-metaphor"
	"github.com/jamesainslie/go-metaphor/vuamc"
)

func (c *CLI) newEvaluateCommand() *cobra.Command {
	var (
		modelPath   string
		corpusPath  string
		verbsPath   string
		mode        string
		goldPath    string
		predictions string
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run a model over a VUAMC corpus, write its predictions and score them",
		Example: `  metaphor evaluate --model naacl_metaphor.onnx \
    --corpus source/vuamc_corpus_test.csv --verbs source/verb_tokens_test.csv \
    --gold source/verb_tokens_test_gold_labels.csv --predictions predictions.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.settings(cmd)
			if err != nil {
				return err
			}
			m, err := vuamc.ParseMode(mode)
			if err != nil {
				return err
			}

			corpus, err := vuamc.Load(corpusPath, verbsPath, m, s.Config.Labels)
			if err != nil {
				return err
			}
			slog.Info("Corpus loaded",
				"sentences", len(corpus.Sentences),
				"verbs", corpus.NumVerbs(),
				"tokens", corpus.NumTokens())

			ev, err := metaphor.NewFromFile(modelPath, append(s.Options(), metaphor.WithLogger(slog.Default()))...)
			if err != nil {
				return err
			}
			defer func() { _ = ev.Close() }() // Cleanup error ignored in CLI

			start := time.Now()
			res, err := ev.Evaluate(cmd.Context(), corpus, goldPath, predictions)
			if err != nil {
				return err
			}
			slog.Debug("Evaluation completed", "duration", time.Since(start))

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Sentences: %s  Verbs: %s  Scored: %s  Dropped: %s\n",
				humanize.Comma(int64(len(corpus.Sentences))),
				humanize.Comma(int64(corpus.NumVerbs())),
				humanize.Comma(int64(res.Report.Scored)),
				humanize.Comma(int64(res.Report.Dropped)))
			fmt.Fprintf(out, "Model loss: %.4f  Model F1: %.4f\n", res.Loss, res.ModelF1)
			if predictions != "" {
				fmt.Fprintf(out, "Predictions written to %s\n", predictions)
			}
			printReport(out, res.Report)
			return nil
		},
	}

	cmd.Flags().StringVar(&modelPath, "model", "", "Path to the ONNX model")
	cmd.Flags().StringVar(&corpusPath, "corpus", "", "VUAMC corpus CSV (txt_id, sentence_id, sentence_txt)")
	cmd.Flags().StringVar(&verbsPath, "verbs", "", "VUAMC verb token CSV")
	cmd.Flags().StringVar(&mode, "mode", "test", "Corpus mode: train requires verb labels, test does not")
	cmd.Flags().StringVar(&goldPath, "gold", "", "Gold label table; empty scores against the corpus labels")
	cmd.Flags().StringVar(&predictions, "predictions", "predictions.csv", "Where to write the predictions table")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("corpus")
	_ = cmd.MarkFlagRequired("verbs")
	return cmd
}
