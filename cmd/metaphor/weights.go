package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/go-metaphor"
	"github.com/jamesainslie/go-metaphor/objective"
	"github.com/jamesainslie/go-metaphor/vuamc"
)

func (c *CLI) newWeightsCommand() *cobra.Command {
	var corpusPath, verbsPath string

	cmd := &cobra.Command{
		Use:     "weights",
		Short:   "Print the class weights derived from a labeled corpus",
		Example: `  metaphor weights --corpus source/vuamc_corpus_train.csv --verbs source/verb_tokens.csv --weight-smoothing 0.1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.settings(cmd)
			if err != nil {
				return err
			}
			set := s.Config.Labels

			corpus, err := vuamc.Load(corpusPath, verbsPath, vuamc.ModeTrain, set)
			if err != nil {
				return err
			}

			w, err := objective.ComputeWeights(corpus.LabelOccurrences(), set, s.Config.WeightSmoothing)
			if err != nil {
				return err
			}

			counts := metaphor.LabelCounts(corpus)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Smoothing: %g\n", s.Config.WeightSmoothing)
			fmt.Fprintf(out, "%10s  %10s  %8s\n", "label", "count", "weight")
			for i, name := range set.Names() {
				fmt.Fprintf(out, "%10s  %10s  %8.4f\n", name, humanize.Comma(int64(counts[name])), w[i])
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&corpusPath, "corpus", "", "VUAMC corpus CSV")
	cmd.Flags().StringVar(&verbsPath, "verbs", "", "VUAMC verb token CSV with labels")
	_ = cmd.MarkFlagRequired("corpus")
	_ = cmd.MarkFlagRequired("verbs")
	return cmd
}
