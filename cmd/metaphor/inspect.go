package main

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/go-metaphor/inference"
)

func (c *CLI) newInspectCommand() *cobra.Command {
	var modelPath string

	cmd := &cobra.Command{
		Use:     "inspect",
		Short:   "Print a model's inputs, outputs and metadata and check them against the configuration",
		Example: `  metaphor inspect --model naacl_metaphor.onnx --max-sentence-length 50`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.settings(cmd)
			if err != nil {
				return err
			}
			sig, err := inference.ReadSignature(modelPath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printTensors(out, "Inputs", sig.Inputs)
			printTensors(out, "Outputs", sig.Outputs)
			if len(sig.Metadata) > 0 {
				fmt.Fprintln(out, "Metadata:")
				keys := lo.Keys(sig.Metadata)
				slices.Sort(keys)
				for _, k := range keys {
					fmt.Fprintf(out, "  %s = %s\n", k, sig.Metadata[k])
				}
			}

			cfg := s.Config
			if err := sig.Check(cfg.MaxSentenceLength, cfg.EmbeddingDim, cfg.Labels.Len()); err != nil {
				return err
			}
			fmt.Fprintf(out, "Compatible with max length %d, embedding dim %d, labels %s\n",
				cfg.MaxSentenceLength, cfg.EmbeddingDim, strings.Join(cfg.Labels.Names(), ","))
			return nil
		},
	}

	cmd.Flags().StringVar(&modelPath, "model", "", "Path to the ONNX model")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func printTensors(w io.Writer, title string, ts []inference.TensorInfo) {
	fmt.Fprintf(w, "%s:\n", title)
	for _, t := range ts {
		dims := lo.Map(t.Dims, func(d int64, _ int) string {
			if d < 0 {
				return "?"
			}
			return fmt.Sprint(d)
		})
		fmt.Fprintf(w, "  %s [%s]\n", t.Name, strings.Join(dims, " "))
	}
}
