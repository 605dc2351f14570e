package main

import (
	"github.com/spf13/cobra"

	"github.com/kirillkom/rag-eval/internal/core/domain"
)

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "evaluator",
		Short:         "Evaluate multi-stage retrieval pipelines",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		buildRunCmd(),
		buildCompareCmd(),
		buildEvaluateCmd(),
		buildIndexCmd(),
		buildServeCmd(),
	)
	return root
}

func buildRunCmd() *cobra.Command {
	var (
		pipeline    string
		datasetPath string
		runID       string
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate one pipeline and persist the run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, pipeline, datasetPath, runID, asJSON)
		},
	}
	cmd.Flags().StringVarP(&pipeline, "pipeline", "p", domain.PipelineEnhanced, "Pipeline to evaluate (baseline, enhanced)")
	cmd.Flags().StringVarP(&datasetPath, "dataset", "d", "", "Dataset file (YAML or JSON); built-in questions when empty")
	cmd.Flags().StringVar(&runID, "run-id", "", "Run id; generated when empty")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the run artifact as JSON")
	return cmd
}

func buildCompareCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "compare <baseline-run-id> <enhanced-run-id>",
		Short: "Compare two persisted runs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(cmd, args[0], args[1], asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the comparison as JSON")
	return cmd
}

func buildEvaluateCmd() *cobra.Command {
	var (
		datasetPath string
		asJSON      bool
		strict      bool
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run baseline and enhanced pipelines on one dataset and compare them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEvaluate(cmd, datasetPath, asJSON, strict)
		},
	}
	cmd.Flags().StringVarP(&datasetPath, "dataset", "d", "", "Dataset file (YAML or JSON); built-in questions when empty")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print runs and comparison as JSON")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when the improvement target is not met")
	return cmd
}

func buildIndexCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Embed and upsert a document corpus into the vector store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndex(cmd, file)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Corpus file with a documents list; built-in corpus when empty")
	return cmd
}

func buildServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the evaluation HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}
}
