// Command evaluator runs the baseline and enhanced retrieval pipelines over
// a question set, scores them and compares the runs.
//
//	evaluator evaluate                       # both pipelines + comparison
//	evaluator run --pipeline enhanced        # one run, persisted
//	evaluator compare <baseline> <enhanced>  # compare persisted runs
//	evaluator index --file corpus.yaml       # load documents into Qdrant
//	evaluator serve                          # HTTP API
//
// Configuration comes from the environment (and .env when present).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := buildRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
