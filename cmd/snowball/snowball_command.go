package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/helixir/snowball-review/internal/app"
	"github.com/helixir/snowball-review/internal/domain"
	"github.com/helixir/snowball-review/internal/storage"
)

func newSnowballCommand(ctx *commandContext) *cobra.Command {
	var iterations int
	var score string

	cmd := &cobra.Command{
		Use:   "snowball [DIR]",
		Short: "Run snowball iterations",
		Long: "Run backward and forward snowballing from the included papers. " +
			"Stops early when the iteration limit is reached or the previous " +
			"iteration discovered no new papers.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if iterations < 1 {
				return domain.NewValidationError("iterations", "must be at least 1")
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			location := locationArg(args)
			return ctx.withProject(runCtx, "snowball", location, func(a *app.App, store storage.Storage, project *domain.ReviewProject) error {
				method := score
				if method == "" {
					method = project.ScoringMethod
				}
				scorer, err := a.Scorer(method)
				if err != nil {
					return err
				}
				engine := a.Engine(scorer)
				out := cmd.OutOrStdout()

				for i := 0; i < iterations; i++ {
					if !engine.ShouldContinue(project) {
						fmt.Fprintln(out, stopReason(project))
						return nil
					}
					stats, err := engine.RunIteration(runCtx, project, store)
					if err != nil {
						if errors.Is(err, domain.ErrCancelled) {
							fmt.Fprintln(out, "Interrupted; papers found so far were saved and the iteration can be rerun")
						}
						return err
					}
					fmt.Fprintln(out, describeIteration(stats))
				}
				if !engine.ShouldContinue(project) {
					fmt.Fprintln(out, stopReason(project))
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&iterations, "iterations", "n", 1, "Number of iterations to run")
	cmd.Flags().StringVar(&score, "score", "", "Relevance scoring method (tfidf, llm)")

	return cmd
}

func describeIteration(s domain.IterationStats) string {
	return fmt.Sprintf("Iteration %d: %d discovered (%d backward, %d forward), %d auto-excluded, %d for review, %d failed, %d skipped",
		s.Iteration, s.Discovered, s.Backward, s.Forward, s.AutoExcluded, s.ForReview, s.Failed, s.Skipped)
}

func stopReason(project *domain.ReviewProject) string {
	if project.CurrentIteration >= project.MaxIterations {
		return fmt.Sprintf("Reached the iteration limit (%d of %d)", project.CurrentIteration, project.MaxIterations)
	}
	return "The last iteration discovered no new papers; snowballing is complete"
}
