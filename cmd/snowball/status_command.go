package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/helixir/snowball-review/internal/app"
	"github.com/helixir/snowball-review/internal/domain"
	"github.com/helixir/snowball-review/internal/snowball"
	"github.com/helixir/snowball-review/internal/storage"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status [DIR]",
		Short: "Show project progress and per-iteration statistics",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			location := locationArg(args)
			return ctx.withProject(cmd.Context(), "status", location, func(a *app.App, store storage.Storage, project *domain.ReviewProject) error {
				summary, err := a.Engine(nil).Summary(cmd.Context(), project, store)
				if err != nil {
					return fmt.Errorf("summarise project: %w", err)
				}
				out := cmd.OutOrStdout()
				renderSummary(out, summary, shouldColorize(out))
				return nil
			})
		},
	}
}

func renderSummary(out io.Writer, s snowball.Summary, colorize bool) {
	p := s.Project
	fmt.Fprintf(out, "Project:    %s\n", p.Name)
	if p.ResearchQuestion != "" {
		fmt.Fprintf(out, "Question:   %s\n", p.ResearchQuestion)
	}
	fmt.Fprintf(out, "Iteration:  %d of %d\n", p.CurrentIteration, p.MaxIterations)
	fmt.Fprintf(out, "Seeds:      %d\n", len(p.SeedPaperIDs))
	fmt.Fprintf(out, "Continue:   %s\n", yesNo(s.ShouldContinue))
	fmt.Fprintf(out, "Papers:     %d total, %d pending, %d included, %d excluded, %d maybe\n\n",
		s.Statistics.Total,
		s.Statistics.ByStatus[domain.PaperStatusPending],
		s.Statistics.ByStatus[domain.PaperStatusIncluded],
		s.Statistics.ByStatus[domain.PaperStatusExcluded],
		s.Statistics.ByStatus[domain.PaperStatusMaybe],
	)

	if len(s.Iterations) == 0 {
		fmt.Fprintln(out, "No iterations run yet")
		return
	}

	headers := []string{"Iteration", "Discovered", "Backward", "Forward", "Auto-excluded", "For review", "Included", "Excluded", "Maybe", "Failed", "Skipped"}
	aligns := make([]columnAlignment, len(headers))
	for i := range aligns {
		aligns[i] = alignRight
	}
	rows := make([][]string, 0, len(s.Iterations))
	for _, it := range s.Iterations {
		rows = append(rows, []string{
			strconv.Itoa(it.Iteration),
			strconv.Itoa(it.Discovered),
			strconv.Itoa(it.Backward),
			strconv.Itoa(it.Forward),
			strconv.Itoa(it.AutoExcluded),
			strconv.Itoa(it.ForReview),
			strconv.Itoa(it.ManualIncluded),
			strconv.Itoa(it.ManualExcluded),
			strconv.Itoa(it.ManualMaybe),
			strconv.Itoa(it.Failed),
			strconv.Itoa(it.Skipped),
		})
	}
	fmt.Fprintln(out, renderTable(headers, rows, aligns, colorize))
}
