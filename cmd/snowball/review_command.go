package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/helixir/snowball-review/internal/app"
	"github.com/helixir/snowball-review/internal/domain"
	"github.com/helixir/snowball-review/internal/storage"
)

const maxTitleWidth = 70

func newReviewCommand(ctx *commandContext) *cobra.Command {
	var list bool
	var id, status, note string

	cmd := &cobra.Command{
		Use:   "review [DIR]",
		Short: "List pending papers or record a review decision",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !list && id == "" {
				return domain.NewValidationError("review", "pass --list, or --id with --status")
			}
			var parsed domain.PaperStatus
			if !list {
				var err error
				if parsed, err = domain.ParsePaperStatus(strings.ToLower(strings.TrimSpace(status))); err != nil {
					return err
				}
			}

			location := locationArg(args)
			return ctx.withProject(cmd.Context(), "review", location, func(a *app.App, store storage.Storage, _ *domain.ReviewProject) error {
				engine := a.Engine(nil)
				out := cmd.OutOrStdout()

				if list {
					papers, err := engine.PapersForReview(cmd.Context(), store)
					if err != nil {
						return fmt.Errorf("load review queue: %w", err)
					}
					renderReviewQueue(out, papers, shouldColorize(out))
					return nil
				}

				paper, err := engine.UpdateReview(cmd.Context(), store, strings.TrimSpace(id), parsed, note)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Marked %s as %s: %s\n", paper.ID, paper.Status, paper.Title)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "List papers awaiting review")
	cmd.Flags().StringVar(&id, "id", "", "Paper id to review")
	cmd.Flags().StringVar(&status, "status", "", "Review decision (pending, included, excluded, maybe)")
	cmd.Flags().StringVar(&note, "note", "", "Review note")
	cmd.MarkFlagsMutuallyExclusive("list", "id")
	cmd.MarkFlagsRequiredTogether("id", "status")

	return cmd
}

func renderReviewQueue(out io.Writer, papers []*domain.Paper, colorize bool) {
	if len(papers) == 0 {
		fmt.Fprintln(out, "No papers awaiting review")
		return
	}

	headers := []string{"ID", "Iter", "Source", "Year", "Citations", "Score", "Title"}
	aligns := []columnAlignment{alignLeft, alignRight, alignLeft, alignRight, alignRight, alignRight, alignLeft}
	rows := make([][]string, 0, len(papers))
	for _, p := range papers {
		score := ""
		if p.RelevanceScore != nil {
			score = strconv.FormatFloat(*p.RelevanceScore, 'f', 2, 64)
		}
		rows = append(rows, []string{
			p.ID,
			strconv.Itoa(p.SnowballIteration),
			string(p.Source),
			optionalInt(p.Year),
			optionalInt(p.CitationCount),
			score,
			truncate(p.Title, maxTitleWidth),
		})
	}
	fmt.Fprintln(out, renderTable(headers, rows, aligns, colorize))
	fmt.Fprintf(out, "%d papers awaiting review\n", len(papers))
}

func optionalInt(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}
