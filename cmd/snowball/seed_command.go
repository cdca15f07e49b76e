package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/helixir/snowball-review/internal/app"
	"github.com/helixir/snowball-review/internal/domain"
	"github.com/helixir/snowball-review/internal/snowball"
	"github.com/helixir/snowball-review/internal/storage"
)

type seedInput struct {
	kind  string
	value string
}

func newAddSeedCommand(ctx *commandContext) *cobra.Command {
	var dois, pdfs, titles []string

	cmd := &cobra.Command{
		Use:   "add-seed [DIR]",
		Short: "Add seed papers by DOI, arXiv id, title or PDF",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs := seedInputs(dois, pdfs, titles)
			if len(inputs) == 0 {
				return domain.NewValidationError("seed", "pass at least one --doi, --pdf or --title")
			}

			location := locationArg(args)
			return ctx.withProject(cmd.Context(), "add-seed", location, func(a *app.App, store storage.Storage, project *domain.ReviewProject) error {
				engine := a.Engine(nil)
				out := cmd.OutOrStdout()

				var errs []error
				for _, in := range inputs {
					var (
						result snowball.SeedResult
						err    error
					)
					if in.kind == "pdf" {
						result, err = engine.AddSeedFromPDF(cmd.Context(), project, store, in.value)
					} else {
						result, err = engine.AddSeed(cmd.Context(), project, store, in.value)
					}
					if err != nil {
						fmt.Fprintf(out, "Failed to add %s %s: %v\n", in.kind, in.value, err)
						errs = append(errs, err)
						if cmd.Context().Err() != nil {
							break
						}
						continue
					}
					fmt.Fprintln(out, describeSeed(result))
				}
				if len(errs) > 0 {
					return fmt.Errorf("%d of %d seeds could not be added: %w", len(errs), len(inputs), errors.Join(errs...))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&dois, "doi", nil, "DOI or arXiv id of a seed paper (repeatable)")
	cmd.Flags().StringSliceVar(&pdfs, "pdf", nil, "Path or URL of a seed paper PDF (repeatable)")
	cmd.Flags().StringArrayVar(&titles, "title", nil, "Title of a seed paper (repeatable)")

	return cmd
}

func seedInputs(dois, pdfs, titles []string) []seedInput {
	var inputs []seedInput
	for _, v := range dois {
		if v = strings.TrimSpace(v); v != "" {
			inputs = append(inputs, seedInput{kind: "doi", value: v})
		}
	}
	for _, v := range titles {
		if v = strings.TrimSpace(v); v != "" {
			inputs = append(inputs, seedInput{kind: "title", value: v})
		}
	}
	for _, v := range pdfs {
		if v = strings.TrimSpace(v); v != "" {
			inputs = append(inputs, seedInput{kind: "pdf", value: v})
		}
	}
	return inputs
}

func describeSeed(r snowball.SeedResult) string {
	verb := "Added seed"
	if r.Existing {
		verb = "Marked existing paper as seed"
	}
	line := fmt.Sprintf("%s %s: %s", verb, r.Paper.ID, r.Paper.Title)
	if !r.Resolved {
		line += " (not found in any provider; stored as parsed)"
	}
	return line
}
