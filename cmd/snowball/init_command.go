package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/helixir/snowball-review/internal/app"
	"github.com/helixir/snowball-review/internal/domain"
	"github.com/helixir/snowball-review/internal/scoring"
	"github.com/helixir/snowball-review/internal/storage"
)

type initOptions struct {
	name             string
	description      string
	question         string
	scoringMethod    string
	maxIterations    int
	minYear          int
	maxYear          int
	minCitations     int
	maxCitations     int
	keywords         []string
	excludedKeywords []string
}

func newInitCommand(ctx *commandContext) *cobra.Command {
	var opts initOptions

	cmd := &cobra.Command{
		Use:   "init [DIR]",
		Short: "Create a review project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := opts.project(cmd)
			if err != nil {
				return err
			}
			location := locationArg(args)
			return ctx.withStore(cmd.Context(), "init", location, func(_ *app.App, store storage.Storage) error {
				_, err := store.LoadProject(cmd.Context())
				switch {
				case err == nil:
					return domain.NewAlreadyExistsError("project", project.Name)
				case !errors.Is(err, domain.ErrNotFound):
					return fmt.Errorf("load project: %w", err)
				}
				if err := store.SaveProject(cmd.Context(), project); err != nil {
					return fmt.Errorf("save project: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created review project %q (max %d iterations)\n", project.Name, project.MaxIterations)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.name, "name", "", "Project name")
	cmd.Flags().StringVar(&opts.description, "description", "", "Project description")
	cmd.Flags().StringVar(&opts.question, "question", "", "Research question used for relevance scoring")
	cmd.Flags().StringVar(&opts.scoringMethod, "scoring-method", "", "Default relevance scoring method (tfidf, llm)")
	cmd.Flags().IntVar(&opts.maxIterations, "max-iterations", 3, "Maximum number of snowball iterations")
	cmd.Flags().IntVar(&opts.minYear, "min-year", 0, "Exclude papers published before this year")
	cmd.Flags().IntVar(&opts.maxYear, "max-year", 0, "Exclude papers published after this year")
	cmd.Flags().IntVar(&opts.minCitations, "min-citations", 0, "Exclude papers with fewer citations")
	cmd.Flags().IntVar(&opts.maxCitations, "max-citations", 0, "Exclude papers with more citations")
	cmd.Flags().StringSliceVar(&opts.keywords, "keyword", nil, "Keyword a paper must mention (repeatable)")
	cmd.Flags().StringSliceVar(&opts.excludedKeywords, "exclude-keyword", nil, "Keyword that excludes a paper (repeatable)")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

// project builds the project from the flags. Numeric bounds are only set
// when their flag was given.
func (o initOptions) project(cmd *cobra.Command) (*domain.ReviewProject, error) {
	if strings.TrimSpace(o.name) == "" {
		return nil, domain.NewValidationError("name", "is required")
	}
	if o.maxIterations < 1 {
		return nil, domain.NewValidationError("max-iterations", "must be at least 1")
	}

	project := domain.NewReviewProject(o.name, o.description, o.maxIterations)
	project.ResearchQuestion = strings.TrimSpace(o.question)
	project.ScoringMethod = strings.ToLower(strings.TrimSpace(o.scoringMethod))
	switch project.ScoringMethod {
	case "", scoring.MethodTFIDF, scoring.MethodLLM:
	default:
		return nil, domain.NewValidationError("scoring-method", fmt.Sprintf("unknown method %q", o.scoringMethod))
	}

	flags := cmd.Flags()
	criteria := &project.FilterCriteria
	if flags.Changed("min-year") {
		criteria.MinYear = intPtr(o.minYear)
	}
	if flags.Changed("max-year") {
		criteria.MaxYear = intPtr(o.maxYear)
	}
	if flags.Changed("min-citations") {
		criteria.MinCitations = intPtr(o.minCitations)
	}
	if flags.Changed("max-citations") {
		criteria.MaxCitations = intPtr(o.maxCitations)
	}
	criteria.Keywords = cleanKeywords(o.keywords)
	criteria.ExcludedKeywords = cleanKeywords(o.excludedKeywords)

	if err := project.Validate(); err != nil {
		return nil, err
	}
	return project, nil
}

func cleanKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	for _, k := range in {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

func intPtr(v int) *int { return &v }
