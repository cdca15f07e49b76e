package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/helixir/snowball-review/internal/app"
	"github.com/helixir/snowball-review/internal/config"
	"github.com/helixir/snowball-review/internal/domain"
	"github.com/helixir/snowball-review/internal/export"
	"github.com/helixir/snowball-review/internal/storage"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var format string
	var includedOnly bool
	var outDir string

	cmd := &cobra.Command{
		Use:   "export [DIR]",
		Short: "Export papers as BibTeX and/or CSV",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}

			location := locationArg(args)
			return ctx.withProject(cmd.Context(), "export", location, func(a *app.App, store storage.Storage, _ *domain.ReviewProject) error {
				papers, err := store.LoadAllPapers(cmd.Context())
				if err != nil {
					return fmt.Errorf("load papers: %w", err)
				}

				dir := exportDir(outDir, location, a.Config.Storage)
				paths, err := export.WriteFiles(dir, papers, f, export.Options{IncludedOnly: includedOnly})
				if err != nil {
					return err
				}
				for _, p := range paths {
					fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", p)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", string(export.FormatAll), "Export format (bibtex, csv, all)")
	cmd.Flags().BoolVar(&includedOnly, "included-only", false, "Export only included papers")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Output directory (defaults to the project directory for file storage)")

	return cmd
}

// exportDir resolves where exports are written: --out, else the project
// directory of the file driver, else the working directory.
func exportDir(outDir, location string, sc config.StorageConfig) string {
	if outDir != "" {
		return outDir
	}
	if sc.Driver == config.StorageFile || sc.Driver == "" {
		if location != "" {
			return location
		}
		return sc.Dir
	}
	return "."
}
