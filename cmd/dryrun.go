package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/dubbadge/internal/app"
	"github.com/JakeFAU/dubbadge/internal/dataset"
	"github.com/JakeFAU/dubbadge/internal/dom/memory"
	"github.com/JakeFAU/dubbadge/internal/settings"
	settingsmemory "github.com/JakeFAU/dubbadge/internal/settings/memory"
)

func newDryRunCmd() *cobra.Command {
	var (
		pagePath string
		outPath  string
		language string
		conf     string
		position string
		color    string
		debug    bool
	)
	cmd := &cobra.Command{
		Use:   "dryrun",
		Short: "Annotate a saved HTML page offline and report the pass",
		Long: `dryrun loads the dataset, runs one scan over a saved copy of the media UI
and prints the resulting pass as JSON. With --out the annotated page is written
back to disk for inspection.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := envFrom(cmd.Context())
			if err != nil {
				return err
			}
			if pagePath == "" {
				return errors.New("--page is required")
			}
			markup, err := os.ReadFile(pagePath)
			if err != nil {
				return fmt.Errorf("read page: %w", err)
			}
			doc, err := memory.Parse(string(markup))
			if err != nil {
				return err
			}

			snap := settings.Defaults()
			if language != "" {
				snap.Language = language
				snap.Confidence = settings.DefaultConfidence(language)
			}
			if conf != "" {
				snap.Confidence = conf
			}
			if position != "" {
				snap.Position = settings.Position(position)
			}
			if color != "" {
				snap.Color = settings.Color(color)
			}
			snap.Debug = debug

			comps, err := app.Build(cmd.Context(), env.cfg, doc, app.Options{Store: settingsmemory.New(nil)}, env.logger)
			if err != nil {
				return err
			}
			defer comps.Close() //nolint:errcheck // memory store holds nothing

			res, err := comps.Controller.Apply(cmd.Context(), snap, true)
			if err != nil {
				return err
			}
			if outPath != "" {
				if err := os.WriteFile(outPath, []byte(doc.HTML()), 0o600); err != nil {
					return fmt.Errorf("write annotated page: %w", err)
				}
			}
			return writeJSON(cmd, struct {
				app.Result
				Dataset dataset.Info `json:"dataset"`
			}{Result: res, Dataset: comps.Cache.Info()})
		},
	}
	cmd.Flags().StringVar(&pagePath, "page", "", "saved HTML page to annotate")
	cmd.Flags().StringVar(&outPath, "out", "", "write the annotated page here")
	cmd.Flags().StringVar(&language, "language", "", "dub language (default english)")
	cmd.Flags().StringVar(&conf, "confidence", "", "dataset confidence tier")
	cmd.Flags().StringVar(&position, "position", "", "badge position: beside or below")
	cmd.Flags().StringVar(&color, "color", "", "badge color")
	cmd.Flags().BoolVar(&debug, "debug", false, "show identifiers in tooltips")
	return cmd
}
