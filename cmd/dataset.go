package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/dubbadge/internal/app"
	"github.com/JakeFAU/dubbadge/internal/dataset"
	"github.com/JakeFAU/dubbadge/internal/settings"
)

func newDatasetCmd() *cobra.Command {
	var (
		language string
		conf     string
		listIDs  bool
	)
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Fetch the dubbed dataset and report what it resolves to",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := envFrom(cmd.Context())
			if err != nil {
				return err
			}
			if conf == "" {
				conf = settings.DefaultConfidence(language)
			}
			snap := settings.Defaults()
			snap.Language, snap.Confidence = language, conf
			if err := snap.Validate(); err != nil {
				return err
			}

			cache := dataset.New(app.NewFetcher(env.cfg, env.logger), dataset.Config{
				DubbedURLTemplate: env.cfg.Dataset.DubbedURLTemplate,
				MappingURL:        env.cfg.Dataset.MappingURL,
			}, env.logger)
			if err := cache.Reload(cmd.Context(), language, conf); err != nil {
				return fmt.Errorf("load dataset: %w", err)
			}
			if listIDs {
				for _, id := range cache.Set().IDs() {
					if _, err := fmt.Fprintln(cmd.OutOrStdout(), id); err != nil {
						return err
					}
				}
				return nil
			}
			return writeJSON(cmd, cache.Info())
		},
	}
	cmd.Flags().StringVar(&language, "language", settings.DefaultLanguage, "dub language")
	cmd.Flags().StringVar(&conf, "confidence", "", "confidence tier (default depends on language)")
	cmd.Flags().BoolVar(&listIDs, "ids", false, "print every host identifier instead of the summary")
	return cmd
}
