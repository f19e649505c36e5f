package cmd

import (
	"github.com/spf13/cobra"

	"github.com/JakeFAU/dubbadge/internal/app"
	"github.com/JakeFAU/dubbadge/internal/settings"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect or change persisted overlay settings",
	}
	cmd.AddCommand(newSettingsShowCmd())
	cmd.AddCommand(newSettingsSetCmd())
	return cmd
}

func newSettingsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the stored settings with defaults filled in",
		RunE: func(cmd *cobra.Command, _ []string) error {
			provider, closeStore, err := openProvider(cmd)
			if err != nil {
				return err
			}
			defer closeStore()
			return writeJSON(cmd, provider.Load(cmd.Context()))
		},
	}
}

func newSettingsSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update stored settings; unset flags keep their value",
		RunE: func(cmd *cobra.Command, _ []string) error {
			provider, closeStore, err := openProvider(cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			snap := provider.Load(cmd.Context())
			flags := cmd.Flags()
			if flags.Changed("language") {
				snap.Language, _ = flags.GetString("language")
				if !flags.Changed("confidence") {
					snap.Confidence = settings.DefaultConfidence(snap.Language)
				}
			}
			if flags.Changed("confidence") {
				snap.Confidence, _ = flags.GetString("confidence")
			}
			if flags.Changed("position") {
				v, _ := flags.GetString("position")
				snap.Position = settings.Position(v)
			}
			if flags.Changed("color") {
				v, _ := flags.GetString("color")
				snap.Color = settings.Color(v)
			}
			if flags.Changed("debug") {
				snap.Debug, _ = flags.GetBool("debug")
			}
			if err := provider.Save(cmd.Context(), snap); err != nil {
				return err
			}
			return writeJSON(cmd, snap)
		},
	}
	cmd.Flags().String("language", "", "dub language")
	cmd.Flags().String("confidence", "", "dataset confidence tier")
	cmd.Flags().String("position", "", "badge position: beside or below")
	cmd.Flags().String("color", "", "badge color")
	cmd.Flags().Bool("debug", false, "show identifiers in tooltips")
	return cmd
}

func openProvider(cmd *cobra.Command) (*settings.Provider, func(), error) {
	env, err := envFrom(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	store, closer, err := app.OpenStore(cmd.Context(), env.cfg.Settings)
	if err != nil {
		return nil, nil, err
	}
	closeStore := func() {
		if closer != nil {
			_ = closer.Close()
		}
	}
	return settings.NewProvider(store, env.logger), closeStore, nil
}
