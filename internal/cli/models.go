// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeranaias/gemtalk/internal/model"
)

func newModelsCmd(opts *globalOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List known models for the configured provider",
		Long: `List known models for the configured provider.

Any model name the provider accepts can be used with --model; this list only
covers the ones gemtalk ships defaults for.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(opts)
			if err != nil {
				return err
			}
			models := model.ModelsFor(model.Provider(cfg.Model.Provider))
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, models)
			}

			fmt.Fprintln(out, SectionStyle.Render("Models ("+cfg.Model.Provider+")"))
			for _, m := range models {
				marker := "  "
				if m.ID == cfg.Model.Name {
					marker = "● "
				}
				fmt.Fprintf(out, "%s%s %s\n", marker, commandStyle.Render(padRight(m.ID, 32)), MutedStyle.Render(m.Description))
			}
			if _, ok := model.LookupModel(cfg.Model.Name); !ok {
				fmt.Fprintf(out, "● %s %s\n", commandStyle.Render(padRight(cfg.Model.Name, 32)), MutedStyle.Render("(configured)"))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}
