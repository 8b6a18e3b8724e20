package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/cafebazaar/folio/config"
	"github.com/cafebazaar/folio/ghstats"
)

func newStatsCmd(a *app) *cobra.Command {
	var activity bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Fetch the GitHub statistics once and print them as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.Validate(a.config); err != nil {
				return err
			}
			client := ghstats.NewClient(config.GitHub(a.config))

			var out any
			var err error
			if activity {
				out, err = client.Activity(cmd.Context())
			} else {
				out, err = client.Stats(cmd.Context())
			}
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().BoolVar(&activity, "activity", false, "print the recent activity feed instead")
	return cmd
}
