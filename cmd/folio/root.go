package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cafebazaar/folio/config"
)

// app carries what the persistent pre-run loaded to the subcommands.
type app struct {
	configPath string
	logLevel   string
	config     *viper.Viper
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "folio",
		Short:         "Portfolio backend with cached GitHub statistics",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Set("log.level", a.logLevel)
			}
			config.InitLogger(cfg.GetString("log.level"), cfg.GetString("log.format"))
			a.config = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a config file (yaml, toml or json)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "info", "log level, overrides log.level")
	cmd.AddCommand(newServeCmd(a), newStatsCmd(a))
	return cmd
}
