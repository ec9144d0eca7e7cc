package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var version = "dev"

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "pdmflow",
		Short: "Predictive maintenance training pipeline",
		Long: `pdmflow labels machine telemetry with upcoming failures, derives rolling
features and trains a failure classifier, tracking every run.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default $CONFIG_PATH or config/config.yaml)")

	cmd.AddCommand(
		newTrainCmd(opts),
		newServeCmd(opts),
		newLaunchCmd(opts),
		newFeaturesCmd(opts),
	)
	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.SetVersionTemplate(fmt.Sprintf("pdmflow version %s\n", version))
	return cmd
}
