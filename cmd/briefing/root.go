package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:           "briefing",
		Short:         "Local weather and headlines for wherever you are",
		Long:          "briefing locates the caller by IP, then fetches current weather and news headlines under a sequential, wait-all or race policy.",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default config/{ENV_NAME}.yaml when present)")

	root.AddCommand(newRunCmd(&cfgFile))
	root.AddCommand(newServeCmd(&cfgFile))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "briefing version %s\n", version)
		},
	})
	return root
}
