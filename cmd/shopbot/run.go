package main

import (
	corecmd "github.com/m3rciful/shopbot/core/cmd"
	"github.com/m3rciful/shopbot/internal/app"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the bot (default)",
	RunE:  runBot,
}

func runBot(cmd *cobra.Command, _ []string) error {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	return corecmd.Run(corecmd.Options{
		ConfigPath: path,
		Build:      app.Build,
	})
}

func init() {
	rootCmd.AddCommand(runCmd)
}
