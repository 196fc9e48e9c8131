package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "shopbot",
	Short: "Telegram shop bot backed by a Strapi catalog",
	Long: `shopbot serves a product catalog and per-user carts over Telegram.
Configuration comes from an optional YAML file overlaid by environment variables;
TELEGRAM_TOKEN, STRAPI_URL and STRAPI_TOKEN are required.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runBot,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the YAML config file (default $CONFIG_PATH)")
}
