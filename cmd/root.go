// Package cmd implements the virtwarden command line interface.
package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	cfgFile string

	// Build metadata, injected at link time.
	BuildVersion = "dev"
	BuildCommit  = "none"
	BuildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "virtwarden",
	Short: "Virtwarden - scheduled VM backup engine",
	Long: `Virtwarden runs scheduled backups and recurring VM actions against
virtualization clusters and exposes an admin API to manage them.`,
}

// Execute runs the CLI with the given build metadata.
func Execute(version, commit, date string) error {
	if version != "" {
		BuildVersion, BuildCommit, BuildDate = version, commit, date
	}
	return rootCmd.Execute()
}

func init() {
	// A .env file is a convenience for development; absence is fine.
	_ = godotenv.Load()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./virtwarden.toml)")
}
