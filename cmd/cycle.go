package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/virtwarden/virtwarden/internal/app"
	"github.com/virtwarden/virtwarden/internal/config"
	"github.com/virtwarden/virtwarden/internal/logging"
)

// cycleCmd runs a single engine pass. Useful under an external scheduler
// such as a systemd timer, and for debugging.
var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run one engine pass over all due schedules and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if cfg.Credentials.Key == "" {
			return errors.New("credentials.key is required")
		}
		log, err := logging.Setup(cfg.Logging)
		if err != nil {
			return err
		}

		a, err := app.New(cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.RunCycle(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(cycleCmd)
}
