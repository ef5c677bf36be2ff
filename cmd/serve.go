package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/virtwarden/virtwarden/internal/app"
	"github.com/virtwarden/virtwarden/internal/config"
	"github.com/virtwarden/virtwarden/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the admin API and the schedule engine",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if err := cfg.ValidateServe(); err != nil {
			return err
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

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return a.Serve(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
