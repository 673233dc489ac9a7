package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ctgenie/app"
)

var serveFlags struct {
	port int
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Load assets and serve the HTTP API",
	Long: `Loads the model, scaler, feature list, case batches and guidelines, then serves
the API until SIGINT or SIGTERM. A missing model, scaler or feature list aborts startup.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&serveFlags.port, "port", "p", 0, "Override http.port from the config file")
}

func runServe(cmd *cobra.Command, _ []string) error {
	if serveFlags.port > 0 {
		cfg.HTTP.Port = serveFlags.port
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		return err
	}
	logger.Info("exiting", zap.String("version", version))
	return nil
}
