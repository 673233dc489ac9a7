package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ctgenie/config"
	"ctgenie/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	cfg    *config.Config
	logger *zap.Logger

	rootFlags struct {
		configPath string
		verbose    bool
	}
)

var rootCmd = &cobra.Command{
	Use:   "ctgenie",
	Short: "CTG classification and case-lookup service",
	Long: "ctgenie serves fetal cardiotocography classifications with SHAP attributions,\n" +
		"curated similar cases, clinical guidelines and a simulated telemetry stream.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(rootFlags.configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if rootFlags.verbose {
			cfg.Log.Level = "debug"
		}
		logger, err = logging.New(cfg.Log)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&rootFlags.configPath, "config", "c", "config.yaml", "Path to the YAML config file")
	pf.BoolVarP(&rootFlags.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(predictCmd)
	rootCmd.AddCommand(checkAssetsCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
