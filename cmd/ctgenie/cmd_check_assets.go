package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ctgenie/app"
	"ctgenie/assets"
	"ctgenie/db"
)

var checkAssetsCmd = &cobra.Command{
	Use:   "check-assets",
	Short: "Load every startup asset and report what was found",
	RunE:  runCheckAssets,
}

func runCheckAssets(cmd *cobra.Command, _ []string) error {
	snapshot, err := assets.Load(cmd.Context(), app.AssetsConfig(cfg), logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	info := snapshot.Service.ModelInfo()
	fmt.Fprintf(out, "Model:       %s %s (%d features, %d trees, shap=%t)\n", info.ModelType, info.Version, info.NFeatures, info.NTrees, info.ShapAvailable)
	if info.Description != "" {
		fmt.Fprintf(out, "             %s\n", info.Description)
	}
	if info.TestAccuracy != nil {
		fmt.Fprintf(out, "Accuracy:    %.3f\n", *info.TestAccuracy)
	}
	fmt.Fprintf(out, "Cases:       %d\n", snapshot.Cases.Len())
	fmt.Fprintf(out, "Similar:     %d entries\n", snapshot.Cases.TableLen())
	if snapshot.Guidelines != nil {
		fmt.Fprintf(out, "Guidelines:  %d (version %s, %s)\n", snapshot.Guidelines.Len(), snapshot.Guidelines.Version(), snapshot.Guidelines.Source())
	} else {
		fmt.Fprintf(out, "Guidelines:  not loaded\n")
	}
	fmt.Fprintf(out, "Files:\n")
	for _, file := range snapshot.Files {
		fmt.Fprintf(out, "  %s\n", file)
	}

	if cfg.Database.Path == "" {
		return nil
	}
	return printModelLoads(cmd, cfg.Database.Path)
}

// printModelLoads lists the models earlier serve runs started with.
func printModelLoads(cmd *cobra.Command, path string) error {
	audit, err := db.Open(path)
	if err != nil {
		return err
	}
	defer audit.Close()

	loads, err := audit.ModelLoads(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Model loads: %d recorded\n", len(loads))
	for _, load := range loads {
		fmt.Fprintf(out, "  %s  %s %s\n", load.LoadedAt.Format(time.RFC3339), load.ModelType, load.Version)
	}
	return nil
}
