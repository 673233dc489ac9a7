package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ctgenie/app"
	"ctgenie/assets"
	"ctgenie/cases"
	"ctgenie/ml"
)

var predictFlags struct {
	features string
	topK     int
	similar  int
}

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Classify one CTG feature vector from a JSON file",
	Long: `Reads a JSON object of CTG features (either bare or under "ctg_features") and
prints the classification, probabilities and the strongest attributions.`,
	RunE: runPredict,
}

func init() {
	f := predictCmd.Flags()
	f.StringVarP(&predictFlags.features, "features", "f", "", "Path to the feature JSON file (required)")
	f.IntVarP(&predictFlags.topK, "top-k", "k", 10, "Number of attributions to print")
	f.IntVar(&predictFlags.similar, "similar", 0, "Also look up this many similar cases")

	_ = predictCmd.MarkFlagRequired("features")
}

type predictOutput struct {
	Label         ml.Label            `json:"prediction_label"`
	Confidence    float64             `json:"confidence"`
	Probabilities map[string]float64  `json:"probabilities"`
	BaseValue     float64             `json:"base_value"`
	Attributions  []ml.Attribution    `json:"attributions"`
	SimilarCases  []cases.SimilarCase `json:"similar_cases,omitempty"`
	CasesSummary  string              `json:"cases_summary,omitempty"`
}

func runPredict(cmd *cobra.Command, _ []string) error {
	features, err := readFeatures(predictFlags.features)
	if err != nil {
		return err
	}

	snapshot, err := assets.Load(cmd.Context(), app.AssetsConfig(cfg), logger)
	if err != nil {
		return err
	}
	prediction, err := snapshot.Service.Predict(cmd.Context(), features)
	if err != nil {
		return err
	}

	out := predictOutput{
		Label:         prediction.Label,
		Confidence:    prediction.Confidence,
		Probabilities: prediction.Probabilities,
		BaseValue:     prediction.BaseValue,
		Attributions:  ml.TopAttributions(prediction.Attributions, predictFlags.topK),
	}
	if predictFlags.similar > 0 {
		out.SimilarCases, out.CasesSummary, err = snapshot.Cases.SimilarCases(features, predictFlags.similar)
		if err != nil {
			return err
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// readFeatures accepts a bare feature object or a /predict request body.
func readFeatures(path string) (ml.FeatureVector, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read features: %w", err)
	}
	var wrapped struct {
		CTGFeatures ml.FeatureVector `json:"ctg_features"`
	}
	if err := json.Unmarshal(payload, &wrapped); err == nil && len(wrapped.CTGFeatures) > 0 {
		return wrapped.CTGFeatures, nil
	}
	var features ml.FeatureVector
	if err := json.Unmarshal(payload, &features); err != nil {
		return nil, fmt.Errorf("decode features %s: %w", path, err)
	}
	return features, nil
}
