package ml

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// Predictor is what the HTTP layer depends on; Service and CachedService implement it.
type Predictor interface {
	Predict(ctx context.Context, features FeatureVector) (*Prediction, error)
	Explain(ctx context.Context, features FeatureVector) (map[string]float64, error)
	FeatureNames() []string
	ModelInfo() ModelInfo
}

// Prediction is the classifier output for one feature vector.
type Prediction struct {
	Label         Label              `json:"label"`
	ClassIndex    int                `json:"class_index"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities"`
	Attributions  map[string]float64 `json:"attributions"`
	BaseValue     float64            `json:"base_value"`
	Margin        float64            `json:"margin"`
}

func (p *Prediction) clone() *Prediction {
	out := *p
	out.Probabilities = make(map[string]float64, len(p.Probabilities))
	for k, v := range p.Probabilities {
		out.Probabilities[k] = v
	}
	out.Attributions = make(map[string]float64, len(p.Attributions))
	for k, v := range p.Attributions {
		out.Attributions[k] = v
	}
	return &out
}

// ModelMetadata mirrors model_metadata.json written by the training notebook.
// TestAccuracy is optional and is only reported when the training run measured it.
type ModelMetadata struct {
	ModelType    string   `json:"model_type"`
	Version      string   `json:"version"`
	Description  string   `json:"description,omitempty"`
	TestAccuracy *float64 `json:"test_accuracy,omitempty"`
	TrainedAt    string   `json:"trained_at,omitempty"`
}

// ModelInfo is the model block of the health response.
type ModelInfo struct {
	Loaded        bool     `json:"loaded"`
	ModelType     string   `json:"model_type"`
	Version       string   `json:"version"`
	Description   string   `json:"description,omitempty"`
	NFeatures     int      `json:"n_features"`
	NTrees        int      `json:"n_trees"`
	TestAccuracy  *float64 `json:"test_accuracy"`
	ClassNames    []string `json:"class_names"`
	ShapAvailable bool     `json:"shap_available"`
}

// LoadMetadata reads model_metadata.json.
func LoadMetadata(path string) (*ModelMetadata, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var meta ModelMetadata
	if err := json.Unmarshal(payload, &meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &meta, nil
}

// LoadFeatureNames reads feature_names.json, the model's column order.
func LoadFeatureNames(path string) ([]string, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var names []string
	if err := json.Unmarshal(payload, &names); err != nil {
		return nil, fmt.Errorf("decode feature names: %w", err)
	}
	if err := validateFeatureNames(names); err != nil {
		return nil, err
	}
	return names, nil
}
