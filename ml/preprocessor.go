package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// StandardScaler is a scaler fit offline: each column is centred on Mean and divided by Scale.
type StandardScaler struct {
	FeatureNames []string  `json:"feature_names"`
	Mean         []float64 `json:"mean"`
	Scale        []float64 `json:"scale"`
}

// LoadScaler reads scaler.json as written by the training notebook.
func LoadScaler(path string) (*StandardScaler, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var scaler StandardScaler
	if err := json.Unmarshal(payload, &scaler); err != nil {
		return nil, fmt.Errorf("decode scaler: %w", err)
	}
	if err := scaler.validate(); err != nil {
		return nil, err
	}
	return &scaler, nil
}

func (s *StandardScaler) validate() error {
	if len(s.Mean) == 0 {
		return errors.New("scaler has no mean values")
	}
	if len(s.Mean) != len(s.Scale) {
		return fmt.Errorf("scaler mean/scale length mismatch: %d vs %d", len(s.Mean), len(s.Scale))
	}
	if len(s.FeatureNames) > 0 && len(s.FeatureNames) != len(s.Mean) {
		return fmt.Errorf("scaler has %d names for %d columns", len(s.FeatureNames), len(s.Mean))
	}
	return nil
}

// CheckColumns verifies the scaler was fit on exactly names, in order.
func (s *StandardScaler) CheckColumns(names []string) error {
	if len(s.Mean) != len(names) {
		return fmt.Errorf("scaler expects %d features, feature list has %d", len(s.Mean), len(names))
	}
	if len(s.FeatureNames) == 0 {
		return nil
	}
	for i, name := range names {
		if s.FeatureNames[i] != name {
			return fmt.Errorf("scaler column %d is %q, feature list has %q", i, s.FeatureNames[i], name)
		}
	}
	return nil
}

// Transform returns a scaled copy of x. A zero scale is treated as 1.
func (s *StandardScaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.Mean) {
		return nil, fmt.Errorf("scaler expects %d values, got %d", len(s.Mean), len(x))
	}
	scaled := make([]float64, len(x))
	for i, value := range x {
		scale := s.Scale[i]
		if scale == 0 {
			scale = 1
		}
		scaled[i] = (value - s.Mean[i]) / scale
	}
	return scaled, nil
}
