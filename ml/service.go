package ml

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
)

// Service is the inference path: validate, scale, score, explain.
// All fields are read-only after NewService, so one Service is shared by every request.
type Service struct {
	names     []string
	scaler    *StandardScaler
	booster   *Booster
	explainer *TreeExplainer
	meta      ModelMetadata
}

// NewService checks that the feature list, scaler and booster agree. meta may be nil.
func NewService(names []string, scaler *StandardScaler, booster *Booster, meta *ModelMetadata) (*Service, error) {
	if err := validateFeatureNames(names); err != nil {
		return nil, err
	}
	if scaler == nil || booster == nil {
		return nil, errors.New("scaler and booster are required")
	}
	if booster.NumFeature() != len(names) {
		return nil, fmt.Errorf("model expects %d features, feature list has %d", booster.NumFeature(), len(names))
	}
	if booster.NumClass() != len(ClassNames) {
		return nil, fmt.Errorf("model has %d classes, expected %d", booster.NumClass(), len(ClassNames))
	}
	if err := scaler.CheckColumns(names); err != nil {
		return nil, err
	}
	s := &Service{
		names:   append([]string(nil), names...),
		scaler:  scaler,
		booster: booster,
	}
	if meta != nil {
		s.meta = *meta
	}
	// Attribution is optional: a model without node cover still predicts.
	if explainer, err := NewTreeExplainer(booster); err == nil {
		s.explainer = explainer
	}
	return s, nil
}

// FeatureNames returns a copy of the model's column order.
func (s *Service) FeatureNames() []string {
	return append([]string(nil), s.names...)
}

// ModelInfo describes the loaded model. Unknown metadata fields read "Unknown".
func (s *Service) ModelInfo() ModelInfo {
	modelType := s.meta.ModelType
	if modelType == "" {
		modelType = "Unknown"
	}
	version := s.meta.Version
	if version == "" {
		version = "Unknown"
	}
	return ModelInfo{
		Loaded:        true,
		ModelType:     modelType,
		Version:       version,
		Description:   s.meta.Description,
		NFeatures:     len(s.names),
		NTrees:        s.booster.NumTrees(),
		TestAccuracy:  s.meta.TestAccuracy,
		ClassNames:    append([]string(nil), ClassNames...),
		ShapAvailable: s.explainer != nil,
	}
}

// Predict classifies features and attaches attribution values for the predicted class.
func (s *Service) Predict(ctx context.Context, features FeatureVector) (*Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scaled, err := s.prepare(features)
	if err != nil {
		return nil, err
	}
	probs, margins, err := s.booster.PredictProba(scaled)
	if err != nil {
		return nil, err
	}
	class := argmax(probs)
	prediction := &Prediction{
		Label:         Label(class),
		ClassIndex:    class,
		Confidence:    probs[class],
		Probabilities: make(map[string]float64, len(probs)),
		Attributions:  map[string]float64{},
		Margin:        margins[class],
	}
	for i, p := range probs {
		prediction.Probabilities[ClassNames[i]] = p
	}
	if s.explainer != nil {
		phi, err := s.explainer.ShapValues(scaled, class)
		if err != nil {
			return nil, err
		}
		prediction.Attributions = s.named(phi)
		prediction.BaseValue = s.explainer.BaseValue(class)
	}
	return prediction, nil
}

// Explain returns attribution values for the class the model predicts for features.
func (s *Service) Explain(ctx context.Context, features FeatureVector) (map[string]float64, error) {
	if s.explainer == nil {
		return nil, errors.New("attribution is not available for this model")
	}
	prediction, err := s.Predict(ctx, features)
	if err != nil {
		return nil, err
	}
	return prediction.Attributions, nil
}

func (s *Service) prepare(features FeatureVector) ([]float64, error) {
	raw, err := Vectorize(s.names, features)
	if err != nil {
		return nil, err
	}
	return s.scaler.Transform(raw)
}

func (s *Service) named(values []float64) map[string]float64 {
	out := make(map[string]float64, len(values))
	for i, v := range values {
		out[s.names[i]] = v
	}
	return out
}

// Attribution is one feature's contribution, used for ranked output.
type Attribution struct {
	Feature string  `json:"feature"`
	Shap    float64 `json:"shap"`
}

// TopAttributions ranks attributions by absolute value, ties broken by name, and keeps k.
func TopAttributions(attributions map[string]float64, k int) []Attribution {
	ranked := make([]Attribution, 0, len(attributions))
	for name, value := range attributions {
		ranked = append(ranked, Attribution{Feature: name, Shap: value})
	}
	sort.Slice(ranked, func(i, j int) bool {
		ai, aj := math.Abs(ranked[i].Shap), math.Abs(ranked[j].Shap)
		if ai != aj {
			return ai > aj
		}
		return ranked[i].Feature < ranked[j].Feature
	})
	if k >= 0 && k < len(ranked) {
		ranked = ranked[:k]
	}
	return ranked
}

// TopAttributionMap is TopAttributions as a map, the shape the dashboard consumes.
func TopAttributionMap(attributions map[string]float64, k int) map[string]float64 {
	top := TopAttributions(attributions, k)
	out := make(map[string]float64, len(top))
	for _, a := range top {
		out[a.Feature] = a.Shap
	}
	return out
}
