package ml

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
)

func normalFeatures() FeatureVector {
	return FeatureVector{
		"LB": 120, "AC": 3, "FM": 0, "UC": 4, "DL": 0, "DS": 0, "DP": 0,
		"ASTV": 45, "MSTV": 1.2, "ALTV": 8, "MLTV": 8.5,
		"Width": 64, "Min": 95, "Max": 159, "Nmax": 4, "Nzeros": 0,
		"Mode": 137, "Mean": 134, "Median": 138, "Variance": 12, "Tendency": 0,
		"LBE": 120, "DR": 0, "AD": 0, "DE": 0, "LD": 0, "FS": 0, "SUSP": 0, "E": 0,
	}
}

func pathologicalFeatures() FeatureVector {
	features := normalFeatures()
	features["ASTV"] = 80
	features["DP"] = 3
	features["ALTV"] = 40
	features["MSTV"] = 0.3
	features["AC"] = 0
	features["FS"] = 1
	return features
}

func loadTestService(t *testing.T) *Service {
	t.Helper()
	names, err := LoadFeatureNames(filepath.Join("testdata", "feature_names.json"))
	if err != nil {
		t.Fatalf("load feature names: %v", err)
	}
	scaler, err := LoadScaler(filepath.Join("testdata", "scaler.json"))
	if err != nil {
		t.Fatalf("load scaler: %v", err)
	}
	meta, err := LoadMetadata(filepath.Join("testdata", "model_metadata.json"))
	if err != nil {
		t.Fatalf("load metadata: %v", err)
	}
	service, err := NewService(names, scaler, loadTestBooster(t), meta)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service
}

func TestPredictNormalBaseline(t *testing.T) {
	service := loadTestService(t)
	prediction, err := service.Predict(context.Background(), normalFeatures())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prediction.Label != Normal {
		t.Fatalf("expected Normal, got %s", prediction.Label)
	}
	if prediction.Confidence <= 0.5 {
		t.Fatalf("expected confidence > 0.5, got %v", prediction.Confidence)
	}
}

func TestPredictPathological(t *testing.T) {
	service := loadTestService(t)
	prediction, err := service.Predict(context.Background(), pathologicalFeatures())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prediction.Label != Pathological {
		t.Fatalf("expected Pathological, got %s", prediction.Label)
	}
}

func TestPredictConfidenceIsMaxProbability(t *testing.T) {
	service := loadTestService(t)
	for _, features := range []FeatureVector{normalFeatures(), pathologicalFeatures()} {
		prediction, err := service.Predict(context.Background(), features)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if prediction.Confidence < 0 || prediction.Confidence > 1 {
			t.Fatalf("confidence out of range: %v", prediction.Confidence)
		}
		best := 0.0
		for _, p := range prediction.Probabilities {
			best = math.Max(best, p)
		}
		if prediction.Confidence != best {
			t.Fatalf("expected confidence %v to equal max probability %v", prediction.Confidence, best)
		}
		if prediction.Probabilities[prediction.Label.String()] != best {
			t.Fatalf("label %s is not the most probable class", prediction.Label)
		}
	}
}

func TestPredictDeterministic(t *testing.T) {
	service := loadTestService(t)
	first, err := service.Predict(context.Background(), normalFeatures())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 5; i++ {
		next, err := service.Predict(context.Background(), normalFeatures())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if next.Confidence != first.Confidence || next.Label != first.Label {
			t.Fatalf("prediction changed between calls")
		}
		for name, v := range first.Attributions {
			if next.Attributions[name] != v {
				t.Fatalf("attribution %s changed between calls", name)
			}
		}
	}
}

func TestPredictAttributionsAdditive(t *testing.T) {
	service := loadTestService(t)
	prediction, err := service.Predict(context.Background(), pathologicalFeatures())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sum := prediction.BaseValue
	for name, v := range prediction.Attributions {
		if !contains(service.FeatureNames(), name) {
			t.Fatalf("unexpected attribution key %q", name)
		}
		sum += v
	}
	if math.Abs(sum-prediction.Margin) > 1e-9 {
		t.Fatalf("attributions do not sum to margin: %v vs %v", sum, prediction.Margin)
	}
}

func TestPredictMissingFeature(t *testing.T) {
	service := loadTestService(t)
	features := normalFeatures()
	delete(features, "ASTV")
	delete(features, "LB")
	_, err := service.Predict(context.Background(), features)
	var invalid *InvalidInputError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidInputError, got %v", err)
	}
	if len(invalid.Missing) != 2 || invalid.Missing[0] != "ASTV" || invalid.Missing[1] != "LB" {
		t.Fatalf("unexpected missing list: %v", invalid.Missing)
	}
}

func TestPredictRejectsNonFinite(t *testing.T) {
	service := loadTestService(t)
	features := normalFeatures()
	features["DP"] = math.Inf(1)
	_, err := service.Predict(context.Background(), features)
	var invalid *InvalidInputError
	if !errors.As(err, &invalid) || len(invalid.Invalid) != 1 {
		t.Fatalf("expected non-finite error, got %v", err)
	}
}

func TestPredictIgnoresExtraKeys(t *testing.T) {
	service := loadTestService(t)
	features := normalFeatures()
	features["not_a_feature"] = 42
	if _, err := service.Predict(context.Background(), features); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPredictCancelledContext(t *testing.T) {
	service := loadTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := service.Predict(ctx, normalFeatures()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestModelInfo(t *testing.T) {
	info := loadTestService(t).ModelInfo()
	if !info.Loaded || info.NFeatures != 29 || !info.ShapAvailable {
		t.Fatalf("unexpected model info: %+v", info)
	}
	if info.ModelType != "XGBoost" || info.TestAccuracy == nil || *info.TestAccuracy != 0.988 {
		t.Fatalf("metadata not carried: %+v", info)
	}
	if info.NTrees != 7 {
		t.Fatalf("expected 7 trees, got %d", info.NTrees)
	}
	if info.Description == "" {
		t.Fatalf("description not carried: %+v", info)
	}
}

func TestNewServiceRejectsMismatch(t *testing.T) {
	scaler, err := LoadScaler(filepath.Join("testdata", "scaler.json"))
	if err != nil {
		t.Fatalf("load scaler: %v", err)
	}
	if _, err := NewService([]string{"LB", "AC"}, scaler, loadTestBooster(t), nil); err == nil {
		t.Fatalf("expected feature count error")
	}
	swapped := append([]string(nil), DefaultFeatureNames...)
	swapped[0], swapped[1] = swapped[1], swapped[0]
	if _, err := NewService(swapped, scaler, loadTestBooster(t), nil); err == nil {
		t.Fatalf("expected column order error")
	}
}

func TestTopAttributions(t *testing.T) {
	attributions := map[string]float64{"LB": 0.1, "ASTV": -0.5, "DP": 0.5, "AC": 0.01}
	top := TopAttributions(attributions, 3)
	if len(top) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(top))
	}
	if top[0].Feature != "ASTV" || top[1].Feature != "DP" || top[2].Feature != "LB" {
		t.Fatalf("unexpected order: %+v", top)
	}
	if got := TopAttributionMap(attributions, 10); len(got) != 4 {
		t.Fatalf("expected all entries when k exceeds size, got %d", len(got))
	}
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
