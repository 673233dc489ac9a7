package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// FeatureVector maps a CTG feature name to its raw (unscaled) value.
type FeatureVector map[string]float64

// UnmarshalJSON drops keys whose value is null, so an absent measurement is
// reported as missing instead of decoding to zero.
func (f *FeatureVector) UnmarshalJSON(data []byte) error {
	var raw map[string]*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*f = nil
		return nil
	}
	out := make(FeatureVector, len(raw))
	for name, value := range raw {
		if value != nil {
			out[name] = *value
		}
	}
	*f = out
	return nil
}

// DefaultFeatureNames is the column order the shipped model was trained on.
// The authoritative list is feature_names.json next to the model.
var DefaultFeatureNames = []string{
	"LB", "AC", "FM", "UC", "DL", "DS", "DP",
	"ASTV", "MSTV", "ALTV", "MLTV",
	"Width", "Min", "Max", "Nmax", "Nzeros", "Mode", "Mean", "Median", "Variance", "Tendency",
	"LBE", "DR", "AD", "DE", "LD", "FS", "SUSP", "E",
}

// InvalidInputError reports a feature vector that cannot be fed to the model.
type InvalidInputError struct {
	Missing []string
	Invalid []string
	Reason  string
}

func (e *InvalidInputError) Error() string {
	var parts []string
	if e.Reason != "" {
		parts = append(parts, e.Reason)
	}
	if len(e.Missing) > 0 {
		parts = append(parts, "missing features: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "non-finite features: "+strings.Join(e.Invalid, ", "))
	}
	if len(parts) == 0 {
		return "invalid input"
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// Vectorize orders features by names. Every name must be present with a finite value;
// keys outside names are ignored.
func Vectorize(names []string, features FeatureVector) ([]float64, error) {
	if len(features) == 0 {
		return nil, &InvalidInputError{Reason: "ctg_features is empty", Missing: sortedCopy(names)}
	}
	vector := make([]float64, len(names))
	var missing, invalid []string
	for i, name := range names {
		value, ok := features[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		if math.IsNaN(value) || math.IsInf(value, 0) {
			invalid = append(invalid, name)
			continue
		}
		vector[i] = value
	}
	if len(missing) > 0 || len(invalid) > 0 {
		sort.Strings(missing)
		sort.Strings(invalid)
		return nil, &InvalidInputError{Missing: missing, Invalid: invalid}
	}
	return vector, nil
}

// RequireKeys checks a subset of keys, for callers that only read a few features.
func RequireKeys(features FeatureVector, keys ...string) error {
	_, err := Vectorize(keys, features)
	return err
}

func validateFeatureNames(names []string) error {
	if len(names) == 0 {
		return fmt.Errorf("feature list is empty")
	}
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("feature list contains an empty name")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate feature %q", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

func sortedCopy(values []string) []string {
	out := append([]string(nil), values...)
	sort.Strings(out)
	return out
}
