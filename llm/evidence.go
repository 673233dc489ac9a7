package llm

import (
	"errors"
	"fmt"
	"math"

	"ctgenie/ml"
)

const (
	DirUp      = "↑"
	DirDown    = "↓"
	DirUnknown = "?"
)

// Evidence is what the prompts are built from: a label and its strongest drivers.
type Evidence struct {
	Label       string            `json:"label"`
	TopFeatures []EvidenceFeature `json:"top_features"`
	ModelCard   *ModelCard        `json:"model_card,omitempty"`
}

// EvidenceFeature is one attributed feature as shown to the model.
type EvidenceFeature struct {
	NameRaw    string  `json:"name_raw"`
	NameParent string  `json:"name_parent"`
	NameDoctor string  `json:"name_doctor"`
	DescParent string  `json:"desc_parent"`
	DescDoctor string  `json:"desc_doctor"`
	Unit       string  `json:"unit"`
	Value      float64 `json:"value"`
	Ref        string  `json:"ref"`
	Shap       float64 `json:"shap"`
	Dir        string  `json:"dir"`
}

// ModelCard names the classifier in the doctor prompt.
type ModelCard struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// BuildEvidence keeps the k attributions with the largest magnitude and decorates each with
// glossary wording and a direction against its reference range.
func BuildEvidence(label string, attributions map[string]float64, values ml.FeatureVector, k int,
	glossary map[string]GlossaryEntry, refs map[string]RefRange, card *ModelCard) (*Evidence, error) {
	if k < 1 {
		return nil, fmt.Errorf("k must be at least 1, got %d", k)
	}
	evidence := &Evidence{Label: label, ModelCard: card}
	for _, a := range ml.TopAttributions(attributions, k) {
		value, ok := values[a.Feature]
		if !ok {
			return nil, fmt.Errorf("no value for feature %q", a.Feature)
		}
		f := EvidenceFeature{
			NameRaw:    a.Feature,
			NameParent: a.Feature,
			NameDoctor: a.Feature,
			Value:      value,
			Ref:        "—",
			Shap:       a.Shap,
		}
		if g, ok := glossary[a.Feature]; ok {
			f.NameParent = orDefault(g.ParentName, f.NameParent)
			f.NameDoctor = orDefault(g.DoctorName, f.NameDoctor)
			f.DescParent = g.ParentDesc
			f.DescDoctor = g.DoctorDesc
			f.Unit = g.Unit
			f.Ref = orDefault(g.Ref, f.Ref)
		}
		var r RefRange
		if rr, ok := refs[a.Feature]; ok {
			r = rr
			f.Ref = orDefault(rr.Ref, f.Ref)
		}
		f.Dir = direction(value, r)
		evidence.TopFeatures = append(evidence.TopFeatures, f)
	}
	return evidence, nil
}

// ValidateEvidence rejects evidence the prompts cannot be built from.
func ValidateEvidence(e *Evidence) error {
	if e == nil || e.Label == "" {
		return errors.New("evidence missing label")
	}
	if len(e.TopFeatures) == 0 {
		return errors.New("evidence has no top features")
	}
	for i, f := range e.TopFeatures {
		if f.NameRaw == "" && f.NameParent == "" && f.NameDoctor == "" {
			return fmt.Errorf("top_features[%d] has no name", i)
		}
		if math.IsNaN(f.Value) || math.IsNaN(f.Shap) {
			return fmt.Errorf("top_features[%d] has no value or shap", i)
		}
		if f.Dir != DirUp && f.Dir != DirDown && f.Dir != DirUnknown {
			return fmt.Errorf("top_features[%d] has invalid direction %q", i, f.Dir)
		}
	}
	return nil
}

func direction(value float64, r RefRange) string {
	if r.Low == nil || r.High == nil {
		return DirUnknown
	}
	switch {
	case value > *r.High:
		return DirUp
	case value < *r.Low:
		return DirDown
	default:
		return DirUnknown
	}
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
