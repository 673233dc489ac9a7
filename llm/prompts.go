package llm

import (
	"fmt"
	"strconv"
	"strings"
)

const ParentSystem = "You are a health communication assistant. " +
	"Use only the evidence provided. " +
	"No diagnosis or prescriptions. " +
	"Write for non-experts at middle-school reading level. " +
	"Explain why the model produced this label and suggest next-step actions " +
	"that should be discussed with a clinician. If evidence is insufficient, say so."

const DoctorSystem = "You are a clinical decision explanation assistant. " +
	"Use only the provided evidence; do not invent facts. " +
	"Be quantitative, traceable, and aligned with the given SHAP attributions. " +
	"Discuss potential limitations and confounders. " +
	"No prescriptions. Output is for clinician review and does not replace judgment."

const parentFeatureLimit = 5

func BuildParentUser(e *Evidence) string {
	lines := []string{
		"Model label: " + labelOrUnknown(e.Label),
		"Key factors (ordered by impact, up to 5):",
	}
	for i, f := range e.TopFeatures {
		if i == parentFeatureLimit {
			break
		}
		line := fmt.Sprintf("- %s%s: value %s (ref %s), direction %s.",
			f.NameParent, unitSuffix(f.Unit), formatValue(f.Value), f.Ref, f.Dir)
		if f.DescParent != "" {
			line += " Meaning: " + f.DescParent
		}
		lines = append(lines, line)
	}
	lines = append(lines, "",
		"Please produce:",
		"1) One-sentence summary of the situation (avoid absolute statements).",
		"2) Why the model produced this label (map to the factors above using everyday language).",
		"3) Next steps the family can take (e.g., what to prepare when talking to the clinician, harmless lifestyle considerations).",
		"4) Closing disclaimer: this is an explanation, not a diagnosis; defer to clinical judgment.",
	)
	return strings.Join(lines, "\n")
}

func BuildDoctorUser(e *Evidence) string {
	name, version := "UNKNOWN_MODEL", "v0"
	if e.ModelCard != nil {
		name = orDefault(e.ModelCard.Name, name)
		version = orDefault(e.ModelCard.Version, version)
	}
	lines := []string{
		"Discrete prediction (no probability provided): " + labelOrUnknown(e.Label),
		fmt.Sprintf("Model: %s (%s)", name, version),
		"Top factors (with SHAP and direction):",
	}
	for _, f := range e.TopFeatures {
		line := fmt.Sprintf("- %s%s = %s (ref %s), SHAP=%s, dir %s.",
			f.NameDoctor, unitSuffix(f.Unit), formatValue(f.Value), f.Ref, formatValue(f.Shap), f.Dir)
		if f.DescDoctor != "" {
			line += " Note: " + f.DescDoctor
		}
		lines = append(lines, line)
	}
	lines = append(lines, "",
		"Please produce:",
		"1) Interpretation of the discrete prediction and the primary drivers (factor-by-factor, mechanism hypotheses using general, conservative clinical knowledge).",
		"2) Potential confounders and model limitations (data bias, proxy variables, external validity).",
		"3) Suggested verification points for clinician review (tests to consider, follow-up indicators) without prescribing.",
		"4) Disclaimer: explanation based on local SHAP; does not replace clinical judgment.",
	)
	return strings.Join(lines, "\n")
}

func labelOrUnknown(label string) string {
	if label == "" {
		return "UNKNOWN"
	}
	return label
}

func unitSuffix(unit string) string {
	if unit == "" {
		return ""
	}
	return " " + unit
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}
