package guidelines

import "ctgenie/ml"

// PatientContext is the optional demographic block sent with a prediction request.
type PatientContext struct {
	PatientID           string   `json:"patient_id,omitempty"`
	Age                 int      `json:"age"`
	GestationalAgeWeeks float64  `json:"gestational_age_weeks"`
	Gravida             int      `json:"gravida"`
	Para                int      `json:"para"`
	RiskFactors         []string `json:"risk_factors"`
}

func (p *PatientContext) hasRisk(risk string) bool {
	if p == nil {
		return false
	}
	for _, r := range p.RiskFactors {
		if r == risk {
			return true
		}
	}
	return false
}

// Recommend returns the bedside actions for a classification.
func Recommend(label ml.Label, features ml.FeatureVector, patient *PatientContext) []string {
	switch label {
	case ml.Normal:
		return []string{
			"Continue routine fetal monitoring",
			"Reassess in 30 minutes or per protocol",
			"Document normal tracing characteristics",
		}
	case ml.Suspect:
		out := []string{
			"⚠️ Category 2 (Indeterminate) pattern detected",
			"Implement conservative measures: maternal repositioning, hydration, oxygen supplementation",
			"Perform fetal scalp stimulation to assess reactivity",
			"Reassess in 15-30 minutes",
			"Notify physician if pattern persists or worsens",
		}
		if patient.hasRisk("Hypertension") {
			out = append(out, "📋 Note: Hypertensive disorder present - lower threshold for intervention")
		}
		return out
	default:
		out := []string{
			"🚨 Category 3 (Abnormal) pattern detected - IMMEDIATE ACTION REQUIRED",
			"1. Call for immediate physician evaluation",
			"2. Initiate intrauterine resuscitation: lateral position, oxygen 10L/min, IV fluid bolus",
			"3. Discontinue oxytocin if applicable",
			"4. Prepare for possible expedited delivery",
			"5. Assemble delivery team",
		}
		if astv, ok := features["ASTV"]; ok && astv < 30 {
			out = append(out, "📊 Reduced variability noted - concerning for fetal compromise")
		}
		if features["DP"] > 0 {
			out = append(out, "📊 Prolonged decelerations detected - assess for cord compression or placental abruption")
		}
		return out
	}
}
