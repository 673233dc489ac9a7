package cases

import "ctgenie/ml"

// CaseRecord is one synthetic patient case from a batch file.
type CaseRecord struct {
	CaseID            string           `json:"case_id"`
	NSPLabel          string           `json:"nsp_label"`
	Demographics      Demographics     `json:"demographics"`
	CTGFeatures       ml.FeatureVector `json:"ctg_features"`
	Outcome           Outcome          `json:"outcome"`
	ClinicalNarrative string           `json:"clinical_narrative"`
}

// Demographics describes the mother at admission.
type Demographics struct {
	Age                 int      `json:"age"`
	Gravida             int      `json:"gravida"`
	Para                int      `json:"para"`
	GestationalAgeWeeks float64  `json:"gestational_age_weeks"`
	RiskFactors         []string `json:"risk_factors"`
	AdmissionDate       string   `json:"admission_date"`
}

// Outcome records delivery and neonatal results.
type Outcome struct {
	DeliveryMode          string   `json:"delivery_mode"`
	Apgar1Min             int      `json:"apgar_1min"`
	Apgar5Min             int      `json:"apgar_5min"`
	BirthWeightGrams      int      `json:"birth_weight_grams"`
	NICUAdmission         bool     `json:"nicu_admission"`
	Interventions         []string `json:"interventions"`
	MaternalComplications []string `json:"maternal_complications"`
	NeonatalComplications []string `json:"neonatal_complications"`
}

// SimilarEntry is the curated neighbour list for one case in similar_cases_database.json.
type SimilarEntry struct {
	SimilarCaseIDs []string `json:"similar_case_ids"`
	Summary        string   `json:"summary"`
}

// SimilarCase is a CaseRecord returned from a lookup, with its score and essay.
type SimilarCase struct {
	CaseRecord
	SimilarityScore float64 `json:"similarity_score"`
	CaseStudyEssay  string  `json:"case_study_essay"`
}

// riskFactors drops the "None" placeholder the generator writes for low-risk patients.
func (d Demographics) riskFactors() []string {
	if len(d.RiskFactors) == 0 || d.RiskFactors[0] == "None" {
		return nil
	}
	return d.RiskFactors
}
