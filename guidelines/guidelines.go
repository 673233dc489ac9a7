package guidelines

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"golang.org/x/text/cases"

	"ctgenie/ml"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidPattern = errors.New("invalid pattern category")
)

// Guideline is one recommendation block of the document.
type Guideline struct {
	GuidelineID     string   `json:"guideline_id"`
	Category        string   `json:"category"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Recommendations []string `json:"recommendations"`
	EvidenceLevel   string   `json:"evidence_level"`
	Source          string   `json:"source"`
}

type Step struct {
	Step      int    `json:"step"`
	Action    string `json:"action"`
	Timeframe string `json:"timeframe"`
}

// InterventionAlgorithm is an ordered escalation for one pattern category.
type InterventionAlgorithm struct {
	AlgorithmID     string `json:"algorithm_id"`
	Name            string `json:"name"`
	PatternCategory string `json:"pattern_category"`
	Steps           []Step `json:"steps"`
}

// Document is the layout of ctg_interpretation_guidelines.json.
type Document struct {
	Version                string                  `json:"version"`
	Source                 string                  `json:"source"`
	Guidelines             []Guideline             `json:"guidelines"`
	InterventionAlgorithms []InterventionAlgorithm `json:"intervention_algorithms"`
}

// Library answers guideline queries over a loaded Document.
type Library struct {
	doc Document
}

// Load reads the guideline document at path.
func Load(path string) (*Library, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode guidelines: %w", err)
	}
	return New(doc), nil
}

// New wraps an already decoded document.
func New(doc Document) *Library {
	return &Library{doc: doc}
}

// Version is the document version string.
func (l *Library) Version() string { return l.doc.Version }

// Source names the guideline body the document was taken from.
func (l *Library) Source() string {
	if l.doc.Source == "" {
		return "Unknown"
	}
	return l.doc.Source
}

// Len is the number of guidelines.
func (l *Library) Len() int { return len(l.doc.Guidelines) }

// ByCategory returns the guidelines filed under topic.
func (l *Library) ByCategory(topic string) ([]Guideline, error) {
	var out []Guideline
	for _, g := range l.doc.Guidelines {
		if g.Category == topic {
			out = append(out, g)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no guidelines for category %q: %w", topic, ErrNotFound)
	}
	return out, nil
}

var patternAlgorithms = map[string]string{
	"category_2":    "INT-001",
	"indeterminate": "INT-001",
	"category_3":    "INT-002",
	"abnormal":      "INT-002",
}

// Intervention returns the step-by-step algorithm for a tracing pattern, matched case-insensitively.
func (l *Library) Intervention(pattern string) (InterventionAlgorithm, error) {
	id, ok := patternAlgorithms[cases.Fold().String(pattern)]
	if !ok {
		return InterventionAlgorithm{}, fmt.Errorf("%q: %w", pattern, ErrInvalidPattern)
	}
	for _, a := range l.doc.InterventionAlgorithms {
		if a.AlgorithmID == id {
			return a, nil
		}
	}
	return InterventionAlgorithm{}, fmt.Errorf("algorithm %s for %q: %w", id, pattern, ErrNotFound)
}

// Relevant picks the guidelines shown next to a prediction.
func (l *Library) Relevant(label ml.Label) []Guideline {
	if l == nil {
		return []Guideline{}
	}
	ids := []string{"CTG-005"}
	if label == ml.Pathological {
		ids = append(ids, "CTG-002", "CTG-004")
	}
	out := []Guideline{}
	for _, id := range ids {
		for _, g := range l.doc.Guidelines {
			if g.GuidelineID == id {
				out = append(out, g)
			}
		}
	}
	return out
}
