package cases

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"ctgenie/ml"
)

const (
	// TableSimilarityScore is reported for every curated neighbour.
	TableSimilarityScore = 0.95

	// NoCasesSummary is returned when a query matches no curated entry.
	NoCasesSummary = "No similar cases available for analysis."
)

// Match tolerances on the three lookup features.
const (
	lbTolerance   = 1.0
	astvTolerance = 1.0
	acTolerance   = 0.01
)

var lookupKeys = []string{"LB", "ASTV", "AC"}

// Store holds the case table and the curated similarity table. It is read-only after NewStore.
type Store struct {
	records []CaseRecord
	byID    map[string]int
	table   map[string]SimilarEntry
}

// NewStore indexes records by case id. Either argument may be nil.
func NewStore(records []CaseRecord, table map[string]SimilarEntry) *Store {
	s := &Store{
		records: records,
		byID:    make(map[string]int, len(records)),
		table:   table,
	}
	for i, record := range records {
		if _, dup := s.byID[record.CaseID]; !dup {
			s.byID[record.CaseID] = i
		}
	}
	if s.table == nil {
		s.table = map[string]SimilarEntry{}
	}
	return s
}

// LoadBatches reads batch_001.json through batch_NNN.json from dir. Missing batches are skipped.
func LoadBatches(dir string, batches int, logger *zap.Logger) ([]CaseRecord, error) {
	var records []CaseRecord
	for n := 1; n <= batches; n++ {
		path := filepath.Join(dir, fmt.Sprintf("batch_%03d.json", n))
		payload, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("case batch not found, skipping", zap.String("path", path))
			continue
		}
		if err != nil {
			return nil, err
		}
		var batch []CaseRecord
		if err := json.Unmarshal(payload, &batch); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		logger.Info("loaded case batch", zap.String("path", path), zap.Int("cases", len(batch)))
		records = append(records, batch...)
	}
	return records, nil
}

// LoadSimilarTable reads similar_cases_database.json, keyed by case id.
func LoadSimilarTable(path string) (map[string]SimilarEntry, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var table map[string]SimilarEntry
	if err := json.Unmarshal(payload, &table); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return table, nil
}

// Len is the number of loaded case records.
func (s *Store) Len() int {
	return len(s.records)
}

// TableLen is the number of similar-case table entries.
func (s *Store) TableLen() int {
	return len(s.table)
}

// Case returns the record with id.
func (s *Store) Case(id string) (CaseRecord, bool) {
	idx, ok := s.byID[id]
	if !ok {
		return CaseRecord{}, false
	}
	return s.records[idx], true
}

// MatchPatient returns the first case whose LB, ASTV and AC sit within tolerance of the query.
func (s *Store) MatchPatient(features ml.FeatureVector) (CaseRecord, bool) {
	lb, astv, ac := features["LB"], features["ASTV"], features["AC"]
	for _, record := range s.records {
		ctg := record.CTGFeatures
		if math.Abs(ctg["LB"]-lb) < lbTolerance &&
			math.Abs(ctg["ASTV"]-astv) < astvTolerance &&
			math.Abs(ctg["AC"]-ac) < acTolerance {
			return record, true
		}
	}
	return CaseRecord{}, false
}

// SimilarCases looks the query up in the curated table and returns at most topK neighbours
// in table order, with the summary for the set.
func (s *Store) SimilarCases(features ml.FeatureVector, topK int) ([]SimilarCase, string, error) {
	if topK < 1 {
		return nil, "", &ml.InvalidInputError{Reason: fmt.Sprintf("top_k must be at least 1, got %d", topK)}
	}
	if err := ml.RequireKeys(features, lookupKeys...); err != nil {
		return nil, "", err
	}
	patient, ok := s.MatchPatient(features)
	if !ok {
		return []SimilarCase{}, NoCasesSummary, nil
	}
	entry, ok := s.table[patient.CaseID]
	if !ok {
		return []SimilarCase{}, NoCasesSummary, nil
	}

	ids := entry.SimilarCaseIDs
	if len(ids) > topK {
		ids = ids[:topK]
	}
	similar := make([]SimilarCase, 0, len(ids))
	for _, id := range ids {
		record, ok := s.Case(id)
		if !ok {
			continue
		}
		similar = append(similar, SimilarCase{
			CaseRecord:      record,
			SimilarityScore: TableSimilarityScore,
			CaseStudyEssay:  Essay(record),
		})
	}

	summary := entry.Summary
	if summary == "" {
		records := make([]CaseRecord, len(similar))
		for i, c := range similar {
			records[i] = c.CaseRecord
		}
		summary = Summarize(records)
	}
	return similar, summary, nil
}
