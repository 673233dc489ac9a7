package cases

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ctgenie/ml"
)

func loadTestStore(t *testing.T) *Store {
	t.Helper()
	records, err := LoadBatches("testdata", 3, zap.NewNop())
	require.NoError(t, err)
	table, err := LoadSimilarTable(filepath.Join("testdata", "similar_cases_database.json"))
	require.NoError(t, err)
	return NewStore(records, table)
}

func query(lb, astv, ac float64) ml.FeatureVector {
	return ml.FeatureVector{"LB": lb, "ASTV": astv, "AC": ac}
}

func TestLoadBatchesSkipsMissing(t *testing.T) {
	store := loadTestStore(t)
	assert.Equal(t, 4, store.Len())
	assert.Equal(t, 2, store.TableLen())
	_, ok := store.Case("CASE-0003")
	assert.True(t, ok)
}

func TestMatchPatientTolerance(t *testing.T) {
	store := loadTestStore(t)

	match, ok := store.MatchPatient(query(120.5, 45.9, 0.0031))
	require.True(t, ok)
	assert.Equal(t, "CASE-0001", match.CaseID)

	_, ok = store.MatchPatient(query(121.0, 45, 0.003))
	assert.False(t, ok, "LB difference of exactly 1 is outside tolerance")

	_, ok = store.MatchPatient(query(120, 45, 0.02))
	assert.False(t, ok)
}

func TestSimilarCasesTableOrder(t *testing.T) {
	store := loadTestStore(t)

	similar, summary, err := store.SimilarCases(query(120, 45, 0.003), 3)
	require.NoError(t, err)
	require.Len(t, similar, 2)
	assert.Equal(t, "CASE-0002", similar[0].CaseID)
	assert.Equal(t, "CASE-0004", similar[1].CaseID)
	for _, c := range similar {
		assert.Equal(t, TableSimilarityScore, c.SimilarityScore)
		assert.Contains(t, c.CaseStudyEssay, "**Case Presentation:**")
	}
	assert.Contains(t, summary, "## Clinical Case Summary Analysis (2 Similar Cases)")
}

func TestSimilarCasesRespectsTopK(t *testing.T) {
	store := loadTestStore(t)
	for k := 1; k <= 5; k++ {
		similar, _, err := store.SimilarCases(query(120, 45, 0.003), k)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(similar), k)
		for _, c := range similar {
			_, ok := store.Case(c.CaseID)
			assert.True(t, ok)
		}
	}
}

func TestSimilarCasesCuratedSummary(t *testing.T) {
	store := loadTestStore(t)
	similar, summary, err := store.SimilarCases(query(152, 79, 0), 5)
	require.NoError(t, err)
	require.Len(t, similar, 1)
	assert.Equal(t, "Curated summary for the pathological patient.", summary)
}

func TestSimilarCasesNoMatch(t *testing.T) {
	store := loadTestStore(t)

	similar, summary, err := store.SimilarCases(query(100, 10, 1), 5)
	require.NoError(t, err)
	assert.Empty(t, similar)
	assert.Equal(t, NoCasesSummary, summary)

	// CASE-0004 matches but has no curated entry.
	similar, summary, err = store.SimilarCases(query(131, 41, 0.004), 5)
	require.NoError(t, err)
	assert.Empty(t, similar)
	assert.Equal(t, NoCasesSummary, summary)
}

func TestSimilarCasesInvalidInput(t *testing.T) {
	store := loadTestStore(t)

	_, _, err := store.SimilarCases(query(120, 45, 0.003), 0)
	var invalid *ml.InvalidInputError
	assert.True(t, errors.As(err, &invalid))

	_, _, err = store.SimilarCases(ml.FeatureVector{"LB": 120}, 5)
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, []string{"AC", "ASTV"}, invalid.Missing)
}

func TestEmptyStore(t *testing.T) {
	store := NewStore(nil, nil)
	similar, summary, err := store.SimilarCases(query(120, 45, 0.003), 5)
	require.NoError(t, err)
	assert.Empty(t, similar)
	assert.Equal(t, NoCasesSummary, summary)
}
