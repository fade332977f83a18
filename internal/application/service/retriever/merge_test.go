package retriever

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeScores(t *testing.T) {
	rows := []scoredRow{
		{PassageRecord: PassageRecord{ID: "a"}, Score: 10},
		{PassageRecord: PassageRecord{ID: "b"}, Score: 5},
		{PassageRecord: PassageRecord{ID: "c"}, Score: 0},
	}
	norm := normalizeScores(rows)
	assert.Equal(t, 1.0, norm["a"])
	assert.Equal(t, 0.5, norm["b"])
	assert.Equal(t, 0.0, norm["c"])
}

func TestNormalizeScores_SingleRow(t *testing.T) {
	rows := []scoredRow{{PassageRecord: PassageRecord{ID: "a"}, Score: 3}}
	norm := normalizeScores(rows)
	assert.Equal(t, 1.0, norm["a"])
}

func TestNormalizeScores_Empty(t *testing.T) {
	assert.Empty(t, normalizeScores(nil))
}

func TestMergeScoredRows_BlendsOverlapAndUnion(t *testing.T) {
	dense := []scoredRow{
		{PassageRecord: PassageRecord{ID: "p1", Title: "Sea level rise"}, Score: 0.9},
		{PassageRecord: PassageRecord{ID: "p2", Title: "Carbon budgets"}, Score: 0.4},
	}
	sparse := []scoredRow{
		{PassageRecord: PassageRecord{ID: "p2", Title: "Carbon budgets"}, Score: 8},
		{PassageRecord: PassageRecord{ID: "p3", Title: "Methane"}, Score: 2},
	}

	merged := mergeScoredRows(dense, sparse, 0.5)

	assert.Len(t, merged, 3)
	ids := make([]string, 0, len(merged))
	for _, p := range merged {
		ids = append(ids, p.ID)
	}
	assert.ElementsMatch(t, []string{"p1", "p2", "p3"}, ids)

	// Each leg is min-max normalized on its own: p1 tops the dense leg (1)
	// and p2 is its minimum (0); p2 tops the sparse leg (1) and p3 is its
	// minimum (0). A leg a passage is missing from contributes 0.
	for _, p := range merged {
		if p.ID == "p2" {
			assert.Equal(t, 0.0, p.DenseScore)
			assert.Equal(t, 1.0, p.SparseScore)
		}
		if p.ID == "p1" {
			assert.Equal(t, 1.0, p.DenseScore)
			assert.Equal(t, 0.0, p.SparseScore)
		}
		if p.ID == "p3" {
			assert.Equal(t, 0.0, p.DenseScore)
			assert.Equal(t, 0.0, p.SparseScore)
		}
	}

	assert.Equal(t, "p3", merged[2].ID, "p3 ranks last: it blends to 0 while p1 and p2 each blend to 0.5")
}

func TestMergeScoredRows_DenseOnly(t *testing.T) {
	dense := []scoredRow{
		{PassageRecord: PassageRecord{ID: "p1"}, Score: 0.9},
		{PassageRecord: PassageRecord{ID: "p2"}, Score: 0.1},
	}
	merged := mergeScoredRows(dense, nil, 0.7)
	assert.Len(t, merged, 2)
	assert.Equal(t, "p1", merged[0].ID)
}
