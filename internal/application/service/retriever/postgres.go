package retriever

import (
	"context"
	"fmt"
	"sort"

	"github.com/pgvector/pgvector-go"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/climatequery/engine/internal/logger"
	"github.com/climatequery/engine/internal/types"
	"github.com/climatequery/engine/internal/types/interfaces"
)

// PostgresVectorIndexClient runs the dense and sparse legs of hybrid
// retrieval as independent pgvector/ParadeDB queries against a single
// passages table, using halfvec cosine-distance ordering for the dense
// leg and a paradedb.match query for the sparse leg.
type PostgresVectorIndexClient struct {
	db        *gorm.DB
	alpha     float64
	tokenizer *sparseTokenizer
}

// NewPostgresVectorIndexClient builds a VectorIndexClient backed by the
// given gorm connection. alpha is the hybrid blend weight: 1.0 is
// dense-only, 0.0 is sparse-only.
func NewPostgresVectorIndexClient(db *gorm.DB, alpha float64) interfaces.VectorIndexClient {
	return &PostgresVectorIndexClient{db: db, alpha: alpha, tokenizer: newSparseTokenizer()}
}

type scoredRow struct {
	PassageRecord
	Score float64
}

// Search runs the dense vector query and the sparse full-text query
// concurrently and blends their scores. queryText drives the sparse leg;
// denseVector drives the dense leg. A passage surfaced by only one leg
// keeps that leg's contribution and scores zero on the other.
func (c *PostgresVectorIndexClient) Search(
	ctx context.Context, queryText string, denseVector []float32, topK int,
) ([]types.Passage, error) {
	var dense, sparse []scoredRow
	g, gctx := errgroup.WithContext(ctx)

	if len(denseVector) > 0 {
		g.Go(func() error {
			rows, err := c.denseSearch(gctx, denseVector, topK)
			if err != nil {
				return fmt.Errorf("dense search: %w", err)
			}
			dense = rows
			return nil
		})
	}
	if queryText != "" {
		g.Go(func() error {
			rows, err := c.sparseSearch(gctx, c.tokenizer.PrepareSparseQuery(queryText), topK)
			if err != nil {
				return fmt.Errorf("sparse search: %w", err)
			}
			sparse = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := mergeScoredRows(dense, sparse, c.alpha)
	logger.GetLogger(ctx).Debugf(
		"[retriever] postgres hybrid search: dense=%d sparse=%d merged=%d", len(dense), len(sparse), len(merged),
	)

	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged, nil
}

// Close releases the tokenizer's dictionary resources.
func (c *PostgresVectorIndexClient) Close() error {
	c.tokenizer.Close()
	return nil
}

func (c *PostgresVectorIndexClient) denseSearch(
	ctx context.Context, denseVector []float32, topK int,
) ([]scoredRow, error) {
	dimension := len(denseVector)
	var rows []scoredRow
	err := c.db.WithContext(ctx).Model(&PassageRecord{}).
		Select(fmt.Sprintf(
			"passages.*, (1 - (dense_embedding::halfvec(%d) <=> ?::halfvec)) as score", dimension,
		), pgvector.NewHalfVector(denseVector)).
		Clauses(clause.Expr{SQL: "dimension = ?", Vars: []interface{}{dimension}}).
		Order(clause.Expr{
			SQL:  fmt.Sprintf("dense_embedding::halfvec(%d) <=> ?::halfvec", dimension),
			Vars: []interface{}{pgvector.NewHalfVector(denseVector)},
		}).
		Limit(topK).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *PostgresVectorIndexClient) sparseSearch(
	ctx context.Context, queryText string, topK int,
) ([]scoredRow, error) {
	var rows []scoredRow
	err := c.db.WithContext(ctx).Model(&PassageRecord{}).
		Select("passages.*, paradedb.score(id) as score").
		Clauses(clause.Expr{
			SQL:  "id @@@ paradedb.match(field => 'text', value => ?, distance => 1)",
			Vars: []interface{}{queryText},
		}).
		Order("paradedb.score(id) DESC").
		Limit(topK).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeScoredRows blends dense and sparse score sets by alpha, min-max
// normalizing each leg independently before combining so neither scale
// dominates the other, and returns the union ordered by blended score.
func mergeScoredRows(dense, sparse []scoredRow, alpha float64) []types.Passage {
	denseNorm := normalizeScores(dense)
	sparseNorm := normalizeScores(sparse)

	type blended struct {
		record      PassageRecord
		denseScore  float64
		sparseScore float64
	}
	byID := make(map[string]*blended)
	order := make([]string, 0, len(dense)+len(sparse))

	for _, row := range dense {
		byID[row.ID] = &blended{record: row.PassageRecord, denseScore: denseNorm[row.ID]}
		order = append(order, row.ID)
	}
	for _, row := range sparse {
		if b, ok := byID[row.ID]; ok {
			b.sparseScore = sparseNorm[row.ID]
			continue
		}
		byID[row.ID] = &blended{record: row.PassageRecord, sparseScore: sparseNorm[row.ID]}
		order = append(order, row.ID)
	}

	passages := make([]types.Passage, 0, len(order))
	combinedScores := make(map[string]float64, len(order))
	for _, id := range order {
		b := byID[id]
		combinedScores[id] = alpha*b.denseScore + (1-alpha)*b.sparseScore
		passages = append(passages, types.Passage{
			ID:           b.record.ID,
			Title:        b.record.Title,
			URL:          b.record.URL,
			SectionTitle: b.record.SectionTitle,
			Text:         b.record.Text,
			DenseScore:   b.denseScore,
			SparseScore:  b.sparseScore,
		})
	}

	sort.Slice(passages, func(i, j int) bool {
		return combinedScores[passages[i].ID] > combinedScores[passages[j].ID]
	})
	return passages
}

func normalizeScores(rows []scoredRow) map[string]float64 {
	norm := make(map[string]float64, len(rows))
	if len(rows) == 0 {
		return norm
	}
	min, max := rows[0].Score, rows[0].Score
	for _, r := range rows {
		if r.Score < min {
			min = r.Score
		}
		if r.Score > max {
			max = r.Score
		}
	}
	spread := max - min
	for _, r := range rows {
		if spread == 0 {
			norm[r.ID] = 1
			continue
		}
		norm[r.ID] = (r.Score - min) / spread
	}
	return norm
}
