package retriever

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/typedapi/core/search"
	estypes "github.com/elastic/go-elasticsearch/v8/typedapi/types"

	"github.com/climatequery/engine/internal/logger"
	"github.com/climatequery/engine/internal/types"
	"github.com/climatequery/engine/internal/types/interfaces"
)

// ElasticsearchVectorIndexClient runs the same dense/sparse hybrid search
// as PostgresVectorIndexClient against a single passages index, using a
// script_score cosine-similarity query for the dense leg and a keyword
// match query for the sparse leg.
type ElasticsearchVectorIndexClient struct {
	client    *elasticsearch.TypedClient
	index     string
	alpha     float64
	tokenizer *sparseTokenizer
}

// NewElasticsearchVectorIndexClient builds a VectorIndexClient against the
// named index. The index is assumed to already exist with a dense_vector
// field named "dense_embedding" and a text field named "text": this
// adapter never creates or writes to the index, only queries it.
func NewElasticsearchVectorIndexClient(
	client *elasticsearch.TypedClient, index string, alpha float64,
) interfaces.VectorIndexClient {
	return &ElasticsearchVectorIndexClient{client: client, index: index, alpha: alpha, tokenizer: newSparseTokenizer()}
}

type esPassageDoc struct {
	Title        string  `json:"title"`
	URL          *string `json:"url,omitempty"`
	SectionTitle *string `json:"section_title,omitempty"`
	Text         string  `json:"text"`
}

// Search runs the dense and sparse legs sequentially against Elasticsearch
// and blends their scores the same way the postgres adapter does.
func (c *ElasticsearchVectorIndexClient) Search(
	ctx context.Context, queryText string, denseVector []float32, topK int,
) ([]types.Passage, error) {
	var dense, sparse []scoredRow
	var err error

	if len(denseVector) > 0 {
		dense, err = c.denseSearch(ctx, denseVector, topK)
		if err != nil {
			return nil, fmt.Errorf("dense search: %w", err)
		}
	}
	if queryText != "" {
		sparse, err = c.sparseSearch(ctx, c.tokenizer.PrepareSparseQuery(queryText), topK)
		if err != nil {
			return nil, fmt.Errorf("sparse search: %w", err)
		}
	}

	merged := mergeScoredRows(dense, sparse, c.alpha)
	logger.GetLogger(ctx).Debugf(
		"[retriever] elasticsearch hybrid search: dense=%d sparse=%d merged=%d", len(dense), len(sparse), len(merged),
	)
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged, nil
}

// Close releases the tokenizer's dictionary resources.
func (c *ElasticsearchVectorIndexClient) Close() error {
	c.tokenizer.Close()
	return nil
}

func (c *ElasticsearchVectorIndexClient) denseSearch(
	ctx context.Context, denseVector []float32, topK int,
) ([]scoredRow, error) {
	vectorJSON, err := json.Marshal(denseVector)
	if err != nil {
		return nil, fmt.Errorf("marshal query vector: %w", err)
	}
	scoreSource := "cosineSimilarity(params.query_vector, 'dense_embedding') + 1.0"
	size := topK
	resp, err := c.client.Search().Index(c.index).Request(&search.Request{
		Query: &estypes.Query{
			ScriptScore: &estypes.ScriptScoreQuery{
				Query: estypes.Query{MatchAll: &estypes.MatchAllQuery{}},
				Script: estypes.Script{
					Source: &scoreSource,
					Params: map[string]json.RawMessage{"query_vector": json.RawMessage(vectorJSON)},
				},
			},
		},
		Size: &size,
	}).Do(ctx)
	if err != nil {
		return nil, err
	}
	return c.toScoredRows(resp)
}

func (c *ElasticsearchVectorIndexClient) sparseSearch(ctx context.Context, queryText string, topK int) ([]scoredRow, error) {
	size := topK
	resp, err := c.client.Search().Index(c.index).Request(&search.Request{
		Query: &estypes.Query{
			Match: map[string]estypes.MatchQuery{"text": {Query: queryText}},
		},
		Size: &size,
	}).Do(ctx)
	if err != nil {
		return nil, err
	}
	return c.toScoredRows(resp)
}

func (c *ElasticsearchVectorIndexClient) toScoredRows(resp *search.Response) ([]scoredRow, error) {
	rows := make([]scoredRow, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		var doc esPassageDoc
		if err := json.Unmarshal(hit.Source_, &doc); err != nil {
			return nil, fmt.Errorf("decode passage hit: %w", err)
		}
		var score float64
		if hit.Score_ != nil {
			score = float64(*hit.Score_)
		}
		rows = append(rows, scoredRow{
			PassageRecord: PassageRecord{
				ID:           *hit.Id_,
				Title:        doc.Title,
				URL:          doc.URL,
				SectionTitle: doc.SectionTitle,
				Text:         doc.Text,
			},
			Score: score,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Score > rows[j].Score })
	return rows, nil
}
