package retriever

import (
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"
	"gorm.io/gorm"

	"github.com/climatequery/engine/internal/config"
	"github.com/climatequery/engine/internal/types/interfaces"
)

// NewVectorIndexClient selects the configured driver. db and esClient may
// both be nil; only the one matching cfg.Driver is required to be set.
func NewVectorIndexClient(
	cfg *config.VectorConfig, db *gorm.DB, esClient *elasticsearch.TypedClient, hybridAlpha float64,
) (interfaces.VectorIndexClient, error) {
	switch cfg.Driver {
	case "postgres", "":
		if db == nil {
			return nil, fmt.Errorf("postgres vector index client requires a database connection")
		}
		return NewPostgresVectorIndexClient(db, hybridAlpha), nil
	case "elasticsearch":
		if esClient == nil {
			return nil, fmt.Errorf("elasticsearch vector index client requires a client")
		}
		index := cfg.Index
		if index == "" {
			index = "climate_passages"
		}
		return NewElasticsearchVectorIndexClient(esClient, index, hybridAlpha), nil
	default:
		return nil, fmt.Errorf("unsupported vector index driver: %s", cfg.Driver)
	}
}
