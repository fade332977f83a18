// Package retriever implements the read-only VectorIndexClient adapters
// the orchestrator's Retriever plugin queries for hybrid dense+sparse
// passage retrieval. Passages are loaded out of band (a separate indexing
// job owns that), so this package never writes to the index: it only
// ever runs Search.
package retriever

import "time"

// PassageRecord is the gorm model backing the postgres VectorIndexClient.
// It carries no knowledge-base, tenant, or chunk linkage: the climate
// passage corpus is a single flat, pre-curated collection rather than a
// set of per-tenant ingested knowledge bases.
type PassageRecord struct {
	ID           string    `gorm:"column:id;primaryKey"`
	Title        string    `gorm:"column:title"`
	URL          *string   `gorm:"column:url"`
	SectionTitle *string   `gorm:"column:section_title"`
	Text         string    `gorm:"column:text"`
	Dimension    int       `gorm:"column:dimension"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

// TableName pins the gorm model to the passages table regardless of the
// struct's Go name.
func (PassageRecord) TableName() string {
	return "passages"
}
