package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-health-api/internal/models"
)

// CatalogRepository reads location and symptom reference data.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository constructs the repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// ListLocations returns buildings before rooms, each ordered by id.
func (r *CatalogRepository) ListLocations(ctx context.Context) ([]models.Location, error) {
	const query = `SELECT id, name, building, floor, kind, parent_id FROM locations ORDER BY kind, id`
	locations := make([]models.Location, 0)
	if err := r.db.SelectContext(ctx, &locations, query); err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	return locations, nil
}

// ListSymptoms returns symptoms ordered by category then name.
func (r *CatalogRepository) ListSymptoms(ctx context.Context) ([]models.Symptom, error) {
	const query = `SELECT id, key, name, category, icon, severity FROM symptoms ORDER BY category, name`
	symptoms := make([]models.Symptom, 0)
	if err := r.db.SelectContext(ctx, &symptoms, query); err != nil {
		return nil, fmt.Errorf("list symptoms: %w", err)
	}
	return symptoms, nil
}
