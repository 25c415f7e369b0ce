package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-health-api/internal/models"
)

// BayesianRepository stores the sequential risk state per location.
type BayesianRepository struct {
	db *sqlx.DB
}

// NewBayesianRepository constructs the repository.
func NewBayesianRepository(db *sqlx.DB) *BayesianRepository {
	return &BayesianRepository{db: db}
}

// List returns every stored parameter ordered by location.
func (r *BayesianRepository) List(ctx context.Context) ([]models.BayesianParameter, error) {
	const query = `SELECT location_id, prior, likelihood_ratio, posterior, evidence_count, observed_count, expected_count, window_start, last_updated
FROM bayesian_parameters ORDER BY location_id`
	params := make([]models.BayesianParameter, 0)
	if err := r.db.SelectContext(ctx, &params, query); err != nil {
		return nil, fmt.Errorf("list bayesian parameters: %w", err)
	}
	return params, nil
}

// GetByLocation returns the stored parameter for a location, or nil when none exists yet.
func (r *BayesianRepository) GetByLocation(ctx context.Context, location string) (*models.BayesianParameter, error) {
	const query = `SELECT location_id, prior, likelihood_ratio, posterior, evidence_count, observed_count, expected_count, window_start, last_updated
FROM bayesian_parameters WHERE location_id = $1`
	var param models.BayesianParameter
	if err := r.db.GetContext(ctx, &param, query, location); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get bayesian parameter: %w", err)
	}
	return &param, nil
}

// UpsertMany writes the parameters in one transaction.
func (r *BayesianRepository) UpsertMany(ctx context.Context, params []models.BayesianParameter) (err error) {
	if len(params) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert bayesian parameters: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO bayesian_parameters (location_id, prior, likelihood_ratio, posterior, evidence_count, observed_count, expected_count, window_start, last_updated)
VALUES (:location_id, :prior, :likelihood_ratio, :posterior, :evidence_count, :observed_count, :expected_count, :window_start, :last_updated)
ON CONFLICT (location_id) DO UPDATE SET prior = EXCLUDED.prior, likelihood_ratio = EXCLUDED.likelihood_ratio,
posterior = EXCLUDED.posterior, evidence_count = EXCLUDED.evidence_count, observed_count = EXCLUDED.observed_count,
expected_count = EXCLUDED.expected_count, window_start = EXCLUDED.window_start, last_updated = EXCLUDED.last_updated`
	for i := range params {
		if _, err = tx.NamedExecContext(ctx, query, &params[i]); err != nil {
			return fmt.Errorf("upsert bayesian parameter %s: %w", params[i].LocationID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert bayesian parameters: %w", err)
	}
	return nil
}
