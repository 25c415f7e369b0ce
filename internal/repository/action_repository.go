package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-health-api/internal/models"
)

// ErrOpenActionExists is returned when a hotspot action already exists for a location.
var ErrOpenActionExists = errors.New("open hotspot action exists for location")

const actionColumns = `id, description, location_id, priority, source, status, created_by, created_at, updated_at, snapshot_id, risk_score, hotspot_rank`

// ActionRepository persists suggested actions.
type ActionRepository struct {
	db *sqlx.DB
}

// NewActionRepository constructs the repository.
func NewActionRepository(db *sqlx.DB) *ActionRepository {
	return &ActionRepository{db: db}
}

// Create inserts a new action. Hotspot actions violating the open-per-location index yield
// ErrOpenActionExists.
func (r *ActionRepository) Create(ctx context.Context, action *models.SuggestedAction) error {
	if action.ID == "" {
		action.ID = uuid.NewString()
	}
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now().UTC()
	}
	if action.UpdatedAt.IsZero() {
		action.UpdatedAt = action.CreatedAt
	}
	const query = `INSERT INTO suggested_actions (` + actionColumns + `)
VALUES (:id, :description, :location_id, :priority, :source, :status, :created_by, :created_at, :updated_at, :snapshot_id, :risk_score, :hotspot_rank)`
	if _, err := r.db.NamedExecContext(ctx, query, action); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrOpenActionExists
		}
		return fmt.Errorf("create suggested action: %w", err)
	}
	return nil
}

// GetByID fetches an action. sql.ErrNoRows is returned when absent.
func (r *ActionRepository) GetByID(ctx context.Context, id string) (*models.SuggestedAction, error) {
	const query = `SELECT ` + actionColumns + ` FROM suggested_actions WHERE id = $1`
	var action models.SuggestedAction
	if err := r.db.GetContext(ctx, &action, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get suggested action: %w", err)
	}
	return &action, nil
}

// List returns actions newest first.
func (r *ActionRepository) List(ctx context.Context, filter models.ActionFilter) ([]models.SuggestedAction, error) {
	query := `SELECT ` + actionColumns + ` FROM suggested_actions`
	args := make([]interface{}, 0, 2)
	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += ` WHERE status = $1`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	actions := make([]models.SuggestedAction, 0)
	if err := r.db.SelectContext(ctx, &actions, query, args...); err != nil {
		return nil, fmt.Errorf("list suggested actions: %w", err)
	}
	return actions, nil
}

// OpenLocations returns the set of locations that have any non-completed action.
func (r *ActionRepository) OpenLocations(ctx context.Context) (map[string]struct{}, error) {
	const query = `SELECT DISTINCT location_id FROM suggested_actions WHERE status <> 'completed' AND location_id IS NOT NULL`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("list open action locations: %w", err)
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// CountOpen returns the number of non-completed actions.
func (r *ActionRepository) CountOpen(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM suggested_actions WHERE status <> 'completed'`); err != nil {
		return 0, fmt.Errorf("count open suggested actions: %w", err)
	}
	return count, nil
}

// UpdateStatus applies an optimistic conditional update. ErrStatusConflict is returned when the row no
// longer carries expected.
func (r *ActionRepository) UpdateStatus(ctx context.Context, id string, expected, next models.ActionStatus, at time.Time) (*models.SuggestedAction, error) {
	const query = `UPDATE suggested_actions SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4
RETURNING ` + actionColumns
	var action models.SuggestedAction
	if err := r.db.GetContext(ctx, &action, query, next, at.UTC(), id, expected); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStatusConflict
		}
		return nil, fmt.Errorf("update suggested action status: %w", err)
	}
	return &action, nil
}
