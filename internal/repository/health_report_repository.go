package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/samber/lo"

	"github.com/noah-isme/sma-health-api/internal/models"
)

// ErrStatusConflict signals that a conditional status update lost a race.
var ErrStatusConflict = errors.New("status changed concurrently")

const reportColumns = `id, reporter_id, symptoms, location_id, note, status, created_at, updated_at`

// HealthReportRepository persists health reports and their status history.
type HealthReportRepository struct {
	db *sqlx.DB
}

// NewHealthReportRepository constructs the repository.
func NewHealthReportRepository(db *sqlx.DB) *HealthReportRepository {
	return &HealthReportRepository{db: db}
}

// Create inserts the report together with its initial history entry.
func (r *HealthReportRepository) Create(ctx context.Context, report *models.HealthReport, actor models.Actor) (err error) {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}
	report.UpdatedAt = report.CreatedAt

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create health report: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertReport = `INSERT INTO health_reports (id, reporter_id, symptoms, location_id, note, status, created_at, updated_at)
VALUES (:id, :reporter_id, :symptoms, :location_id, :note, :status, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insertReport, report); err != nil {
		return fmt.Errorf("insert health report: %w", err)
	}

	entry := models.StatusHistoryEntry{
		ReportID:  report.ID,
		Status:    report.Status,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		ChangedAt: report.CreatedAt,
	}
	if err = insertHistory(ctx, tx, &entry); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create health report: %w", err)
	}
	report.StatusHistory = []models.StatusHistoryEntry{entry}
	return nil
}

// GetByID returns a report with its history. sql.ErrNoRows is returned when absent.
func (r *HealthReportRepository) GetByID(ctx context.Context, id string) (*models.HealthReport, error) {
	query := `SELECT ` + reportColumns + ` FROM health_reports WHERE id = $1`
	var report models.HealthReport
	if err := r.db.GetContext(ctx, &report, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get health report: %w", err)
	}
	reports := []models.HealthReport{report}
	if err := r.attachHistory(ctx, reports); err != nil {
		return nil, err
	}
	return &reports[0], nil
}

// ListByReporter returns a reporter's reports newest first.
func (r *HealthReportRepository) ListByReporter(ctx context.Context, reporterID string) ([]models.HealthReport, error) {
	query := `SELECT ` + reportColumns + ` FROM health_reports WHERE reporter_id = $1 ORDER BY created_at DESC, id DESC`
	var reports []models.HealthReport
	if err := r.db.SelectContext(ctx, &reports, query, reporterID); err != nil {
		return nil, fmt.Errorf("list reporter health reports: %w", err)
	}
	if err := r.attachHistory(ctx, reports); err != nil {
		return nil, err
	}
	return reports, nil
}

// List returns filtered reports newest first along with the unpaginated total.
func (r *HealthReportRepository) List(ctx context.Context, filter models.ReportFilter) ([]models.HealthReport, int, error) {
	where, args := buildReportFilter(filter)

	countQuery := `SELECT COUNT(*) FROM health_reports` + where
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count health reports: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`SELECT %s FROM health_reports%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		reportColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	var reports []models.HealthReport
	if err := r.db.SelectContext(ctx, &reports, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list health reports: %w", err)
	}
	if err := r.attachHistory(ctx, reports); err != nil {
		return nil, 0, err
	}
	return reports, total, nil
}

// ListCreatedBetween returns reports with from <= created_at < to, oldest first, without history.
// An empty location matches every location.
func (r *HealthReportRepository) ListCreatedBetween(ctx context.Context, location string, from, to time.Time) ([]models.HealthReport, error) {
	query := `SELECT ` + reportColumns + ` FROM health_reports WHERE created_at >= $1 AND created_at < $2`
	args := []interface{}{from, to}
	if location != "" {
		query += ` AND location_id = $3`
		args = append(args, location)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	var reports []models.HealthReport
	if err := r.db.SelectContext(ctx, &reports, query, args...); err != nil {
		return nil, fmt.Errorf("list health reports in range: %w", err)
	}
	return reports, nil
}

// CountByStatus returns report totals per status across the whole store.
func (r *HealthReportRepository) CountByStatus(ctx context.Context) (map[models.ReportStatus]int, error) {
	const query = `SELECT status, COUNT(*) AS total FROM health_reports GROUP BY status`
	var rows []struct {
		Status models.ReportStatus `db:"status"`
		Total  int                 `db:"total"`
	}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("count health reports by status: %w", err)
	}
	counts := make(map[models.ReportStatus]int, len(models.ReportStatuses))
	for _, st := range models.ReportStatuses {
		counts[st] = 0
	}
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}

// UpdateStatus moves a report from expected to next and appends a history entry in one transaction.
// The row is locked first; ErrStatusConflict is returned when the stored status is no longer
// expected. The history timestamp never precedes the previous entry.
func (r *HealthReportRepository) UpdateStatus(ctx context.Context, id string, expected, next models.ReportStatus, actor models.Actor, at time.Time) (report *models.HealthReport, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update health report status: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current models.HealthReport
	lockQuery := `SELECT ` + reportColumns + ` FROM health_reports WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &current, lockQuery, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("lock health report: %w", err)
	}
	if current.Status != expected {
		err = ErrStatusConflict
		return nil, err
	}

	var last sql.NullTime
	if err = tx.GetContext(ctx, &last, `SELECT MAX(changed_at) FROM report_status_history WHERE report_id = $1`, id); err != nil {
		return nil, fmt.Errorf("read last status change: %w", err)
	}
	changedAt := at.UTC()
	if last.Valid && !changedAt.After(last.Time) {
		changedAt = last.Time.Add(time.Microsecond)
	}

	res, err := tx.ExecContext(ctx, `UPDATE health_reports SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		next, changedAt, id, expected)
	if err != nil {
		return nil, fmt.Errorf("update health report status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update health report status: %w", err)
	}
	if affected == 0 {
		err = ErrStatusConflict
		return nil, err
	}

	entry := models.StatusHistoryEntry{
		ReportID:  id,
		Status:    next,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		ChangedAt: changedAt,
	}
	if err = insertHistory(ctx, tx, &entry); err != nil {
		return nil, err
	}

	var history []models.StatusHistoryEntry
	if err = tx.SelectContext(ctx, &history, `SELECT id, report_id, status, actor_id, actor_role, changed_at FROM report_status_history WHERE report_id = $1 ORDER BY changed_at ASC, id ASC`, id); err != nil {
		return nil, fmt.Errorf("load status history: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update health report status: %w", err)
	}

	current.Status = next
	current.UpdatedAt = changedAt
	current.StatusHistory = history
	return &current, nil
}

func insertHistory(ctx context.Context, tx *sqlx.Tx, entry *models.StatusHistoryEntry) error {
	const query = `INSERT INTO report_status_history (report_id, status, actor_id, actor_role, changed_at)
VALUES ($1, $2, $3, $4, $5) RETURNING id`
	if err := tx.QueryRowxContext(ctx, query, entry.ReportID, entry.Status, entry.ActorID, entry.ActorRole, entry.ChangedAt).Scan(&entry.ID); err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}
	return nil
}

func (r *HealthReportRepository) attachHistory(ctx context.Context, reports []models.HealthReport) error {
	if len(reports) == 0 {
		return nil
	}
	ids := lo.Map(reports, func(item models.HealthReport, _ int) string { return item.ID })
	const query = `SELECT id, report_id, status, actor_id, actor_role, changed_at FROM report_status_history
WHERE report_id = ANY($1) ORDER BY changed_at ASC, id ASC`
	var entries []models.StatusHistoryEntry
	if err := r.db.SelectContext(ctx, &entries, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("load status history: %w", err)
	}
	grouped := lo.GroupBy(entries, func(item models.StatusHistoryEntry) string { return item.ReportID })
	for i := range reports {
		history := grouped[reports[i].ID]
		if history == nil {
			history = []models.StatusHistoryEntry{}
		}
		reports[i].StatusHistory = history
	}
	return nil
}

func buildReportFilter(filter models.ReportFilter) (string, []interface{}) {
	conditions := make([]string, 0, 4)
	args := make([]interface{}, 0, 4)
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.LocationID != "" {
		args = append(args, filter.LocationID)
		conditions = append(conditions, fmt.Sprintf("location_id = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", len(args)))
	}
	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}
