package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/sma-health-api/internal/models"
	"github.com/noah-isme/sma-health-api/internal/repository"
	appErrors "github.com/noah-isme/sma-health-api/pkg/errors"
	"github.com/noah-isme/sma-health-api/pkg/events"
)

func admin() models.Actor   { return models.Actor{ID: "admin-1", Role: models.RoleAdmin} }
func student() models.Actor { return models.Actor{ID: "stu-1", Role: models.RoleStudent} }

type catalogStub struct {
	locations map[string]models.Location
	symptoms  map[string]models.Symptom
	err       error
}

func newCatalogStub() *catalogStub {
	return &catalogStub{
		locations: map[string]models.Location{
			"Building-A": {ID: "Building-A", Name: "Building A", Kind: models.LocationKindBuilding},
			"Room-12A":   {ID: "Room-12A", Name: "Room 12A", Building: "Building A", Kind: models.LocationKindRoom},
			"Room-12B":   {ID: "Room-12B", Name: "Room 12B", Building: "Building A", Kind: models.LocationKindRoom},
		},
		symptoms: map[string]models.Symptom{
			"fever":    {ID: "fever", Key: "fever", Name: "Fever"},
			"cough":    {ID: "cough", Key: "cough", Name: "Cough"},
			"headache": {ID: "headache", Key: "headache", Name: "Headache"},
		},
	}
}

func (c *catalogStub) LocationIndex(context.Context) (map[string]models.Location, error) {
	return c.locations, c.err
}

func (c *catalogStub) SymptomIndex(context.Context) (map[string]models.Symptom, error) {
	return c.symptoms, c.err
}

type memReportStore struct {
	mu       sync.Mutex
	seq      int
	reports  map[string]*models.HealthReport
	conflict int
	err      error
	countErr error
}

func newMemReportStore() *memReportStore {
	return &memReportStore{reports: map[string]*models.HealthReport{}}
}

func (m *memReportStore) Create(_ context.Context, report *models.HealthReport, actor models.Actor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.seq++
	report.ID = fmt.Sprintf("rep-%03d", m.seq)
	report.UpdatedAt = report.CreatedAt
	report.StatusHistory = []models.StatusHistoryEntry{{ReportID: report.ID, Status: report.Status, ActorID: actor.ID, ActorRole: actor.Role, ChangedAt: report.CreatedAt}}
	clone := *report
	m.reports[report.ID] = &clone
	return nil
}

func (m *memReportStore) add(report models.HealthReport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	if report.ID == "" {
		report.ID = fmt.Sprintf("rep-%03d", m.seq)
	}
	if report.Status == "" {
		report.Status = models.ReportStatusPending
	}
	m.reports[report.ID] = &report
}

func (m *memReportStore) GetByID(_ context.Context, id string) (*models.HealthReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *r
	return &clone, nil
}

func (m *memReportStore) ListByReporter(_ context.Context, reporterID string) ([]models.HealthReport, error) {
	out := make([]models.HealthReport, 0)
	for _, r := range m.sorted() {
		if r.ReporterID == reporterID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memReportStore) List(_ context.Context, filter models.ReportFilter) ([]models.HealthReport, int, error) {
	if m.err != nil {
		return nil, 0, m.err
	}
	out := make([]models.HealthReport, 0)
	for _, r := range m.sorted() {
		if filter.Status != nil && r.Status != *filter.Status {
			continue
		}
		if filter.LocationID != "" && r.LocationID != filter.LocationID {
			continue
		}
		out = append(out, r)
	}
	return out, len(out), nil
}

func (m *memReportStore) ListCreatedBetween(_ context.Context, location string, from, to time.Time) ([]models.HealthReport, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]models.HealthReport, 0)
	for _, r := range m.sorted() {
		if location != "" && r.LocationID != location {
			continue
		}
		if r.CreatedAt.Before(from) || !r.CreatedAt.Before(to) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *memReportStore) CountByStatus(context.Context) (map[models.ReportStatus]int, error) {
	if m.countErr != nil {
		return nil, m.countErr
	}
	counts := emptyStatusCounts()
	for _, r := range m.sorted() {
		counts[r.Status]++
	}
	return counts, nil
}

func (m *memReportStore) UpdateStatus(_ context.Context, id string, expected, next models.ReportStatus, actor models.Actor, at time.Time) (*models.HealthReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflict > 0 {
		m.conflict--
		return nil, repository.ErrStatusConflict
	}
	r, ok := m.reports[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if r.Status != expected {
		return nil, repository.ErrStatusConflict
	}
	r.Status = next
	r.UpdatedAt = at
	r.StatusHistory = append(r.StatusHistory, models.StatusHistoryEntry{ReportID: id, Status: next, ActorID: actor.ID, ActorRole: actor.Role, ChangedAt: at})
	clone := *r
	return &clone, nil
}

func (m *memReportStore) sorted() []models.HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.HealthReport, 0, len(m.reports))
	for _, r := range m.reports {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type memActionStore struct {
	mu      sync.Mutex
	seq     int
	actions map[string]*models.SuggestedAction
	creates int
}

func newMemActionStore() *memActionStore {
	return &memActionStore{actions: map[string]*models.SuggestedAction{}}
}

func (m *memActionStore) Create(_ context.Context, action *models.SuggestedAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if action.LocationID != nil {
		for _, a := range m.actions {
			if a.LocationID != nil && *a.LocationID == *action.LocationID && a.Status != models.ActionStatusCompleted {
				return repository.ErrOpenActionExists
			}
		}
	}
	m.seq++
	m.creates++
	action.ID = fmt.Sprintf("act-%03d", m.seq)
	clone := *action
	m.actions[action.ID] = &clone
	return nil
}

func (m *memActionStore) GetByID(_ context.Context, id string) (*models.SuggestedAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.actions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *a
	return &clone, nil
}

func (m *memActionStore) List(_ context.Context, filter models.ActionFilter) ([]models.SuggestedAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.SuggestedAction, 0, len(m.actions))
	for _, a := range m.actions {
		if filter.Status != nil && a.Status != *filter.Status {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *memActionStore) OpenLocations(context.Context) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	open := map[string]struct{}{}
	for _, a := range m.actions {
		if a.LocationID != nil && a.Status != models.ActionStatusCompleted {
			open[*a.LocationID] = struct{}{}
		}
	}
	return open, nil
}

func (m *memActionStore) CountOpen(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.actions {
		if a.Status != models.ActionStatusCompleted {
			n++
		}
	}
	return n, nil
}

func (m *memActionStore) UpdateStatus(_ context.Context, id string, expected, next models.ActionStatus, at time.Time) (*models.SuggestedAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.actions[id]
	if !ok || a.Status != expected {
		return nil, repository.ErrStatusConflict
	}
	a.Status = next
	a.UpdatedAt = at
	clone := *a
	return &clone, nil
}

type memBayesStore struct {
	mu     sync.Mutex
	params map[string]models.BayesianParameter
	err    error
}

func newMemBayesStore() *memBayesStore {
	return &memBayesStore{params: map[string]models.BayesianParameter{}}
}

func (m *memBayesStore) List(context.Context) ([]models.BayesianParameter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]models.BayesianParameter, 0, len(m.params))
	for _, p := range m.params {
		out = append(out, p)
	}
	return out, nil
}

func (m *memBayesStore) GetByLocation(_ context.Context, location string) (*models.BayesianParameter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.params[location]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *memBayesStore) UpsertMany(_ context.Context, params []models.BayesianParameter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, p := range params {
		m.params[p.LocationID] = p
	}
	return nil
}

type triggerRecorder struct {
	mu      sync.Mutex
	reasons []string
}

func (t *triggerRecorder) Trigger(reason string) {
	t.mu.Lock()
	t.reasons = append(t.reasons, reason)
	t.mu.Unlock()
}

type invalidationRecorder struct {
	keys []string
}

func (r *invalidationRecorder) Invalidate(location string, at time.Time) {
	r.keys = append(r.keys, location+"@"+at.UTC().Format(time.RFC3339))
}

type publisherRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *publisherRecorder) Publish(_ context.Context, evts ...events.Event) error {
	p.mu.Lock()
	p.events = append(p.events, evts...)
	p.mu.Unlock()
	return nil
}

func (p *publisherRecorder) Close() error { return nil }

func (p *publisherRecorder) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type memCacheRepo struct {
	mu      sync.Mutex
	entries map[string][]byte
	deleted []string
}

func newMemCacheRepo() *memCacheRepo {
	return &memCacheRepo{entries: map[string][]byte{}}
}

func (m *memCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.entries[key] = raw
	m.mu.Unlock()
	return nil
}

func (m *memCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	return nil
}

type forecastFunc func() error

func (f forecastFunc) Forecast(context.Context, string, int) ([]models.PredictionData, error) {
	return nil, f()
}
