package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-health-api/internal/models"
	appErrors "github.com/noah-isme/sma-health-api/pkg/errors"
)

const (
	catalogLocationsKey = "catalog:locations"
	catalogSymptomsKey  = "catalog:symptoms"
)

type catalogRepository interface {
	ListLocations(ctx context.Context) ([]models.Location, error)
	ListSymptoms(ctx context.Context) ([]models.Symptom, error)
}

// CatalogService serves read-only location and symptom reference data through the cache.
type CatalogService struct {
	repo   catalogRepository
	cache  *CacheService
	ttl    time.Duration
	logger *zap.Logger
}

// NewCatalogService constructs the catalog service.
func NewCatalogService(repo catalogRepository, cache *CacheService, ttl time.Duration, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CatalogService{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

// Locations returns all locations. The flag reports a cache hit.
func (s *CatalogService) Locations(ctx context.Context) ([]models.Location, bool, error) {
	locations, hit, err := Remember(ctx, s.cache, catalogLocationsKey, s.ttl, s.repo.ListLocations)
	if err != nil {
		s.logger.Error("list locations failed", zap.Error(err))
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load locations")
	}
	return locations, hit, nil
}

// Symptoms returns all symptoms. The flag reports a cache hit.
func (s *CatalogService) Symptoms(ctx context.Context) ([]models.Symptom, bool, error) {
	symptoms, hit, err := Remember(ctx, s.cache, catalogSymptomsKey, s.ttl, s.repo.ListSymptoms)
	if err != nil {
		s.logger.Error("list symptoms failed", zap.Error(err))
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load symptoms")
	}
	return symptoms, hit, nil
}

// LocationIndex maps location ids to locations.
func (s *CatalogService) LocationIndex(ctx context.Context) (map[string]models.Location, error) {
	locations, _, err := s.Locations(ctx)
	if err != nil {
		return nil, err
	}
	index := make(map[string]models.Location, len(locations))
	for _, loc := range locations {
		index[loc.ID] = loc
	}
	return index, nil
}

// SymptomIndex maps symptom ids to symptoms.
func (s *CatalogService) SymptomIndex(ctx context.Context) (map[string]models.Symptom, error) {
	symptoms, _, err := s.Symptoms(ctx)
	if err != nil {
		return nil, err
	}
	index := make(map[string]models.Symptom, len(symptoms))
	for _, sym := range symptoms {
		index[sym.ID] = sym
	}
	return index, nil
}

// Invalidate drops cached catalog entries.
func (s *CatalogService) Invalidate(ctx context.Context) error {
	return s.cache.Invalidate(ctx, "catalog:*")
}
