package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-health-api/internal/middleware"
	"github.com/noah-isme/sma-health-api/internal/models"
	"github.com/noah-isme/sma-health-api/pkg/response"
)

type catalogService interface {
	Locations(ctx context.Context) ([]models.Location, bool, error)
	Symptoms(ctx context.Context) ([]models.Symptom, bool, error)
}

// ResourceHandler serves read-only reference data.
type ResourceHandler struct {
	catalog catalogService
}

// NewResourceHandler constructs the handler.
func NewResourceHandler(catalog catalogService) *ResourceHandler {
	return &ResourceHandler{catalog: catalog}
}

// Locations godoc
// @Summary List locations
// @Tags Resources
// @Produce json
// @Success 200 {array} models.Location
// @Router /resources/locations [get]
func (h *ResourceHandler) Locations(c *gin.Context) {
	locations, hit, err := h.catalog.Locations(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, locations)
}

// Symptoms godoc
// @Summary List symptoms
// @Tags Resources
// @Produce json
// @Success 200 {array} models.Symptom
// @Router /resources/symptoms [get]
func (h *ResourceHandler) Symptoms(c *gin.Context) {
	symptoms, hit, err := h.catalog.Symptoms(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, symptoms)
}
