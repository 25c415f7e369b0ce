package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-health-api/api/swagger"
	"github.com/noah-isme/sma-health-api/internal/handler"
	"github.com/noah-isme/sma-health-api/internal/middleware"
	"github.com/noah-isme/sma-health-api/internal/models"
	"github.com/noah-isme/sma-health-api/pkg/config"
	"github.com/noah-isme/sma-health-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-health-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-health-api/pkg/middleware/requestid"
)

type routeDeps struct {
	tokens  middleware.TokenValidator
	metrics middleware.RequestObserver
	audit   middleware.AuditWriter

	reports *handler.ReportHandler
	dash    *handler.DashboardHandler
	catalog *handler.ResourceHandler
	status  *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routeDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metrics))

	r.GET("/health", deps.status.Health)
	r.GET("/ready", deps.status.Ready)
	r.GET("/metrics", deps.status.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(deps.tokens))
	admin := middleware.RequireAdmin()
	audit := func(action, resource, idParam string) gin.HandlerFunc {
		return middleware.Audit(deps.audit, logr, action, resource, idParam)
	}

	reports := api.Group("/reports")
	reports.POST("", middleware.RequireRoles(models.RoleStudent, models.RoleAdmin, models.RoleSuperAdmin), audit(models.AuditActionReportCreate, "health_report", ""), deps.reports.Create)
	reports.GET("/me", deps.reports.Mine)
	reports.GET("/export", admin, audit(models.AuditActionReportExport, "health_report", ""), deps.reports.Export)
	reports.GET("", admin, deps.reports.List)
	reports.GET("/:id", deps.reports.Get)
	reports.PATCH("/:id/status", audit(models.AuditActionReportTransition, "health_report", "id"), deps.reports.UpdateStatus)

	dash := api.Group("/dashboard", admin)
	dash.GET("", deps.dash.Get)
	dash.GET("/aggregates", deps.dash.Aggregate)
	dash.POST("/actions", audit(models.AuditActionActionCreate, "suggested_action", ""), deps.dash.CreateAction)
	dash.PATCH("/actions/:id/status", audit(models.AuditActionActionTransition, "suggested_action", "id"), deps.dash.UpdateActionStatus)
	dash.POST("/bayesian/:location/reset", audit(models.AuditActionRiskReset, "bayesian_parameter", "location"), deps.dash.ResetRisk)

	resources := api.Group("/resources")
	resources.GET("/locations", deps.catalog.Locations)
	resources.GET("/symptoms", deps.catalog.Symptoms)

	return r
}
