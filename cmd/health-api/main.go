package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	migrate "github.com/rubenv/sql-migrate"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-health-api/internal/handler"
	"github.com/noah-isme/sma-health-api/internal/repository"
	"github.com/noah-isme/sma-health-api/internal/service"
	"github.com/noah-isme/sma-health-api/pkg/cache"
	"github.com/noah-isme/sma-health-api/pkg/config"
	"github.com/noah-isme/sma-health-api/pkg/database"
	"github.com/noah-isme/sma-health-api/pkg/events"
	"github.com/noah-isme/sma-health-api/pkg/export"
	"github.com/noah-isme/sma-health-api/pkg/logger"
)

// @title School Health API
// @version 1.0.0
// @description Health signal lifecycle and outbreak risk aggregation for the school portal.
// @BasePath /api
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.MigrateOnBoot {
		n, err := database.Migrate(db, migrate.Up, 0)
		if err != nil {
			logr.Fatal("failed to apply migrations", zap.Error(err))
		}
		logr.Info("migrations applied", zap.Int("count", n))
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
	}

	zone, err := time.LoadLocation(cfg.Aggregation.TimeZone)
	if err != nil {
		logr.Warn("unknown aggregation timezone, using UTC", zap.String("timezone", cfg.Aggregation.TimeZone), zap.Error(err))
		zone = time.UTC
	}

	publisher := events.NewKafkaPublisher(cfg.Events, logr)
	defer publisher.Close() //nolint:errcheck

	metrics := service.NewMetricsService()
	validate := validator.New()

	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Catalog.CacheTTL, logr, redisClient != nil)

	reportRepo := repository.NewHealthReportRepository(db)
	actionRepo := repository.NewActionRepository(db)
	bayesRepo := repository.NewBayesianRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	catalog := service.NewCatalogService(repository.NewCatalogRepository(db), cacheSvc, cfg.Catalog.CacheTTL, logr)
	bucketer := service.NewBucketer(cfg.Aggregation.WindowSize, zone)
	aggregates := service.NewAggregationService(bucketer, reportRepo, catalog, logr)
	risk := service.NewRiskService(bayesRepo, catalog, service.RiskParams{
		BaselinePrior:      cfg.Risk.BaselinePrior,
		DefaultBaseline:    cfg.Risk.DefaultBaseline,
		MinBaseline:        cfg.Risk.MinBaseline,
		BaselineWindows:    cfg.Risk.BaselineWindows,
		OutbreakMultiplier: cfg.Risk.OutbreakMultiplier,
		MinLikelihoodRatio: cfg.Risk.MinLikelihoodRatio,
		MaxLikelihoodRatio: cfg.Risk.MaxLikelihoodRatio,
		Epsilon:            cfg.Risk.Epsilon,
		PriorFloor:         cfg.Risk.PriorFloor,
	}, logr)
	actions := service.NewActionService(service.ActionServiceParams{
		Store:     actionRepo,
		Locations: catalog,
		Validator: validate,
		Publisher: publisher,
		Metrics:   metrics,
		Logger:    logr,
	})
	pipeline := service.NewPipelineService(service.PipelineServiceParams{
		Reports:   reportRepo,
		Locations: catalog,
		Bucketer:  bucketer,
		Risk:      risk,
		Ranker:    service.NewHotspotRanker(cfg.Hotspot.Threshold),
		Actions:   actions,
		Publisher: publisher,
		Metrics:   metrics,
		Logger:    logr,
		Config: service.PipelineConfig{
			Interval:        cfg.Pipeline.Interval,
			LookbackWindows: cfg.Aggregation.LookbackWindows,
			AutoActions:     cfg.Hotspot.AutoActions,
			MaxRetries:      cfg.Pipeline.MaxRetries,
			RetryDelay:      cfg.Pipeline.RetryDelay,
		},
	})
	reports := service.NewReportService(service.ReportServiceParams{
		Store:      reportRepo,
		Catalog:    catalog,
		Aggregates: aggregates,
		Pipeline:   pipeline,
		Validator:  validate,
		Publisher:  publisher,
		Metrics:    metrics,
		Logger:     logr,
	})

	var forecaster service.Forecaster = service.DisabledForecaster{}
	if cfg.Forecast.Enabled {
		forecaster = service.NewHTTPForecaster(service.ForecastConfig{
			BaseURL: cfg.Forecast.BaseURL,
			Timeout: cfg.Forecast.Timeout,
		}, metrics, logr)
		if cacheSvc.Enabled() {
			forecaster = service.NewCachedForecaster(forecaster, cacheSvc, cfg.Forecast.CacheTTL)
		}
	}
	dashboard := service.NewDashboardService(service.DashboardServiceParams{
		Pipeline:   pipeline,
		Actions:    actions,
		Aggregates: aggregates,
		Risk:       risk,
		Forecaster: forecaster,
		Metrics:    metrics,
		Logger:     logr,
		Config: service.DashboardServiceConfig{
			ActionsLimit:    cfg.Dashboard.ActionsLimit,
			ForecastHorizon: cfg.Forecast.Horizon,
			ForecastTimeout: cfg.Forecast.Timeout,
			MaxForecasts:    cfg.Forecast.MaxLocations,
		},
	})
	exporter := service.NewExportService(reportRepo, catalog, logr, export.CSVRenderer{}, export.PDFRenderer{})
	tokens := service.NewTokenService(service.TokenConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	})

	var cachePinger interface{ Ping(context.Context) error }
	if redisClient != nil {
		cachePinger = cacheRepo
	}

	r := newRouter(cfg, logr, routeDeps{
		tokens:  tokens,
		metrics: metrics,
		audit:   auditRepo,
		reports: handler.NewReportHandler(reports, exporter),
		dash:    handler.NewDashboardHandler(dashboard, actions),
		catalog: handler.NewResourceHandler(catalog),
		status:  handler.NewMetricsHandler(metrics, db, cachePinger, logr),
	})

	pipeline.Start(ctx)
	defer pipeline.Stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
