package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Log         LogConfig
	Aggregation AggregationConfig
	Risk        RiskConfig
	Hotspot     HotspotConfig
	Pipeline    PipelineConfig
	Forecast    ForecastConfig
	Dashboard   DashboardConfig
	Catalog     CatalogConfig
	Events      EventsConfig
}

type DatabaseConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	Name          string
	SSLMode       string
	MaxOpenConns  int
	MaxIdleConns  int
	MigrateOnBoot bool
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds the shared secret used to verify tokens issued by the identity provider.
type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience []string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// AggregationConfig controls report bucketing.
type AggregationConfig struct {
	WindowSize      time.Duration
	TimeZone        string
	LookbackWindows int
}

// RiskConfig tunes the Bayesian outbreak estimator.
type RiskConfig struct {
	BaselinePrior      float64
	DefaultBaseline    float64
	MinBaseline        float64
	BaselineWindows    int
	OutbreakMultiplier float64
	MinLikelihoodRatio float64
	MaxLikelihoodRatio float64
	Epsilon            float64
	PriorFloor         float64
}

// HotspotConfig controls ranking and automatic action creation.
type HotspotConfig struct {
	Threshold   float64
	AutoActions bool
}

// PipelineConfig governs the recomputation cycle.
type PipelineConfig struct {
	Interval   time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// ForecastConfig points at the external case-count forecasting service.
type ForecastConfig struct {
	Enabled      bool
	BaseURL      string
	Timeout      time.Duration
	Horizon      int
	MaxLocations int
	CacheTTL     time.Duration
}

// DashboardConfig governs dashboard composition.
type DashboardConfig struct {
	ActionsLimit int
}

// CatalogConfig governs reference data caching.
type CatalogConfig struct {
	CacheTTL time.Duration
}

// EventsConfig configures the Kafka domain event publisher.
type EventsConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:          v.GetString("DB_HOST"),
		Port:          v.GetInt("DB_PORT"),
		User:          v.GetString("DB_USER"),
		Password:      v.GetString("DB_PASSWORD"),
		Name:          v.GetString("DB_NAME"),
		SSLMode:       v.GetString("DB_SSL_MODE"),
		MaxOpenConns:  v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:  v.GetInt("DB_MAX_IDLE_CONNS"),
		MigrateOnBoot: v.GetBool("DB_MIGRATE_ON_BOOT"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:   v.GetString("JWT_SECRET"),
		Issuer:   v.GetString("JWT_ISSUER"),
		Audience: splitAndTrim(v.GetString("JWT_AUDIENCE")),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Aggregation = AggregationConfig{
		WindowSize:      parseDuration(v.GetString("AGGREGATION_WINDOW"), 24*time.Hour),
		TimeZone:        v.GetString("AGGREGATION_TIMEZONE"),
		LookbackWindows: v.GetInt("AGGREGATION_LOOKBACK_WINDOWS"),
	}

	cfg.Risk = RiskConfig{
		BaselinePrior:      v.GetFloat64("RISK_BASELINE_PRIOR"),
		DefaultBaseline:    v.GetFloat64("RISK_DEFAULT_BASELINE"),
		MinBaseline:        v.GetFloat64("RISK_MIN_BASELINE"),
		BaselineWindows:    v.GetInt("RISK_BASELINE_WINDOWS"),
		OutbreakMultiplier: v.GetFloat64("RISK_OUTBREAK_MULTIPLIER"),
		MinLikelihoodRatio: v.GetFloat64("RISK_MIN_LIKELIHOOD_RATIO"),
		MaxLikelihoodRatio: v.GetFloat64("RISK_MAX_LIKELIHOOD_RATIO"),
		Epsilon:            v.GetFloat64("RISK_EPSILON"),
		PriorFloor:         v.GetFloat64("RISK_PRIOR_FLOOR"),
	}

	cfg.Hotspot = HotspotConfig{
		Threshold:   v.GetFloat64("HOTSPOT_THRESHOLD"),
		AutoActions: v.GetBool("HOTSPOT_AUTO_ACTIONS"),
	}

	cfg.Pipeline = PipelineConfig{
		Interval:   parseDuration(v.GetString("PIPELINE_INTERVAL"), 5*time.Minute),
		MaxRetries: v.GetInt("PIPELINE_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("PIPELINE_RETRY_DELAY"), 2*time.Second),
	}

	cfg.Forecast = ForecastConfig{
		Enabled:      v.GetBool("ENABLE_FORECAST"),
		BaseURL:      strings.TrimRight(v.GetString("FORECAST_BASE_URL"), "/"),
		Timeout:      parseDuration(v.GetString("FORECAST_TIMEOUT"), 2*time.Second),
		Horizon:      v.GetInt("FORECAST_HORIZON"),
		MaxLocations: v.GetInt("FORECAST_MAX_LOCATIONS"),
		CacheTTL:     parseDuration(v.GetString("FORECAST_CACHE_TTL"), 15*time.Minute),
	}

	cfg.Dashboard = DashboardConfig{
		ActionsLimit: v.GetInt("DASHBOARD_ACTIONS_LIMIT"),
	}

	cfg.Catalog = CatalogConfig{
		CacheTTL: parseDuration(v.GetString("CATALOG_CACHE_TTL"), time.Hour),
	}

	cfg.Events = EventsConfig{
		Enabled: v.GetBool("ENABLE_EVENTS"),
		Brokers: splitAndTrim(v.GetString("KAFKA_BROKERS")),
		Topic:   v.GetString("KAFKA_TOPIC"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 5000)
	v.SetDefault("API_PREFIX", "/api")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "school_health")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_MIGRATE_ON_BOOT", true)

	v.SetDefault("ENABLE_REDIS", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("AGGREGATION_WINDOW", "24h")
	v.SetDefault("AGGREGATION_TIMEZONE", "UTC")
	v.SetDefault("AGGREGATION_LOOKBACK_WINDOWS", 14)

	v.SetDefault("RISK_BASELINE_PRIOR", 0.01)
	v.SetDefault("RISK_DEFAULT_BASELINE", 2.0)
	v.SetDefault("RISK_MIN_BASELINE", 0.5)
	v.SetDefault("RISK_BASELINE_WINDOWS", 7)
	v.SetDefault("RISK_OUTBREAK_MULTIPLIER", 3.0)
	v.SetDefault("RISK_MIN_LIKELIHOOD_RATIO", 0.01)
	v.SetDefault("RISK_MAX_LIKELIHOOD_RATIO", 1e6)
	v.SetDefault("RISK_EPSILON", 1e-6)
	v.SetDefault("RISK_PRIOR_FLOOR", 0.0)

	v.SetDefault("HOTSPOT_THRESHOLD", 0.3)
	v.SetDefault("HOTSPOT_AUTO_ACTIONS", true)

	v.SetDefault("PIPELINE_INTERVAL", "5m")
	v.SetDefault("PIPELINE_MAX_RETRIES", 3)
	v.SetDefault("PIPELINE_RETRY_DELAY", "2s")

	v.SetDefault("ENABLE_FORECAST", false)
	v.SetDefault("FORECAST_BASE_URL", "http://localhost:8500")
	v.SetDefault("FORECAST_TIMEOUT", "2s")
	v.SetDefault("FORECAST_HORIZON", 3)
	v.SetDefault("FORECAST_MAX_LOCATIONS", 5)
	v.SetDefault("FORECAST_CACHE_TTL", "15m")

	v.SetDefault("DASHBOARD_ACTIONS_LIMIT", 20)
	v.SetDefault("CATALOG_CACHE_TTL", "1h")

	v.SetDefault("ENABLE_EVENTS", false)
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_TOPIC", "health-signals")
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
