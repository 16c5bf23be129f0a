package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Metadata backends.
const (
	MetadataPostgres = "postgres"
	MetadataMongo    = "mongo"
)

// Generator backends.
const (
	GeneratorSynthetic = "synthetic"
	GeneratorRemote    = "remote"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	Port             string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	CORSOrigins      []string

	MetadataBackend string
	DatabaseURL     string
	DBMaxConns      int
	MongoURI        string
	MongoDatabase   string

	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	RateLimitRequests     int
	RateLimitPeriod       time.Duration
	JWTSecret             string
	Auth0Domain           string
	Auth0Audience         string
	AuthRequiredScope     string
	StoragePath           string
	ImageBaseURL          string
	ModelsDir             string
	ModelVersion          string
	GeneratorBackend      string
	GeneratorURL          string
	GeneratorAPIKey       string
	JPEGQuality           int
	ProjectionMaxSteps    int
	ProjectionWAvgSamples int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:                getEnv("APP_ENV", "development"),
		Port:                  port,
		HTTPReadTimeout:       time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:      time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 120)),
		HTTPIdleTimeout:       time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		CORSOrigins:           splitList(getEnv("CORS_ORIGINS", "*")),
		MetadataBackend:       strings.ToLower(getEnv("METADATA_BACKEND", MetadataPostgres)),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		DBMaxConns:            getEnvInt("DB_MAX_CONNS", 8),
		MongoURI:              os.Getenv("MONGODB_URI"),
		MongoDatabase:         getEnv("MONGODB_DATABASE", "stylegan"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               getEnvInt("REDIS_DB", 0),
		RateLimitRequests:     getEnvInt("RATE_LIMIT_REQUESTS", 10),
		RateLimitPeriod:       time.Minute * time.Duration(getEnvInt("RATE_LIMIT_PERIOD_MINUTES", 1)),
		JWTSecret:             os.Getenv("JWT_SECRET"),
		Auth0Domain:           strings.TrimSpace(os.Getenv("AUTH0_DOMAIN")),
		Auth0Audience:         strings.TrimSpace(os.Getenv("AUTH0_AUDIENCE")),
		AuthRequiredScope:     getEnv("AUTH_REQUIRED_SCOPE", "use:all"),
		StoragePath:           getEnv("STORAGE_PATH", "./data"),
		ImageBaseURL:          strings.TrimRight(getEnv("IMAGE_BASE_URL", "http://localhost:"+port+"/images"), "/"),
		ModelsDir:             getEnv("MODELS_DIR", "./models"),
		ModelVersion:          getEnv("MODEL_VERSION", "stylegan2_ada"),
		GeneratorBackend:      strings.ToLower(getEnv("GENERATOR_BACKEND", GeneratorSynthetic)),
		GeneratorURL:          os.Getenv("GENERATOR_URL"),
		GeneratorAPIKey:       os.Getenv("GENERATOR_API_KEY"),
		JPEGQuality:           getEnvInt("JPEG_QUALITY", 75),
		ProjectionMaxSteps:    getEnvInt("PROJECTION_MAX_STEPS", 1000),
		ProjectionWAvgSamples: getEnvInt("PROJECTION_W_AVG_SAMPLES", 10000),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	if c.JWTSecret == "" && (c.Auth0Domain == "" || c.Auth0Audience == "") {
		return fmt.Errorf("JWT_SECRET or AUTH0_DOMAIN and AUTH0_AUDIENCE are required")
	}
	switch c.MetadataBackend {
	case MetadataPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres metadata backend")
		}
		if c.DBMaxConns <= 0 {
			return fmt.Errorf("DB_MAX_CONNS must be positive, got %d", c.DBMaxConns)
		}
	case MetadataMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGODB_URI is required for the mongo metadata backend")
		}
	default:
		return fmt.Errorf("METADATA_BACKEND must be %q or %q, got %q", MetadataPostgres, MetadataMongo, c.MetadataBackend)
	}
	switch c.GeneratorBackend {
	case GeneratorSynthetic:
	case GeneratorRemote:
		if c.GeneratorURL == "" {
			return fmt.Errorf("GENERATOR_URL is required for the remote generator backend")
		}
	default:
		return fmt.Errorf("GENERATOR_BACKEND must be %q or %q, got %q", GeneratorSynthetic, GeneratorRemote, c.GeneratorBackend)
	}
	if c.RateLimitRequests <= 0 || c.RateLimitPeriod <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_PERIOD_MINUTES must be positive")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("JPEG_QUALITY must be within [1, 100], got %d", c.JPEGQuality)
	}
	if c.ProjectionMaxSteps <= 0 {
		return fmt.Errorf("PROJECTION_MAX_STEPS must be positive")
	}
	return nil
}

// Auth0Issuer returns the issuer claim expected on Auth0 tokens.
func (c *Config) Auth0Issuer() string {
	if c.Auth0Domain == "" {
		return ""
	}
	domain := strings.TrimSuffix(strings.TrimPrefix(c.Auth0Domain, "https://"), "/")
	return "https://" + domain + "/"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
