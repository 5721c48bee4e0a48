package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Store drivers.
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"
)

// Job status backends.
const (
	JobsMemory = "memory"
	JobsRedis  = "redis"
)

// External provider names accepted in PROVIDER_ORDER.
const (
	ProviderCombain = "combain"
	ProviderGoogle  = "google"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	StoreDriver string
	DatabaseURL string
	SQLitePath  string

	// External tower providers. A provider is enabled iff its key is set.
	CombainAPIKey          string
	GoogleAPIKey           string
	ProviderOrder          []string
	ProviderTimeout        time.Duration
	AllowExternalNeighbors bool
	SignatureLimit         int

	PathLossTxDefault int
	PathLossExponent  float64
	PathLossRefLoss   float64

	AuditKafkaEnabled bool
	KafkaBrokers      []string
	AuditKafkaTopic   string
	AuditTimeout      time.Duration

	JobStore      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	JobTTL        time.Duration

	ImportAPIKey        string
	ImportBatchSize     int
	MaxTowersPerRequest int
	LocateTimeout       time.Duration

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	MinioRegion    string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		StoreDriver: sharedcfg.EnvOrDefault("STORE_DRIVER", StorePostgres),
		DatabaseURL: sharedcfg.EnvOrDefault("DATABASE_URL", "postgres://postgres@localhost:5432/celllocator?sslmode=disable"),
		SQLitePath:  sharedcfg.EnvOrDefault("SQLITE_PATH", "celllocator.db"),

		CombainAPIKey: os.Getenv("COMBAIN_API_KEY"),
		GoogleAPIKey:  os.Getenv("GOOGLE_GEOLOCATION_API_KEY"),
		ProviderOrder: parseList(sharedcfg.EnvOrDefault("PROVIDER_ORDER", "combain,google")),

		AuditKafkaEnabled: os.Getenv("AUDIT_KAFKA_ENABLED") == "true",
		KafkaBrokers:      sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		AuditKafkaTopic:   sharedcfg.EnvOrDefault("AUDIT_KAFKA_TOPIC", "tower-lookups"),

		JobStore:      sharedcfg.EnvOrDefault("JOB_STORE", JobsMemory),
		RedisAddr:     sharedcfg.EnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		ImportAPIKey: os.Getenv("IMPORT_API_KEY"),

		MinioEndpoint:  sharedcfg.EnvOrDefault("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioUseSSL:    os.Getenv("MINIO_USE_SSL") == "true",
		MinioRegion:    os.Getenv("MINIO_REGION"),
	}

	if cfg.ProviderTimeout, err = parseDuration("PROVIDER_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.AuditTimeout, err = parseDuration("AUDIT_TIMEOUT", "2s"); err != nil {
		return nil, err
	}
	if cfg.LocateTimeout, err = parseDuration("LOCATE_TIMEOUT", "45s"); err != nil {
		return nil, err
	}
	if cfg.JobTTL, err = parseDuration("JOB_TTL", "24h"); err != nil {
		return nil, err
	}
	if cfg.AllowExternalNeighbors, err = parseBool("ALLOW_EXTERNAL_NEIGHBOR_LOOKUP"); err != nil {
		return nil, err
	}
	if cfg.SignatureLimit, err = parseInt("SIGNATURE_CANDIDATE_LIMIT", 200, 1, 10000); err != nil {
		return nil, err
	}
	if cfg.PathLossTxDefault, err = parseInt("PATH_LOSS_TX_DEFAULT", 40, -50, 100); err != nil {
		return nil, err
	}
	if cfg.PathLossExponent, err = parsePositiveFloat("PATH_LOSS_N", 5.2); err != nil {
		return nil, err
	}
	if cfg.PathLossRefLoss, err = parsePositiveFloat("PATH_LOSS_REF_LOSS", 80); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = parseInt("REDIS_DB", 0, 0, 15); err != nil {
		return nil, err
	}
	if cfg.ImportBatchSize, err = parseInt("IMPORT_BATCH_SIZE", 1000, 1, 10000); err != nil {
		return nil, err
	}
	if cfg.MaxTowersPerRequest, err = parseInt("MAX_TOWERS_PER_REQUEST", 50, 1, 5000); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for STORE_DRIVER=postgres")
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required for STORE_DRIVER=sqlite")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("invalid STORE_DRIVER %q: must be postgres, sqlite or memory", c.StoreDriver)
	}

	for _, p := range c.ProviderOrder {
		if p != ProviderCombain && p != ProviderGoogle {
			return fmt.Errorf("invalid PROVIDER_ORDER entry %q", p)
		}
	}

	if c.AuditKafkaEnabled {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required when AUDIT_KAFKA_ENABLED is true")
		}
		if c.AuditKafkaTopic == "" {
			return errors.New("AUDIT_KAFKA_TOPIC is required when AUDIT_KAFKA_ENABLED is true")
		}
	}

	switch c.JobStore {
	case JobsMemory:
	case JobsRedis:
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required for JOB_STORE=redis")
		}
	default:
		return fmt.Errorf("invalid JOB_STORE %q: must be memory or redis", c.JobStore)
	}
	return nil
}

// ProviderEnabled reports whether the named provider has credentials.
func (c *Config) ProviderEnabled(name string) bool {
	switch name {
	case ProviderCombain:
		return c.CombainAPIKey != ""
	case ProviderGoogle:
		return c.GoogleAPIKey != ""
	}
	return false
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parseInt(key string, fallback, lo, hi int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s: must be %d-%d", key, lo, hi)
	}
	return n, nil
}

func parsePositiveFloat(key string, fallback float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive number", key)
	}
	return f, nil
}

func parseBool(key string) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: must be true or false", key)
	}
	return b, nil
}
