package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Storage      StorageConfig      `yaml:"storage"`
	Images       ImagesConfig       `yaml:"images"`
	Import       ImportConfig       `yaml:"import"`
	Places       PlacesConfig       `yaml:"places"`
	Enrichment   EnrichmentConfig   `yaml:"enrichment"`
	BrokenImages BrokenImagesConfig `yaml:"broken_images"`
	Admin        AdminConfig        `yaml:"admin"`
	CORS         CORSConfig         `yaml:"cors"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port                int    `yaml:"port"`
	Host                string `yaml:"host"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

func (c ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}

func (c ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds Redis settings. An empty address disables Redis; the
// image usage cache falls back to memory and the enrichment lock to Postgres.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// StorageConfig holds object storage configuration
type StorageConfig struct {
	S3Bucket        string `yaml:"s3_bucket"`
	AWSRegion       string `yaml:"aws_region"`
	AWSProfile      string `yaml:"aws_profile"` // Empty string uses default credential chain
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Endpoint        string `yaml:"endpoint"`        // S3-compatible endpoint, e.g. MinIO
	PublicBaseURL   string `yaml:"public_base_url"` // CDN domain in front of the bucket
	DynamoDBTable   string `yaml:"dynamodb_table"`  // broken image table when backend is dynamodb
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c StorageConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// HasStaticCredentials reports whether an access key pair is configured.
func (c StorageConfig) HasStaticCredentials() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// ImagesConfig controls uploads and the resolution cascade
type ImagesConfig struct {
	MaxWidth        int    `yaml:"max_width"`
	JPEGQuality     int    `yaml:"jpeg_quality"`
	MaxUploadMB     int    `yaml:"max_upload_mb"`
	PoolTTLSeconds  int    `yaml:"pool_ttl_seconds"`
	Placeholder     string `yaml:"placeholder"`
	UsageCache      string `yaml:"usage_cache"` // "memory" or "redis"
	UsageTTLMinutes int    `yaml:"usage_ttl_minutes"`
}

func (c ImagesConfig) PoolTTL() time.Duration {
	return time.Duration(c.PoolTTLSeconds) * time.Second
}

func (c ImagesConfig) UsageTTL() time.Duration {
	return time.Duration(c.UsageTTLMinutes) * time.Minute
}

func (c ImagesConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// ImportConfig holds import normalizer settings
type ImportConfig struct {
	LocationPlaceholder string `yaml:"location_placeholder"`
	MaxRows             int    `yaml:"max_rows"`
	MaxUploadMB         int    `yaml:"max_upload_mb"`
}

func (c ImportConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// PlacesConfig holds the places API client settings
type PlacesConfig struct {
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	MaxRetries        int     `yaml:"max_retries"`
}

func (c PlacesConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// EnrichmentConfig holds batch enrichment settings
type EnrichmentConfig struct {
	Enabled        bool `yaml:"enabled"`
	Concurrency    int  `yaml:"concurrency"`
	BatchSize      int  `yaml:"batch_size"`
	MaxPhotos      int  `yaml:"max_photos"`
	PhotoMaxWidth  int  `yaml:"photo_max_width"`
	ScrapeEmail    bool `yaml:"scrape_email"`
	LockTTLMinutes int  `yaml:"lock_ttl_minutes"`
}

func (c EnrichmentConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLMinutes) * time.Minute
}

// BrokenImagesConfig selects the broken image store
type BrokenImagesConfig struct {
	Backend       string `yaml:"backend"` // "postgres" or "dynamodb"
	DynamoDBTable string `yaml:"dynamodb_table"`
}

// AdminConfig holds the admin API credentials
type AdminConfig struct {
	Token string `yaml:"token"`
}

// CORSConfig lists browser origins allowed to call the API
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 30
	}
	if cfg.Server.WriteTimeoutSeconds == 0 {
		cfg.Server.WriteTimeoutSeconds = 60
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Storage.AWSRegion == "" {
		cfg.Storage.AWSRegion = "eu-west-2"
	}
	if cfg.Images.MaxWidth == 0 {
		cfg.Images.MaxWidth = 1600
	}
	if cfg.Images.JPEGQuality == 0 {
		cfg.Images.JPEGQuality = 85
	}
	if cfg.Images.MaxUploadMB == 0 {
		cfg.Images.MaxUploadMB = 10
	}
	if cfg.Images.PoolTTLSeconds == 0 {
		cfg.Images.PoolTTLSeconds = 300
	}
	if cfg.Images.Placeholder == "" {
		cfg.Images.Placeholder = "/static/images/placeholder-listing.svg"
	}
	if cfg.Images.UsageCache == "" {
		cfg.Images.UsageCache = "memory"
	}
	if cfg.Images.UsageTTLMinutes == 0 {
		cfg.Images.UsageTTLMinutes = 24 * 60
	}
	if cfg.Import.LocationPlaceholder == "" {
		cfg.Import.LocationPlaceholder = "Location not specified"
	}
	if cfg.Import.MaxRows == 0 {
		cfg.Import.MaxRows = 10000
	}
	if cfg.Import.MaxUploadMB == 0 {
		cfg.Import.MaxUploadMB = 20
	}
	if cfg.Places.BaseURL == "" {
		cfg.Places.BaseURL = "https://maps.googleapis.com/maps/api/place"
	}
	if cfg.Places.TimeoutSeconds == 0 {
		cfg.Places.TimeoutSeconds = 15
	}
	if cfg.Places.RequestsPerSecond == 0 {
		cfg.Places.RequestsPerSecond = 5
	}
	if cfg.Places.MaxRetries == 0 {
		cfg.Places.MaxRetries = 3
	}
	if cfg.Enrichment.Concurrency == 0 {
		cfg.Enrichment.Concurrency = 4
	}
	if cfg.Enrichment.BatchSize == 0 {
		cfg.Enrichment.BatchSize = 50
	}
	if cfg.Enrichment.MaxPhotos == 0 {
		cfg.Enrichment.MaxPhotos = 5
	}
	if cfg.Enrichment.PhotoMaxWidth == 0 {
		cfg.Enrichment.PhotoMaxWidth = 1200
	}
	if cfg.Enrichment.LockTTLMinutes == 0 {
		cfg.Enrichment.LockTTLMinutes = 30
	}
	if cfg.BrokenImages.Backend == "" {
		cfg.BrokenImages.Backend = "postgres"
	}
	if cfg.BrokenImages.DynamoDBTable == "" {
		cfg.BrokenImages.DynamoDBTable = "directory-broken-images"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables.
func (cfg *Config) ApplyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		cfg.Storage.S3Bucket = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Storage.AWSRegion = v
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		cfg.Storage.AccessKeyID = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		cfg.Storage.SecretAccessKey = v
	}
	if v := os.Getenv("PLACES_API_KEY"); v != "" {
		cfg.Places.APIKey = v
	}
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		cfg.Admin.Token = v
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORS.AllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORS.AllowedOrigins = append(cfg.CORS.AllowedOrigins, o)
			}
		}
	}
}
