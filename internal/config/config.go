package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/viper"
)

var (
	instance *Config
	once     sync.Once
	mu       sync.RWMutex
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Converter   ConverterConfig   `mapstructure:"converter"`
	Raster      RasterConfig      `mapstructure:"raster"`
	Watermark   WatermarkConfig   `mapstructure:"watermark"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Reindexer   ReindexerConfig   `mapstructure:"reindexer"`
	Concurrency ConcurrencyConfig `mapstructure:"concurrency"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host" validate:"required"`
	Port int    `mapstructure:"port" validate:"required,min=1,max=65535"`
}

// ConverterConfig contains settings for the external conversion engine.
// An empty Binary means the engine is resolved from the usual LibreOffice
// install locations at startup.
type ConverterConfig struct {
	Binary         string `mapstructure:"binary"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" validate:"min=1"`
	MaxConcurrent  int    `mapstructure:"max_concurrent" validate:"min=1"`
}

// Timeout returns the engine timeout as a duration.
func (c ConverterConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RasterConfig controls page rendering resolution and output compression.
type RasterConfig struct {
	DPI         int `mapstructure:"dpi" validate:"min=50,max=600"`
	JPEGQuality int `mapstructure:"jpeg_quality" validate:"min=1,max=100"`
}

// WatermarkConfig contains the fixed visual parameters of the stamp.
type WatermarkConfig struct {
	Opacity      int     `mapstructure:"opacity" validate:"min=1,max=255"`
	AngleDegrees float64 `mapstructure:"angle_degrees"`
	FontSizePt   float64 `mapstructure:"font_size_pt" validate:"min=1"`
	MaxTextRunes int     `mapstructure:"max_text_runes" validate:"min=1"`
}

// CacheConfig contains result cache configuration
type CacheConfig struct {
	Shards int `mapstructure:"shards" validate:"min=1"`
	TTL    int `mapstructure:"ttl" validate:"min=0"` // TTL in seconds
}

// ReindexerConfig contains job history database configuration.
// An empty DSN disables persistence; jobs are then only logged.
type ReindexerConfig struct {
	DSN       string `mapstructure:"dsn"`
	Namespace string `mapstructure:"namespace"`
}

// ConcurrencyConfig contains concurrency settings
type ConcurrencyConfig struct {
	HTTPMaxWorkers int `mapstructure:"http_max_workers" validate:"min=1"`
	PageWorkers    int `mapstructure:"page_workers" validate:"min=1"`
	MaxUploadMB    int `mapstructure:"max_upload_mb" validate:"min=1"`
}

// Get returns the singleton configuration instance
func Get() *Config {
	once.Do(func() {
		if instance == nil {
			instance = &Config{}
		}
	})
	mu.RLock()
	defer mu.RUnlock()
	return instance
}

// Load initializes and loads configuration from file and environment variables
func Load(configPath string) error {
	mu.Lock()
	defer mu.Unlock()

	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	// Set default values
	setDefaults()

	// Load from file if provided
	if configPath != "" {
		viper.SetConfigFile(configPath)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables
	bindEnvVars()

	// Unmarshal configuration
	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := validate(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	instance = cfg
	return nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)

	// Converter defaults. 120s is generous: LibreOffice cold starts slowly
	// on small containers.
	viper.SetDefault("converter.binary", "")
	viper.SetDefault("converter.timeout_seconds", 120)
	viper.SetDefault("converter.max_concurrent", 1)

	// Raster defaults match the balanced profile of the original service
	// (120 dpi, JPEG quality 75).
	viper.SetDefault("raster.dpi", 120)
	viper.SetDefault("raster.jpeg_quality", 75)

	// Watermark defaults
	viper.SetDefault("watermark.opacity", 60)
	viper.SetDefault("watermark.angle_degrees", 45.0)
	viper.SetDefault("watermark.font_size_pt", 8.0)
	viper.SetDefault("watermark.max_text_runes", 64)

	// Cache defaults
	viper.SetDefault("cache.shards", 16)
	viper.SetDefault("cache.ttl", 900)

	// Reindexer defaults: persistence is opt-in
	viper.SetDefault("reindexer.dsn", "")
	viper.SetDefault("reindexer.namespace", "seal_jobs")

	// Concurrency defaults
	viper.SetDefault("concurrency.http_max_workers", 100)
	viper.SetDefault("concurrency.page_workers", 4)
	viper.SetDefault("concurrency.max_upload_mb", 64)
}

// bindEnvVars binds environment variables to viper keys
func bindEnvVars() {
	// Server
	viper.BindEnv("server.host", "APP_SERVER_HOST")
	viper.BindEnv("server.port", "APP_SERVER_PORT")

	// Converter
	viper.BindEnv("converter.binary", "APP_CONVERTER_BINARY")
	viper.BindEnv("converter.timeout_seconds", "APP_CONVERTER_TIMEOUT_SECONDS")
	viper.BindEnv("converter.max_concurrent", "APP_CONVERTER_MAX_CONCURRENT")

	// Raster
	viper.BindEnv("raster.dpi", "APP_RASTER_DPI")
	viper.BindEnv("raster.jpeg_quality", "APP_RASTER_JPEG_QUALITY")

	// Watermark
	viper.BindEnv("watermark.opacity", "APP_WATERMARK_OPACITY")
	viper.BindEnv("watermark.angle_degrees", "APP_WATERMARK_ANGLE_DEGREES")
	viper.BindEnv("watermark.font_size_pt", "APP_WATERMARK_FONT_SIZE_PT")
	viper.BindEnv("watermark.max_text_runes", "APP_WATERMARK_MAX_TEXT_RUNES")

	// Cache
	viper.BindEnv("cache.shards", "APP_CACHE_SHARDS")
	viper.BindEnv("cache.ttl", "APP_CACHE_TTL")

	// Reindexer
	viper.BindEnv("reindexer.dsn", "APP_REINDEXER_DSN")
	viper.BindEnv("reindexer.namespace", "APP_REINDEXER_NAMESPACE")

	// Concurrency
	viper.BindEnv("concurrency.http_max_workers", "APP_CONCURRENCY_HTTP_MAX_WORKERS")
	viper.BindEnv("concurrency.page_workers", "APP_CONCURRENCY_PAGE_WORKERS")
	viper.BindEnv("concurrency.max_upload_mb", "APP_CONCURRENCY_MAX_UPLOAD_MB")
}

// validate performs validation on the configuration
func validate(cfg *Config) error {
	// Validate Server
	if cfg.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	// Validate Converter
	if cfg.Converter.TimeoutSeconds < 1 {
		return fmt.Errorf("converter.timeout_seconds must be at least 1")
	}
	if cfg.Converter.MaxConcurrent < 1 {
		return fmt.Errorf("converter.max_concurrent must be at least 1")
	}

	// Validate Raster
	if cfg.Raster.DPI < 50 || cfg.Raster.DPI > 600 {
		return fmt.Errorf("raster.dpi must be between 50 and 600")
	}
	if cfg.Raster.JPEGQuality < 1 || cfg.Raster.JPEGQuality > 100 {
		return fmt.Errorf("raster.jpeg_quality must be between 1 and 100")
	}

	// Validate Watermark
	if cfg.Watermark.Opacity < 1 || cfg.Watermark.Opacity > 255 {
		return fmt.Errorf("watermark.opacity must be between 1 and 255")
	}
	if cfg.Watermark.FontSizePt < 1 {
		return fmt.Errorf("watermark.font_size_pt must be at least 1")
	}
	if cfg.Watermark.MaxTextRunes < 1 {
		return fmt.Errorf("watermark.max_text_runes must be at least 1")
	}

	// Validate Cache
	if cfg.Cache.Shards < 1 {
		return fmt.Errorf("cache.shards must be at least 1")
	}
	if cfg.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must be non-negative")
	}

	// Validate Reindexer: namespace only matters when a DSN is set
	if cfg.Reindexer.DSN != "" && cfg.Reindexer.Namespace == "" {
		return fmt.Errorf("reindexer.namespace is required when reindexer.dsn is set")
	}

	// Validate Concurrency
	if cfg.Concurrency.HTTPMaxWorkers < 1 {
		return fmt.Errorf("concurrency.http_max_workers must be at least 1")
	}
	if cfg.Concurrency.PageWorkers < 1 {
		return fmt.Errorf("concurrency.page_workers must be at least 1")
	}
	if cfg.Concurrency.MaxUploadMB < 1 {
		return fmt.Errorf("concurrency.max_upload_mb must be at least 1")
	}

	return nil
}

// Reload reloads the configuration (thread-safe)
func Reload(configPath string) error {
	mu.Lock()
	defer mu.Unlock()

	// Reset instance to allow reload
	instance = nil
	once = sync.Once{}

	return Load(configPath)
}
