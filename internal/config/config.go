package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig
	Browser       BrowserConfig
	Sourcing      SourcingConfig
	Enrichment    EnrichmentConfig
	Certification CertificationConfig
	Category      CategoryConfig
	Business      BusinessConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Relay         RelayConfig
	Queue         QueueConfig
	Exporter      ExporterConfig
	Logging       LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	UserAgent      string
	ProxyServer    string
	UserDataDir    string
}

type SourcingConfig struct {
	PolitenessMin     time.Duration
	PolitenessMax     time.Duration
	OutputDir         string
	ListingFile       string
	ThumbnailSize     int
	MaxImageSize      int
	DetailWidth       int
	OptimizeImages    bool
	ImageRateLimit    float64
	ImageFetchTimeout time.Duration
}

type EnrichmentConfig struct {
	BaseURL   string
	OCRURL    string
	APIKey    string
	AccountID string
	Timeout   time.Duration
}

type CertificationConfig struct {
	AuthorityURL string
	APIKey       string
	RateLimit    float64
}

type CategoryConfig struct {
	WorkbookPath string
}

type BusinessConfig struct {
	MarginRate     float64
	SplitOptions   bool
	StockCap       int
	ShippingType   string
	ShippingFee    int64
	Bundling       bool
	RemoteArea     bool
	RemoteAreaFee  int64
	DeliveryDays   int
	DetailTemplate string
	DefaultOrigin  string
	TaxType        string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (d DatabaseConfig) Enabled() bool {
	return d.Host != ""
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxRetries   int
	StreamName   string
	StreamMaxLen int64
}

type QueueConfig struct {
	MaxSize int
}

// ExporterConfig configures the stream consumer that writes published
// records to disk.
type ExporterConfig struct {
	Dir      string
	Group    string
	Consumer string
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getStringSliceOrDefault("SERVER_ALLOWED_ORIGINS", []string{"*"}),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "ko-KR,ko;q=0.9,en;q=0.8"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "Asia/Seoul"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "ko-KR"),
			UserAgent:      getEnvOrDefault("BROWSER_USER_AGENT", defaultUserAgent),
			ProxyServer:    getEnvOrDefault("BROWSER_PROXY", ""),
			UserDataDir:    getEnvOrDefault("BROWSER_USER_DATA_DIR", ""),
		},
		Sourcing: SourcingConfig{
			PolitenessMin:     getDurationOrDefault("SOURCING_DELAY_MIN", 3*time.Second),
			PolitenessMax:     getDurationOrDefault("SOURCING_DELAY_MAX", 8*time.Second),
			OutputDir:         getEnvOrDefault("SOURCING_OUTPUT_DIR", "output"),
			ListingFile:       getEnvOrDefault("SOURCING_LISTING_FILE", "listings.json"),
			ThumbnailSize:     getIntOrDefault("SOURCING_THUMBNAIL_SIZE", 1000),
			MaxImageSize:      getIntOrDefault("SOURCING_MAX_IMAGE_SIZE", 1000),
			DetailWidth:       getIntOrDefault("SOURCING_DETAIL_WIDTH", 860),
			OptimizeImages:    getBoolOrDefault("SOURCING_OPTIMIZE_IMAGES", true),
			ImageRateLimit:    getFloatOrDefault("SOURCING_IMAGE_RATE_LIMIT", 4),
			ImageFetchTimeout: getDurationOrDefault("SOURCING_IMAGE_TIMEOUT", 20*time.Second),
		},
		Enrichment: EnrichmentConfig{
			BaseURL:   getEnvOrDefault("ENRICHMENT_URL", "http://localhost:9000"),
			OCRURL:    getEnvOrDefault("ENRICHMENT_OCR_URL", ""),
			APIKey:    getEnvOrDefault("ENRICHMENT_API_KEY", ""),
			AccountID: getEnvOrDefault("ENRICHMENT_ACCOUNT_ID", ""),
			Timeout:   getDurationOrDefault("ENRICHMENT_TIMEOUT", 90*time.Second),
		},
		Certification: CertificationConfig{
			AuthorityURL: getEnvOrDefault("CERT_AUTHORITY_URL", "http://localhost:9100"),
			APIKey:       getEnvOrDefault("CERT_API_KEY", ""),
			RateLimit:    getFloatOrDefault("CERT_RATE_LIMIT", 2),
		},
		Category: CategoryConfig{
			WorkbookPath: getEnvOrDefault("CATEGORY_WORKBOOK", "categories.xlsx"),
		},
		Business: BusinessConfig{
			MarginRate:     getFloatOrDefault("BUSINESS_MARGIN_RATE", 20),
			SplitOptions:   getBoolOrDefault("BUSINESS_SPLIT_OPTIONS", true),
			StockCap:       getIntOrDefault("BUSINESS_STOCK_CAP", 9999),
			ShippingType:   getEnvOrDefault("BUSINESS_SHIPPING_TYPE", "paid"),
			ShippingFee:    int64(getIntOrDefault("BUSINESS_SHIPPING_FEE", 3000)),
			Bundling:       getBoolOrDefault("BUSINESS_BUNDLING", false),
			RemoteArea:     getBoolOrDefault("BUSINESS_REMOTE_AREA", true),
			RemoteAreaFee:  int64(getIntOrDefault("BUSINESS_REMOTE_AREA_FEE", 5000)),
			DeliveryDays:   getIntOrDefault("BUSINESS_DELIVERY_DAYS", 3),
			DetailTemplate: getEnvOrDefault("BUSINESS_DETAIL_TEMPLATE", "default"),
			DefaultOrigin:  getEnvOrDefault("BUSINESS_DEFAULT_ORIGIN", "중국"),
			TaxType:        getEnvOrDefault("BUSINESS_TAX_TYPE", "taxable"),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", ""),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "product_sourcing"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
		},
		Relay: RelayConfig{
			PollInterval: getDurationOrDefault("RELAY_POLL_INTERVAL", time.Second),
			BatchSize:    getIntOrDefault("RELAY_BATCH_SIZE", 100),
			MaxRetries:   getIntOrDefault("RELAY_MAX_RETRIES", 5),
			StreamName:   getEnvOrDefault("RELAY_STREAM", "stream:catalog_records"),
			StreamMaxLen: int64(getIntOrDefault("RELAY_STREAM_MAXLEN", 10000)),
		},
		Queue: QueueConfig{
			MaxSize: getIntOrDefault("QUEUE_MAX_SIZE", 100),
		},
		Exporter: ExporterConfig{
			Dir:      getEnvOrDefault("EXPORT_DIR", "exports"),
			Group:    getEnvOrDefault("EXPORT_GROUP", "record-exporter"),
			Consumer: getEnvOrDefault("EXPORT_CONSUMER", "exporter-1"),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Sourcing.PolitenessMin > c.Sourcing.PolitenessMax {
		return fmt.Errorf("SOURCING_DELAY_MIN cannot be greater than SOURCING_DELAY_MAX")
	}

	if c.Business.MarginRate < 0 {
		return fmt.Errorf("BUSINESS_MARGIN_RATE cannot be negative")
	}

	if c.Business.StockCap < 1 {
		return fmt.Errorf("BUSINESS_STOCK_CAP must be at least 1")
	}

	if c.Sourcing.ThumbnailSize < 1 || c.Sourcing.MaxImageSize < 1 {
		return fmt.Errorf("image sizes must be positive")
	}

	if c.Sourcing.ThumbnailSize > c.Sourcing.MaxImageSize {
		return fmt.Errorf("SOURCING_THUMBNAIL_SIZE cannot exceed SOURCING_MAX_IMAGE_SIZE")
	}

	if c.Queue.MaxSize < 1 {
		return fmt.Errorf("QUEUE_MAX_SIZE must be at least 1")
	}

	return nil
}

// DSN returns the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
