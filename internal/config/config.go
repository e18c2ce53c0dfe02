package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Scraper  ScraperConfig
	Browser  BrowserConfig
	Redis    RedisConfig
	Database DatabaseConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	RateLimitBurst  int
	RateLimitRefill time.Duration
	AllowedOrigins  []string
}

type ScraperConfig struct {
	APIKey        string
	APIBaseURL    string
	StructuredURL string
	CountryCode   string

	StructuredTimeout  time.Duration
	ProxyTimeout       time.Duration
	SessionTimeout     time.Duration
	SessionFastTimeout time.Duration
	DirectTimeout      time.Duration
	DirectFastTimeout  time.Duration
	ResolveTimeout     time.Duration
	ResolveFastTimeout time.Duration
	RaceTimeout        time.Duration
	RaceGrace          time.Duration

	FlipkartProxyTimeout  time.Duration
	ShortLinkProxyTimeout time.Duration

	ResolveProxyTimeout         time.Duration
	ResolveProxyFlipkartTimeout time.Duration
	ResolveProxyFastTimeout     time.Duration

	MinProxyBytes  int
	MinDirectBytes int
	UserAgents     []string

	PriceMin       float64
	PriceMax       float64
	BlockThreshold int
}

type BrowserConfig struct {
	Enabled        bool
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
}

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	CacheTTL    time.Duration
	DataVersion string
	Stream      string
}

// Enabled reports whether a Redis address was configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

func (d DatabaseConfig) Enabled() bool {
	return d.Host != ""
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getIntOrDefault("SERVER_PORT", 8080),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 180*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			RequestTimeout:  getDurationOrDefault("SERVER_REQUEST_TIMEOUT", 170*time.Second),
			RateLimitBurst:  getIntOrDefault("SERVER_RATE_LIMIT_BURST", 10),
			RateLimitRefill: getDurationOrDefault("SERVER_RATE_LIMIT_REFILL", 6*time.Second),
			AllowedOrigins:  getStringSliceOrDefault("SERVER_ALLOWED_ORIGINS", []string{"http://localhost:*", "https://localhost:*"}),
		},
		Scraper: ScraperConfig{
			APIKey:        getEnvOrDefault("SCRAPER_API_KEY", ""),
			APIBaseURL:    getEnvOrDefault("SCRAPER_API_BASE_URL", "https://api.scraperapi.com/"),
			StructuredURL: getEnvOrDefault("SCRAPER_API_STRUCTURED_URL", "https://api.scraperapi.com/structured/amazon/product"),
			CountryCode:   getEnvOrDefault("SCRAPER_COUNTRY_CODE", "in"),

			StructuredTimeout:  getDurationOrDefault("SCRAPER_STRUCTURED_TIMEOUT", 30*time.Second),
			ProxyTimeout:       getDurationOrDefault("SCRAPER_PROXY_TIMEOUT", 60*time.Second),
			SessionTimeout:     getDurationOrDefault("SCRAPER_SESSION_TIMEOUT", 20*time.Second),
			SessionFastTimeout: getDurationOrDefault("SCRAPER_SESSION_FAST_TIMEOUT", 6*time.Second),
			DirectTimeout:      getDurationOrDefault("SCRAPER_DIRECT_TIMEOUT", 15*time.Second),
			DirectFastTimeout:  getDurationOrDefault("SCRAPER_DIRECT_FAST_TIMEOUT", 4*time.Second),
			ResolveTimeout:     getDurationOrDefault("SCRAPER_RESOLVE_TIMEOUT", 15*time.Second),
			ResolveFastTimeout: getDurationOrDefault("SCRAPER_RESOLVE_FAST_TIMEOUT", 6*time.Second),
			RaceTimeout:        getDurationOrDefault("SCRAPER_RACE_TIMEOUT", 15*time.Second),
			RaceGrace:          getDurationOrDefault("SCRAPER_RACE_GRACE", 5*time.Second),

			FlipkartProxyTimeout:  getDurationOrDefault("SCRAPER_FLIPKART_PROXY_TIMEOUT", 25*time.Second),
			ShortLinkProxyTimeout: getDurationOrDefault("SCRAPER_SHORT_LINK_PROXY_TIMEOUT", 20*time.Second),

			ResolveProxyTimeout:         getDurationOrDefault("SCRAPER_RESOLVE_PROXY_TIMEOUT", 30*time.Second),
			ResolveProxyFlipkartTimeout: getDurationOrDefault("SCRAPER_RESOLVE_PROXY_FLIPKART_TIMEOUT", 40*time.Second),
			ResolveProxyFastTimeout:     getDurationOrDefault("SCRAPER_RESOLVE_PROXY_FAST_TIMEOUT", 15*time.Second),

			MinProxyBytes:  getIntOrDefault("SCRAPER_MIN_PROXY_BYTES", 1000),
			MinDirectBytes: getIntOrDefault("SCRAPER_MIN_DIRECT_BYTES", 2000),
			UserAgents:     getStringSliceOrDefault("SCRAPER_USER_AGENTS", defaultUserAgents()),

			PriceMin:       getFloatOrDefault("SCRAPER_PRICE_MIN", 10),
			PriceMax:       getFloatOrDefault("SCRAPER_PRICE_MAX", 10_000_000),
			BlockThreshold: getIntOrDefault("SCRAPER_BLOCK_THRESHOLD", 20000),
		},
		Browser: BrowserConfig{
			Enabled:        getBoolOrDefault("BROWSER_ENABLED", false),
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "en-IN,en-GB;q=0.9,en-US;q=0.8,en;q=0.7"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "Asia/Kolkata"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "en-IN"),
		},
		Redis: RedisConfig{
			Addr:        getEnvOrDefault("REDIS_ADDR", ""),
			Password:    getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:          getIntOrDefault("REDIS_DB", 0),
			CacheTTL:    getDurationOrDefault("REDIS_CACHE_TTL", 30*time.Minute),
			DataVersion: getEnvOrDefault("REDIS_DATA_VERSION", "v1"),
			Stream:      getEnvOrDefault("REDIS_EVENT_STREAM", "stream:analysis"),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", ""),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "marketplace_analyzer"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Scraper.PriceMin < 0 || c.Scraper.PriceMin >= c.Scraper.PriceMax {
		return fmt.Errorf("SCRAPER_PRICE_MIN must be non-negative and below SCRAPER_PRICE_MAX")
	}

	if c.Scraper.BlockThreshold < 1 {
		return fmt.Errorf("SCRAPER_BLOCK_THRESHOLD must be at least 1")
	}

	if len(c.Scraper.UserAgents) == 0 {
		return fmt.Errorf("SCRAPER_USER_AGENTS must not be empty")
	}

	if c.Server.RateLimitBurst < 1 {
		return fmt.Errorf("SERVER_RATE_LIMIT_BURST must be at least 1")
	}

	return nil
}

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
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}

func defaultUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:124.0) Gecko/20100101 Firefox/124.0",
	}
}
