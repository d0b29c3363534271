package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Catalog configuration
	Catalog CatalogConfig `mapstructure:"catalog"`

	// Crawler configuration
	Crawler CrawlerConfig `mapstructure:"crawler"`

	// Storage configuration
	Storage StorageConfig `mapstructure:"storage"`

	// Export configuration
	Export ExportConfig `mapstructure:"export"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// CatalogConfig holds the target catalog's URL scheme
type CatalogConfig struct {
	// BaseURL is the listing page for the catalog category being scraped.
	BaseURL string `mapstructure:"base_url"`
	// ListingURLFormat appends the zero-based page offset to BaseURL.
	ListingURLFormat string `mapstructure:"listing_url_format"`
	// ReviewURLFormat takes a SKU and a one-based review page number.
	ReviewURLFormat string `mapstructure:"review_url_format"`
}

// CrawlerConfig holds fetch and concurrency settings
type CrawlerConfig struct {
	Concurrency       int           `mapstructure:"concurrency"`
	RequestsPerSecond int           `mapstructure:"requests_per_second"`
	Timeout           time.Duration `mapstructure:"timeout"`
	UserAgent         string        `mapstructure:"user_agent"`
	FollowRobotsTxt   bool          `mapstructure:"follow_robots_txt"`
}

// StorageConfig holds the SQLite database location
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// ExportConfig holds spreadsheet output settings
type ExportConfig struct {
	Path string `mapstructure:"path"`
	TopN int    `mapstructure:"top_n"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "text"
}

// Load loads configuration from file and environment. A missing config file
// is not an error; defaults and environment variables apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.sneakscout")
	}

	setDefaults(v)

	v.SetEnvPrefix("SNEAKSCOUT")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Catalog defaults
	v.SetDefault("catalog.base_url", "https://www.zappos.com/men-lifestyle-sneakers/CK_XARC81wEYz-4BwAEC4gIEAQIDGA.zso")
	v.SetDefault("catalog.listing_url_format", "%s?p=%d")
	v.SetDefault("catalog.review_url_format", "https://www.zappos.com/product/review/%s/page/%d")

	// Crawler defaults
	v.SetDefault("crawler.concurrency", 10)
	v.SetDefault("crawler.requests_per_second", 10)
	v.SetDefault("crawler.timeout", "15s")
	v.SetDefault("crawler.user_agent", "")
	v.SetDefault("crawler.follow_robots_txt", true)

	// Storage defaults
	v.SetDefault("storage.path", "./sneakers.db")

	// Export defaults
	v.SetDefault("export.path", "./sneakers.xlsx")
	v.SetDefault("export.top_n", 20)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// ListingURL returns the listing page URL for a zero-based page offset.
func (c *Config) ListingURL(offset int) string {
	return fmt.Sprintf(c.Catalog.ListingURLFormat, c.Catalog.BaseURL, offset)
}

// ReviewURL returns the review page URL for a SKU and a one-based page number.
func (c *Config) ReviewURL(sku string, page int) string {
	return fmt.Sprintf(c.Catalog.ReviewURLFormat, sku, page)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Catalog.BaseURL == "" {
		return fmt.Errorf("catalog.base_url must be set")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be positive")
	}
	if c.Crawler.RequestsPerSecond <= 0 {
		return fmt.Errorf("crawler.requests_per_second must be positive")
	}
	if c.Export.TopN <= 0 {
		return fmt.Errorf("export.top_n must be positive")
	}
	return nil
}
