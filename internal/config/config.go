// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/psl-catalog-crawler/internal/catalog"
	"github.com/JakeFAU/psl-catalog-crawler/internal/crawler"
	"github.com/JakeFAU/psl-catalog-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/psl-catalog-crawler/internal/psl"
)

// Headless fetch modes.
const (
	HeadlessPromote = "promote"
	HeadlessAlways  = "always"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Listing  ListingConfig  `mapstructure:"listing"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Output   OutputConfig   `mapstructure:"output"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Server   ServerConfig   `mapstructure:"server"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ListingConfig locates the dataset listing API and per-dataset catalogs.
type ListingConfig struct {
	APIURL             string        `mapstructure:"api_url"`
	CatalogURLTemplate string        `mapstructure:"catalog_url_template"`
	Timeout            time.Duration `mapstructure:"timeout"`
}

// CrawlerConfig governs traversal and politeness.
type CrawlerConfig struct {
	MaxDepth          int           `mapstructure:"max_depth"`
	Delay             time.Duration `mapstructure:"delay"`
	Pacing            string        `mapstructure:"pacing"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	UserAgent         string        `mapstructure:"user_agent"`
	RespectRobots     bool          `mapstructure:"respect_robots"`
	FileSuffixes      []string      `mapstructure:"file_suffixes"`
	DirectorySuffixes []string      `mapstructure:"directory_suffixes"`
	SkipHrefs         []string      `mapstructure:"skip_hrefs"`
	Resolver          string        `mapstructure:"resolver"`
	OpenDAPBaseURL    string        `mapstructure:"opendap_base_url"`
	DatasetParam      string        `mapstructure:"dataset_param"`
	FetchMetadata     bool          `mapstructure:"fetch_metadata"`
}

// HeadlessConfig configures the optional Chrome-rendered fetcher.
type HeadlessConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Mode is "promote" (plain HTTP first, headless when the page looks
	// script-rendered) or "always".
	Mode               string        `mapstructure:"mode"`
	PromotionThreshold int           `mapstructure:"promotion_threshold"`
	NavTimeout         time.Duration `mapstructure:"nav_timeout"`
	WaitSelector       string        `mapstructure:"wait_selector"`
	Settle             time.Duration `mapstructure:"settle"`
}

// OutputConfig sets where the exported document goes.
type OutputConfig struct {
	Path      string `mapstructure:"path"`
	Format    string `mapstructure:"format"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSObject string `mapstructure:"gcs_object"`
}

// DBConfig controls the optional Postgres catalog table.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for export notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MetricsConfig controls batch metric export.
type MetricsConfig struct {
	// Textfile, when set, receives the registry in node-exporter format
	// after a crawl.
	Textfile string `mapstructure:"textfile"`
}

// ServerConfig controls the read-only HTTP view.
type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	CatalogPath string `mapstructure:"catalog_path"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	crawl := crawler.DefaultConfig()
	v.SetDefault("logging.development", true)
	v.SetDefault("listing.api_url", psl.DefaultAPIURL)
	v.SetDefault("listing.catalog_url_template", psl.DefaultListingTemplate)
	v.SetDefault("listing.timeout", 30*time.Second)
	v.SetDefault("crawler.max_depth", crawl.MaxDepth)
	v.SetDefault("crawler.delay", 100*time.Millisecond)
	v.SetDefault("crawler.pacing", string(ratelimit.ModePause))
	v.SetDefault("crawler.request_timeout", crawl.RequestTimeout)
	v.SetDefault("crawler.user_agent", "psl-catalog-crawler/0.1")
	v.SetDefault("crawler.respect_robots", false)
	v.SetDefault("crawler.file_suffixes", crawl.FileSuffixes)
	v.SetDefault("crawler.directory_suffixes", crawl.DirectorySuffixes)
	v.SetDefault("crawler.skip_hrefs", crawl.SkipHrefs)
	v.SetDefault("crawler.resolver", crawl.Resolver)
	v.SetDefault("crawler.opendap_base_url", crawl.OpenDAPBaseURL)
	v.SetDefault("crawler.dataset_param", crawl.DatasetParam)
	v.SetDefault("crawler.fetch_metadata", crawl.FetchMetadata)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.mode", HeadlessPromote)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("headless.nav_timeout", 25*time.Second)
	v.SetDefault("headless.wait_selector", "body")
	v.SetDefault("output.path", "noaa_catalog.yaml")
	v.SetDefault("output.format", "")
	v.SetDefault("output.gcs_object", "noaa_catalog.yaml")
	v.SetDefault("db.table", "catalog_entries")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("server.port", 8080)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Listing.APIURL) == "" {
		return fmt.Errorf("listing.api_url must be set")
	}
	if c.Listing.Timeout <= 0 {
		return fmt.Errorf("listing.timeout must be > 0")
	}
	if c.Crawler.Delay < 0 {
		return fmt.Errorf("crawler.delay must be >= 0")
	}
	if _, err := ratelimit.ParseMode(c.Crawler.Pacing); err != nil {
		return fmt.Errorf("crawler.pacing: %w", err)
	}
	if err := c.CrawlConfig().Validate(); err != nil {
		return err //nolint:wrapcheck
	}
	if c.Headless.Enabled && c.Headless.NavTimeout <= 0 {
		return fmt.Errorf("headless.nav_timeout must be > 0 when headless is enabled")
	}
	if c.Headless.Mode != HeadlessPromote && c.Headless.Mode != HeadlessAlways {
		return fmt.Errorf("headless.mode must be %q or %q, got %q", HeadlessPromote, HeadlessAlways, c.Headless.Mode)
	}
	if strings.TrimSpace(c.Output.Path) == "" {
		return fmt.Errorf("output.path must be set")
	}
	if _, err := c.OutputFormat(); err != nil {
		return fmt.Errorf("output.format: %w", err)
	}
	if c.Output.GCSBucket != "" && strings.TrimSpace(c.Output.GCSObject) == "" {
		return fmt.Errorf("output.gcs_object must be set when output.gcs_bucket is set")
	}
	if c.DB.MaxConns < 0 {
		return fmt.Errorf("db.max_conns must be >= 0")
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}

// CrawlConfig converts the crawler section into crawler.Config.
func (c Config) CrawlConfig() crawler.Config {
	return crawler.Config{
		MaxDepth:          c.Crawler.MaxDepth,
		RequestTimeout:    c.Crawler.RequestTimeout,
		FileSuffixes:      c.Crawler.FileSuffixes,
		DirectorySuffixes: c.Crawler.DirectorySuffixes,
		SkipHrefs:         c.Crawler.SkipHrefs,
		Resolver:          c.Crawler.Resolver,
		OpenDAPBaseURL:    c.Crawler.OpenDAPBaseURL,
		DatasetParam:      c.Crawler.DatasetParam,
		FetchMetadata:     c.Crawler.FetchMetadata,
	}
}

// OutputFormat resolves output.format, falling back to the path extension.
func (c Config) OutputFormat() (catalog.Format, error) {
	if strings.TrimSpace(c.Output.Format) == "" {
		return catalog.FormatForPath(c.Output.Path), nil
	}
	return catalog.ParseFormat(c.Output.Format) //nolint:wrapcheck
}

// CatalogPath is the document served by the HTTP view; it defaults to the
// crawl output path.
func (c Config) CatalogPath() string {
	if c.Server.CatalogPath != "" {
		return c.Server.CatalogPath
	}
	return c.Output.Path
}
