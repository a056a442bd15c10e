package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Crawl    CrawlConfig    `envconfig:"CRAWL"`
	Site     SiteConfig     `envconfig:"SITE"`
	Browser  BrowserConfig  `envconfig:"BROWSER"`
	Output   OutputConfig   `envconfig:"OUTPUT"`
	Database DatabaseConfig `envconfig:"DATABASE"`
	Redis    RedisConfig    `envconfig:"REDIS"`
	Server   ServerConfig   `envconfig:"SERVER"`
	Logging  LoggingConfig  `envconfig:"LOG"`
}

type CrawlConfig struct {
	TargetQuota      int  `envconfig:"TARGET_QUOTA" default:"3000"`
	MinValidFields   int  `envconfig:"MIN_VALID_FIELDS" default:"3"`
	KeepPartial      bool `envconfig:"KEEP_PARTIAL" default:"true"`
	PageSize         int  `envconfig:"PAGE_SIZE" default:"24"`
	BreakerThreshold int  `envconfig:"BREAKER_THRESHOLD" default:"3"`

	LinkTries     int           `envconfig:"LINK_TRIES" default:"3"`
	ExtractTries  int           `envconfig:"EXTRACT_TRIES" default:"2"`
	RetryDelay    time.Duration `envconfig:"RETRY_DELAY" default:"2s"`
	MaxRetryDelay time.Duration `envconfig:"MAX_RETRY_DELAY" default:"0s"`

	// Pause before each product page, drawn from [RequestDelayMin, RequestDelayMax].
	RequestDelayMin time.Duration `envconfig:"REQUEST_DELAY_MIN" default:"0s"`
	RequestDelayMax time.Duration `envconfig:"REQUEST_DELAY_MAX" default:"0s"`

	DedupeProducts bool `envconfig:"DEDUPE_PRODUCTS" default:"false"`
	DedupeSize     int  `envconfig:"DEDUPE_SIZE" default:"10000"`

	GridWait      time.Duration `envconfig:"GRID_WAIT" default:"10s"`
	ListingWait   time.Duration `envconfig:"LISTING_WAIT" default:"15s"`
	ResultsWait   time.Duration `envconfig:"RESULTS_WAIT" default:"10s"`
	NextPageWait  time.Duration `envconfig:"NEXT_PAGE_WAIT" default:"5s"`
	ContentWait   time.Duration `envconfig:"CONTENT_WAIT" default:"15s"`
	ScrollSettle  time.Duration `envconfig:"SCROLL_SETTLE" default:"1s"`
	AdvanceSettle time.Duration `envconfig:"ADVANCE_SETTLE" default:"3s"`
	ClickSettle   time.Duration `envconfig:"CLICK_SETTLE" default:"2s"`
	LoginSettle   time.Duration `envconfig:"LOGIN_SETTLE" default:"5s"`

	PersistTimeout time.Duration `envconfig:"PERSIST_TIMEOUT" default:"1m"`
}

type SiteConfig struct {
	HomeURL string `envconfig:"HOME_URL" default:"https://www.sysco.com"`
	// StartURL is opened directly when Bootstrap is "none".
	StartURL  string `envconfig:"START_URL"`
	Zip       string `envconfig:"ZIP" default:"97201"`
	Bootstrap string `envconfig:"BOOTSTRAP" default:"guest"`
	// Categories holds "id=url" pairs. When set, grid discovery is skipped.
	Categories []string `envconfig:"CATEGORIES"`
}

type BrowserConfig struct {
	Backend        string        `envconfig:"BACKEND" default:"playwright"`
	Headless       bool          `envconfig:"HEADLESS" default:"true"`
	Timeout        time.Duration `envconfig:"TIMEOUT" default:"30s"`
	ViewportWidth  int           `envconfig:"VIEWPORT_WIDTH" default:"1920"`
	ViewportHeight int           `envconfig:"VIEWPORT_HEIGHT" default:"1080"`
	Locale         string        `envconfig:"LOCALE" default:"en-US"`
	TimezoneID     string        `envconfig:"TIMEZONE" default:"America/Los_Angeles"`
	UserAgent      string        `envconfig:"USER_AGENT"`
}

type OutputConfig struct {
	Dir    string   `envconfig:"DIR" default:"output"`
	Prefix string   `envconfig:"PREFIX" default:"sysco_products"`
	Sinks  []string `envconfig:"SINKS" default:"csv"`
}

type DatabaseConfig struct {
	URL         string        `envconfig:"URL"`
	MaxConns    int32         `envconfig:"MAX_CONNS" default:"4"`
	MaxConnLife time.Duration `envconfig:"MAX_CONN_LIFE" default:"30m"`
}

type RedisConfig struct {
	Addr     string `envconfig:"ADDR" default:"localhost:6379"`
	Password string `envconfig:"PASSWORD"`
	DB       int    `envconfig:"DB" default:"0"`
	Stream   string `envconfig:"STREAM" default:"stream:catalog_products"`
	MaxLen   int64  `envconfig:"MAX_LEN" default:"0"`
}

type ServerConfig struct {
	// Addr enables the status API when set, e.g. ":9090".
	Addr           string   `envconfig:"ADDR"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`
}

type LoggingConfig struct {
	Level  string `envconfig:"LEVEL" default:"info"`
	Format string `envconfig:"FORMAT" default:"json"`
}

var (
	backends   = []string{"playwright", "chromedp", "static"}
	bootstraps = []string{"guest", "none"}
	sinks      = []string{"csv", "postgres", "redis"}
)

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if _, statErr := os.Stat(".env"); statErr == nil {
			slog.Warn(".env file found but could not be loaded", "error", err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Crawl.TargetQuota < 0 {
		errs = append(errs, errors.New("CRAWL_TARGET_QUOTA cannot be negative"))
	}
	if c.Crawl.MinValidFields < 1 || c.Crawl.MinValidFields > 6 {
		errs = append(errs, errors.New("CRAWL_MIN_VALID_FIELDS must be between 1 and 6"))
	}
	if c.Crawl.PageSize < 1 {
		errs = append(errs, errors.New("CRAWL_PAGE_SIZE must be at least 1"))
	}
	if c.Crawl.BreakerThreshold < 1 {
		errs = append(errs, errors.New("CRAWL_BREAKER_THRESHOLD must be at least 1"))
	}
	if c.Crawl.LinkTries < 1 || c.Crawl.ExtractTries < 1 {
		errs = append(errs, errors.New("CRAWL_LINK_TRIES and CRAWL_EXTRACT_TRIES must be at least 1"))
	}
	if c.Crawl.RequestDelayMin > c.Crawl.RequestDelayMax && c.Crawl.RequestDelayMax > 0 {
		errs = append(errs, errors.New("CRAWL_REQUEST_DELAY_MIN cannot be greater than CRAWL_REQUEST_DELAY_MAX"))
	}
	if c.Crawl.DedupeProducts && c.Crawl.DedupeSize < 1 {
		errs = append(errs, errors.New("CRAWL_DEDUPE_SIZE must be at least 1"))
	}

	if !oneOf(c.Browser.Backend, backends) {
		errs = append(errs, fmt.Errorf("BROWSER_BACKEND must be one of %s", strings.Join(backends, ", ")))
	}
	if !oneOf(c.Site.Bootstrap, bootstraps) {
		errs = append(errs, fmt.Errorf("SITE_BOOTSTRAP must be one of %s", strings.Join(bootstraps, ", ")))
	}
	if c.Site.Bootstrap == "guest" && (c.Site.HomeURL == "" || c.Site.Zip == "") {
		errs = append(errs, errors.New("SITE_HOME_URL and SITE_ZIP are required for guest bootstrap"))
	}
	if c.Site.Bootstrap == "none" && c.Site.StartURL == "" && len(c.Site.Categories) == 0 {
		errs = append(errs, errors.New("SITE_START_URL or SITE_CATEGORIES is required without a guest bootstrap"))
	}

	if len(c.Output.Sinks) == 0 {
		errs = append(errs, errors.New("OUTPUT_SINKS cannot be empty"))
	}
	for _, sink := range c.Output.Sinks {
		if !oneOf(sink, sinks) {
			errs = append(errs, fmt.Errorf("unknown sink %q, want one of %s", sink, strings.Join(sinks, ", ")))
		}
	}
	if c.HasSink("postgres") && c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required for the postgres sink"))
	}
	if c.HasSink("redis") && c.Redis.Addr == "" {
		errs = append(errs, errors.New("REDIS_ADDR is required for the redis sink"))
	}

	return errors.Join(errs...)
}

// HasSink reports whether name is among the configured sinks.
func (c *Config) HasSink(name string) bool {
	return oneOf(name, c.Output.Sinks)
}

func oneOf(value string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimSpace(value), a) {
			return true
		}
	}
	return false
}
