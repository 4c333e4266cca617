package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/amosWeiskopf/riacrawler/internal/models"
	"github.com/amosWeiskopf/riacrawler/pkg/assembler"
	"github.com/amosWeiskopf/riacrawler/pkg/crawler"
	"github.com/amosWeiskopf/riacrawler/pkg/extractor"
	"github.com/amosWeiskopf/riacrawler/pkg/fetch"
	"github.com/amosWeiskopf/riacrawler/pkg/sink"
)

// Config holds all application configuration
type Config struct {
	// Crawl behaviour
	Crawler CrawlerConfig `mapstructure:"crawler"`

	// Rendering service
	Splash SplashConfig `mapstructure:"splash"`

	UserAgents UserAgentsConfig `mapstructure:"user_agents"`

	// Output
	Sink sink.Config `mapstructure:"sink"`

	// Search filter submitted on the start page
	Filter FilterConfig `mapstructure:"filter"`

	// Per selector set, per field CSS rule overrides. Set names use "_"
	// where the extractor uses ".", e.g. detail_rich.
	Selectors map[string]map[string]extractor.FieldSpec `mapstructure:"selectors"`

	Logging LoggingConfig `mapstructure:"logging"`

	Tracing TracingConfig `mapstructure:"tracing"`
}

// CrawlerConfig holds crawler-specific configuration
type CrawlerConfig struct {
	StartURL        string `mapstructure:"start_url"`
	AllowedDomain   string `mapstructure:"allowed_domain"`
	Workers         int    `mapstructure:"workers"`
	PageParam       string `mapstructure:"page_param"`
	MaxPages        int    `mapstructure:"max_pages"`
	ProgressEvery   int    `mapstructure:"progress_every"` // seconds
	Profile         int    `mapstructure:"profile"`
	FollowRobotsTxt bool   `mapstructure:"follow_robots_txt"`
	VINPolicy       string `mapstructure:"vin_policy"`
	WantedPolicy    string `mapstructure:"wanted_policy"`
	DateSource      string `mapstructure:"date_source"`
	DateOutput      string `mapstructure:"date_output"`
}

// SplashConfig holds the rendering service configuration
type SplashConfig struct {
	URL               string        `mapstructure:"url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	Retries           int           `mapstructure:"retries"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	Wait              float64       `mapstructure:"wait"`
	Scripts           ScriptsConfig `mapstructure:"scripts"`
}

// ScriptsConfig holds paths of Lua scripts replacing the built-in ones
type ScriptsConfig struct {
	SubmitFilter  string `mapstructure:"submit_filter"`
	RenderListing string `mapstructure:"render_listing"`
	RenderDetail  string `mapstructure:"render_detail"`
}

// UserAgentsConfig holds the user agent pool configuration
type UserAgentsConfig struct {
	List            []string      `mapstructure:"list"`
	SourceURL       string        `mapstructure:"source_url"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// FilterConfig mirrors models.FilterParams. Unset numeric bounds stay nil.
type FilterConfig struct {
	Category    string `mapstructure:"category"`
	Brand       string `mapstructure:"brand"`
	Model       string `mapstructure:"model"`
	Region      string `mapstructure:"region"`
	Condition   string `mapstructure:"condition"`
	VerifiedVIN bool   `mapstructure:"verified_vin"`
	MinYear     *int   `mapstructure:"-"`
	MaxYear     *int   `mapstructure:"-"`
	MinPrice    *int   `mapstructure:"-"`
	MaxPrice    *int   `mapstructure:"-"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "text"
}

// TracingConfig holds the OTLP trace export configuration. Tracing is off
// when Endpoint is empty.
type TracingConfig struct {
	Endpoint    string            `mapstructure:"endpoint"`
	Headers     map[string]string `mapstructure:"headers"`
	ServiceName string            `mapstructure:"service_name"`
}

// flagKeys maps CLI flag names to configuration keys
var flagKeys = map[string]string{
	"start-url":         "crawler.start_url",
	"workers":           "crawler.workers",
	"max-pages":         "crawler.max_pages",
	"profile":           "crawler.profile",
	"follow-robots-txt": "crawler.follow_robots_txt",
	"splash-url":        "splash.url",
	"sink":              "sink.type",
	"output":            "sink.path",
	"dsn":               "sink.dsn",
	"include-listings":  "sink.include_listings",
	"category":          "filter.category",
	"brand":             "filter.brand",
	"model":             "filter.model",
	"region":            "filter.region",
	"min-year":          "filter.min_year",
	"max-year":          "filter.max_year",
	"min-price":         "filter.min_price",
	"max-price":         "filter.max_price",
	"condition":         "filter.condition",
	"verified-vin":      "filter.verified_vin",
	"log-level":         "logging.level",
	"log-format":        "logging.format",
}

// Load reads configuration from the file at configPath (or config.yaml in
// the usual places), a .env file, RIACRAWLER_ environment variables and the
// given flags, in increasing order of precedence. flags may be nil.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.riacrawler")
	}

	setDefaults(v)
	if err := bindEnvVars(v); err != nil {
		return nil, err
	}
	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error, we'll use defaults and env
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	var bounds error
	for _, b := range []struct {
		key string
		dst **int
	}{
		{"filter.min_year", &config.Filter.MinYear},
		{"filter.max_year", &config.Filter.MaxYear},
		{"filter.min_price", &config.Filter.MinPrice},
		{"filter.max_price", &config.Filter.MaxPrice},
	} {
		n, err := optionalInt(v, b.key)
		bounds = multierr.Append(bounds, err)
		*b.dst = n
	}
	if bounds != nil {
		return nil, bounds
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Crawler defaults
	v.SetDefault("crawler.start_url", "https://auto.ria.com/uk/advanced-search/")
	v.SetDefault("crawler.allowed_domain", "")
	v.SetDefault("crawler.workers", 4)
	v.SetDefault("crawler.page_param", crawler.DefaultPageParam)
	v.SetDefault("crawler.max_pages", 0)
	v.SetDefault("crawler.progress_every", 30)
	v.SetDefault("crawler.profile", 2)
	v.SetDefault("crawler.follow_robots_txt", true)
	v.SetDefault("crawler.vin_policy", string(assembler.FlagByText))
	v.SetDefault("crawler.wanted_policy", string(assembler.FlagByText))
	v.SetDefault("crawler.date_source", "DD.MM.YYYY")
	v.SetDefault("crawler.date_output", "YYYY-MM-DD")

	// Splash defaults
	v.SetDefault("splash.url", "http://127.0.0.1:8050")
	v.SetDefault("splash.timeout", "60s")
	v.SetDefault("splash.retries", 2)
	v.SetDefault("splash.requests_per_second", 2.0)
	v.SetDefault("splash.burst", 2)
	v.SetDefault("splash.wait", 1.0)
	v.SetDefault("splash.scripts.submit_filter", "")
	v.SetDefault("splash.scripts.render_listing", "")
	v.SetDefault("splash.scripts.render_detail", "")

	// User agent defaults
	v.SetDefault("user_agents.list", []string{})
	v.SetDefault("user_agents.source_url", "")
	v.SetDefault("user_agents.refresh_interval", "0s")

	// Sink defaults
	v.SetDefault("sink.type", sink.TypeXLSX)
	v.SetDefault("sink.path", fmt.Sprintf("%d_scraped_cars.xlsx", time.Now().Unix()))
	v.SetDefault("sink.dsn", "")
	v.SetDefault("sink.include_listings", false)

	// Filter defaults
	v.SetDefault("filter.category", string(models.CategoryAny))
	v.SetDefault("filter.brand", "")
	v.SetDefault("filter.model", "")
	v.SetDefault("filter.region", "")
	v.SetDefault("filter.condition", string(models.ConditionAny))
	v.SetDefault("filter.verified_vin", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// Tracing defaults
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", "riacrawler")
}

// bindEnvVars binds environment variables
func bindEnvVars(v *viper.Viper) error {
	v.SetEnvPrefix("RIACRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind specific env vars
	return multierr.Combine(
		v.BindEnv("splash.url", "RIACRAWLER_SPLASH_URL", "SPLASH_URL"),
		v.BindEnv("sink.dsn", "RIACRAWLER_SINK_DSN", "DATABASE_URL"),
		v.BindEnv("tracing.endpoint", "RIACRAWLER_TRACING_ENDPOINT", "OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"),
		v.BindEnv("filter.min_year"),
		v.BindEnv("filter.max_year"),
		v.BindEnv("filter.min_price"),
		v.BindEnv("filter.max_price"),
	)
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			err = multierr.Append(err, v.BindPFlag(key, f))
		}
	})
	return err
}

// optionalInt reads an unset key as nil and rejects values that are not
// whole numbers
func optionalInt(v *viper.Viper, key string) (*int, error) {
	if !v.IsSet(key) {
		return nil, nil
	}
	raw := v.Get(key)
	switch r := raw.(type) {
	case string:
		raw = strings.TrimSpace(r)
	case float64:
		if r != float64(int64(r)) {
			return nil, fmt.Errorf("%s must be a whole number, got %v", key, r)
		}
	}
	n, err := cast.ToIntE(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be a whole number, got %q", key, fmt.Sprint(v.Get(key)))
	}
	return &n, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var err error
	fail := func(format string, args ...any) {
		err = multierr.Append(err, fmt.Errorf(format, args...))
	}

	if u, perr := url.Parse(c.Crawler.StartURL); perr != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		fail("crawler.start_url must be an absolute http(s) URL, got %q", c.Crawler.StartURL)
	}
	if c.Crawler.Workers <= 0 {
		fail("crawler.workers must be positive")
	}
	if c.Crawler.MaxPages < 0 {
		fail("crawler.max_pages must not be negative")
	}
	if c.Crawler.Profile != 1 && c.Crawler.Profile != 2 {
		fail("crawler.profile must be 1 or 2, got %d", c.Crawler.Profile)
	}
	if _, perr := assembler.ParseFlagPolicy(c.Crawler.VINPolicy); perr != nil {
		fail("crawler.vin_policy: %v", perr)
	}
	if _, perr := assembler.ParseFlagPolicy(c.Crawler.WantedPolicy); perr != nil {
		fail("crawler.wanted_policy: %v", perr)
	}

	if c.Splash.URL == "" {
		fail("splash.url is required")
	}
	if c.Splash.Timeout < 0 {
		fail("splash.timeout must not be negative")
	}
	if c.Splash.Retries < 0 {
		fail("splash.retries must not be negative")
	}
	if c.Splash.RequestsPerSecond < 0 {
		fail("splash.requests_per_second must not be negative")
	}

	types := c.Sink.Types()
	if len(types) == 0 {
		fail("sink.type is required")
	}
	for _, t := range types {
		switch t {
		case sink.TypeXLSX, sink.TypeNDJSON, sink.TypeSQLite:
		case sink.TypePostgres:
			if c.Sink.DSN == "" {
				fail("sink.dsn is required for the postgres sink")
			}
		default:
			fail("unknown sink type %q", t)
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		fail("logging.level must be one of debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		fail("logging.format must be json or text")
	}

	return err
}

// CrawlerOptions returns the crawler options
func (c *Config) CrawlerOptions() crawler.Options {
	return crawler.Options{
		StartURL:      c.Crawler.StartURL,
		AllowedDomain: c.Crawler.AllowedDomain,
		PageParam:     c.Crawler.PageParam,
		Workers:       c.Crawler.Workers,
		MaxPages:      c.Crawler.MaxPages,
		ProgressEvery: c.Crawler.ProgressEvery,
	}
}

// DetailOptions returns the assembler options for detail records
func (c *Config) DetailOptions(now time.Time) (assembler.DetailOptions, error) {
	opts := assembler.DefaultDetailOptions(now)
	vin, err := assembler.ParseFlagPolicy(c.Crawler.VINPolicy)
	if err != nil {
		return opts, err
	}
	wanted, err := assembler.ParseFlagPolicy(c.Crawler.WantedPolicy)
	if err != nil {
		return opts, err
	}
	opts.VINConfirmed = vin
	opts.RemainsAtLarge = wanted
	if c.Crawler.DateSource != "" {
		opts.DateSource = c.Crawler.DateSource
	}
	if c.Crawler.DateOutput != "" {
		opts.DateOutput = c.Crawler.DateOutput
	}
	return opts, nil
}

// FilterParams returns the raw search filter values
func (c *Config) FilterParams() models.FilterParams {
	return models.FilterParams{
		Category:    c.Filter.Category,
		Brand:       c.Filter.Brand,
		Model:       c.Filter.Model,
		Region:      c.Filter.Region,
		MinYear:     c.Filter.MinYear,
		MaxYear:     c.Filter.MaxYear,
		MinPrice:    c.Filter.MinPrice,
		MaxPrice:    c.Filter.MaxPrice,
		Condition:   c.Filter.Condition,
		VerifiedVIN: c.Filter.VerifiedVIN,
	}
}

// SplashOptions returns the fetcher options
func (c *Config) SplashOptions() fetch.SplashOptions {
	return fetch.SplashOptions{
		URL:               c.Splash.URL,
		Timeout:           c.Splash.Timeout,
		Retries:           c.Splash.Retries,
		RequestsPerSecond: c.Splash.RequestsPerSecond,
		Burst:             c.Splash.Burst,
		Wait:              c.Splash.Wait,
		FollowRobots:      c.Crawler.FollowRobotsTxt,
	}
}

// ScriptOverrides returns the configured Lua script paths by behaviour
func (c *Config) ScriptOverrides() map[models.RenderScript]string {
	return map[models.RenderScript]string{
		models.ScriptSubmitFilter:  c.Splash.Scripts.SubmitFilter,
		models.ScriptRenderListing: c.Splash.Scripts.RenderListing,
		models.ScriptRenderDetail:  c.Splash.Scripts.RenderDetail,
	}
}

// SelectorOverrides returns the selector overrides keyed by extractor set name
func (c *Config) SelectorOverrides() map[string]map[string]extractor.FieldSpec {
	if len(c.Selectors) == 0 {
		return nil
	}
	out := make(map[string]map[string]extractor.FieldSpec, len(c.Selectors))
	for set, fields := range c.Selectors {
		out[strings.Replace(set, "_", ".", 1)] = fields
	}
	return out
}
