package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amosWeiskopf/riacrawler/internal/models"
	"github.com/amosWeiskopf/riacrawler/pkg/assembler"
	"github.com/amosWeiskopf/riacrawler/pkg/extractor"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://auto.ria.com/uk/advanced-search/", cfg.Crawler.StartURL)
	assert.Equal(t, 4, cfg.Crawler.Workers)
	assert.Equal(t, "page", cfg.Crawler.PageParam)
	assert.Equal(t, 2, cfg.Crawler.Profile)
	assert.True(t, cfg.Crawler.FollowRobotsTxt)
	assert.Equal(t, 60*time.Second, cfg.Splash.Timeout)
	assert.Equal(t, "xlsx", cfg.Sink.Type)
	assert.Equal(t, "any", cfg.Filter.Category)
	assert.Nil(t, cfg.Filter.MinYear)
	assert.Nil(t, cfg.Filter.MaxPrice)
	assert.Nil(t, cfg.SelectorOverrides())
}

func TestLoadFileEnvAndFlags(t *testing.T) {
	path := writeConfig(t, `
crawler:
  workers: 8
  max_pages: 5
  vin_policy: presence
splash:
  url: http://splash:8050
  timeout: 90s
user_agents:
  list: [ua-1, ua-2]
  refresh_interval: 1h
sink:
  type: ndjson,sqlite
  path: out/cars
filter:
  category: cars
  min_year: 2010
selectors:
  detail_rich:
    price:
      selector: div.price_value span
      pattern: '([\d\s]+)грн'
`)
	t.Setenv("RIACRAWLER_CRAWLER_WORKERS", "3")
	t.Setenv("RIACRAWLER_FILTER_MAX_PRICE", "20000")

	flags := pflag.NewFlagSet("crawl", pflag.ContinueOnError)
	flags.String("brand", "", "")
	flags.Int("min-year", 0, "")
	flags.Int("max-year", 0, "")
	require.NoError(t, flags.Parse([]string{"--brand=Audi", "--min-year=2012"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 3, cfg.Crawler.Workers)
	assert.Equal(t, 5, cfg.Crawler.MaxPages)
	assert.Equal(t, "http://splash:8050", cfg.Splash.URL)
	assert.Equal(t, 90*time.Second, cfg.Splash.Timeout)
	assert.Equal(t, []string{"ua-1", "ua-2"}, cfg.UserAgents.List)
	assert.Equal(t, time.Hour, cfg.UserAgents.RefreshInterval)
	assert.Equal(t, []string{"ndjson", "sqlite"}, cfg.Sink.Types())

	params := cfg.FilterParams()
	assert.Equal(t, "cars", params.Category)
	assert.Equal(t, "Audi", params.Brand)
	require.NotNil(t, params.MinYear)
	assert.Equal(t, 2012, *params.MinYear)
	assert.Nil(t, params.MaxYear)
	require.NotNil(t, params.MaxPrice)
	assert.Equal(t, 20000, *params.MaxPrice)

	overrides := cfg.SelectorOverrides()
	require.Contains(t, overrides, extractor.SetDetailRich)
	assert.Equal(t, "div.price_value span", overrides[extractor.SetDetailRich]["price"].Selector)
	_, err = extractor.New(overrides)
	assert.NoError(t, err)

	opts, err := cfg.DetailOptions(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, assembler.FlagByPresence, opts.VINConfirmed)
	assert.Equal(t, assembler.FlagByText, opts.RemainsAtLarge)
	assert.Equal(t, models.YearBounds{Min: 1974, Max: 2024}, opts.YearBounds)

	assert.Equal(t, "http://splash:8050", cfg.SplashOptions().URL)
}

func TestLoadFilterBounds(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
		want    int
	}{
		{
			name:    "env text",
			env:     map[string]string{"RIACRAWLER_FILTER_MIN_PRICE": "ten thousand"},
			wantErr: "filter.min_price",
		},
		{
			name:    "file text",
			yaml:    "filter:\n  min_price: twenty\n",
			wantErr: "filter.min_price",
		},
		{
			name:    "file fraction",
			yaml:    "filter:\n  min_price: 1500.5\n",
			wantErr: "filter.min_price",
		},
		{
			name: "env padded number",
			env:  map[string]string{"RIACRAWLER_FILTER_MIN_PRICE": " 1500 "},
			want: 1500,
		},
		{
			name: "file number",
			yaml: "filter:\n  min_price: 1500\n",
			want: 1500,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.yaml)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load(path, nil)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, cfg.Filter.MinPrice)
			assert.Equal(t, tt.want, *cfg.Filter.MinPrice)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Crawler: CrawlerConfig{StartURL: "https://auto.ria.com/uk/advanced-search/", Workers: 1, Profile: 2, VINPolicy: "text", WantedPolicy: "presence"},
			Splash:  SplashConfig{URL: "http://127.0.0.1:8050"},
			Logging: LoggingConfig{Level: "info", Format: "json"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) { c.Sink.Type = "xlsx" }},
		{name: "relative start url", mutate: func(c *Config) { c.Sink.Type = "xlsx"; c.Crawler.StartURL = "/uk/search" }, wantErr: "crawler.start_url"},
		{name: "no workers", mutate: func(c *Config) { c.Sink.Type = "xlsx"; c.Crawler.Workers = 0 }, wantErr: "crawler.workers"},
		{name: "unknown profile", mutate: func(c *Config) { c.Sink.Type = "xlsx"; c.Crawler.Profile = 3 }, wantErr: "crawler.profile"},
		{name: "bad policy", mutate: func(c *Config) { c.Sink.Type = "xlsx"; c.Crawler.VINPolicy = "maybe" }, wantErr: "crawler.vin_policy"},
		{name: "no splash", mutate: func(c *Config) { c.Sink.Type = "xlsx"; c.Splash.URL = "" }, wantErr: "splash.url"},
		{name: "no sink", mutate: func(c *Config) {}, wantErr: "sink.type"},
		{name: "unknown sink", mutate: func(c *Config) { c.Sink.Type = "csv" }, wantErr: `unknown sink type "csv"`},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Sink.Type = "postgres" }, wantErr: "sink.dsn"},
		{name: "bad log level", mutate: func(c *Config) { c.Sink.Type = "xlsx"; c.Logging.Level = "loud" }, wantErr: "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
