package valclient

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"golang.org/x/text/language"
)

// Build-time variables - inject via ldflags
// Example: go build -ldflags "-X valclient.clientVersion=release-09.10-shipping-7-2853197"
var (
	clientVersion string // -X valclient.clientVersion=...
)

// Config holds everything the client needs besides the user's credentials.
type Config struct {
	// Region and Shard override the values resolved during login.
	Region string `env:"VALCLIENT_REGION"`
	Shard  string `env:"VALCLIENT_SHARD"`

	// ClientVersion is sent as X-Riot-ClientVersion. When empty the build-time
	// value is used, then the version published by the catalog service.
	ClientVersion string `env:"VALCLIENT_CLIENT_VERSION"`

	// Language is passed to the catalog service. "all" keeps every localization.
	Language string `env:"VALCLIENT_LANGUAGE" envDefault:"all"`

	CacheDir         string `env:"VALCLIENT_CACHE_DIR"          envDefault:".valclient/catalog"`
	CatalogBaseURL   string `env:"VALCLIENT_CATALOG_URL"        envDefault:"https://valorant-api.com"`
	BundlePricesURL  string `env:"VALCLIENT_BUNDLE_PRICES_URL"  envDefault:"https://api.valtracker.gg/v1/bundles"`
	FetchConcurrency int    `env:"VALCLIENT_FETCH_CONCURRENCY"  envDefault:"0"`

	// Proxy accepts ip:port, ip:port:user:pass or a URL.
	Proxy          string `env:"VALCLIENT_PROXY"`
	TimeoutSeconds int    `env:"VALCLIENT_TIMEOUT_SECONDS" envDefault:"30"`

	LogFile string `env:"VALCLIENT_LOG_FILE"`
}

// DefaultConfig returns the defaults LoadConfig starts from.
func DefaultConfig() Config {
	return Config{
		Language:        "all",
		CacheDir:        ".valclient/catalog",
		CatalogBaseURL:  "https://valorant-api.com",
		BundlePricesURL: "https://api.valtracker.gg/v1/bundles",
		TimeoutSeconds:  30,
	}
}

// LoadConfig reads a .env file when present, then the environment.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate normalizes the config in place and rejects unusable values.
func (c *Config) Validate() error {
	defaults := DefaultConfig()
	if c.Language == "" {
		c.Language = defaults.Language
	}
	if c.CacheDir == "" {
		c.CacheDir = defaults.CacheDir
	}
	if c.CatalogBaseURL == "" {
		c.CatalogBaseURL = defaults.CatalogBaseURL
	}
	if c.BundlePricesURL == "" {
		c.BundlePricesURL = defaults.BundlePricesURL
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = defaults.TimeoutSeconds
	}
	c.CatalogBaseURL = strings.TrimRight(c.CatalogBaseURL, "/")
	c.Region = strings.ToLower(strings.TrimSpace(c.Region))
	c.Shard = strings.ToLower(strings.TrimSpace(c.Shard))

	if c.Language != "all" {
		tag, err := language.Parse(c.Language)
		if err != nil {
			return fmt.Errorf("invalid language %q: %w", c.Language, err)
		}
		c.Language = catalogLanguage(tag)
	}
	if c.Region != "" {
		if _, ok := regionShards[c.Region]; !ok {
			return fmt.Errorf("unknown region %q", c.Region)
		}
	}
	if c.FetchConcurrency < 0 {
		return fmt.Errorf("fetch concurrency must not be negative")
	}
	if c.Proxy != "" {
		proxy, err := parseProxy(c.Proxy)
		if err != nil {
			return fmt.Errorf("invalid proxy %q: %w", c.Proxy, err)
		}
		c.Proxy = proxy.String()
	}
	return nil
}

// catalogLanguage renders a tag the way the catalog service expects it (en-US).
func catalogLanguage(tag language.Tag) string {
	base, _ := tag.Base()
	region, conf := tag.Region()
	if conf == language.No {
		return base.String()
	}
	return base.String() + "-" + region.String()
}

// resolveClientVersion returns the configured or build-time client version.
func (c *Config) resolveClientVersion() string {
	if c.ClientVersion != "" {
		return c.ClientVersion
	}
	return clientVersion
}
