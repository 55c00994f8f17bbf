package shell

import (
	"context"
	"net/url"
	"os"

	"github.com/always-cache/spa-shell/cache"
	"github.com/always-cache/spa-shell/router"

	"github.com/redis/go-redis/v9"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

const (
	DefaultVersion         = "movies-cache-v3"
	DefaultAPIPrefix       = "/api/"
	DefaultOfflineDocument = "/offline.html"
	DefaultListen          = ":8080"
)

// DefaultPrecache is the app shell: stable paths only, hashed assets are cached at runtime.
var DefaultPrecache = []string{
	"/offline.html",
	"/index.html",
	"/images/logo.svg",
	"/images/icon.png",
}

var ErrInvalidConfig = zerr.New("invalid configuration")

type Config struct {
	// Origin URL to proxy to.
	Origin string `yaml:"origin"`
	// Hostname to use for HTTP requests and TLS negotiation.
	Host string `yaml:"host"`
	// Listen address of the proxy.
	Listen string `yaml:"listen"`
	// Name of the cache generation, bump to evict the precached shell.
	Version         string               `yaml:"version"`
	APIPrefix       string               `yaml:"apiPrefix"`
	OfflineDocument string               `yaml:"offlineDocument"`
	Precache        []string             `yaml:"precache"`
	Store           StoreConfig          `yaml:"store"`
	Routes          []router.RouteConfig `yaml:"routes"`
}

type StoreConfig struct {
	// One of "memory", "sqlite" or "redis".
	Provider  string `yaml:"provider"`
	Path      string `yaml:"path"`
	RedisAddr string `yaml:"redisAddr"`
	RedisDB   int    `yaml:"redisDB"`
}

// DefaultConfig returns the configuration of the movies application.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

// LoadConfig reads the YAML config file and fills in defaults for missing values.
func LoadConfig(filename string) (Config, error) {
	var config Config
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, zerr.With(zerr.Wrap(err, "read config"), "file", filename)
	}
	if err := yaml.Unmarshal(configBytes, &config); err != nil {
		return config, zerr.With(zerr.Wrap(err, ErrInvalidConfig.Error()), "file", filename)
	}
	config = config.withDefaults()
	if _, err := config.Table(); err != nil {
		return config, err
	}
	return config, nil
}

func (c Config) withDefaults() Config {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.Version == "" {
		c.Version = DefaultVersion
	}
	if c.APIPrefix == "" {
		c.APIPrefix = DefaultAPIPrefix
	}
	if c.OfflineDocument == "" {
		c.OfflineDocument = DefaultOfflineDocument
	}
	if c.Precache == nil {
		c.Precache = append([]string(nil), DefaultPrecache...)
	}
	if c.Store.Provider == "" {
		c.Store.Provider = "sqlite"
	}
	if c.Store.Provider == "sqlite" && c.Store.Path == "" {
		c.Store.Path = "spa-shell.db"
	}
	return c
}

// OriginURL parses the configured origin.
func (c Config) OriginURL() (*url.URL, error) {
	if c.Origin == "" {
		return nil, zerr.Wrap(ErrInvalidConfig, "origin not set")
	}
	u, err := url.Parse(c.Origin)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, ErrInvalidConfig.Error()), "origin", c.Origin)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, zerr.With(zerr.Wrap(ErrInvalidConfig, "origin must be http or https"), "origin", c.Origin)
	}
	return u, nil
}

// Table builds the route table, falling back to the movies table when no routes are configured.
func (c Config) Table() (router.Table, error) {
	if len(c.Routes) == 0 {
		return router.DefaultTable(), nil
	}
	return router.BuildTable(c.Routes)
}

// OpenStorage opens the configured cache store.
func (s StoreConfig) OpenStorage(ctx context.Context) (cache.Storage, error) {
	switch s.Provider {
	case "memory":
		return cache.NewMemStorage(), nil
	case "sqlite":
		path := s.Path
		if path == "memory" {
			path = cache.MemoryDSN
		}
		return cache.NewSQLiteStorage(path)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr: s.RedisAddr,
			DB:   s.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, zerr.With(zerr.Wrap(err, cache.ErrStoreUnavailable.Error()), "addr", s.RedisAddr)
		}
		return cache.NewRedisStorage(client, ""), nil
	default:
		return nil, zerr.With(zerr.Wrap(ErrInvalidConfig, "unknown store provider"), "provider", s.Provider)
	}
}
