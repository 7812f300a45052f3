package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/vk/tilegate/internal/hclconf"
	"github.com/vk/tilegate/internal/tilecache"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ConfigPath string // hcl file or directory, optional
	ListenAddr string

	LogFormat string
	LogLevel  string

	Workers         int
	QueueSize       int
	DispatchTimeout time.Duration
	ShutdownTimeout time.Duration

	CacheBackend    string
	CacheURL        string
	CacheTTL        time.Duration
	CacheMaxEntries int

	UpstreamRPS   float64
	UpstreamBurst int
	UserAgent     string

	// Explicit names the flags given on the command line. They win over
	// values from the configuration file.
	Explicit map[string]bool
}

// Defaults used when neither a flag nor the file sets a value.
const (
	DefaultListenAddr      = ":8080"
	DefaultWorkers         = 4
	DefaultDispatchTimeout = 30 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultCacheTTL        = 10 * time.Minute
)

// NewConfig validates cfg and fills in defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("workers must not be negative, got %d", cfg.Workers)
	}
	if cfg.Workers == 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize < 0 {
		return nil, fmt.Errorf("queue size must not be negative, got %d", cfg.QueueSize)
	}
	if cfg.DispatchTimeout < 0 {
		return nil, errors.New("dispatch timeout must not be negative")
	}
	if cfg.DispatchTimeout == 0 {
		cfg.DispatchTimeout = DefaultDispatchTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = tilecache.BackendNone
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	// The url may still come from the configuration file.
	if err := cfg.validateCache(false); err != nil {
		return nil, err
	}
	if cfg.Explicit == nil {
		cfg.Explicit = map[string]bool{}
	}
	return &cfg, nil
}

// merge applies file values for every setting not given as a flag.
func (c *Config) merge(file *hclconf.Config) error {
	d := file.Dispatcher
	if d.Workers > 0 && !c.Explicit["workers"] {
		c.Workers = d.Workers
	}
	if d.QueueSize > 0 && !c.Explicit["queue-size"] {
		c.QueueSize = d.QueueSize
	}
	if d.Timeout > 0 && !c.Explicit["dispatch-timeout"] {
		c.DispatchTimeout = d.Timeout
	}

	cache := file.Cache
	if cache.Backend != "" && !c.Explicit["cache"] {
		c.CacheBackend = cache.Backend
	}
	if cache.URL != "" && !c.Explicit["cache-url"] {
		c.CacheURL = cache.URL
	}
	if cache.TTL > 0 && !c.Explicit["cache-ttl"] {
		c.CacheTTL = cache.TTL
	}
	if cache.MaxEntries > 0 && !c.Explicit["cache-max-entries"] {
		c.CacheMaxEntries = cache.MaxEntries
	}
	return c.validateCache(true)
}

func (c *Config) validateCache(requireURL bool) error {
	switch c.CacheBackend {
	case tilecache.BackendNone, tilecache.BackendMemory:
		return nil
	case tilecache.BackendRedis:
		if requireURL && c.CacheURL == "" {
			return errors.New("the redis cache backend needs a cache url")
		}
		return nil
	default:
		return fmt.Errorf("unknown cache backend %q: must be 'none', 'memory' or 'redis'", c.CacheBackend)
	}
}
