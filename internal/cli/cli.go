package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/vk/tilegate/internal/app"
	"github.com/vk/tilegate/internal/tilecache"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("tilegate", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
Tilegate - A multi-tenant map tile gateway.

Usage:
  tilegate [options] [CONFIG_PATH]

Arguments:
  CONFIG_PATH
    Optional path to a single .hcl file or a directory containing .hcl files
    that preload sessions and layers.

Options:
`)
		flagSet.PrintDefaults()
	}

	configFlag := flagSet.String("config", "", "Path to the configuration file or directory.")
	cFlag := flagSet.String("c", "", "Path to the configuration file or directory (shorthand).")
	listenFlag := flagSet.String("listen", app.DefaultListenAddr, "Address the HTTP server listens on.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	workersFlag := flagSet.Int("workers", app.DefaultWorkers, "Number of tiles rendered concurrently.")
	queueSizeFlag := flagSet.Int("queue-size", 0, "Maximum number of waiting renders. 0 is unbounded.")
	dispatchTimeoutFlag := flagSet.Duration("dispatch-timeout", app.DefaultDispatchTimeout, "How long a tile request waits for its render.")
	shutdownTimeoutFlag := flagSet.Duration("shutdown-timeout", app.DefaultShutdownTimeout, "How long shutdown waits for queued renders to drain.")
	cacheFlag := flagSet.String("cache", tilecache.BackendNone, "Tile cache backend. Options: 'none', 'memory' or 'redis'.")
	cacheURLFlag := flagSet.String("cache-url", "", "Redis URL for the redis cache backend.")
	cacheTTLFlag := flagSet.Duration("cache-ttl", app.DefaultCacheTTL, "Cache lifetime for layers without max_cache_age.")
	cacheMaxEntriesFlag := flagSet.Int("cache-max-entries", 0, "Maximum tiles held by the memory cache. 0 is unlimited.")
	upstreamRPSFlag := flagSet.Float64("upstream-rps", 0, "Requests per second allowed to each upstream tile server. 0 is unlimited.")
	upstreamBurstFlag := flagSet.Int("upstream-burst", 1, "Burst size for the upstream rate limit.")
	userAgentFlag := flagSet.String("user-agent", "tilegate/1.0", "User-Agent sent to upstream tile servers.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	explicit := make(map[string]bool)
	flagSet.Visit(func(f *flag.Flag) {
		explicit[f.Name] = true
	})

	path := ""
	if *configFlag != "" {
		path = *configFlag
	} else if *cFlag != "" {
		path = *cFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	slog.Debug("Config path determined.", "path", path)

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	if *upstreamRPSFlag < 0 {
		return nil, false, &ExitError{Code: 2, Message: "invalid upstream-rps: must not be negative"}
	}
	if *shutdownTimeoutFlag < time.Second {
		return nil, false, &ExitError{Code: 2, Message: "invalid shutdown-timeout: must be at least 1s"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		ConfigPath:      path,
		ListenAddr:      *listenFlag,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		Workers:         *workersFlag,
		QueueSize:       *queueSizeFlag,
		DispatchTimeout: *dispatchTimeoutFlag,
		ShutdownTimeout: *shutdownTimeoutFlag,
		CacheBackend:    strings.ToLower(*cacheFlag),
		CacheURL:        *cacheURLFlag,
		CacheTTL:        *cacheTTLFlag,
		CacheMaxEntries: *cacheMaxEntriesFlag,
		UpstreamRPS:     *upstreamRPSFlag,
		UpstreamBurst:   *upstreamBurstFlag,
		UserAgent:       *userAgentFlag,
		Explicit:        explicit,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
