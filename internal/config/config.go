// Package config assembles setup options from defaults, an optional TOML
// file, and BORINGCACHE_* environment variables, in that precedence order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"boringcache.com/setup/internal/infrastructure/env"
)

// DefaultReleasesBaseURL is where versioned binaries and their SHA256SUMS
// manifests are published.
const DefaultReleasesBaseURL = "https://github.com/boringcache/boringcache/releases/download"

// VersionSkip is the sentinel meaning "do not install, require the tool to
// already be reachable on PATH".
const VersionSkip = "skip"

// Config carries everything the setup and proxy services need.
type Config struct {
	// Version of the tool to install, or the "skip" sentinel.
	Version string
	// Token authenticates against the cache service; registered for
	// redaction before any other work.
	Token string
	// EnableRemoteCache persists the tool across ephemeral runners.
	EnableRemoteCache bool
	// VerifyChecksum guards downloads against corruption and tampering.
	VerifyChecksum bool
	// ReleasesBaseURL overrides the release download origin (mock servers
	// in tests, mirrors in air-gapped setups).
	ReleasesBaseURL string
	// CacheServiceURL is the remote cache backend; empty disables it.
	CacheServiceURL string
	// Debug lowers the log level floor.
	Debug bool
}

type fileConfig struct {
	Version         string `toml:"version"`
	NoCache         bool   `toml:"no_cache"`
	VerifyChecksum  bool   `toml:"verify_checksum"`
	ReleasesBaseURL string `toml:"releases_base_url"`
	CacheServiceURL string `toml:"cache_service_url"`
	Debug           bool   `toml:"debug"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		EnableRemoteCache: true,
		VerifyChecksum:    true,
		ReleasesBaseURL:   DefaultReleasesBaseURL,
	}
}

// Load builds the effective configuration. path may be empty, in which case
// only defaults and the environment apply; a named file that is missing is
// an error, since the caller asked for it explicitly.
func Load(path string, environ env.Provider) (Config, error) {
	cfg := Default()

	if path != "" {
		var raw fileConfig
		meta, err := toml.DecodeFile(path, &raw)
		if err != nil {
			return Config{}, fmt.Errorf("failed to load config file: %w", err)
		}
		applyFile(&cfg, meta, raw)
	}

	applyEnv(&cfg, environ)
	return cfg, nil
}

func applyFile(cfg *Config, meta toml.MetaData, raw fileConfig) {
	if meta.IsDefined("version") && strings.TrimSpace(raw.Version) != "" {
		cfg.Version = strings.TrimSpace(raw.Version)
	}
	if meta.IsDefined("no_cache") {
		cfg.EnableRemoteCache = !raw.NoCache
	}
	if meta.IsDefined("verify_checksum") {
		cfg.VerifyChecksum = raw.VerifyChecksum
	}
	if meta.IsDefined("releases_base_url") && strings.TrimSpace(raw.ReleasesBaseURL) != "" {
		cfg.ReleasesBaseURL = strings.TrimRight(strings.TrimSpace(raw.ReleasesBaseURL), "/")
	}
	if meta.IsDefined("cache_service_url") {
		cfg.CacheServiceURL = strings.TrimSpace(raw.CacheServiceURL)
	}
	if meta.IsDefined("debug") {
		cfg.Debug = raw.Debug
	}
}

func applyEnv(cfg *Config, environ env.Provider) {
	set := func(key string, apply func(string)) {
		if v := environ.Getenv(key); v != "" {
			apply(v)
		}
	}

	set("BORINGCACHE_VERSION", func(v string) { cfg.Version = strings.TrimSpace(v) })
	set("BORINGCACHE_API_TOKEN", func(v string) { cfg.Token = v })
	set("BORINGCACHE_NO_CACHE", func(v string) {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.EnableRemoteCache = !b
		}
	})
	set("BORINGCACHE_VERIFY_CHECKSUM", func(v string) {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.VerifyChecksum = b
		}
	})
	set("BORINGCACHE_RELEASES_URL", func(v string) {
		cfg.ReleasesBaseURL = strings.TrimRight(strings.TrimSpace(v), "/")
	})
	set("BORINGCACHE_CACHE_URL", func(v string) { cfg.CacheServiceURL = strings.TrimSpace(v) })
	set("BORINGCACHE_DEBUG", func(v string) {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = b
		}
	})
}

// ScratchDir returns the runner's scratch directory for side files (PID
// file, proxy logs), falling back to the OS temp dir off-runner.
func ScratchDir(environ env.Provider) string {
	if dir := environ.Getenv("RUNNER_TEMP"); dir != "" {
		return dir
	}
	return os.TempDir()
}

// ToolCacheRoot returns the local tool-cache root, honoring the runner's
// override variable.
func ToolCacheRoot(environ env.Provider) (string, error) {
	if root := environ.Getenv("RUNNER_TOOL_CACHE"); root != "" {
		return root, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve tool cache root: %w", err)
	}
	return filepath.Join(home, ".boringcache", "tools"), nil
}
