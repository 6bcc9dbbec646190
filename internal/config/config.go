// Package config loads sattrack settings from an optional config file and
// SATTRACK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/star/sattrack/internal/auth"
	"github.com/star/sattrack/internal/cache"
	"github.com/star/sattrack/internal/stream"
)

// EnvPrefix prefixes every environment override, e.g. SATTRACK_HTTP_ADDR.
const EnvPrefix = "SATTRACK"

// Config is the resolved application configuration.
type Config struct {
	HTTPAddr string
	Auth     auth.Config
	LogLevel slog.Level

	Catalog     CatalogConfig
	Propagation PropagationConfig
	Passes      PassConfig
	Stream      stream.Config
	Cache       cache.Config
}

// CatalogConfig locates the element set catalog and its snapshot cache.
type CatalogConfig struct {
	Path     string
	CacheDir string
	MaxFiles int
}

// PropagationConfig sizes the batch worker pool.
type PropagationConfig struct {
	Workers int
}

// PassConfig holds pass-search defaults.
type PassConfig struct {
	CoarseStep   time.Duration
	Tolerance    time.Duration
	MinElevation float64 // degrees
	MaxPasses    int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.trust_proxy", false)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.token", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("catalog.path", "")
	v.SetDefault("catalog.cache_dir", "/tmp/sattrack/catalog")
	v.SetDefault("catalog.max_files", 5)
	v.SetDefault("propagation.workers", runtime.NumCPU())
	v.SetDefault("passes.coarse_step", "10s")
	v.SetDefault("passes.tolerance", "100ms")
	v.SetDefault("passes.min_elevation", 10.0)
	v.SetDefault("passes.max_passes", 0)
	v.SetDefault("stream.max_concurrent_per_ip", 10)
	v.SetDefault("stream.keepalive_interval", "30s")
	v.SetDefault("cache.step", "1s")
	v.SetDefault("cache.horizon", "10s")
	v.SetDefault("cache.buffer", "10s")
}

// Load resolves configuration from defaults, the file at path (skipped
// when empty) and the environment, in increasing precedence. Out-of-range
// numeric values fall back to their defaults with a warning; an invalid
// auth setup is an error.
func Load(path string, logger *slog.Logger) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}
	return fromViper(v, logger)
}

func fromViper(v *viper.Viper, logger *slog.Logger) (Config, error) {
	cfg := Config{
		HTTPAddr: v.GetString("http.addr"),
		Catalog: CatalogConfig{
			Path:     v.GetString("catalog.path"),
			CacheDir: v.GetString("catalog.cache_dir"),
		},
	}

	authCfg, err := loadAuth(v)
	if err != nil {
		return Config{}, err
	}
	cfg.Auth = authCfg

	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString("log.level"))); err != nil {
		logger.Warn("invalid log.level value, using default", "value", v.GetString("log.level"), "default", "info")
		cfg.LogLevel = slog.LevelInfo
	}

	cfg.Catalog.MaxFiles = positiveInt(v, logger, "catalog.max_files", 5)
	cfg.Propagation.Workers = positiveInt(v, logger, "propagation.workers", runtime.NumCPU())
	cfg.Passes.CoarseStep = positiveDuration(v, logger, "passes.coarse_step", 10*time.Second)
	cfg.Passes.Tolerance = positiveDuration(v, logger, "passes.tolerance", 100*time.Millisecond)

	cfg.Passes.MinElevation = v.GetFloat64("passes.min_elevation")
	if raw := v.GetString("passes.min_elevation"); !validElevation(raw) {
		logger.Warn("invalid passes.min_elevation value, using default", "value", raw, "default", 10.0)
		cfg.Passes.MinElevation = 10
	}

	cfg.Stream = stream.Config{
		MaxConcurrentPerIP: positiveInt(v, logger, "stream.max_concurrent_per_ip", 10),
		KeepaliveInterval:  positiveDuration(v, logger, "stream.keepalive_interval", 30*time.Second),
		TrustProxy:         cfg.Auth.TrustProxy,
	}

	cfg.Cache = cache.Config{
		Step:    positiveDuration(v, logger, "cache.step", time.Second),
		Horizon: positiveDuration(v, logger, "cache.horizon", 10*time.Second),
		Buffer:  positiveDuration(v, logger, "cache.buffer", 10*time.Second),
	}

	cfg.Passes.MaxPasses = v.GetInt("passes.max_passes")
	if raw := v.GetString("passes.max_passes"); !nonNegativeInt(raw) {
		logger.Warn("invalid passes.max_passes value, using default", "value", raw, "default", 0)
		cfg.Passes.MaxPasses = 0
	}

	logger.Info("configuration loaded",
		"http_addr", cfg.HTTPAddr,
		"auth_enabled", cfg.Auth.Enabled,
		"catalog_path", cfg.Catalog.Path,
		"cache_dir", cfg.Catalog.CacheDir,
		"workers", cfg.Propagation.Workers,
		"coarse_step_seconds", cfg.Passes.CoarseStep.Seconds(),
		"min_elevation", cfg.Passes.MinElevation,
	)
	return cfg, nil
}

func loadAuth(v *viper.Viper) (auth.Config, error) {
	var cfg auth.Config
	if raw := v.GetString("auth.enabled"); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return cfg, errors.New("auth.enabled must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}
	cfg.TrustProxy = v.GetBool("http.trust_proxy")
	if cfg.Enabled {
		cfg.Token = v.GetString("auth.token")
		if cfg.Token == "" {
			return cfg, errors.New("auth.token is required when auth is enabled")
		}
	}
	return cfg, nil
}

func positiveInt(v *viper.Viper, logger *slog.Logger, key string, def int) int {
	raw := v.GetString(key)
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		logger.Warn("invalid "+key+" value, using default", "value", raw, "default", def)
		return def
	}
	return n
}

func positiveDuration(v *viper.Viper, logger *slog.Logger, key string, def time.Duration) time.Duration {
	raw := v.GetString(key)
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d <= 0 {
		logger.Warn("invalid "+key+" value, using default", "value", raw, "default", def.String())
		return def
	}
	return d
}

func validElevation(raw string) bool {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	return err == nil && f >= -90 && f <= 90
}

func nonNegativeInt(raw string) bool {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	return err == nil && n >= 0
}
