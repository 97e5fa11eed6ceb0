// Package config loads server configuration from SIGILGRAPH_* environment
// variables, following core/pkg/config.Load()'s env-var-with-defaults
// pattern in the teacher codebase.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/sigilrun/sigilgraph/pkg/spec/validate"
)

// Config holds every setting sigilgraphd needs at startup.
type Config struct {
	Port              string
	DatabaseURL       string
	ConnectivityMode  validate.ConnectivityMode
	AuthRulesPath     string
	DistributionRulesPath string
	FeedRatePerSec    float64

	// ArchivalBackend selects internal/archival's cold-storage backend:
	// "fs" (default), "s3", or "gcs", mirroring the teacher's
	// ARTIFACT_STORAGE_TYPE switch.
	ArchivalBackend string
	ArchivalBucket  string
	ArchivalPrefix  string
	ArchivalDataDir string
	ArchivalRegion  string
	ArchivalEndpoint string

	// JWTSecret signs the short-lived bearer tokens cmd/sigilgraphd issues
	// for a SUB handshake (pkg/wire.TokenIssuer). A blank secret (the
	// default outside a configured deployment) still runs, matching the
	// teacher's Lite Mode fallback: cmd/sigilgraphd logs a warning and
	// signs with a fixed, publicly known development secret — fine for
	// local development, never for a real deployment.
	JWTSecret string
	JWTIssuer string

	// BookmarkRedisAddr, when set, makes cmd/sigilgraphd track each feed's
	// live bookmark in Redis (pkg/bookmark.RedisManager) instead of an
	// in-process pkg/bookmark.Manager, so more than one server instance
	// can share subscription state.
	BookmarkRedisAddr string
}

// Load reads configuration from the environment, applying the same
// defaults the teacher's config.Load() uses for unset variables.
func Load() *Config {
	return &Config{
		Port:                  envOr("SIGILGRAPH_PORT", "8080"),
		DatabaseURL:           envOr("SIGILGRAPH_DATABASE_URL", ""),
		ConnectivityMode:      parseConnectivityMode(envOr("SIGILGRAPH_CONNECTIVITY_MODE", "error")),
		AuthRulesPath:         envOr("SIGILGRAPH_AUTH_RULES_PATH", "authorization.rules"),
		DistributionRulesPath: envOr("SIGILGRAPH_DISTRIBUTION_RULES_PATH", "distribution.rules"),
		FeedRatePerSec:        envOrFloat("SIGILGRAPH_FEED_RATE_PER_SEC", 50),
		ArchivalBackend:       envOr("SIGILGRAPH_ARCHIVAL_BACKEND", "fs"),
		ArchivalBucket:        envOr("SIGILGRAPH_ARCHIVAL_BUCKET", ""),
		ArchivalPrefix:        envOr("SIGILGRAPH_ARCHIVAL_PREFIX", ""),
		ArchivalDataDir:       envOr("SIGILGRAPH_ARCHIVAL_DATA_DIR", "data/archive"),
		ArchivalRegion:        envOr("SIGILGRAPH_ARCHIVAL_REGION", "us-east-1"),
		ArchivalEndpoint:      envOr("SIGILGRAPH_ARCHIVAL_ENDPOINT", ""),
		JWTSecret:             envOr("SIGILGRAPH_JWT_SECRET", ""),
		JWTIssuer:             envOr("SIGILGRAPH_JWT_ISSUER", "sigilgraphd"),
		BookmarkRedisAddr:     envOr("SIGILGRAPH_BOOKMARK_REDIS_ADDR", ""),
	}
}

// LoadWithOverride calls Load, then layers a YAML file's values on top of
// whatever the environment provided, mirroring
// core/pkg/config/profile_loader.go's ReadFile-then-yaml.Unmarshal
// approach for optional profile overrides. A missing path is not an
// error — the environment-derived Config is returned unchanged.
func LoadWithOverride(path string) (*Config, error) {
	cfg := Load()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: reading override %q: %w", path, err)
	}

	var override struct {
		Port                  *string  `yaml:"port"`
		DatabaseURL           *string  `yaml:"database_url"`
		ConnectivityMode      *string  `yaml:"connectivity_mode"`
		AuthRulesPath         *string  `yaml:"auth_rules_path"`
		DistributionRulesPath *string  `yaml:"distribution_rules_path"`
		FeedRatePerSec        *float64 `yaml:"feed_rate_per_sec"`
		ArchivalBackend       *string  `yaml:"archival_backend"`
		ArchivalBucket        *string  `yaml:"archival_bucket"`
		ArchivalPrefix        *string  `yaml:"archival_prefix"`
		ArchivalDataDir       *string  `yaml:"archival_data_dir"`
		ArchivalRegion        *string  `yaml:"archival_region"`
		ArchivalEndpoint      *string  `yaml:"archival_endpoint"`
		JWTSecret             *string  `yaml:"jwt_secret"`
		JWTIssuer             *string  `yaml:"jwt_issuer"`
		BookmarkRedisAddr     *string  `yaml:"bookmark_redis_addr"`
	}
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("config: parsing override %q: %w", path, err)
	}

	if override.Port != nil {
		cfg.Port = *override.Port
	}
	if override.DatabaseURL != nil {
		cfg.DatabaseURL = *override.DatabaseURL
	}
	if override.ConnectivityMode != nil {
		cfg.ConnectivityMode = parseConnectivityMode(*override.ConnectivityMode)
	}
	if override.AuthRulesPath != nil {
		cfg.AuthRulesPath = *override.AuthRulesPath
	}
	if override.DistributionRulesPath != nil {
		cfg.DistributionRulesPath = *override.DistributionRulesPath
	}
	if override.FeedRatePerSec != nil {
		cfg.FeedRatePerSec = *override.FeedRatePerSec
	}
	if override.ArchivalBackend != nil {
		cfg.ArchivalBackend = *override.ArchivalBackend
	}
	if override.ArchivalBucket != nil {
		cfg.ArchivalBucket = *override.ArchivalBucket
	}
	if override.ArchivalPrefix != nil {
		cfg.ArchivalPrefix = *override.ArchivalPrefix
	}
	if override.ArchivalDataDir != nil {
		cfg.ArchivalDataDir = *override.ArchivalDataDir
	}
	if override.ArchivalRegion != nil {
		cfg.ArchivalRegion = *override.ArchivalRegion
	}
	if override.ArchivalEndpoint != nil {
		cfg.ArchivalEndpoint = *override.ArchivalEndpoint
	}
	if override.JWTSecret != nil {
		cfg.JWTSecret = *override.JWTSecret
	}
	if override.JWTIssuer != nil {
		cfg.JWTIssuer = *override.JWTIssuer
	}
	if override.BookmarkRedisAddr != nil {
		cfg.BookmarkRedisAddr = *override.BookmarkRedisAddr
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseConnectivityMode(s string) validate.ConnectivityMode {
	switch s {
	case "off":
		return validate.ConnectivityOff
	case "warn":
		return validate.ConnectivityWarn
	default:
		return validate.ConnectivityError
	}
}
