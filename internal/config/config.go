// Package config provides layered configuration for the storage engine:
// built-in defaults, an optional TOML file, and environment variable
// overrides bound through viper.
package config

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// CurrentEngineConfigVersion is the schema version for EngineConfig's file
// representation.
const CurrentEngineConfigVersion = 1

// EngineConfig controls adapter pragma overrides and the versioned-record
// retry policy. Zero values fall back to the engine's own defaults (see
// adapter.OnDiskProfile).
type EngineConfig struct {
	Version int `toml:"version"`

	// BusyTimeoutMS is the on-disk adapter's PRAGMA busy_timeout value.
	BusyTimeoutMS int `toml:"busy_timeout_ms"`

	// CacheSizeKiB is the on-disk adapter's PRAGMA cache_size, in KiB.
	CacheSizeKiB int `toml:"cache_size_kib"`

	// MmapSizeBytes is the on-disk adapter's PRAGMA mmap_size.
	MmapSizeBytes int64 `toml:"mmap_size_bytes"`

	// WALAutocheckpoint is the on-disk adapter's PRAGMA wal_autocheckpoint.
	WALAutocheckpoint int `toml:"wal_autocheckpoint"`

	// IncludeVersionOnQuery mirrors SQLER_INCLUDE_VERSION_ON_QUERY: when set,
	// hydrated query results are rehydrated through FromID to pick up the
	// authoritative version rather than trusting the query snapshot.
	IncludeVersionOnQuery bool `toml:"include_version_on_query"`

	// JITVersion mirrors SQLER_JIT_VERSION: refresh the version immediately
	// before save when the record's id is already known.
	JITVersion bool `toml:"jit_version"`

	// RetryOnStale mirrors SQLER_RETRY_ON_STALE: enable the delta-merge retry
	// loop in record.VersionedTable.SaveWithRetry.
	RetryOnStale bool `toml:"retry_on_stale"`

	// RetryMaxAttempts bounds the retry loop when RetryOnStale is set.
	RetryMaxAttempts int `toml:"retry_max_attempts"`
}

// DefaultEngineConfig returns sane defaults matching SPEC_FULL.md's on-disk
// pragma profile and a conservative (disabled) retry policy.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Version:           CurrentEngineConfigVersion,
		BusyTimeoutMS:     5000,
		CacheSizeKiB:      64000,
		MmapSizeBytes:     268435456,
		WALAutocheckpoint: 1000,
		RetryMaxAttempts:  3,
	}
}

// Load builds an EngineConfig from defaults, optionally overridden by a TOML
// file at path (ignored if empty or missing), then by SQLER_-prefixed
// environment variables via viper.AutomaticEnv.
func Load(path string) (EngineConfig, error) {
	cfg := DefaultEngineConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return cfg, err
			}
		}
	}

	v := viper.New()
	v.SetEnvPrefix("SQLER")
	v.AutomaticEnv()
	bindEnv(v,
		"busy_timeout_ms", "cache_size_kib", "mmap_size_bytes", "wal_autocheckpoint",
		"include_version_on_query", "jit_version", "retry_on_stale", "retry_max_attempts",
	)

	if v.IsSet("busy_timeout_ms") {
		cfg.BusyTimeoutMS = v.GetInt("busy_timeout_ms")
	}
	if v.IsSet("cache_size_kib") {
		cfg.CacheSizeKiB = v.GetInt("cache_size_kib")
	}
	if v.IsSet("mmap_size_bytes") {
		cfg.MmapSizeBytes = v.GetInt64("mmap_size_bytes")
	}
	if v.IsSet("wal_autocheckpoint") {
		cfg.WALAutocheckpoint = v.GetInt("wal_autocheckpoint")
	}
	if v.IsSet("include_version_on_query") {
		cfg.IncludeVersionOnQuery = v.GetBool("include_version_on_query")
	}
	if v.IsSet("jit_version") {
		cfg.JITVersion = v.GetBool("jit_version")
	}
	if v.IsSet("retry_on_stale") {
		cfg.RetryOnStale = v.GetBool("retry_on_stale")
	}
	if v.IsSet("retry_max_attempts") {
		cfg.RetryMaxAttempts = v.GetInt("retry_max_attempts")
	}

	return cfg, nil
}

func bindEnv(v *viper.Viper, keys ...string) {
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
}
