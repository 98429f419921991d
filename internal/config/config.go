// Package config provides configuration management for the shared-memory
// administration service.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the administration service.
type Config struct {
	// ShmemBase is the root of the mounted hugetlbfs/tmpfs hierarchy that
	// backs every named region, e.g. "/mnt/.fd".
	ShmemBase string

	// NUMASysfsRoot lets tests and non-standard kernels point topology
	// discovery somewhere other than /sys/devices/system/node.
	NUMASysfsRoot string

	// Diagnostics server settings. This surface exposes only health,
	// readiness, status, metrics, and read-only topology endpoints; it never
	// carries the administrative operations
	// themselves — the "no wire protocol" boundary holds for the core
	// contract, not for operational plumbing.
	DiagHost string
	DiagPort int

	MetricsEnabled bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		ShmemBase:     getEnv("FD_SHMEM_PATH", "/mnt/.fd"),
		NUMASysfsRoot: getEnv("FD_NUMA_SYSFS_ROOT", "/sys/devices/system/node"),

		DiagHost: getEnv("DIAG_HOST", "127.0.0.1"),
		DiagPort: getEnvInt("DIAG_PORT", 9090),

		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),

		ReadTimeout:  getEnvDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout: getEnvDuration("WRITE_TIMEOUT", 5*time.Second),
		IdleTimeout:  getEnvDuration("IDLE_TIMEOUT", 60*time.Second),
	}
}

// The env helpers treat unset, empty, and unparsable values identically:
// the fallback wins. A misconfigured deployment degrades to defaults rather
// than refusing to start.

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getEnvBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
