// Package config collects and serves configuration for the chat-core
// runtime. It:
//  1. reads environment variables from .env (via godotenv),
//  2. normalizes and validates the raw values,
//  3. caches the derived settings,
//  4. exposes thread-safe read access through an R/W mutex.
//
// Env config covers the "operational" knobs: the event-service endpoint,
// reconnect/backoff tuning, history and cache capacities, log level, and
// file paths for the durable subscription store.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// EnvConfig holds the settings sourced from the environment (.env). These
// are the startup-time operational parameters: the event-service endpoint,
// reconnect/backoff tuning, cache and history capacities, log level, and
// durable-storage file paths.
//
// NB: values have already passed minimal validation/normalization in
// loadConfig. Callers may assume an EnvConfig is internally consistent.
type EnvConfig struct {
	EventServiceURL   string
	LogLevel          string
	HistoryCapacity   int
	ImageCacheMaxSize int
	SubmuxShardCap    int
	HeartbeatSec      int
	BackoffBaseMS     int
	BackoffCapSec     int
	SubscriptionsFile string
	ImageCacheDir     string
	LogFile           string
	RunTimeoutSec     int
}

// Config holds the loaded environment configuration.
//
// Thread safety: public getters take RLock. Reload (not currently
// supported post-Load) would hold an exclusive Lock while updating fields.
type Config struct {
	Env      EnvConfig
	warnings []string
	mu       sync.RWMutex
}

// Defaults for environment parameters and related files.
const (
	defaultEventServiceURL   = "wss://events.example.tv/v1"
	defaultLogLevel          = "info"
	defaultHistoryCapacity   = 1500
	defaultImageCacheMaxSize = 512
	defaultSubmuxShardCap    = 100
	defaultHeartbeatSec      = 25
	defaultBackoffBaseMS     = 2000
	defaultBackoffCapSec     = 60
	defaultSubscriptionsFile = "data/subscriptions.bbolt"
	defaultImageCacheDir     = "data/imagecache"
	defaultLogFile           = "data/chatclient.log"

	// defaultRunTimeoutSec is 0 (disabled): the console normally runs
	// until /exit or a signal. Scripted/CI demo runs set RUN_TIMEOUT_SEC
	// to get an automatic, graceful cutoff instead.
	defaultRunTimeoutSec = 0
)

var (
	cfgInstance *Config
	cfgDone     bool
)

// Load is the entry point for initializing the global configuration. On
// first call it:
//  1. reads .env,
//  2. builds an EnvConfig,
//  3. stores the result in the singleton cfgInstance.
//
// A second call is rejected (returns an error) to avoid configuration
// races at startup.
func Load(envPath string) error {
	if cfgDone {
		return errors.New("config already loaded")
	}
	if cfgInstance == nil {
		cfgInstance = &Config{}
	}
	cfgInstance.mu.Lock()
	defer cfgInstance.mu.Unlock()
	newCfg, err := loadConfig(envPath)
	if err != nil {
		return err
	}
	cfgInstance = newCfg
	cfgDone = true
	return nil
}

// loadConfig performs the actual load/validation without touching global
// state. Useful in tests: callers can build a throwaway Config and assert
// on it directly.
func loadConfig(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var warnings []string

	eventURL := sanitizeURL(os.Getenv("EVENT_SERVICE_URL"), defaultEventServiceURL, &warnings)
	logLevel := sanitizeLogLevel(os.Getenv("LOG_LEVEL"), &warnings)
	historyCap := parseIntDefault("HISTORY_CAPACITY", defaultHistoryCapacity, greaterThanZero, &warnings)
	imageCacheMax := parseIntDefault("IMAGE_CACHE_MAX_SIZE", defaultImageCacheMaxSize, greaterThanZero, &warnings)
	shardCap := parseIntDefault("SUBMUX_SHARD_CAP", defaultSubmuxShardCap, greaterThanZero, &warnings)
	heartbeatSec := parseIntDefault("HEARTBEAT_SEC", defaultHeartbeatSec, greaterThanZero, &warnings)
	backoffBaseMS := parseIntDefault("BACKOFF_BASE_MS", defaultBackoffBaseMS, greaterThanZero, &warnings)
	backoffCapSec := parseIntDefault("BACKOFF_CAP_SEC", defaultBackoffCapSec, greaterThanZero, &warnings)
	subscriptionsFile := sanitizeFile("SUBSCRIPTIONS_FILE", os.Getenv("SUBSCRIPTIONS_FILE"),
		defaultSubscriptionsFile, &warnings)
	imageCacheDir := sanitizeFile("IMAGE_CACHE_DIR", os.Getenv("IMAGE_CACHE_DIR"),
		defaultImageCacheDir, &warnings)
	logFile := sanitizeFile("LOG_FILE", os.Getenv("LOG_FILE"), defaultLogFile, &warnings)
	runTimeoutSec := parseIntDefault("RUN_TIMEOUT_SEC", defaultRunTimeoutSec, atLeastZero, &warnings)

	env := EnvConfig{
		EventServiceURL:   eventURL,
		LogLevel:          logLevel,
		HistoryCapacity:   historyCap,
		ImageCacheMaxSize: imageCacheMax,
		SubmuxShardCap:    shardCap,
		HeartbeatSec:      heartbeatSec,
		BackoffBaseMS:     backoffBaseMS,
		BackoffCapSec:     backoffCapSec,
		SubscriptionsFile: subscriptionsFile,
		ImageCacheDir:     imageCacheDir,
		LogFile:           logFile,
		RunTimeoutSec:     runTimeoutSec,
	}

	cfg := &Config{
		Env:      env,
		warnings: warnings,
	}

	return cfg, nil
}

// Warnings returns the warnings accumulated while reading the environment
// (e.g. when a default value had to be substituted). Returns a copy.
func Warnings() []string {
	cfgInstance.mu.RLock()
	defer cfgInstance.mu.RUnlock()
	result := make([]string, len(cfgInstance.warnings))
	copy(result, cfgInstance.warnings)
	return result
}

// Env returns the EnvConfig from the global singleton. This is an
// immutable snapshot as of the last Load; reload requires re-running Load
// against a fresh Config in tests.
func Env() EnvConfig {
	return cfgInstance.Env
}

// parseIntDefault reads name as an int. If empty/invalid/failing the
// optional validator, it returns defaultVal and records a warning. This
// lets non-critical settings fall back to sane defaults instead of
// aborting startup.
func parseIntDefault(name string, defaultVal int, validator func(int) bool, warnings *[]string) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		appendWarningf(warnings, "env %s is not set; using default %d", name, defaultVal)
		return defaultVal
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		appendWarningf(warnings, "env %s value %q is not a valid integer; using default %d", name, value, defaultVal)
		return defaultVal
	}
	if validator != nil && !validator(v) {
		appendWarningf(warnings, "env %s value %d does not satisfy constraints; using default %d", name, v, defaultVal)
		return defaultVal
	}
	return v
}

// appendWarningf accumulates warnings about malformed environment
// variables. The list is later exposed through Warnings().
func appendWarningf(warnings *[]string, format string, args ...any) {
	if warnings == nil {
		return
	}
	*warnings = append(*warnings, fmt.Sprintf(format, args...))
}

func greaterThanZero(v int) bool { return v > 0 }

func atLeastZero(v int) bool { return v >= 0 }

// sanitizeLogLevel normalizes LOG_LEVEL to one of {debug, info, warn,
// error}. Anything else falls back to defaultLogLevel.
func sanitizeLogLevel(level string, warnings *[]string) string {
	lvl := strings.ToLower(strings.TrimSpace(level))
	if lvl == "" {
		appendWarningf(warnings, "env LOG_LEVEL is not set; using default %q", defaultLogLevel)
		return defaultLogLevel
	}
	switch lvl {
	case "debug", "info", "warn", "error":
		return lvl
	default:
		appendWarningf(warnings, "env LOG_LEVEL value %q is invalid; using default %q", level, defaultLogLevel)
		return defaultLogLevel
	}
}

// sanitizeURL trims and falls back to defaultVal when empty. A more
// thorough parse happens where the URL is actually dialed (eventclient),
// since that's where a bad scheme or host surfaces as a dial error anyway.
func sanitizeURL(value, defaultVal string, warnings *[]string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		appendWarningf(warnings, "env EVENT_SERVICE_URL is not set; using default %q", defaultVal)
		return defaultVal
	}
	return v
}

// sanitizeFile returns a usable config file path. If the variable is
// unset, it substitutes fallback and records a warning.
func sanitizeFile(name, value, fallback string, warnings *[]string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		appendWarningf(warnings, "env %s is not set; using default %q", name, fallback)
		return fallback
	}
	return v
}
