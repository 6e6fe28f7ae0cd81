// Package env reads configuration from the process environment with
// typed defaults. Values never error; a missing or malformed variable
// yields the default so services come up with sane settings.
package env

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// GetString returns the variable's value, or def when unset.
func GetString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// GetStringFromFile resolves KEY_FILE as a file path first (Docker and
// Kubernetes secret mounts), then falls back to the plain variable.
func GetStringFromFile(key, def string) string {
	if path := os.Getenv(key + "_FILE"); path != "" {
		if content, err := os.ReadFile(filepath.Clean(path)); err == nil {
			return string(bytes.TrimSpace(content))
		}
	}
	return GetString(key, def)
}

// GetInt returns the variable parsed as an int, or def.
func GetInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

// GetBool returns the variable parsed as a bool, or def.
func GetBool(key string, def bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

// GetDuration returns the variable parsed as a time.Duration, or def.
func GetDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

// MustGetString returns the variable's value or panics when unset.
// Reserved for values the service cannot run without.
func MustGetString(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic("required environment variable " + key + " is not set")
	}
	return v
}
