package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// returns the environment variable, or value when it is not set
func GetDefaultEnv(key, value string) string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return value
	}
	return os.ExpandEnv(val)
}

func envInt(key string, value int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return value, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envBool(key string, value bool) (bool, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return value, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

// accepts a Go duration ("90s", "15m") or a plain number of seconds
func envDuration(key string, value time.Duration) (time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return value, nil
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
