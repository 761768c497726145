package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Helpers for the side configs (rate limit, cache, redis) which read the
// environment directly with per-key defaults.

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	if b, ok := parseBool(os.Getenv(k)); ok {
		return b
	}
	return d
}

func envInt(k string, d int) int {
	if n, err := atoiStrict(os.Getenv(k)); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	if dur, err := time.ParseDuration(os.Getenv(k)); err == nil {
		return dur
	}
	return d
}

func parseBool(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	}
	return false, false
}

func atoiStrict(v string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(v))
}
