package config // package config loads application configuration from environment variables

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the process-level settings: HTTP listener, MySQL
// connection and token signing.  Attendance rules live in
// AttendanceConfig so tests can build them without touching the
// environment.
type Config struct {
	Env            string // application environment (e.g. "dev", "prod")
	Port           string // HTTP port to listen on
	DBUser         string // database username
	DBPass         string // database password (optional)
	DBHost         string // database host address
	DBPort         string // database port number
	DBName         string // database name
	JWTSecret      string // secret used to sign JWTs
	AccessTTLMin   int    // access token time‑to‑live in minutes
	RefreshTTLDays int    // refresh token time‑to‑live in days
	BcryptCost     int    // bcrypt cost for password hashing
}

// LoadDotEnv reads a .env file into the process environment when one is
// present.  Variables already set in the environment win.  It runs before
// the logger exists, so failures are returned for the caller to log.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: load .env: %w", err)
	}
	return nil
}

// Env returns APP_ENV, which selects the logger before the rest of the
// configuration is read.
func Env() string { return envStr("APP_ENV", "dev") }

// Load reads configuration values from environment variables.  Every
// missing required variable is named in the returned error.
func Load() (Config, error) {
	var missing []string
	cfg := Config{
		Env:            Env(),
		Port:           envStr("APP_PORT", "8080"),
		DBUser:         required("DB_USER", &missing),
		DBPass:         os.Getenv("DB_PASS"),
		DBHost:         required("DB_HOST", &missing),
		DBPort:         envStr("DB_PORT", "3306"),
		DBName:         required("DB_NAME", &missing),
		JWTSecret:      required("JWT_SECRET", &missing),
		AccessTTLMin:   envInt("ACCESS_TOKEN_TTL_MIN", 15),
		RefreshTTLDays: envInt("REFRESH_TOKEN_TTL_DAYS", 7),
		BcryptCost:     envInt("BCRYPT_COST", 12),
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("config: missing required env vars: %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}

// required returns the value of key, or records it in missing when unset.
func required(key string, missing *[]string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		*missing = append(*missing, key)
	}
	return v
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
