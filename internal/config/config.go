package config // package config loads application configuration from .env, an optional YAML file and the environment

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/capecontrol/capecontrol-auth/internal/utils"
)

// Store drivers accepted by STORE_DRIVER.
const (
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

// Config holds all runtime configuration values. Each field corresponds to
// a key that can come from the environment, a .env file or CONFIG_FILE.
type Config struct {
	Env         string // application environment (dev, test, prod)
	Port        string // HTTP port to listen on
	StoreDriver string // mysql or memory

	DBUser string
	DBPass string
	DBHost string
	DBPort string
	DBName string

	JWTSecret     string
	JWTIssuer     string
	AccessTTL     time.Duration // access token lifetime
	RefreshTTL    time.Duration // refresh token lifetime
	ResetTTL      time.Duration // password reset token lifetime
	RotateRefresh bool          // rotate refresh tokens on /auth/refresh

	BcryptCost int
	Password   utils.PasswordPolicy

	DenylistEnabled bool   // consult Redis for revoked access tokens
	RabbitURL       string // empty disables the queue publisher
	ResetLinkBase   string // prefix for the link placed in reset mails

	LogLevel  string
	LogFormat string // json or text
}

// IsDev reports whether the service runs in a development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.Env) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

// DSN builds the MySQL data source name. parseTime=true maps DATETIME to
// time.Time and loc=UTC reads them back as UTC. time_zone='+00:00' pins
// the session zone so CURRENT_TIMESTAMP defaults are written in UTC too.
func (c Config) DSN() string {
	auth := c.DBUser
	if c.DBPass != "" {
		auth = fmt.Sprintf("%s:%s", c.DBUser, c.DBPass)
	}
	return fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC&time_zone=%s",
		auth, c.DBHost, c.DBPort, c.DBName, url.QueryEscape("'+00:00'"))
}

// Load reads configuration in increasing order of precedence: built-in
// defaults, CONFIG_FILE (flat YAML map of the same keys), the .env file
// named by ENV_FILE (default ".env", missing file ignored) and finally
// the process environment.
func Load() (Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	src, err := newSource(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Env:         src.str("APP_ENV", "dev"),
		Port:        src.str("APP_PORT", "8080"),
		StoreDriver: strings.ToLower(src.str("STORE_DRIVER", DriverMySQL)),

		DBUser: src.str("DB_USER", ""),
		DBPass: src.str("DB_PASS", ""),
		DBHost: src.str("DB_HOST", "127.0.0.1"),
		DBPort: src.str("DB_PORT", "3306"),
		DBName: src.str("DB_NAME", ""),

		JWTSecret:     src.str("JWT_SECRET", ""),
		JWTIssuer:     src.str("JWT_ISSUER", "capecontrol"),
		AccessTTL:     src.dur("ACCESS_TOKEN_TTL", 30*time.Minute),
		RefreshTTL:    src.dur("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		ResetTTL:      src.dur("RESET_TOKEN_TTL", time.Hour),
		RotateRefresh: src.bool("REFRESH_ROTATE", false),

		BcryptCost: src.int("BCRYPT_COST", 12),
		Password: utils.PasswordPolicy{
			MinLength:     src.int("PASSWORD_MIN_LENGTH", 8),
			RequireUpper:  src.bool("PASSWORD_REQUIRE_UPPER", true),
			RequireLower:  src.bool("PASSWORD_REQUIRE_LOWER", true),
			RequireDigit:  src.bool("PASSWORD_REQUIRE_DIGIT", true),
			RequireSymbol: src.bool("PASSWORD_REQUIRE_SYMBOL", true),
		},

		DenylistEnabled: src.bool("ACCESS_DENYLIST_ENABLED", false),
		RabbitURL:       src.str("RABBITMQ_URL", src.str("AMQP_URL", "")),
		ResetLinkBase:   src.str("RESET_LINK_BASE", "https://app.capecontrol.io/reset-password?token="),

		LogLevel:  src.str("LOG_LEVEL", "info"),
		LogFormat: src.str("LOG_FORMAT", "json"),
	}
	if src.err != nil {
		return Config{}, src.err
	}
	return cfg, cfg.Validate()
}

// Validate checks cross-field constraints that defaults cannot cover.
func (c Config) Validate() error {
	var errs []error
	if err := utils.ValidateSecret(c.JWTSecret, c.IsDev()); err != nil {
		errs = append(errs, err)
	}
	switch c.StoreDriver {
	case DriverMySQL:
		if c.DBUser == "" || c.DBName == "" {
			errs = append(errs, errors.New("DB_USER and DB_NAME are required for the mysql store"))
		}
	case DriverMemory:
		if !c.IsDev() {
			errs = append(errs, errors.New("memory store is only allowed in development"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 || c.ResetTTL <= 0 {
		errs = append(errs, errors.New("token TTLs must be positive"))
	}
	if c.AccessTTL >= c.RefreshTTL {
		errs = append(errs, fmt.Errorf("ACCESS_TOKEN_TTL (%s) must be shorter than REFRESH_TOKEN_TTL (%s)", c.AccessTTL, c.RefreshTTL))
	}
	if c.BcryptCost < utils.MinBcryptCost || c.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between %d and 31", utils.MinBcryptCost))
	}
	if c.Password.MinLength < 1 {
		errs = append(errs, errors.New("PASSWORD_MIN_LENGTH must be at least 1"))
	}
	return errors.Join(errs...)
}

// source resolves keys against the environment first and the YAML file
// second. The first parse error is kept in err.
type source struct {
	file map[string]string
	err  error
}

func newSource(path string) (*source, error) {
	s := &source{file: map[string]string{}}
	if path == "" {
		return s, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &s.file); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return s, nil
}

func (s *source) lookup(key string) (string, bool) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v, true
	}
	v, ok := s.file[key]
	return v, ok && v != ""
}

func (s *source) str(key, def string) string {
	if v, ok := s.lookup(key); ok {
		return v
	}
	return def
}

func (s *source) int(key string, def int) int {
	v, ok := s.lookup(key)
	if !ok {
		return def
	}
	n, err := atoiStrict(v)
	if err != nil {
		s.fail(fmt.Errorf("invalid int for %s: %q", key, v))
		return def
	}
	return n
}

func (s *source) bool(key string, def bool) bool {
	v, ok := s.lookup(key)
	if !ok {
		return def
	}
	b, ok := parseBool(v)
	if !ok {
		s.fail(fmt.Errorf("invalid bool for %s: %q", key, v))
		return def
	}
	return b
}

func (s *source) dur(key string, def time.Duration) time.Duration {
	v, ok := s.lookup(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		s.fail(fmt.Errorf("invalid duration for %s: %q", key, v))
		return def
	}
	return d
}

func (s *source) fail(err error) {
	if s.err == nil {
		s.err = err
	}
}
