package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "spacegate.yaml"

// MinSecretLen is the shortest accepted HS256 signing secret.
const MinSecretLen = 32

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// CLIFlags holds command-line overrides. Nil fields were not set.
type CLIFlags struct {
	ConfigPath *string
	Port       *string
	LogLevel   *string
	DSN        *string
	NatsURL    *string
}

// ParseFlags parses server flags from args (without the program name).
func ParseFlags(args []string) (CLIFlags, error) {
	fs := flag.NewFlagSet("spacegate", flag.ContinueOnError)
	var (
		configPath, port, logLevel, dsn, natsURL string
	)
	fs.StringVar(&configPath, "config", "", "path to YAML config file")
	fs.StringVar(&configPath, "c", "", "path to YAML config file (shorthand)")
	fs.StringVar(&port, "port", "", "HTTP listen port")
	fs.StringVar(&port, "p", "", "HTTP listen port (shorthand)")
	fs.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.StringVar(&dsn, "dsn", "", "PostgreSQL DSN")
	fs.StringVar(&natsURL, "nats-url", "", "NATS server URL")
	if err := fs.Parse(args); err != nil {
		return CLIFlags{}, err
	}

	var flags CLIFlags
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "config", "c":
			flags.ConfigPath = &configPath
		case "port", "p":
			flags.Port = &port
		case "log-level":
			flags.LogLevel = &logLevel
		case "dsn":
			flags.DSN = &dsn
		case "nats-url":
			flags.NatsURL = &natsURL
		}
	})
	return flags, nil
}

// LoadWithCLI loads defaults < YAML < ENV < CLI and returns the config along
// with the YAML path that was used.
func LoadWithCLI(flags CLIFlags) (*Config, string, error) {
	path := DefaultConfigFile
	if flags.ConfigPath != nil {
		path = *flags.ConfigPath
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, path); err != nil {
		return nil, path, fmt.Errorf("config yaml: %w", err)
	}
	loadEnv(&cfg)
	applyCLI(&cfg, flags)

	if err := validate(&cfg); err != nil {
		return nil, path, fmt.Errorf("config validate: %w", err)
	}
	return &cfg, path, nil
}

// applyCLI overlays the set CLI flags onto cfg.
func applyCLI(cfg *Config, flags CLIFlags) {
	if flags.Port != nil {
		cfg.Server.Port = *flags.Port
	}
	if flags.LogLevel != nil {
		cfg.Logging.Level = *flags.LogLevel
	}
	if flags.DSN != nil {
		cfg.Postgres.DSN = *flags.DSN
	}
	if flags.NatsURL != nil {
		cfg.NATS.URL = *flags.NatsURL
	}
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is operator supplied
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "SPACEGATE_PORT")
	setString(&cfg.Server.CORSOrigin, "SPACEGATE_CORS_ORIGIN")
	setDuration(&cfg.Server.RequestTimeout, "SPACEGATE_REQUEST_TIMEOUT")
	setInt64(&cfg.Server.BodyLimit, "SPACEGATE_BODY_LIMIT")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "SPACEGATE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "SPACEGATE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "SPACEGATE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "SPACEGATE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "SPACEGATE_PG_HEALTH_CHECK")

	setString(&cfg.NATS.URL, "NATS_URL")

	setString(&cfg.Logging.Level, "SPACEGATE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "SPACEGATE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "SPACEGATE_LOG_ASYNC")

	// Auth
	setString(&cfg.Auth.JWTSecret, "SPACEGATE_JWT_SECRET")
	setString(&cfg.Auth.PreviousJWTSecret, "SPACEGATE_JWT_PREVIOUS_SECRET")
	setString(&cfg.Auth.Issuer, "SPACEGATE_JWT_ISSUER")
	setDuration(&cfg.Auth.TokenTTL, "SPACEGATE_TOKEN_TTL")
	setString(&cfg.Auth.CookieName, "SPACEGATE_COOKIE_NAME")
	setInt(&cfg.Auth.BcryptCost, "SPACEGATE_BCRYPT_COST")
	setList(&cfg.Auth.SuperAdmins, "SPACEGATE_SUPER_ADMINS")
	setFloat64(&cfg.Auth.LoginRate, "SPACEGATE_LOGIN_RATE")
	setInt(&cfg.Auth.LoginBurst, "SPACEGATE_LOGIN_BURST")

	// Tenancy
	setList(&cfg.Tenancy.LocalAliases, "SPACEGATE_LOCAL_ALIASES")
	setString(&cfg.Tenancy.DefaultSpaceID, "SPACEGATE_DEFAULT_SPACE_ID")
	setString(&cfg.Tenancy.Directory, "SPACEGATE_DIRECTORY")

	// Cache
	setBool(&cfg.Cache.Enabled, "SPACEGATE_CACHE_ENABLED")
	setInt64(&cfg.Cache.L1MaxSizeMB, "SPACEGATE_CACHE_L1_SIZE_MB")
	setDuration(&cfg.Cache.L1TTL, "SPACEGATE_CACHE_L1_TTL")
	setString(&cfg.Cache.L2Bucket, "SPACEGATE_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "SPACEGATE_CACHE_L2_TTL")

	setInt(&cfg.Breaker.MaxFailures, "SPACEGATE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "SPACEGATE_BREAKER_TIMEOUT")

	// OpenTelemetry
	setBool(&cfg.OTEL.Enabled, "SPACEGATE_OTEL_ENABLED")
	setString(&cfg.OTEL.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.OTEL.ServiceName, "OTEL_SERVICE_NAME")
	setBool(&cfg.OTEL.Insecure, "SPACEGATE_OTEL_INSECURE")
	setFloat64(&cfg.OTEL.SampleRate, "SPACEGATE_OTEL_SAMPLE_RATE")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Server.BodyLimit < 1 {
		return errors.New("server.body_limit must be >= 1")
	}
	switch cfg.Tenancy.Directory {
	case "postgres":
		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required")
		}
		if cfg.Postgres.MaxConns < 1 {
			return errors.New("postgres.max_conns must be >= 1")
		}
	case "memory":
	default:
		return fmt.Errorf("tenancy.directory must be postgres or memory, got %q", cfg.Tenancy.Directory)
	}
	if len(cfg.Auth.JWTSecret) < MinSecretLen {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", MinSecretLen)
	}
	if cfg.Auth.Issuer == "" {
		return errors.New("auth.issuer is required")
	}
	if cfg.Auth.TokenTTL <= 0 {
		return errors.New("auth.token_ttl must be positive")
	}
	if cfg.Auth.CookieName == "" {
		return errors.New("auth.cookie_name is required")
	}
	if cfg.Auth.LoginRate <= 0 || cfg.Auth.LoginBurst < 1 {
		return errors.New("auth.login_rate and auth.login_burst must be positive")
	}
	if cfg.Tenancy.DefaultSpaceID == "" {
		return errors.New("tenancy.default_space_id is required")
	}
	if cfg.Cache.Enabled && cfg.Cache.L1MaxSizeMB < 1 {
		return errors.New("cache.l1_max_size_mb must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setList splits a comma-separated env value, dropping blank entries.
func setList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
