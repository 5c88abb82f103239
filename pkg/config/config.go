package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/learnizone/enrollcore/pkg/cache"
	"github.com/learnizone/enrollcore/pkg/enrollment"
	"github.com/learnizone/enrollcore/pkg/log"
	"github.com/learnizone/enrollcore/pkg/storage"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "ENROLLCORE_"

// Config is the complete process configuration
type Config struct {
	Log        LogConfig        `yaml:"log"`
	Store      StoreConfig      `yaml:"store"`
	Enrollment EnrollmentConfig `yaml:"enrollment"`
	Cache      CacheConfig      `yaml:"cache"`
	API        APIConfig        `yaml:"api"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
}

// LogConfig configures pkg/log
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
}

// StoreConfig selects the document store backend
type StoreConfig struct {
	Driver      string `yaml:"driver" validate:"oneof=bolt postgres memory"`
	DataDir     string `yaml:"dataDir" validate:"required_if=Driver bolt"`
	PostgresURL string `yaml:"postgresURL" validate:"required_if=Driver postgres"`
	MaxConns    int32  `yaml:"maxConns" validate:"gte=0"`
}

// EnrollmentConfig configures the enrollment service
type EnrollmentConfig struct {
	MaxAttempts    int           `yaml:"maxAttempts" validate:"gte=1,lte=50"`
	RetryBackoff   time.Duration `yaml:"retryBackoff" validate:"gt=0"`
	UnenrollPolicy string        `yaml:"unenrollPolicy" validate:"oneof=cancel delete"`
}

// CacheConfig configures the Redis stats cache
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled"`
	RedisURL string        `yaml:"redisURL" validate:"required_if=Enabled true"`
	TTL      time.Duration `yaml:"ttl" validate:"gte=0"`
}

// APIConfig configures the HTTP server
type APIConfig struct {
	Addr      string `yaml:"addr" validate:"required"`
	JWTSecret string `yaml:"jwtSecret" validate:"omitempty,min=16"`
	JWTIssuer string `yaml:"jwtIssuer"`
}

// ReconcilerConfig configures the scheduled drift audit
type ReconcilerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule" validate:"required_if=Enabled true"`
	Repair   bool   `yaml:"repair"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Store: StoreConfig{
			Driver:  storage.DriverBolt,
			DataDir: "./enrollcore-data",
		},
		Enrollment: EnrollmentConfig{
			MaxAttempts:    enrollment.DefaultMaxAttempts,
			RetryBackoff:   enrollment.DefaultRetryBackoff,
			UnenrollPolicy: string(enrollment.UnenrollCancel),
		},
		Cache: CacheConfig{TTL: cache.DefaultTTL},
		API: APIConfig{
			Addr:      ":8080",
			JWTIssuer: "enrollcore",
		},
		Reconciler: ReconcilerConfig{
			Schedule: "0 */15 * * * *",
		},
	}
}

// Load builds the configuration in layers: defaults, the YAML file at path
// (skipped when path is empty), the given .env files (missing files are
// ignored), ENROLLCORE_* environment variables, then validation.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints and returns one error listing every
// violation
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", strings.TrimPrefix(e.Namespace(), "Config."), tagWithParam(e)))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

func tagWithParam(e validator.FieldError) string {
	if e.Param() == "" {
		return e.Tag()
	}
	return e.Tag() + "=" + e.Param()
}

type lookupFunc func(string) (string, bool)

// applyEnv overrides fields from ENROLLCORE_<SECTION>_<FIELD> variables
func (c *Config) applyEnv(lookup lookupFunc) error {
	strs := map[string]*string{
		"LOG_LEVEL":                  &c.Log.Level,
		"STORE_DRIVER":               &c.Store.Driver,
		"STORE_DATA_DIR":             &c.Store.DataDir,
		"STORE_POSTGRES_URL":         &c.Store.PostgresURL,
		"ENROLLMENT_UNENROLL_POLICY": &c.Enrollment.UnenrollPolicy,
		"CACHE_REDIS_URL":            &c.Cache.RedisURL,
		"API_ADDR":                   &c.API.Addr,
		"API_JWT_SECRET":             &c.API.JWTSecret,
		"API_JWT_ISSUER":             &c.API.JWTIssuer,
		"RECONCILER_SCHEDULE":        &c.Reconciler.Schedule,
	}
	bools := map[string]*bool{
		"LOG_JSON":           &c.Log.JSON,
		"CACHE_ENABLED":      &c.Cache.Enabled,
		"RECONCILER_ENABLED": &c.Reconciler.Enabled,
		"RECONCILER_REPAIR":  &c.Reconciler.Repair,
	}
	durations := map[string]*time.Duration{
		"ENROLLMENT_RETRY_BACKOFF": &c.Enrollment.RetryBackoff,
		"CACHE_TTL":                &c.Cache.TTL,
	}

	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	for key, dst := range bools {
		if v, ok := lookup(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = b
		}
	}
	for key, dst := range durations {
		if v, ok := lookup(EnvPrefix + key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = d
		}
	}
	if v, ok := lookup(EnvPrefix + "ENROLLMENT_MAX_ATTEMPTS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sENROLLMENT_MAX_ATTEMPTS: %w", EnvPrefix, err)
		}
		c.Enrollment.MaxAttempts = n
	}
	if v, ok := lookup(EnvPrefix + "STORE_MAX_CONNS"); ok {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return fmt.Errorf("%sSTORE_MAX_CONNS: %w", EnvPrefix, err)
		}
		c.Store.MaxConns = int32(n)
	}
	return nil
}

// LogSettings converts to pkg/log settings
func (c *Config) LogSettings() log.Config {
	return log.Config{
		Level:      log.Level(c.Log.Level),
		JSONOutput: c.Log.JSON,
	}
}

// StoreOptions converts to storage.Open options
func (c *Config) StoreOptions() storage.Options {
	return storage.Options{
		Driver:  c.Store.Driver,
		DataDir: c.Store.DataDir,
		Postgres: storage.PostgresOptions{
			URL:      c.Store.PostgresURL,
			MaxConns: c.Store.MaxConns,
		},
	}
}

// ServiceConfig converts to enrollment.Config. Collaborators (cache,
// events, clock) are wired by the caller.
func (c *Config) ServiceConfig() enrollment.Config {
	return enrollment.Config{
		MaxAttempts:    c.Enrollment.MaxAttempts,
		RetryBackoff:   c.Enrollment.RetryBackoff,
		UnenrollPolicy: enrollment.UnenrollPolicy(c.Enrollment.UnenrollPolicy),
	}
}

// CacheOptions converts to cache.Options
func (c *Config) CacheOptions() cache.Options {
	return cache.Options{
		URL: c.Cache.RedisURL,
		TTL: c.Cache.TTL,
	}
}
