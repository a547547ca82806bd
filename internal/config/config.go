package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Scheduler SchedulerConfig
	Dispatch  DispatchConfig
	Provider  ProviderConfig
	Credits   CreditsConfig
}

type ServerConfig struct {
	Address string
	// BaseURL prefixes relative image paths sent to the provider.
	BaseURL string
}

type DatabaseConfig struct {
	Driver         string
	PostgresURL    string
	MigrateOnStart bool
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

type SchedulerConfig struct {
	Interval  time.Duration
	BatchSize int
	ClaimTTL  time.Duration
	AutoStart bool
}

type DispatchConfig struct {
	Workers     int
	QueueSize   int
	Concurrency int
}

type ProviderConfig struct {
	APIBase       string
	PhoneNumberID string
	AccessToken   string
	VerifyToken   string
	AppSecret     string
	Timeout       time.Duration
	RatePerSecond float64
	ContentMax    int
}

type CreditsConfig struct {
	Initial int64
}

// LoadAll reads the configuration from the environment. Every invalid or
// missing variable is reported, not just the first.
func LoadAll() (*Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	intVar := func(key string, def int) int {
		v, err := getEnvInt(key, def)
		collect(err)
		return v
	}
	secondsVar := func(key string, def int) time.Duration {
		return time.Duration(intVar(key, def)) * time.Second
	}
	boolVar := func(key string, def bool) bool {
		v, err := getEnvBool(key, def)
		collect(err)
		return v
	}

	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
			BaseURL: strings.TrimRight(getEnv("BASE_URL", "http://localhost:8080"), "/"),
		},
		Database: DatabaseConfig{
			Driver:         strings.ToLower(getEnv("STORE_DRIVER", DriverPostgres)),
			MigrateOnStart: boolVar("DB_MIGRATE_ON_START", true),
		},
		Scheduler: SchedulerConfig{
			Interval:  secondsVar("SCHED_INTERVAL_SECONDS", 30),
			BatchSize: intVar("SCHED_BATCH_SIZE", 50),
			ClaimTTL:  secondsVar("SCHED_CLAIM_TTL_SECONDS", 600),
			AutoStart: boolVar("SCHED_AUTOSTART", true),
		},
		Dispatch: DispatchConfig{
			Workers:     intVar("DISPATCH_WORKERS", 2),
			QueueSize:   intVar("DISPATCH_QUEUE_SIZE", 256),
			Concurrency: intVar("DISPATCH_CONCURRENCY", 4),
		},
		Provider: ProviderConfig{
			APIBase:       getEnv("WABA_API_BASE", "https://graph.facebook.com/v20.0"),
			PhoneNumberID: os.Getenv("WABA_PHONE_NUMBER_ID"),
			AccessToken:   os.Getenv("WABA_ACCESS_TOKEN"),
			VerifyToken:   os.Getenv("WABA_VERIFY_TOKEN"),
			AppSecret:     os.Getenv("WABA_APP_SECRET"),
			Timeout:       secondsVar("PROVIDER_TIMEOUT_SECONDS", 10),
			ContentMax:    intVar("CONTENT_MAX", 4096),
		},
		Credits: CreditsConfig{
			Initial: int64(intVar("INITIAL_CREDITS", 500)),
		},
	}

	rate, err := getEnvFloat("PROVIDER_RATE_PER_SECOND", 20)
	collect(err)
	cfg.Provider.RatePerSecond = rate

	if cfg.Database.Driver == DriverPostgres {
		url, err := requireEnv("POSTGRES_URL")
		collect(err)
		cfg.Database.PostgresURL = url
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis = RedisConfig{
			Enabled:  true,
			Address:  addr,
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       intVar("REDIS_DB", 0),
			TTL:      secondsVar("REDIS_TTL_SECONDS", 86400),
		}
	}

	if len(errs) == 0 {
		errs = validate(cfg)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) []error {
	var errs []error
	positive := func(key string, v int64) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0", key))
		}
	}

	switch cfg.Database.Driver {
	case DriverPostgres, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverMemory, cfg.Database.Driver))
	}

	positive("SCHED_INTERVAL_SECONDS", int64(cfg.Scheduler.Interval))
	positive("SCHED_BATCH_SIZE", int64(cfg.Scheduler.BatchSize))
	positive("SCHED_CLAIM_TTL_SECONDS", int64(cfg.Scheduler.ClaimTTL))
	positive("DISPATCH_WORKERS", int64(cfg.Dispatch.Workers))
	positive("DISPATCH_QUEUE_SIZE", int64(cfg.Dispatch.QueueSize))
	positive("DISPATCH_CONCURRENCY", int64(cfg.Dispatch.Concurrency))
	positive("PROVIDER_TIMEOUT_SECONDS", int64(cfg.Provider.Timeout))
	positive("CONTENT_MAX", int64(cfg.Provider.ContentMax))

	if cfg.Provider.RatePerSecond < 0 {
		errs = append(errs, errors.New("PROVIDER_RATE_PER_SECOND must be >= 0"))
	}
	if cfg.Credits.Initial < 0 {
		errs = append(errs, errors.New("INITIAL_CREDITS must be >= 0"))
	}
	if cfg.Redis.Enabled && cfg.Redis.TTL <= 0 {
		errs = append(errs, errors.New("REDIS_TTL_SECONDS must be > 0"))
	}
	return errs
}

func requireEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("invalid int for env %s: %q", key, v)
	}
	return i, nil
}

func getEnvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, fmt.Errorf("invalid number for env %s: %q", key, v)
	}
	return f, nil
}

func getEnvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("invalid bool for env %s: %q", key, v)
	}
	return b, nil
}
