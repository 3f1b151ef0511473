package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "SUBMAN_DB_DSN"
	EnvDBHost = "SUBMAN_DB_HOST"
	EnvDBUser = "SUBMAN_DB_USER"
	EnvDBName = "SUBMAN_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	RateLimit    RateLimitConfig
	Webhooks     WebhookConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SUBMAN_APP_ENV" required:"true"`
	Port         string `envconfig:"SUBMAN_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SUBMAN_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SUBMAN_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SUBMAN_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SUBMAN_DB_DSN"`
	Driver string `envconfig:"SUBMAN_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SUBMAN_DB_HOST"`
	LegacyPort     int    `envconfig:"SUBMAN_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SUBMAN_DB_USER"`
	LegacyPassword string `envconfig:"SUBMAN_DB_PASSWORD"`
	LegacyName     string `envconfig:"SUBMAN_DB_NAME"`
	LegacySSLMode  string `envconfig:"SUBMAN_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SUBMAN_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SUBMAN_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SUBMAN_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SUBMAN_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SUBMAN_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SUBMAN_REDIS_ADDR"`
	Password     string        `envconfig:"SUBMAN_REDIS_PASSWORD"`
	DB           int           `envconfig:"SUBMAN_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SUBMAN_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SUBMAN_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SUBMAN_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SUBMAN_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SUBMAN_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type RateLimitConfig struct {
	Window   time.Duration `envconfig:"SUBMAN_RATE_LIMIT_WINDOW" default:"1m"`
	KeyLimit int64         `envconfig:"SUBMAN_RATE_LIMIT_KEY_LIMIT" default:"120"`
}

type WebhookConfig struct {
	BatchSize      int           `envconfig:"SUBMAN_WEBHOOK_BATCH_SIZE" default:"20"`
	MaxAttempts    int           `envconfig:"SUBMAN_WEBHOOK_MAX_ATTEMPTS" default:"5"`
	RequestTimeout time.Duration `envconfig:"SUBMAN_WEBHOOK_REQUEST_TIMEOUT" default:"10s"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"SUBMAN_CRON_INTERVAL" default:"1m"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SUBMAN_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
