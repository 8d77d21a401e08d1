package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Hobex        HobexConfig
	Printer      PrinterConfig
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
	if _, err := cfg.Hobex.RoundingStep(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"POSHOBEX_APP_ENV" required:"true"`
	Port         string `envconfig:"POSHOBEX_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"POSHOBEX_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"POSHOBEX_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"POSHOBEX_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"POSHOBEX_DB_DSN"`
	Driver string `envconfig:"POSHOBEX_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"POSHOBEX_DB_HOST"`
	LegacyPort     int    `envconfig:"POSHOBEX_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"POSHOBEX_DB_USER"`
	LegacyPassword string `envconfig:"POSHOBEX_DB_PASSWORD"`
	LegacyName     string `envconfig:"POSHOBEX_DB_NAME"`
	LegacySSLMode  string `envconfig:"POSHOBEX_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"POSHOBEX_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"POSHOBEX_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"POSHOBEX_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"POSHOBEX_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"POSHOBEX_REDIS_URL" required:"true"`
	Address      string        `envconfig:"POSHOBEX_REDIS_ADDR"`
	Password     string        `envconfig:"POSHOBEX_REDIS_PASSWORD"`
	DB           int           `envconfig:"POSHOBEX_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"POSHOBEX_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"POSHOBEX_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"POSHOBEX_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"POSHOBEX_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"POSHOBEX_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// HobexConfig carries the terminal backend settings shared by all terminals;
// per-terminal credentials live in the terminal registry.
type HobexConfig struct {
	APIAddress       string        `envconfig:"POSHOBEX_HOBEX_API_ADDRESS"`
	Currency         string        `envconfig:"POSHOBEX_HOBEX_CURRENCY" default:"EUR"`
	CurrencyRounding string        `envconfig:"POSHOBEX_HOBEX_CURRENCY_ROUNDING" default:"0.01"`
	Language         string        `envconfig:"POSHOBEX_HOBEX_LANGUAGE" default:"DE"`
	PaymentTimeout   time.Duration `envconfig:"POSHOBEX_HOBEX_PAYMENT_TIMEOUT" default:"80s"`
	ReversalTimeout  time.Duration `envconfig:"POSHOBEX_HOBEX_REVERSAL_TIMEOUT" default:"30s"`
	StatusTimeout    time.Duration `envconfig:"POSHOBEX_HOBEX_STATUS_TIMEOUT" default:"30s"`
	StatusRetries    int           `envconfig:"POSHOBEX_HOBEX_STATUS_RETRIES" default:"12"`
	StatusRetryWait  time.Duration `envconfig:"POSHOBEX_HOBEX_STATUS_RETRY_WAIT" default:"5s"`
	TokenTTL         time.Duration `envconfig:"POSHOBEX_HOBEX_TOKEN_TTL" default:"12h"`
	LineLockTTL      time.Duration `envconfig:"POSHOBEX_HOBEX_LINE_LOCK_TTL" default:"2m"`
}

// RoundingStep parses the configured minor-unit increment.
func (h HobexConfig) RoundingStep() (decimal.Decimal, error) {
	step, err := decimal.NewFromString(h.CurrencyRounding)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing currency rounding %q: %w", h.CurrencyRounding, err)
	}
	if step.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("currency rounding must be positive, got %s", step)
	}
	return step, nil
}

type PrinterConfig struct {
	Endpoint string        `envconfig:"POSHOBEX_PRINTER_ENDPOINT"`
	Timeout  time.Duration `envconfig:"POSHOBEX_PRINTER_TIMEOUT" default:"10s"`
	Width    int           `envconfig:"POSHOBEX_PRINTER_WIDTH" default:"32"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"POSHOBEX_CRON_INTERVAL" default:"6h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"POSHOBEX_AUTO_MIGRATE" default:"false"`
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
