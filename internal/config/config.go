package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"pharmatrack/m/internal/database"
)

// Config holds application configuration values.
type Config struct {
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	HTTPPort string `envconfig:"HTTP_PORT" default:"8080"`

	Secret   string        `envconfig:"SECRET" default:"dev_secret"`
	TokenTTL time.Duration `envconfig:"TOKEN_TTL" default:"24h"`

	DBDriver    string `envconfig:"DB_DRIVER" default:"sqlite"`
	DatabaseDSN string `envconfig:"DATABASE_DSN"`
	// Used to assemble a Postgres DSN when DATABASE_DSN is unset.
	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     string `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"postgres"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"pharmatrack"`

	TaxRate            decimal.Decimal `envconfig:"TAX_RATE" default:"0.08"`
	AllowPriceOverride bool            `envconfig:"SALE_ALLOW_PRICE_OVERRIDE" default:"false"`

	RedisAddr    string `envconfig:"REDIS_ADDR"`
	RedisChannel string `envconfig:"REDIS_CHANNEL" default:"pharmatrack:sales"`

	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`
}

// Load reads an optional .env file, then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := cfg.resolve(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) resolve() error {
	if _, err := strconv.Atoi(c.HTTPPort); err != nil {
		return fmt.Errorf("invalid HTTP_PORT value %q", c.HTTPPort)
	}
	c.DBDriver = strings.ToLower(c.DBDriver)
	if !database.Supported(c.DBDriver) {
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.TaxRate.IsNegative() || c.TaxRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("TAX_RATE must be in [0, 1), got %s", c.TaxRate)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}

	if c.DatabaseDSN == "" {
		switch c.DBDriver {
		case database.DriverSQLite:
			c.DatabaseDSN = database.SQLiteDSN("pharmatrack.db")
		case database.DriverPgx:
			u := url.URL{
				Scheme:   "postgres",
				User:     url.UserPassword(c.DBUser, c.DBPassword),
				Host:     c.DBHost + ":" + c.DBPort,
				Path:     c.DBName,
				RawQuery: "sslmode=disable",
			}
			c.DatabaseDSN = u.String()
		default:
			return fmt.Errorf("DATABASE_DSN is required for driver %q", c.DBDriver)
		}
	}
	return nil
}

func (c Config) Addr() string {
	return ":" + c.HTTPPort
}
