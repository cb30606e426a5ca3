package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	extErrors "github.com/pkg/errors"
)

// Environment is the deployment the binary runs in, selected by the ENV variable
type Environment string

// define constants
const (
	Development Environment = "development"
	Production  Environment = "production"
)

// CurrentEnvironment returns Production when ENV is "production", Development otherwise
func CurrentEnvironment(value string) Environment {
	if strings.EqualFold(value, string(Production)) {
		return Production
	}
	return Development
}

// DotFile returns the .env file loaded for the environment
func (e Environment) DotFile() string {
	return ".env." + string(e)
}

// Config holds the settings shared by the api and task binaries
type Config struct {
	PostgresURI   string `env:"POSTGRES_URI,required,notEmpty"`
	RedisURI      string `env:"REDIS_URI"` // Optional. Disables notification dedupe and real-time publish when empty
	RedisPassword string `env:"REDIS_PW"`
	AMQPURI       string `env:"AMQP_URI"` // Optional for the api. Events are dropped when empty
	SentryDSN     string `env:"SENTRY_DSN"`

	JWTSigningKey string   `env:"JWT_SIGNING_KEY,required,notEmpty"`
	ListenAddr    string   `env:"LISTEN_ADDR" envDefault:":42069"`
	CORSOrigins   []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	SweepInterval      time.Duration `env:"SWEEP_INTERVAL" envDefault:"24h"`
	ExpiryReminderDays int           `env:"EXPIRY_REMINDER_DAYS" envDefault:"7"`
	SweepConcurrency   int           `env:"SWEEP_CONCURRENCY" envDefault:"4"`
}

// Parse reads Config from the process environment
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, extErrors.Wrap(err, "Cannot parse configurations from environment")
	}
	return &cfg, nil
}

// Load reads the .env file of the environment into the process environment, then Parse.
// A missing .env file is not an error; variables may come from the process itself.
func Load(e Environment) (*Config, error) {
	if err := godotenv.Load(e.DotFile()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, extErrors.Wrap(err, "Cannot load configurations from .env")
	}
	return Parse()
}
