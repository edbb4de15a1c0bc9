package farecard

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/jonanatree/farecard/internal/cardgen"
	"github.com/jonanatree/farecard/internal/fare"
)

const (
	BackendMemory   = "mem"
	BackendPostgres = "pg"
	BackendSQLite   = "sqlite"
)

// Config is a configuration for the fare card application
type Config struct {
	HTTPAddr    string `env:"HTTP_ADDR"`
	ISO8583Addr string `env:"ISO8583_ADDR"`

	// RepoBackend is one of mem, pg or sqlite.
	RepoBackend string `env:"REPO_BACKEND"`
	// DBDriver selects the PostgreSQL driver: postgres (lib/pq) or pgx.
	DBDriver string `env:"DB_DRIVER"`
	DBDSN    string `env:"DB_DSN"`
	// NumberHashKey keys the HMAC used to look cards up by number.
	NumberHashKey string `env:"NUMBER_HASH_KEY"`

	FareRate         int64  `env:"FARE_RATE"`
	CardPrefix       string `env:"CARD_PREFIX"`
	CardNumberLength int    `env:"CARD_NUMBER_LENGTH"`
	// LocationSeed seeds the simulated vehicle locations.
	LocationSeed int64 `env:"LOCATION_SEED"`
}

func DefaultConfig() *Config {
	return &Config{
		HTTPAddr:         "localhost:9090",
		ISO8583Addr:      "localhost:8583",
		RepoBackend:      BackendMemory,
		DBDriver:         "postgres",
		NumberHashKey:    "dev-secret-pepper",
		FareRate:         fare.DefaultRate,
		CardPrefix:       cardgen.DefaultPrefix,
		CardNumberLength: cardgen.DefaultLength,
		LocationSeed:     1,
	}
}

// LoadConfig overlays FARECARD_* environment variables on the defaults.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "FARECARD_"}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.RepoBackend {
	case BackendMemory, BackendSQLite:
	case BackendPostgres:
		if c.DBDSN == "" {
			return fmt.Errorf("FARECARD_DB_DSN is required for %s backend", c.RepoBackend)
		}
		if c.DBDriver != "postgres" && c.DBDriver != "pgx" {
			return fmt.Errorf("unsupported FARECARD_DB_DRIVER=%s", c.DBDriver)
		}
	default:
		return fmt.Errorf("unsupported FARECARD_REPO_BACKEND=%s", c.RepoBackend)
	}
	if c.FareRate <= 0 {
		return fmt.Errorf("FARECARD_FARE_RATE must be positive, got %d", c.FareRate)
	}
	if err := cardgen.ValidatePrefix(c.CardPrefix); err != nil {
		return fmt.Errorf("FARECARD_CARD_PREFIX: %w", err)
	}
	return nil
}
