package orm

import (
	"errors"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config tunes flush and migration behavior.
type Config struct {
	// AllOrNothing wraps each generated migration in a single transaction.
	AllOrNothing bool
	// DisableForeignKeys suspends foreign-key checks for the flush transaction.
	DisableForeignKeys bool
	// Transactional wraps each flush in a transaction.
	Transactional bool
	// Dialect names the SQL dialect, "sqlite" or "postgres".
	Dialect string `validate:"required,oneof=sqlite postgres"`
	// Debug logs every statement and its params.
	Debug bool
}

// DefaultConfig returns a transactional sqlite configuration.
func DefaultConfig() Config {
	return Config{
		AllOrNothing:  true,
		Transactional: true,
		Dialect:       "sqlite",
	}
}

var validate10 = validator.New()

// Validate checks the configuration values.
func (c Config) Validate() error {
	if err := validate10.Struct(c); err != nil {
		return &ValidationError{Entity: "config", Field: "-", Reason: err.Error()}
	}
	return nil
}

// LoadConfig reads ORM_* variables on top of DefaultConfig. Given files are
// loaded with godotenv first; without files an optional .env is read.
func LoadConfig(files ...string) (Config, error) {
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return Config{}, err
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, err
	}

	cfg := DefaultConfig()
	for name, dst := range map[string]*bool{
		"ORM_ALL_OR_NOTHING":       &cfg.AllOrNothing,
		"ORM_DISABLE_FOREIGN_KEYS": &cfg.DisableForeignKeys,
		"ORM_TRANSACTIONAL":        &cfg.Transactional,
		"ORM_DEBUG":                &cfg.Debug,
	} {
		raw, ok := os.LookupEnv(name)
		if !ok || raw == "" {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, &ValidationError{Entity: "config", Field: name, Reason: err.Error()}
		}
		*dst = v
	}
	if d := os.Getenv("ORM_DIALECT"); d != "" {
		cfg.Dialect = d
	}
	return cfg, cfg.Validate()
}
