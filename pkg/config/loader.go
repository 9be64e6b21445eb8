package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var dotenvOnce sync.Once

// Load parses environment variables into the provided configuration struct
// based on `env` field tags. A .env file, if present in the working directory,
// is loaded into the process environment exactly once per process.
//
// Example:
//
//	type ServerConfig struct {
//		Addr   string `env:"SERVER_ADDR" envDefault:":8080"`
//		Secret string `env:"WEBHOOK_SECRET,required"`
//	}
//
//	var cfg ServerConfig
//	if err := config.Load(&cfg); err != nil { ... }
func Load[T any](v *T) error {
	dotenvOnce.Do(func() {
		// The .env file is optional; a missing file is not an error.
		_ = godotenv.Load()
	})
	if v == nil {
		return ErrNilPointer
	}
	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

// MustLoad works like Load but panics on failure. Intended for configuration
// without which the application cannot start.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("config: failed to load required configuration: %v", err))
	}
}
