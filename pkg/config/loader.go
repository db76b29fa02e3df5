package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Load parses environment variables into the provided struct. The struct
// should use `env` tags to define mappings; internal/config holds the
// catalog's full schema.
//
// Example:
//
//	type Config struct {
//	    SearchEngine string `env:"SEARCH_ENGINE" envDefault:"elasticsearch"`
//	    HTTPPort     int    `env:"CATALOG_HTTP_PORT" envDefault:"8080"`
//	}
func Load(cfg any) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}
