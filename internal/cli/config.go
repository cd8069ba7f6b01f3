package cli

import (
	"github.com/caarlos0/env/v11"
)

// Config carries operator defaults read from the environment. Flags
// override whatever the environment provides.
type Config struct {
	DBPath string `env:"OMNIBUS_DB"     envDefault:"omnibus.db"`
	Format string `env:"OMNIBUS_FORMAT" envDefault:"text"`
}

// LoadConfigFromEnv reads CLI defaults from the environment. Parse
// failures fall back to the built-in defaults so a broken environment
// never blocks the CLI from starting.
func LoadConfigFromEnv() Config {
	var cfg Config
	_ = env.Parse(&cfg)
	if cfg.DBPath == "" {
		cfg.DBPath = "omnibus.db"
	}
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	return cfg
}
