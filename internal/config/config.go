package config

import (
	"github.com/kelseyhightower/envconfig"
)

// Config holds the application configuration, loaded from the environment.
type Config struct {
	ServerPort    int    `envconfig:"SERVER_PORT" default:"8080"`
	JWTSecret     string `envconfig:"JWT_SECRET" required:"true"`
	DatabaseURL   string `envconfig:"DATABASE_URL" required:"true"`
	CORSOrigin    string `envconfig:"CORS_ORIGIN" default:"http://localhost:3000"`
	MigrationsDir string `envconfig:"MIGRATIONS_DIR" default:"./migrations"`

	// Stellar settings. HorizonURL defaults to the public endpoint matching
	// the configured network.
	StellarNetwork  string `envconfig:"STELLAR_NETWORK" default:"testnet"`
	HorizonURL      string `envconfig:"STELLAR_HORIZON_URL"`
	FriendbotURL    string `envconfig:"STELLAR_FRIENDBOT_URL" default:"https://friendbot.stellar.org"`
	VaultPassphrase string `envconfig:"STELLAR_ENCRYPTION_KEY" required:"true"`
}

// Load populates cfg from environment variables.
func Load(cfg *Config) error {
	if err := envconfig.Process("", cfg); err != nil {
		return err
	}
	if cfg.HorizonURL == "" {
		if cfg.StellarNetwork == "mainnet" {
			cfg.HorizonURL = "https://horizon.stellar.org"
		} else {
			cfg.HorizonURL = "https://horizon-testnet.stellar.org"
		}
	}
	return nil
}
