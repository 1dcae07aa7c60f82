package config

import (
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	goerrors "github.com/goliatone/go-errors"
)

// Config is the process configuration, loaded from the environment with an
// optional .env overlay for development.
type Config struct {
	Server   Server
	Provider Provider
	Catalog  Catalog
	Database Database
	Campus   Campus
	Debug    bool `env:"DEBUG,default=false"`
}

// Server is the HTTP listener configuration.
type Server struct {
	Address string `env:"SERVER_ADDRESS,default=:3000"`
	Views   string `env:"SERVER_VIEWS,default=./views"`
}

// Provider is the identity provider configuration.
type Provider struct {
	ProjectURL string `env:"PROVIDER_URL,required"`
	AnonKey    string `env:"PROVIDER_ANON_KEY,required"`
	JWTSecret  string `env:"PROVIDER_JWT_SECRET"`
	JWKSURL    string `env:"PROVIDER_JWKS_URL"`
	RedirectTo string `env:"PROVIDER_REDIRECT_TO"`
}

// Catalog is the merchandise API configuration.
type Catalog struct {
	BaseURL string `env:"CATALOG_API_URL,default=http://127.0.0.1:8000/api"`
}

// Database is the local SQLite mirror configuration.
type Database struct {
	DSN string `env:"DATABASE_DSN,default=file:portal.db?cache=shared&mode=rwc"`
}

// Campus pins the institutional rules registrations follow.
type Campus struct {
	EmailDomain string `env:"CAMPUS_EMAIL_DOMAIN,default=cit.edu"`
	PhoneRegion string `env:"CAMPUS_PHONE_REGION,default=PH"`
}

// Load reads .env when present, then decodes the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := envdecode.Decode(cfg); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to decode configuration")
	}

	return cfg, nil
}
