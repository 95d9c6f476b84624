package config

import (
	"github.com/caarlos0/env/v11"
)

type Config interface {
	EnvConfig
	CorsConfig
	GoogleOAuthConfig
	SessionConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetDataFolder() string
	GetFrontendURL() string
	GetSecretsDir() string
	GetEnv() string
	IsProduction() bool
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	GoogleOAuth
	Session
}

// New loads configuration from the environment. Load only fails on
// malformed values, never on missing ones; required settings are checked
// where they are consumed.
func New() (Config, error) {
	var vars EnvVars
	if err := env.Parse(&vars); err != nil {
		return nil, err
	}
	return mainConfig{
		EnvVars:     vars,
		Cors:        NewCors(vars.Origins),
		GoogleOAuth: GoogleOAuth{vars: vars},
		Session:     Session{vars: vars},
	}, nil
}
