package config

import (
	"fmt"
	"strings"
)

// EnvVars holds every raw environment value the server consumes.
type EnvVars struct {
	Port           string   `env:"PORT" envDefault:"8080"`
	AppName        string   `env:"APP_NAME" envDefault:"Dottie Assistant"`
	Env            string   `env:"ENV" envDefault:"DEV"`
	DataFolder     string   `env:"DATA_FOLDER" envDefault:"./data"`
	FrontendURL    string   `env:"FRONTEND_URL" envDefault:"http://localhost:5173"`
	Origins        []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173"`
	ClientID       string   `env:"GOOGLE_OAUTH_CLIENT_ID"`
	RedirectURI    string   `env:"GOOGLE_OAUTH_REDIRECT_URI"`
	SecretName     string   `env:"GOOGLE_OAUTH_SECRET_NAME" envDefault:"google-oauth-client-secret"`
	SecretsDir     string   `env:"SECRETS_DIR" envDefault:"/var/secrets"`
	SignInTokenKey string   `env:"SIGNIN_TOKEN_SECRET"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	port := e.Port
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetDataFolder() string {
	return e.DataFolder
}

// GetFrontendURL returns the base URL of the frontend, used for
// post-OAuth success and error redirects.
func (e EnvVars) GetFrontendURL() string {
	return strings.TrimSuffix(e.FrontendURL, "/")
}

// GetSecretsDir is where mounted secret files live in production.
func (e EnvVars) GetSecretsDir() string {
	return e.SecretsDir
}

func (e EnvVars) GetEnv() string {
	if e.Env == "" {
		return "DEV"
	}
	return strings.ToUpper(e.Env)
}

func (e EnvVars) IsProduction() bool {
	return e.GetEnv() == "PROD" || e.GetEnv() == "PRODUCTION"
}
