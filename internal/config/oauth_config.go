package config

import "time"

type GoogleOAuthConfig interface {
	GetGoogleClientID() string
	GetGoogleRedirectURI() string
	GetGoogleSecretName() string
	GetEagerRefreshWindow() time.Duration
	GetFlowStateTimeout() time.Duration
}

type GoogleOAuth struct {
	vars EnvVars
}

var _ GoogleOAuthConfig = GoogleOAuth{}

func (g GoogleOAuth) GetGoogleClientID() string {
	return g.vars.ClientID
}

func (g GoogleOAuth) GetGoogleRedirectURI() string {
	return g.vars.RedirectURI
}

// GetGoogleSecretName names the secret holding the OAuth client secret.
func (g GoogleOAuth) GetGoogleSecretName() string {
	return g.vars.SecretName
}

// GetEagerRefreshWindow is how close to expiry an access token may get
// before an authenticated handle refreshes it up front.
func (GoogleOAuth) GetEagerRefreshWindow() time.Duration {
	return 5 * time.Minute
}

func (GoogleOAuth) GetFlowStateTimeout() time.Duration {
	return 10 * time.Minute
}
