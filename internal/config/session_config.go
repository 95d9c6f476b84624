package config

import "time"

type SessionConfig interface {
	GetSessionTTL() time.Duration
	GetSignInTokenSecret() string
	GetSignInTokenExpiry() time.Duration
}

type Session struct {
	vars EnvVars
}

var _ SessionConfig = Session{}

func (Session) GetSessionTTL() time.Duration {
	return 24 * time.Hour
}

func (s Session) GetSignInTokenSecret() string {
	return s.vars.SignInTokenKey
}

func (Session) GetSignInTokenExpiry() time.Duration {
	return 1 * time.Hour
}
