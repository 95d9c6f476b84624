package googleauth

import (
	"time"

	"golang.org/x/oauth2"

	apperrors "github.com/dottie-ai/assistant-server/internal/errors"
)

// Google API scopes requested for the assistant. These determine what the
// application can access on behalf of the user.
var GoogleAPIScopes = []string{
	"https://www.googleapis.com/auth/calendar",
	"https://www.googleapis.com/auth/gmail.send",
	"https://www.googleapis.com/auth/gmail.readonly",
	"https://www.googleapis.com/auth/spreadsheets",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

// TokenBundle is the unit of persisted credential state for one user's
// Google grant.
type TokenBundle struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope"`
	TokenType    string `json:"token_type"`
	ExpiryDate   int64  `json:"expiry_date"` // epoch milliseconds; 0 means unknown, assume stale
}

// Validate checks the bundle is usable as a credential.
func (b TokenBundle) Validate() error {
	if b.AccessToken == "" {
		return apperrors.ErrInvalidCredential
	}
	return nil
}

// Merge returns a copy of b with the non-zero fields of partial applied.
// A partial without a refresh token never clears an existing one; once a
// refresh token has been obtained it is preserved indefinitely.
func (b TokenBundle) Merge(partial TokenBundle) TokenBundle {
	merged := b
	if partial.AccessToken != "" {
		merged.AccessToken = partial.AccessToken
	}
	if partial.RefreshToken != "" {
		merged.RefreshToken = partial.RefreshToken
	}
	if partial.Scope != "" {
		merged.Scope = partial.Scope
	}
	if partial.TokenType != "" {
		merged.TokenType = partial.TokenType
	}
	if partial.ExpiryDate != 0 {
		merged.ExpiryDate = partial.ExpiryDate
	}
	return merged
}

// ExpiresWithin reports whether the access token expires within window of
// now. An unknown expiry counts as already stale.
func (b TokenBundle) ExpiresWithin(now time.Time, window time.Duration) bool {
	if b.ExpiryDate == 0 {
		return true
	}
	return b.Expiry().Before(now.Add(window))
}

// Expiry returns the absolute expiry time of the access token.
func (b TokenBundle) Expiry() time.Time {
	return time.UnixMilli(b.ExpiryDate)
}

// token converts the bundle into the oauth2 representation.
func (b TokenBundle) token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  b.AccessToken,
		RefreshToken: b.RefreshToken,
		TokenType:    b.TokenType,
	}
	if b.ExpiryDate != 0 {
		tok.Expiry = time.UnixMilli(b.ExpiryDate)
	}
	return tok
}

// bundleFromToken validates a provider token at the boundary and converts
// it into a TokenBundle. Provider responses without an access token are
// rejected here rather than propagated inward.
func bundleFromToken(tok *oauth2.Token) (TokenBundle, error) {
	if tok == nil || tok.AccessToken == "" {
		return TokenBundle{}, apperrors.ErrExchange
	}
	bundle := TokenBundle{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}
	if bundle.TokenType == "" {
		bundle.TokenType = "Bearer"
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		bundle.Scope = scope
	}
	if !tok.Expiry.IsZero() {
		bundle.ExpiryDate = tok.Expiry.UnixMilli()
	}
	return bundle, nil
}
