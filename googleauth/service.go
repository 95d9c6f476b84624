package googleauth

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/singleflight"

	"github.com/dottie-ai/assistant-server/internal/config"
	apperrors "github.com/dottie-ai/assistant-server/internal/errors"
	"github.com/dottie-ai/assistant-server/internal/secrets"
)

const (
	defaultRevokeURL   = "https://oauth2.googleapis.com/revoke"
	defaultUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
)

// CredentialStore is the slice of the credential repository the service
// needs: persisting refreshed bundles and deleting revoked ones. The full
// contract lives in the credstore package.
type CredentialStore interface {
	Set(ctx context.Context, key string, bundle TokenBundle) error
	Delete(ctx context.Context, key string) error
}

// Service owns the Google OAuth2 client configuration and produces
// authenticated handles for stored token bundles.
type Service struct {
	oauthCfg    *oauth2.Config
	store       CredentialStore
	eagerWindow time.Duration
	revokeURL   string
	userInfoURL string
	nowTime     func() time.Time

	// deduplicates concurrent eager refreshes per identity key within
	// this process; cross-process the store stays last-write-wins
	refreshGroup singleflight.Group
}

// ServiceOption modifies the Service instance.
type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// WithEndpoint overrides the provider OAuth endpoint (for testing).
func WithEndpoint(endpoint oauth2.Endpoint) ServiceOption {
	return func(s *Service) {
		s.oauthCfg.Endpoint = endpoint
	}
}

// WithRevokeURL overrides the provider revocation endpoint (for testing).
func WithRevokeURL(u string) ServiceOption {
	return func(s *Service) {
		s.revokeURL = u
	}
}

// WithUserInfoURL overrides the provider userinfo endpoint (for testing).
func WithUserInfoURL(u string) ServiceOption {
	return func(s *Service) {
		s.userInfoURL = u
	}
}

// New resolves the OAuth client id, client secret and redirect URI and
// constructs the service. A missing element of the triple is a
// configuration error; nothing downstream can work without it.
func New(ctx context.Context, cfg config.GoogleOAuthConfig, src secrets.Source, store CredentialStore, options ...ServiceOption) (*Service, error) {
	clientID := cfg.GetGoogleClientID()
	redirectURI := cfg.GetGoogleRedirectURI()

	clientSecret, err := src.Get(ctx, cfg.GetGoogleSecretName())
	if err != nil {
		return nil, errors.Wrap(apperrors.ErrConfiguration, err.Error())
	}
	if clientID == "" || clientSecret == "" || redirectURI == "" {
		return nil, errors.Wrap(apperrors.ErrConfiguration, "missing client id, client secret or redirect uri")
	}

	s := &Service{
		oauthCfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       GoogleAPIScopes,
			Endpoint:     google.Endpoint,
		},
		store:       store,
		eagerWindow: cfg.GetEagerRefreshWindow(),
		revokeURL:   defaultRevokeURL,
		userInfoURL: defaultUserInfoURL,
		nowTime:     time.Now,
	}

	for _, opt := range options {
		opt(s)
	}

	return s, nil
}

// AuthURL builds the provider consent URL for the given CSRF state token.
// Offline access and a forced consent prompt make sure a refresh token is
// granted on first link.
func (s *Service) AuthURL(state string) string {
	return s.oauthCfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)
}

// Exchange swaps an authorization code for a token bundle and stores it
// under key.
func (s *Service) Exchange(ctx context.Context, code, key string) (TokenBundle, error) {
	tok, err := s.oauthCfg.Exchange(ctx, code)
	if err != nil {
		return TokenBundle{}, errors.Wrap(apperrors.ErrExchange, err.Error())
	}

	bundle, err := bundleFromToken(tok)
	if err != nil {
		return TokenBundle{}, err
	}

	if err := s.store.Set(ctx, key, bundle); err != nil {
		return TokenBundle{}, errors.Wrap(err, "[Exchange] store.Set")
	}

	log.Info().
		Str("key", key).
		Bool("hasRefreshToken", bundle.RefreshToken != "").
		Time("expiry", bundle.Expiry()).
		Msg("exchanged authorization code for tokens")

	return bundle, nil
}

// Authenticate produces a handle capable of calling provider APIs on
// behalf of bundle. If key is non-empty, any token refresh observed during
// the handle's lifetime is persisted to the credential store under key.
// onRefresh, when supplied, receives the merged bundle after each refresh
// so the caller can mirror it into a session cache.
//
// An access token within the eager-refresh window of expiry is refreshed
// before the handle is returned; a failure there is non-fatal and the
// stale token stays in use until the provider rejects it.
func (s *Service) Authenticate(ctx context.Context, bundle TokenBundle, key string, onRefresh func(TokenBundle)) (*Client, error) {
	if err := bundle.Validate(); err != nil {
		return nil, err
	}

	// A refresh that races request cancellation still completes and
	// persists; losing a just-minted refresh token is worse than the
	// wasted round trip.
	refreshCtx := context.WithoutCancel(ctx)

	if bundle.ExpiresWithin(s.nowTime(), s.eagerWindow) && bundle.RefreshToken != "" {
		refreshed, err := s.eagerRefresh(refreshCtx, bundle, key)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("eager token refresh failed, continuing with stale token")
		} else {
			merged := bundle.Merge(refreshed)
			s.persistRefresh(refreshCtx, key, merged)
			if onRefresh != nil {
				onRefresh(merged)
			}
			bundle = merged
		}
	}

	return newClient(refreshCtx, s, bundle, key, onRefresh), nil
}

// eagerRefresh forces a refresh handshake even though the current access
// token may still be technically valid. Concurrent eager refreshes for the
// same key collapse into one provider call.
func (s *Service) eagerRefresh(ctx context.Context, bundle TokenBundle, key string) (TokenBundle, error) {
	flightKey := key
	if flightKey == "" {
		flightKey = bundle.AccessToken
	}

	result, err, _ := s.refreshGroup.Do(flightKey, func() (interface{}, error) {
		stale := bundle.token()
		stale.Expiry = s.nowTime().Add(-time.Minute) // force the handshake
		tok, err := s.oauthCfg.TokenSource(ctx, stale).Token()
		if err != nil {
			return TokenBundle{}, err
		}
		return bundleFromToken(tok)
	})
	if err != nil {
		return TokenBundle{}, err
	}
	return result.(TokenBundle), nil
}

// persistRefresh writes a refreshed bundle back to the credential store.
// Failures are logged and swallowed; a failed persist must not fail the
// API call that triggered the refresh.
func (s *Service) persistRefresh(ctx context.Context, key string, bundle TokenBundle) {
	if key == "" {
		return
	}
	if err := s.store.Set(ctx, key, bundle); err != nil {
		log.Error().Err(err).Str("key", key).Msg("failed to persist refreshed tokens")
		return
	}
	log.Debug().Str("key", key).Msg("persisted refreshed tokens")
}

// UserInfo describes the Google account behind a token bundle.
type UserInfo struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// UserInfo fetches the profile of the account the client is authenticated
// as.
func (s *Service) UserInfo(ctx context.Context, client *Client) (*UserInfo, error) {
	var info UserInfo
	if err := client.GetJSON(ctx, s.userInfoURL, &info); err != nil {
		return nil, errors.Wrap(err, "[UserInfo]")
	}
	if info.Email == "" {
		return nil, errors.Wrap(apperrors.ErrProviderAPI, "userinfo response missing email")
	}
	return &info, nil
}

// Revoke best-effort revokes both tokens with the provider and deletes the
// stored bundle under key. The two revoke attempts are independent and
// neither blocks deletion; the flow fails only if the delete fails, so a
// true return means local credential material is gone.
func (s *Service) Revoke(ctx context.Context, key string, bundle TokenBundle) error {
	for _, tok := range []struct {
		name  string
		value string
	}{
		{"access token", bundle.AccessToken},
		{"refresh token", bundle.RefreshToken},
	} {
		if tok.value == "" {
			continue
		}
		if err := s.revokeToken(ctx, tok.value); err != nil {
			log.Error().Err(err).Str("key", key).Msgf("failed to revoke %s", tok.name)
			continue
		}
		log.Info().Str("key", key).Msgf("%s revoked", tok.name)
	}

	if err := s.store.Delete(ctx, key); err != nil {
		return errors.Wrap(err, "[Revoke] store.Delete")
	}
	return nil
}

func (s *Service) revokeToken(ctx context.Context, token string) error {
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return errors.Wrapf(apperrors.ErrProviderAPI, "revocation endpoint returned %d", resp.StatusCode)
	}
	return nil
}
