package googleauth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	credrepofake "github.com/dottie-ai/assistant-server/credstore/repofake"
	"github.com/dottie-ai/assistant-server/googleauth"
	apperrors "github.com/dottie-ai/assistant-server/internal/errors"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type oauthTestConfig struct{}

func (oauthTestConfig) GetGoogleClientID() string              { return "client-id" }
func (oauthTestConfig) GetGoogleRedirectURI() string           { return "http://localhost:8080/auth/google/callback" }
func (oauthTestConfig) GetGoogleSecretName() string            { return "google-oauth-client-secret" }
func (oauthTestConfig) GetEagerRefreshWindow() time.Duration   { return 5 * time.Minute }
func (oauthTestConfig) GetFlowStateTimeout() time.Duration     { return 10 * time.Minute }

type staticSecrets map[string]string

func (s staticSecrets) Get(_ context.Context, name string) (string, error) {
	return s[name], nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope,omitempty"`
}

// tokenEndpoint serves the provider token URL and counts how many
// handshakes it performed.
func tokenEndpoint(t *testing.T, resp tokenResponse, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(ts.Close)
	return ts, &calls
}

func newTestService(t *testing.T, store *credrepofake.FakeCredRepo, tokenURL string, options ...googleauth.ServiceOption) *googleauth.Service {
	t.Helper()
	opts := []googleauth.ServiceOption{
		googleauth.WithEndpoint(oauth2.Endpoint{
			AuthURL:  tokenURL + "/auth",
			TokenURL: tokenURL + "/token",
		}),
	}
	opts = append(opts, options...)

	svc, err := googleauth.New(context.Background(), oauthTestConfig{},
		staticSecrets{"google-oauth-client-secret": "shh"}, store, opts...)
	require.NoError(t, err)
	return svc
}

func TestNew_MissingSecret(t *testing.T) {
	_, err := googleauth.New(context.Background(), oauthTestConfig{}, staticSecrets{}, credrepofake.NewFakeCredRepo())
	require.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestService_AuthURL(t *testing.T) {
	svc := newTestService(t, credrepofake.NewFakeCredRepo(), "http://provider.test")

	u := svc.AuthURL("state-token-123")
	require.Contains(t, u, "state=state-token-123")
	require.Contains(t, u, "access_type=offline")
	require.Contains(t, u, "prompt=consent")
	require.Contains(t, u, "include_granted_scopes=true")
	require.Contains(t, u, "client_id=client-id")
}

func TestService_Exchange(t *testing.T) {
	ts, calls := tokenEndpoint(t, tokenResponse{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		TokenType:    "Bearer",
		ExpiresIn:    3600,
		Scope:        "https://www.googleapis.com/auth/calendar",
	}, http.StatusOK)

	store := credrepofake.NewFakeCredRepo()
	svc := newTestService(t, store, ts.URL)

	bundle, err := svc.Exchange(context.Background(), "auth-code", "user-1")
	require.NoError(t, err)
	require.Equal(t, int32(1), calls.Load())
	require.Equal(t, "access-1", bundle.AccessToken)
	require.Equal(t, "refresh-1", bundle.RefreshToken)
	require.Equal(t, "Bearer", bundle.TokenType)
	require.NotZero(t, bundle.ExpiryDate)

	record, err := store.Get(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, bundle, record.Bundle)
}

func TestService_Exchange_ProviderError(t *testing.T) {
	ts, _ := tokenEndpoint(t, tokenResponse{}, http.StatusBadRequest)
	svc := newTestService(t, credrepofake.NewFakeCredRepo(), ts.URL)

	_, err := svc.Exchange(context.Background(), "bad-code", "user-1")
	require.ErrorIs(t, err, apperrors.ErrExchange)
}

func TestService_Authenticate_EagerRefresh(t *testing.T) {
	now := time.Now()

	t.Run("token inside the window is refreshed up front", func(t *testing.T) {
		ts, calls := tokenEndpoint(t, tokenResponse{
			AccessToken: "access-new",
			TokenType:   "Bearer",
			ExpiresIn:   3600,
		}, http.StatusOK)

		store := credrepofake.NewFakeCredRepo()
		svc := newTestService(t, store, ts.URL, googleauth.WithNowTime(func() time.Time { return now }))

		stale := googleauth.TokenBundle{
			AccessToken:  "access-old",
			RefreshToken: "refresh-1",
			ExpiryDate:   now.Add(2 * time.Minute).UnixMilli(),
		}

		var mirrored []googleauth.TokenBundle
		client, err := svc.Authenticate(context.Background(), stale, "user-1", func(b googleauth.TokenBundle) {
			mirrored = append(mirrored, b)
		})
		require.NoError(t, err)
		require.Equal(t, int32(1), calls.Load())

		bundle := client.Bundle()
		require.Equal(t, "access-new", bundle.AccessToken)
		// The provider response carried no refresh token; the stored
		// one must survive the merge.
		require.Equal(t, "refresh-1", bundle.RefreshToken)

		record, err := store.Get(context.Background(), "user-1")
		require.NoError(t, err)
		require.Equal(t, bundle, record.Bundle)

		require.Len(t, mirrored, 1)
		require.Equal(t, bundle, mirrored[0])
	})

	t.Run("token beyond the window is left alone", func(t *testing.T) {
		ts, calls := tokenEndpoint(t, tokenResponse{AccessToken: "unused"}, http.StatusOK)
		svc := newTestService(t, credrepofake.NewFakeCredRepo(), ts.URL, googleauth.WithNowTime(func() time.Time { return now }))

		fresh := googleauth.TokenBundle{
			AccessToken:  "access-fresh",
			RefreshToken: "refresh-1",
			ExpiryDate:   now.Add(time.Hour).UnixMilli(),
		}
		client, err := svc.Authenticate(context.Background(), fresh, "user-1", nil)
		require.NoError(t, err)
		require.Equal(t, int32(0), calls.Load())
		require.Equal(t, "access-fresh", client.Bundle().AccessToken)
	})

	t.Run("refresh failure is non-fatal", func(t *testing.T) {
		ts, calls := tokenEndpoint(t, tokenResponse{}, http.StatusInternalServerError)
		svc := newTestService(t, credrepofake.NewFakeCredRepo(), ts.URL, googleauth.WithNowTime(func() time.Time { return now }))

		stale := googleauth.TokenBundle{
			AccessToken:  "access-old",
			RefreshToken: "refresh-1",
			ExpiryDate:   now.Add(time.Minute).UnixMilli(),
		}
		client, err := svc.Authenticate(context.Background(), stale, "user-1", nil)
		require.NoError(t, err)
		require.GreaterOrEqual(t, calls.Load(), int32(1))
		require.Equal(t, "access-old", client.Bundle().AccessToken)
	})

	t.Run("no refresh token means no eager refresh", func(t *testing.T) {
		ts, calls := tokenEndpoint(t, tokenResponse{AccessToken: "unused"}, http.StatusOK)
		svc := newTestService(t, credrepofake.NewFakeCredRepo(), ts.URL, googleauth.WithNowTime(func() time.Time { return now }))

		stale := googleauth.TokenBundle{
			AccessToken: "access-old",
			ExpiryDate:  now.Add(time.Minute).UnixMilli(),
		}
		_, err := svc.Authenticate(context.Background(), stale, "user-1", nil)
		require.NoError(t, err)
		require.Equal(t, int32(0), calls.Load())
	})

	t.Run("invalid bundle is rejected", func(t *testing.T) {
		svc := newTestService(t, credrepofake.NewFakeCredRepo(), "http://provider.test")
		_, err := svc.Authenticate(context.Background(), googleauth.TokenBundle{}, "user-1", nil)
		require.ErrorIs(t, err, apperrors.ErrInvalidCredential)
	})
}

func TestClient_ReactiveRefresh(t *testing.T) {
	// nowTime is pinned far in the past so the service considers the
	// bundle fresh, while the real clock (used by the underlying token
	// source) sees it expired. The refresh then happens inside Token().
	past := time.Now().Add(-2 * time.Hour)

	ts, calls := tokenEndpoint(t, tokenResponse{
		AccessToken: "access-reactive",
		TokenType:   "Bearer",
		ExpiresIn:   3600,
	}, http.StatusOK)

	store := credrepofake.NewFakeCredRepo()
	svc := newTestService(t, store, ts.URL, googleauth.WithNowTime(func() time.Time { return past }))

	bundle := googleauth.TokenBundle{
		AccessToken:  "access-old",
		RefreshToken: "refresh-1",
		ExpiryDate:   time.Now().Add(-time.Minute).UnixMilli(),
	}

	var mirrored []googleauth.TokenBundle
	client, err := svc.Authenticate(context.Background(), bundle, "user-1", func(b googleauth.TokenBundle) {
		mirrored = append(mirrored, b)
	})
	require.NoError(t, err)
	require.Equal(t, int32(0), calls.Load())

	tok, err := client.Token()
	require.NoError(t, err)
	require.Equal(t, int32(1), calls.Load())
	require.Equal(t, "access-reactive", tok.AccessToken)

	current := client.Bundle()
	require.Equal(t, "access-reactive", current.AccessToken)
	require.Equal(t, "refresh-1", current.RefreshToken)

	record, err := store.Get(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, current, record.Bundle)

	require.Len(t, mirrored, 1)
	require.Equal(t, current, mirrored[0])
}

func TestClient_RefreshFailureKeepsLastToken(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)
	ts, _ := tokenEndpoint(t, tokenResponse{}, http.StatusInternalServerError)

	svc := newTestService(t, credrepofake.NewFakeCredRepo(), ts.URL, googleauth.WithNowTime(func() time.Time { return past }))

	bundle := googleauth.TokenBundle{
		AccessToken:  "access-old",
		RefreshToken: "refresh-1",
		ExpiryDate:   time.Now().Add(-time.Minute).UnixMilli(),
	}
	client, err := svc.Authenticate(context.Background(), bundle, "user-1", nil)
	require.NoError(t, err)

	tok, err := client.Token()
	require.NoError(t, err)
	require.Equal(t, "access-old", tok.AccessToken)
}

func TestService_UserInfo(t *testing.T) {
	now := time.Now()

	t.Run("profile returned", func(t *testing.T) {
		profile := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"g-1","email":"ada@example.com","name":"Ada","picture":"http://p/ada.png"}`))
		}))
		defer profile.Close()

		svc := newTestService(t, credrepofake.NewFakeCredRepo(), "http://provider.test",
			googleauth.WithNowTime(func() time.Time { return now }),
			googleauth.WithUserInfoURL(profile.URL))

		client, err := svc.Authenticate(context.Background(), googleauth.TokenBundle{
			AccessToken: "access",
			ExpiryDate:  now.Add(time.Hour).UnixMilli(),
		}, "user-1", nil)
		require.NoError(t, err)

		info, err := svc.UserInfo(context.Background(), client)
		require.NoError(t, err)
		require.Equal(t, "ada@example.com", info.Email)
		require.Equal(t, "Ada", info.Name)
	})

	t.Run("missing email is a provider error", func(t *testing.T) {
		profile := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"g-1"}`))
		}))
		defer profile.Close()

		svc := newTestService(t, credrepofake.NewFakeCredRepo(), "http://provider.test",
			googleauth.WithNowTime(func() time.Time { return now }),
			googleauth.WithUserInfoURL(profile.URL))

		client, err := svc.Authenticate(context.Background(), googleauth.TokenBundle{
			AccessToken: "access",
			ExpiryDate:  now.Add(time.Hour).UnixMilli(),
		}, "user-1", nil)
		require.NoError(t, err)

		_, err = svc.UserInfo(context.Background(), client)
		require.ErrorIs(t, err, apperrors.ErrProviderAPI)
	})

	t.Run("auth rejection maps to invalid credential", func(t *testing.T) {
		profile := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer profile.Close()

		svc := newTestService(t, credrepofake.NewFakeCredRepo(), "http://provider.test",
			googleauth.WithNowTime(func() time.Time { return now }),
			googleauth.WithUserInfoURL(profile.URL))

		client, err := svc.Authenticate(context.Background(), googleauth.TokenBundle{
			AccessToken: "access",
			ExpiryDate:  now.Add(time.Hour).UnixMilli(),
		}, "user-1", nil)
		require.NoError(t, err)

		_, err = svc.UserInfo(context.Background(), client)
		require.ErrorIs(t, err, apperrors.ErrInvalidCredential)
	})
}

func TestService_Revoke(t *testing.T) {
	t.Run("revocation failures do not block credential removal", func(t *testing.T) {
		var revokeCalls atomic.Int32
		revoker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			revokeCalls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer revoker.Close()

		store := credrepofake.NewFakeCredRepo()
		require.NoError(t, store.Set(context.Background(), "user-1", googleauth.TokenBundle{
			AccessToken:  "access",
			RefreshToken: "refresh",
		}))

		svc := newTestService(t, store, "http://provider.test", googleauth.WithRevokeURL(revoker.URL))

		err := svc.Revoke(context.Background(), "user-1", googleauth.TokenBundle{
			AccessToken:  "access",
			RefreshToken: "refresh",
		})
		require.NoError(t, err)
		// One attempt per token, both failing, neither fatal.
		require.Equal(t, int32(2), revokeCalls.Load())

		_, err = store.Get(context.Background(), "user-1")
		require.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("both tokens are revoked on success", func(t *testing.T) {
		var revoked []string
		revoker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = r.ParseForm()
			revoked = append(revoked, r.Form.Get("token"))
		}))
		defer revoker.Close()

		store := credrepofake.NewFakeCredRepo()
		require.NoError(t, store.Set(context.Background(), "user-1", googleauth.TokenBundle{
			AccessToken:  "access",
			RefreshToken: "refresh",
		}))

		svc := newTestService(t, store, "http://provider.test", googleauth.WithRevokeURL(revoker.URL))

		require.NoError(t, svc.Revoke(context.Background(), "user-1", googleauth.TokenBundle{
			AccessToken:  "access",
			RefreshToken: "refresh",
		}))
		require.Equal(t, []string{"access", "refresh"}, revoked)
	})
}
