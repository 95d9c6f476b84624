package server

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/dottie-ai/assistant-server/googleauth"
	"github.com/dottie-ai/assistant-server/identity"
	apperrors "github.com/dottie-ai/assistant-server/internal/errors"
	"github.com/dottie-ai/assistant-server/server/oauthflowrepo"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// GoogleAuthHandler starts the authorization-code flow. An anonymous
// caller gets sign-in semantics; a signed-in caller gets account linking
// (the callback will key the credentials by their durable user id).
func (s *Server) GoogleAuthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.startGoogleFlow(w, r)
	}
}

// GoogleLinkHandler is the explicit linking entry point. It requires an
// authenticated caller, otherwise it behaves exactly like GoogleAuthHandler.
func (s *Server) GoogleLinkHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.startGoogleFlow(w, r)
	}
}

func (s *Server) startGoogleFlow(w http.ResponseWriter, r *http.Request) {
	id := requestIdentity(r)

	state := uuid.NewString()
	err := s.flows.Upsert(state, &oauthflowrepo.FlowState{
		PendingUserID:  id.StableUserID,
		SessionID:      id.TransientID,
		RedirectTarget: r.URL.Query().Get("redirectUrl"),
		CreatedAt:      time.Now(),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	http.Redirect(w, r, s.google.AuthURL(state), http.StatusFound)
}

// GoogleCallbackHandler completes the authorization-code flow: it
// validates the single-use state token, exchanges the code, persists the
// credentials under the right identity and bounces the browser back to
// the frontend.
func (s *Server) GoogleCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		query := r.URL.Query()

		if errParam := query.Get("error"); errParam != "" {
			// The state token is spent even when consent is refused;
			// it must not stay redeemable for a later replay.
			if _, consumeErr := s.flows.Consume(query.Get("state")); consumeErr != nil {
				log.Debug().Err(consumeErr).Msg("no flow state to clear for refused consent")
			}
			log.Warn().Str("error", errParam).Msg("google consent refused")
			s.redirectError(w, r, errParam)
			return
		}

		fs, err := s.flows.Consume(query.Get("state"))
		if err != nil {
			writeError(w, apperrors.Wrapf(apperrors.ErrCsrf, "[GoogleCallbackHandler] %v", err))
			return
		}
		if time.Since(fs.CreatedAt) > s.config.GetFlowStateTimeout() {
			writeError(w, apperrors.Wrapf(apperrors.ErrCsrf, "[GoogleCallbackHandler] state token expired"))
			return
		}

		code := query.Get("code")
		if code == "" {
			writeJSONError(w, http.StatusBadRequest, "missing authorization code", codeInvalidRequest)
			return
		}

		// The flow state, not the returning request, is the identity
		// anchor: the state token proves which session started the flow.
		key := s.resolver.LinkKey(fs.PendingUserID, identity.Identity{TransientID: fs.SessionID})
		bundle, err := s.google.Exchange(ctx, code, key)
		if err != nil {
			log.Error().Err(err).Msg("authorization code exchange failed")
			s.redirectError(w, r, "exchange_failed")
			return
		}

		// Linking an already signed-in account: credentials are stored
		// under the durable id, nothing else to establish.
		if fs.PendingUserID != "" {
			s.redirectSuccess(w, r, fs.RedirectTarget, "")
			return
		}

		// Fresh sign-in: the bundle is keyed by the transient session for
		// now. Identify the Google account, establish the durable user and
		// migrate the credentials over.
		s.resolver.MirrorToSession(ctx, fs.SessionID, bundle)

		client, err := s.google.Authenticate(ctx, bundle, key, nil)
		if err != nil {
			log.Error().Err(err).Msg("post-exchange authentication failed")
			s.redirectError(w, r, "authentication_failed")
			return
		}
		info, err := s.google.UserInfo(ctx, client)
		if err != nil {
			log.Error().Err(err).Msg("userinfo lookup failed")
			s.redirectError(w, r, "userinfo_failed")
			return
		}

		user, err := s.users.FindOrCreateByEmail(ctx, info.Email, info.Name, info.Picture)
		if err != nil {
			log.Error().Err(err).Msg("user provisioning failed")
			s.redirectError(w, r, "user_creation_failed")
			return
		}
		if err := s.resolver.AdoptBundle(ctx, fs.SessionID, user.ID, client.Bundle()); err != nil {
			log.Error().Err(err).Msg("credential adoption failed")
			s.redirectError(w, r, "link_failed")
			return
		}

		token, err := s.users.SignInToken(user)
		if err != nil {
			log.Error().Err(err).Msg("sign-in token mint failed")
			s.redirectError(w, r, "token_failed")
			return
		}
		s.redirectSuccess(w, r, fs.RedirectTarget, token)
	}
}

// AuthStatusHandler reports whether the caller is signed in and whether a
// Google account is linked. For anonymous callers with session-keyed
// credentials it validates them against Google, so the frontend can keep
// treating a pre-account session as signed in.
func (s *Server) AuthStatusHandler() http.HandlerFunc {
	type statusUser struct {
		UID          string `json:"uid,omitempty"`
		Email        string `json:"email"`
		DisplayName  string `json:"displayName,omitempty"`
		PhotoURL     string `json:"photoURL,omitempty"`
		GoogleLinked bool   `json:"googleLinked"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := requestIdentity(r)

		if id.Authenticated() {
			user := requestUser(r)
			linked := true
			if _, err := s.resolver.LookupBundle(ctx, id); err != nil {
				linked = false
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"authenticated": true,
				"user": statusUser{
					UID:          user.ID,
					Email:        user.Email,
					DisplayName:  user.DisplayName,
					PhotoURL:     user.PhotoURL,
					GoogleLinked: linked,
				},
			})
			return
		}

		bundle, err := s.resolver.LookupBundle(ctx, id)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}

		client, err := s.google.Authenticate(ctx, bundle, id.Key(), s.sessionMirror(ctx, id))
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		info, err := s.google.UserInfo(ctx, client)
		if err != nil {
			log.Warn().Err(err).Msg("session credential validation failed")
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"legacy":        true,
			"user": statusUser{
				Email:        info.Email,
				DisplayName:  info.Name,
				PhotoURL:     info.Picture,
				GoogleLinked: true,
			},
		})
	}
}

// LogoutHandler revokes any stored Google credentials for the caller,
// clears the credential record and destroys the transient session.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := requestIdentity(r)

		if bundle, err := s.resolver.LookupBundle(ctx, id); err == nil {
			if err := s.google.Revoke(ctx, id.Key(), bundle); err != nil {
				writeError(w, err)
				return
			}
		}

		if err := s.sessions.Delete(ctx, id.TransientID); err != nil {
			log.Warn().Err(err).Msg("session delete failed during logout")
		}
		s.clearSessionCookie(w)

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Logged out successfully",
		})
	}
}

// GoogleUnlinkHandler revokes and removes the Google credentials of a
// signed-in caller without ending their session. Idempotent: unlinking
// an unlinked account succeeds.
func (s *Server) GoogleUnlinkHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := requestIdentity(r)

		bundle, err := s.resolver.LookupBundle(ctx, id)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrGoogleNotLinked) {
				writeJSON(w, http.StatusOK, map[string]any{"success": true})
				return
			}
			writeError(w, err)
			return
		}

		if err := s.google.Revoke(ctx, id.StableUserID, bundle); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

// sessionMirror returns a refresh callback that keeps the session cache
// in step with refreshed credentials. Durable identities skip the
// session cache, so they get no callback.
func (s *Server) sessionMirror(ctx context.Context, id identity.Identity) func(googleauth.TokenBundle) {
	if id.Authenticated() {
		return nil
	}
	mirrorCtx := context.WithoutCancel(ctx)
	return func(bundle googleauth.TokenBundle) {
		s.resolver.MirrorToSession(mirrorCtx, id.TransientID, bundle)
	}
}

func (s *Server) redirectSuccess(w http.ResponseWriter, r *http.Request, target, token string) {
	if target == "" {
		target = s.config.GetFrontendURL() + FrontendSuccessPath
	}
	v := url.Values{}
	v.Set("provider", "google")
	if token != "" {
		v.Set("token", token)
	}
	http.Redirect(w, r, target+"?"+v.Encode(), http.StatusFound)
}

func (s *Server) redirectError(w http.ResponseWriter, r *http.Request, reason string) {
	v := url.Values{}
	v.Set("error", reason)
	http.Redirect(w, r, s.config.GetFrontendURL()+FrontendErrorPath+"?"+v.Encode(), http.StatusFound)
}
