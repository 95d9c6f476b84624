package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dottie-ai/assistant-server/identity"
	"github.com/dottie-ai/assistant-server/session"
	"github.com/dottie-ai/assistant-server/users"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyIdentity stores the resolved request identity
	ContextKeyIdentity ContextKey = "identity"
	// ContextKeyUser stores the authenticated user, when known
	ContextKeyUser ContextKey = "user"
)

const sessionCookieName = "sid"

// IdentityMiddleware resolves the caller's identity on every request. It
// guarantees a transient session id (issuing the cookie on first contact)
// and promotes the identity to a durable user id when the Authorization
// header carries a verifiable credential. An unverifiable credential
// leaves the request anonymous rather than failing it.
func (s *Server) IdentityMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := identity.Identity{TransientID: s.ensureSession(w, r)}

		if raw := bearerToken(r); raw != "" {
			user, err := s.verifyCredential(r.Context(), raw)
			if err != nil {
				log.Warn().Err(err).Msg("bearer credential rejected, continuing unauthenticated")
			} else {
				id.StableUserID = user.ID
				r = r.WithContext(context.WithValue(r.Context(), ContextKeyUser, user))
			}
		}

		r = r.WithContext(context.WithValue(r.Context(), ContextKeyIdentity, id))
		next(w, r)
	}
}

// RequireAuth rejects requests whose identity was not promoted to a
// durable user id by IdentityMiddleware.
func (s *Server) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requestIdentity(r).Authenticated() {
			writeJSONError(w, http.StatusUnauthorized, "sign in required", codeSignInRequired)
			return
		}
		next(w, r)
	}
}

// verifyCredential accepts either a first-party sign-in token or a raw
// Google ID token. Google-issued tokens implicitly provision the user
// record on first sight.
func (s *Server) verifyCredential(ctx context.Context, raw string) (*users.User, error) {
	user, firstErr := s.users.VerifySignInToken(ctx, raw)
	if firstErr == nil {
		return user, nil
	}

	verifier, err := s.googleVerifier(ctx)
	if err != nil {
		return nil, firstErr
	}
	idToken, err := verifier.Verify(ctx, raw)
	if err != nil {
		return nil, firstErr
	}

	var claims struct {
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, err
	}
	return s.users.FindOrCreateByEmail(ctx, claims.Email, claims.Name, claims.Picture)
}

// ensureSession returns the caller's transient session id, minting a new
// one (and its cookie) when the request carries none.
func (s *Server) ensureSession(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	sid := uuid.NewString()
	now := time.Now()
	if err := s.sessions.Upsert(r.Context(), session.Session{
		ID:        sid,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.GetSessionTTL()),
	}); err != nil {
		log.Error().Err(err).Msg("failed to persist new session")
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sid,
		Path:     "/",
		MaxAge:   int(s.config.GetSessionTTL().Seconds()),
		HttpOnly: true,
		Secure:   s.config.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
	return sid
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.config.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

func requestIdentity(r *http.Request) identity.Identity {
	id, _ := r.Context().Value(ContextKeyIdentity).(identity.Identity)
	return id
}

func requestUser(r *http.Request) *users.User {
	user, _ := r.Context().Value(ContextKeyUser).(*users.User)
	return user
}
