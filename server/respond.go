package server

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/dottie-ai/assistant-server/internal/errors"
	"github.com/rs/zerolog/log"
)

// Machine-readable error codes returned alongside HTTP statuses so the
// frontend can distinguish "sign in" from "link your Google account".
const (
	codeSignInRequired       = "sign_in_required"
	codeGoogleNotLinked      = "google_account_not_linked"
	codeGoogleReauthRequired = "google_reauth_required"
	codeInvalidState         = "invalid_state"
	codeInvalidRequest       = "invalid_request"
	codeProviderError        = "provider_error"
	codeInternal             = "internal_error"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("failed to encode response body")
	}
}

func writeJSONError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}

// writeError maps service errors onto HTTP statuses and error codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case apperrors.Is(err, apperrors.ErrSignInRequired):
		writeJSONError(w, http.StatusUnauthorized, "sign in required", codeSignInRequired)
	case apperrors.Is(err, apperrors.ErrGoogleNotLinked):
		writeJSONError(w, http.StatusUnauthorized, "no Google account linked, connect one to continue", codeGoogleNotLinked)
	case apperrors.Is(err, apperrors.ErrInvalidCredential):
		writeJSONError(w, http.StatusUnauthorized, "Google authorization expired, sign in with Google again", codeGoogleReauthRequired)
	case apperrors.Is(err, apperrors.ErrCsrf):
		writeJSONError(w, http.StatusBadRequest, "invalid or expired state parameter", codeInvalidState)
	case apperrors.Is(err, apperrors.ErrProviderAPI), apperrors.Is(err, apperrors.ErrExchange):
		writeJSONError(w, http.StatusBadGateway, "upstream Google API error", codeProviderError)
	default:
		log.Error().Err(err).Msg("unhandled request error")
		writeJSONError(w, http.StatusInternalServerError, "internal server error", codeInternal)
	}
}
