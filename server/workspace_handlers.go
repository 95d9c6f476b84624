package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/dottie-ai/assistant-server/googleauth"
	"github.com/dottie-ai/assistant-server/workspace"
)

// CalendarEventsHandler lists upcoming events from the caller's primary
// Google Calendar.
func (s *Server) CalendarEventsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, ok := s.workspaceClient(w, r)
		if !ok {
			return
		}

		maxResults, _ := strconv.Atoi(r.URL.Query().Get("maxResults"))
		events, err := s.workspace.ListEvents(r.Context(), client, maxResults)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": events})
	}
}

// GmailSendHandler sends an email through the caller's Gmail account.
func (s *Server) GmailSendHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var email workspace.Email
		if err := json.NewDecoder(r.Body).Decode(&email); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body", codeInvalidRequest)
			return
		}

		client, ok := s.workspaceClient(w, r)
		if !ok {
			return
		}

		messageID, err := s.workspace.SendEmail(r.Context(), client, email)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":   true,
			"messageId": messageID,
		})
	}
}

// workspaceClient resolves the caller's Google credentials to an
// authenticated API client, writing the distinguishing 401 itself when
// the caller has no usable credentials.
func (s *Server) workspaceClient(w http.ResponseWriter, r *http.Request) (*googleauth.Client, bool) {
	ctx := r.Context()
	id := requestIdentity(r)

	bundle, err := s.resolver.LookupBundle(ctx, id)
	if err != nil {
		writeError(w, err)
		return nil, false
	}

	client, err := s.google.Authenticate(ctx, bundle, id.Key(), s.sessionMirror(ctx, id))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return client, true
}
