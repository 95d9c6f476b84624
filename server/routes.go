package server

import "net/http"

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())

	// Google OAuth flow
	s.RegisterRouteHandler("GET "+RouteGoogleAuth, ChainMiddleware(s.GoogleAuthHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteGoogleCallback, ChainMiddleware(s.GoogleCallbackHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteGoogleLink, ChainMiddleware(s.GoogleLinkHandler(), s.APIMiddleware(s.RequireAuth)...))
	s.RegisterRouteHandler("POST "+RouteGoogleUnlink, ChainMiddleware(s.GoogleUnlinkHandler(), s.APIMiddleware(s.RequireAuth)...))

	// Session state
	s.RegisterRouteHandler("GET "+RouteAuthStatus, ChainMiddleware(s.AuthStatusHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware()...))

	// Workspace API
	s.RegisterRouteHandler("GET "+RouteCalendarEvents, ChainMiddleware(s.CalendarEventsHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteGmailSend, ChainMiddleware(s.GmailSendHandler(), s.APIMiddleware()...))

	// The method-qualified patterns above never match OPTIONS, so each
	// API route needs its own registration for browser preflights to
	// reach CorsMiddleware.
	for _, route := range []string{
		RouteGoogleAuth,
		RouteGoogleCallback,
		RouteGoogleLink,
		RouteGoogleUnlink,
		RouteAuthStatus,
		RouteAuthLogout,
		RouteCalendarEvents,
		RouteGmailSend,
	} {
		s.RegisterRouteHandler("OPTIONS "+route, ChainMiddleware(s.PreflightHandler(), s.RecoverMiddleware, s.CorsMiddleware))
	}
}

// PreflightHandler answers OPTIONS requests that carry no Origin header.
// Cross-origin preflights are terminated by CorsMiddleware before the
// request reaches this handler.
func (s *Server) PreflightHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}

// HealthHandler reports process liveness. No middleware so it stays
// usable for load balancer probes.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"service": s.config.GetAppName(),
		})
	}
}
