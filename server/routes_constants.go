package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	RouteHealth = "/health"

	// Auth Routes - Google OAuth flow
	RouteGoogleAuth     = "/auth/google"
	RouteGoogleCallback = "/auth/google/callback"
	RouteGoogleLink     = "/auth/google/link"
	RouteGoogleUnlink   = "/auth/google/unlink"

	// Auth Routes - Session state
	RouteAuthStatus = "/auth/status"
	RouteAuthLogout = "/auth/logout"

	// Workspace API Routes
	RouteCalendarEvents = "/api/calendar/events"
	RouteGmailSend      = "/api/gmail/send"
)

// Frontend paths the browser flows redirect back to
const (
	FrontendSuccessPath = "/auth/success"
	FrontendErrorPath   = "/auth/error"
)
