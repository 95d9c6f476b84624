package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/dottie-ai/assistant-server/googleauth"
	"github.com/dottie-ai/assistant-server/identity"
	"github.com/dottie-ai/assistant-server/internal/config"
	"github.com/dottie-ai/assistant-server/server/oauthflowrepo"
	"github.com/dottie-ai/assistant-server/session"
	"github.com/dottie-ai/assistant-server/users"
	"github.com/dottie-ai/assistant-server/workspace"
)

const googleIssuerURL = "https://accounts.google.com"

// Deps groups the services and repositories the server routes against.
type Deps struct {
	Google    *googleauth.Service
	Users     *users.Service
	Resolver  *identity.Resolver
	Sessions  session.Repo
	Flows     oauthflowrepo.Repo
	Workspace *workspace.Service
}

type Server struct {
	env    string // Environment (e.g., "DEV", "PROD")
	mux    *http.ServeMux
	routes []string
	config config.Config

	google    *googleauth.Service
	users     *users.Service
	resolver  *identity.Resolver
	sessions  session.Repo
	flows     oauthflowrepo.Repo
	workspace *workspace.Service

	// Google ID token verification is initialised lazily because the
	// OIDC discovery document requires a network round trip.
	idTokenVerifier *oidc.IDTokenVerifier
	verifierLock    sync.Mutex
}

func New(config config.Config, deps Deps) (*Server, error) {
	if deps.Google == nil || deps.Users == nil || deps.Resolver == nil {
		return nil, fmt.Errorf("[Server New] missing required services")
	}
	if deps.Sessions == nil || deps.Flows == nil || deps.Workspace == nil {
		return nil, fmt.Errorf("[Server New] missing required repositories")
	}

	s := &Server{
		mux:       http.NewServeMux(),
		config:    config,
		google:    deps.Google,
		users:     deps.Users,
		resolver:  deps.Resolver,
		sessions:  deps.Sessions,
		flows:     deps.Flows,
		workspace: deps.Workspace,
	}
	s.env = config.GetEnv()

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// googleVerifier returns the lazily constructed Google ID token verifier.
func (s *Server) googleVerifier(ctx context.Context) (*oidc.IDTokenVerifier, error) {
	s.verifierLock.Lock()
	defer s.verifierLock.Unlock()

	if s.idTokenVerifier != nil {
		return s.idTokenVerifier, nil
	}

	provider, err := oidc.NewProvider(ctx, googleIssuerURL)
	if err != nil {
		return nil, fmt.Errorf("[Server googleVerifier] oidc discovery failed: %w", err)
	}
	s.idTokenVerifier = provider.Verifier(&oidc.Config{ClientID: s.config.GetGoogleClientID()})
	return s.idTokenVerifier, nil
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Printf("[%-19s] %s\n", displayMethod, path)
}
