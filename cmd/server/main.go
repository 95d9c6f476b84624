package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/dottie-ai/assistant-server/credstore"
	credrepofake "github.com/dottie-ai/assistant-server/credstore/repofake"
	credsqlite "github.com/dottie-ai/assistant-server/credstore/sqlite"
	"github.com/dottie-ai/assistant-server/googleauth"
	"github.com/dottie-ai/assistant-server/identity"
	"github.com/dottie-ai/assistant-server/internal/config"
	"github.com/dottie-ai/assistant-server/internal/secrets"
	"github.com/dottie-ai/assistant-server/server"
	"github.com/dottie-ai/assistant-server/server/oauthflowrepo"
	"github.com/dottie-ai/assistant-server/session"
	sesssqlite "github.com/dottie-ai/assistant-server/session/sqlite"
	"github.com/dottie-ai/assistant-server/users"
	userrepofake "github.com/dottie-ai/assistant-server/users/repofake"
	usersqlite "github.com/dottie-ai/assistant-server/users/sqlite"
	"github.com/dottie-ai/assistant-server/workspace"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Fatal().Err(err).Msg("Error running server")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.New()
	if err != nil {
		return fmt.Errorf("config.New: %w", err)
	}
	setupLogging(c)
	displayAppname(c.GetAppName())

	ctx := context.Background()
	srv, err := buildServer(ctx, c)
	if err != nil {
		return fmt.Errorf("buildServer: %w", err)
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: srv}
	go listenAndServe(httpServer)
	waitForStopSignal()
	returnError = shutdown(httpServer)
	return returnError
}

// buildServer wires the stores, services and HTTP layer. Production uses
// sqlite-backed stores and file-mounted secrets; everything else runs on
// in-memory stores and environment variables.
func buildServer(ctx context.Context, c config.Config) (*server.Server, error) {
	var (
		credRepo  credstore.Repo
		sessRepo  session.Repo
		userRepo  users.UserRepo
		secretSrc secrets.Source
	)

	if c.IsProduction() {
		db, err := sql.Open("sqlite", filepath.Join(c.GetDataFolder(), "assistant.db"))
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if credRepo, err = credsqlite.New(ctx, db); err != nil {
			return nil, fmt.Errorf("credential store: %w", err)
		}
		if sessRepo, err = sesssqlite.New(ctx, db); err != nil {
			return nil, fmt.Errorf("session store: %w", err)
		}
		if userRepo, err = usersqlite.New(ctx, db); err != nil {
			return nil, fmt.Errorf("user store: %w", err)
		}
		secretSrc = secrets.NewDirSource(c.GetSecretsDir())
	} else {
		credRepo = credrepofake.NewFakeCredRepo()
		sessRepo = session.NewInMemoryRepo()
		userRepo = userrepofake.NewFakeUserRepo()
		secretSrc = secrets.EnvSource{}
	}

	googleSvc, err := googleauth.New(ctx, c, secretSrc, credRepo)
	if err != nil {
		return nil, fmt.Errorf("google auth service: %w", err)
	}
	usersSvc, err := users.NewService(userRepo, c.GetSignInTokenSecret(), c.GetSignInTokenExpiry())
	if err != nil {
		return nil, fmt.Errorf("users service: %w", err)
	}
	resolver, err := identity.NewResolver(credRepo, sessRepo, identity.WithSessionTTL(c.GetSessionTTL()))
	if err != nil {
		return nil, fmt.Errorf("identity resolver: %w", err)
	}

	return server.New(c, server.Deps{
		Google:    googleSvc,
		Users:     usersSvc,
		Resolver:  resolver,
		Sessions:  sessRepo,
		Flows:     oauthflowrepo.NewInMemoryRepo(c.GetFlowStateTimeout()),
		Workspace: workspace.NewService(),
	})
}

func setupLogging(c config.Config) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
