// Package secrets resolves secret material for the server. Production
// reads mounted secret files, development falls back to environment
// variables; both sit behind one Source interface so callers never branch
// on the environment.
package secrets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type Source interface {
	Get(ctx context.Context, name string) (string, error)
}

// EnvSource maps secret names to environment variables, e.g.
// "google-oauth-client-secret" -> GOOGLE_OAUTH_CLIENT_SECRET.
type EnvSource struct{}

var _ Source = EnvSource{}

func (EnvSource) Get(_ context.Context, name string) (string, error) {
	envVar := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	value := os.Getenv(envVar)
	if value == "" {
		return "", fmt.Errorf("secret %q not set in environment (%s)", name, envVar)
	}
	return value, nil
}

// DirSource reads secrets mounted as files, one file per secret name.
type DirSource struct {
	dir string
}

var _ Source = DirSource{}

func NewDirSource(dir string) DirSource {
	return DirSource{dir: dir}
}

func (d DirSource) Get(_ context.Context, name string) (string, error) {
	if strings.Contains(name, string(os.PathSeparator)) || name == "" {
		return "", fmt.Errorf("invalid secret name %q", name)
	}
	data, err := os.ReadFile(filepath.Join(d.dir, name))
	if err != nil {
		return "", fmt.Errorf("read secret %q: %w", name, err)
	}
	return strings.TrimSpace(string(data)), nil
}
