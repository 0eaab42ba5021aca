// ABOUTME: Token sources that supply bearer tokens to the socket dialer and REST client
// ABOUTME: Reads DEEPLEARN_TOKEN or ~/.config/deeplearn/token, mirroring the CLI conventions

package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TokenEnvVar is the environment variable consulted by EnvOrFile.
const TokenEnvVar = "DEEPLEARN_TOKEN"

// ErrNoToken is returned when a source has no token to offer.
var ErrNoToken = errors.New("no token available")

// TokenSource supplies the bearer token attached to outgoing requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

// Token returns the static token, rejecting it if it is a JWT past expiry.
func (s StaticToken) Token(_ context.Context) (string, error) {
	tok := strings.TrimSpace(string(s))
	if tok == "" {
		return "", ErrNoToken
	}
	if err := CheckExpiry(tok, time.Now()); err != nil {
		return "", err
	}
	return tok, nil
}

// EnvOrFile reads the token from DEEPLEARN_TOKEN, then from Path (default
// $XDG_CONFIG_HOME/deeplearn/token or ~/.config/deeplearn/token). The file is
// re-read on every call so a refreshed token is picked up on reconnect.
type EnvOrFile struct {
	Path string
}

// Token implements TokenSource.
func (s EnvOrFile) Token(ctx context.Context) (string, error) {
	if tok := os.Getenv(TokenEnvVar); tok != "" {
		return StaticToken(tok).Token(ctx)
	}

	path := s.Path
	if path == "" {
		path = DefaultTokenPath()
	}
	if path == "" {
		return "", ErrNoToken
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("reading token file: %w", err)
	}
	return StaticToken(data).Token(ctx)
}

// DefaultTokenPath returns the token file location, or "" when no home
// directory can be resolved.
func DefaultTokenPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "deeplearn", "token")
}

// BearerHeader returns the Authorization header value for src, or "" when
// src is nil or has no token. Other errors are returned.
func BearerHeader(ctx context.Context, src TokenSource) (string, error) {
	if src == nil {
		return "", nil
	}
	tok, err := src.Token(ctx)
	if errors.Is(err, ErrNoToken) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return "Bearer " + tok, nil
}
