// Package auth provides access tokens for authenticating outgoing requests.
package auth

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// TokenProvider is a capability for obtaining OAuth 2.0 access tokens for a
// set of scopes. Implementations must be safe for concurrent use.
type TokenProvider interface {
	// CreateAccessToken returns an access token valid for the given scopes.
	CreateAccessToken(ctx context.Context, scopes ...string) (*oauth2.Token, error)
}

// serviceAccountTokenProvider derives access tokens from a JSON service
// account key.
type serviceAccountTokenProvider struct {
	jsonKey []byte
}

// NewServiceAccountTokenProvider returns a TokenProvider which mints tokens
// from the given JSON service account key.
func NewServiceAccountTokenProvider(jsonKey []byte) TokenProvider {
	return &serviceAccountTokenProvider{
		jsonKey: jsonKey,
	}
}

// CreateAccessToken implements TokenProvider.
func (p *serviceAccountTokenProvider) CreateAccessToken(ctx context.Context, scopes ...string) (*oauth2.Token, error) {
	creds, err := google.CredentialsFromJSON(ctx, p.jsonKey, scopes...)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to create credentials from JSON key")
	}
	tok, err := creds.TokenSource.Token()
	if err != nil {
		return nil, errors.Wrap(err, "Unable to obtain access token")
	}
	return tok, nil
}

// defaultTokenProvider uses Application Default Credentials, eg. the
// service account attached to a GCE instance.
type defaultTokenProvider struct{}

// NewDefaultTokenProvider returns a TokenProvider which uses Application
// Default Credentials. See details here:
// https://cloud.google.com/docs/authentication/production
func NewDefaultTokenProvider() TokenProvider {
	return defaultTokenProvider{}
}

// CreateAccessToken implements TokenProvider.
func (defaultTokenProvider) CreateAccessToken(ctx context.Context, scopes ...string) (*oauth2.Token, error) {
	ts, err := google.DefaultTokenSource(ctx, scopes...)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to obtain default token source")
	}
	tok, err := ts.Token()
	if err != nil {
		return nil, errors.Wrap(err, "Unable to obtain access token")
	}
	return tok, nil
}

// staticTokenProvider returns a fixed token regardless of scopes. Intended
// for tests and local development.
type staticTokenProvider oauth2.Token

// NewStaticTokenProvider returns a TokenProvider which always returns a
// token with the given value.
func NewStaticTokenProvider(accessToken string) TokenProvider {
	return &staticTokenProvider{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(24 * time.Hour),
	}
}

// CreateAccessToken implements TokenProvider.
func (p *staticTokenProvider) CreateAccessToken(ctx context.Context, scopes ...string) (*oauth2.Token, error) {
	return (*oauth2.Token)(p), nil
}
