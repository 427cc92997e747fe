// Package github provides factory functions for creating authenticated GitHub
// API clients. Callers use the returned *github.Client with the adapter in
// apps/server/internal/mirror/adapters/github.
package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bradleyfalzon/ghinstallation/v2"
	gogithub "github.com/google/go-github/v75/github"
	"golang.org/x/oauth2"
)

const defaultAPIURL = "https://api.github.com"

// NewTokenClient creates a *github.Client whose requests carry the token from ts.
// Pass baseURL="" to use the real GitHub API, or a custom URL
// (e.g. "http://localhost:9090") for a mock server or GitHub Enterprise.
// A nil ts yields an unauthenticated client.
func NewTokenClient(ctx context.Context, ts oauth2.TokenSource, baseURL string) *gogithub.Client {
	var httpClient *http.Client
	if ts != nil {
		httpClient = oauth2.NewClient(ctx, oauth2.ReuseTokenSource(nil, ts))
	}
	c := gogithub.NewClient(httpClient)
	applyBaseURL(c, baseURL)
	return c
}

// NewAppTransport creates a GitHub App installation transport.
// privateKeyPath is the path to the app's PEM private key.
func NewAppTransport(appID, installationID int64, privateKeyPath, baseURL string) (*ghinstallation.Transport, error) {
	tr, err := ghinstallation.NewKeyFromFile(http.DefaultTransport, appID, installationID, privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("github app auth: %w", err)
	}
	if baseURL != "" {
		tr.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	return tr, nil
}

// NewAppClient creates a *github.Client authenticated as a GitHub App installation.
func NewAppClient(tr *ghinstallation.Transport, baseURL string) *gogithub.Client {
	c := gogithub.NewClient(&http.Client{Transport: tr})
	applyBaseURL(c, baseURL)
	return c
}

func applyBaseURL(c *gogithub.Client, baseURL string) {
	if baseURL == "" || baseURL == defaultAPIURL {
		return
	}
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
	if err != nil {
		return
	}
	c.BaseURL = u
}
