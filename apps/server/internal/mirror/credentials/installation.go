package credentials

import (
	"context"
	"fmt"
)

// InstallationTokener mints GitHub App installation tokens.
// *ghinstallation.Transport satisfies it.
type InstallationTokener interface {
	Token(ctx context.Context) (string, error)
}

// Installation resolves a GitHub App installation token. The transport
// refreshes the token itself, so Installation is not wrapped in Cached.
type Installation struct {
	tr InstallationTokener
}

// NewInstallation creates an Installation provider.
func NewInstallation(tr InstallationTokener) *Installation {
	return &Installation{tr: tr}
}

// Token implements mirror.CredentialProvider.
func (i *Installation) Token(ctx context.Context) (string, error) {
	token, err := i.tr.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("github app installation token: %w", err)
	}
	return token, nil
}
